package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetMissThenHit(t *testing.T) {
	c := New[int]("test", time.Minute)

	_, ok := c.Get("a")
	require.False(t, ok)

	c.Set("a", 42)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestTTLExpiry(t *testing.T) {
	c := New[int]("test", 10*time.Millisecond)
	c.Set("a", 1)

	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get("a")
	require.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := New[string]("test", time.Minute)
	c.Set("a", "x")
	c.Invalidate("a")

	_, ok := c.Get("a")
	require.False(t, ok)
}

func TestGetOrLoadCollapsesConcurrentLoads(t *testing.T) {
	c := New[int]("test", time.Minute)
	var loads int32

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "k", func(ctx context.Context) (int, error) {
				atomic.AddInt32(&loads, 1)
				time.Sleep(10 * time.Millisecond)
				return 7, nil
			})
			require.NoError(t, err)
			require.Equal(t, 7, v)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestGetOrLoadError(t *testing.T) {
	c := New[int]("test", time.Minute)

	_, err := c.GetOrLoad(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	require.Error(t, err)

	_, ok := c.Get("k")
	require.False(t, ok)
}
