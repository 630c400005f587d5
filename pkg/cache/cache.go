package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "gigpay_cache_hits_total"},
		[]string{"cache"},
	)
	cacheMiss = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "gigpay_cache_miss_total"},
		[]string{"cache"},
	)
)

type entry[V any] struct {
	value     V
	updatedAt time.Time
}

// TTLCache is a thread-safe in-process cache with singleflight loading.
// Values older than the TTL are treated as absent.
type TTLCache[V any] struct {
	name  string
	mu    sync.RWMutex
	items map[string]entry[V]
	ttl   time.Duration
	group singleflight.Group
}

func New[V any](name string, ttl time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		name:  name,
		items: make(map[string]entry[V]),
		ttl:   ttl,
	}
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	if !ok || (c.ttl > 0 && time.Since(v.updatedAt) > c.ttl) {
		var zero V
		cacheMiss.WithLabelValues(c.name).Inc()
		return zero, false
	}
	cacheHits.WithLabelValues(c.name).Inc()
	return v.value, true
}

func (c *TTLCache[V]) Set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[V]{value: v, updatedAt: time.Now()}
}

func (c *TTLCache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// GetOrLoad returns the cached value or loads it once per key, collapsing
// concurrent loads via singleflight.
func (c *TTLCache[V]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, loaded)
		return loaded, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}
