package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("idempotency",
	fx.Provide(NewRedisStore),
)

type record struct {
	Status Status `json:"status"`
	Result string `json:"result,omitempty"`
}

type redisStore struct {
	rdb *redis.Client
}

// NewRedisStore returns a Store backed by redis SET NX, giving the
// check-and-mark a single atomic operation across instances.
func NewRedisStore(rdb *redis.Client) Store {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) Begin(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	payload, _ := json.Marshal(record{Status: StatusInFlight})
	return s.rdb.SetNX(ctx, key, payload, ttl).Result()
}

func (s *redisStore) Complete(ctx context.Context, key string, result string, ttl time.Duration) error {
	payload, _ := json.Marshal(record{Status: StatusCompleted, Result: result})
	return s.rdb.Set(ctx, key, payload, ttl).Err()
}

func (s *redisStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *redisStore) Get(ctx context.Context, key string) (Status, string, error) {
	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return StatusNone, "", nil
	}
	if err != nil {
		return StatusNone, "", err
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return StatusNone, "", err
	}
	return rec.Status, rec.Result, nil
}
