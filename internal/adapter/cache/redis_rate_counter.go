package cache

import (
	"context"
	"time"

	"github.com/npquoc/mallcore/internal/ratelimit"
	"github.com/redis/go-redis/v9"
)

// RedisCounterStore backs the rate gate with INCR + EXPIRE. The expiry is
// armed on the increment that creates the key; re-arming on a race is
// harmless (the window just restarts a hair later).
type RedisCounterStore struct {
	rdb *redis.Client
}

func NewRedisCounterStore(rdb *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{rdb: rdb}
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		_ = s.rdb.Expire(ctx, key, window).Err()
	}
	return n, nil
}

var _ ratelimit.CounterStore = (*RedisCounterStore)(nil)
