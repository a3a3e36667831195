package cache

import (
	"context"
	"time"

	"github.com/npquoc/mallcore/internal/usecase"
	"github.com/redis/go-redis/v9"
)

// RedisMarkerStore arms per-order expiration markers. The marker carries no
// payload; its TTL lapse is the signal the expiry listener observes.
type RedisMarkerStore struct {
	rdb *redis.Client
}

func NewRedisMarkerStore(rdb *redis.Client) *RedisMarkerStore {
	return &RedisMarkerStore{rdb: rdb}
}

func (s *RedisMarkerStore) Arm(ctx context.Context, orderID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, usecase.MarkerPrefix+orderID, "1", ttl).Err()
}

func (s *RedisMarkerStore) Disarm(ctx context.Context, orderID string) error {
	return s.rdb.Del(ctx, usecase.MarkerPrefix+orderID).Err()
}

var _ usecase.MarkerStore = (*RedisMarkerStore)(nil)
