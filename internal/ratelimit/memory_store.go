package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	count    int64
	expireAt time.Time
}

// MemoryStore is the in-process CounterStore for deployments without Redis.
// Counters are created lazily and die by natural expiry on next touch.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memEntry), now: time.Now}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || now.After(e.expireAt) {
		e = &memEntry{expireAt: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}
