package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count   int64
	resetAt time.Time
}

// Process local store. Counters are lost on restart and not shared between instances
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]counter
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]counter),
		now:      now,
	}
}

func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	// Drop every elapsed window so the map doesn't grow with one-off callers
	for k, c := range s.counters {
		if !now.Before(c.resetAt) {
			delete(s.counters, k)
		}
	}

	c, ok := s.counters[key]
	if !ok {
		c = counter{resetAt: now.Add(window)}
	}
	c.count++
	s.counters[key] = c

	return Window{
		Count:   c.count,
		ResetAt: c.resetAt,
		TTL:     c.resetAt.Sub(now),
	}, nil
}

// Number of tracked keys
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}
