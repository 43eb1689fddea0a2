// Package ratelimit counts requests in fixed windows.
//
// Store is the only thing guards depend on: MemoryStore is good for a single
// process, RedisStore shares counters between server instances.
package ratelimit

import (
	"context"
	"time"
)

// Current state of the window for a key after the hit was counted
type Window struct {
	Count   int64
	ResetAt time.Time

	// Time left until the window resets
	TTL time.Duration
}

// Atomic increment-with-expiry keyed by arbitrary string
type Store interface {
	// Count one hit for key. Window starts with the first hit and lasts for 'window'
	Hit(ctx context.Context, key string, window time.Duration) (Window, error)
}
