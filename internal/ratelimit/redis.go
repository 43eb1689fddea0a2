package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// Increment and set expiry on first hit in one round trip.
// Returns {count, pttl}
var hitScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {c, ttl}
`)

// Store shared between server instances
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (Window, error) {
	res, err := hitScript.Run(ctx, s.rdb, []string{redisKeyPrefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("rate limit hit failed: %w", err)
	}
	if len(res) != 2 {
		return Window{}, fmt.Errorf("rate limit hit returned unexpected result: %v", res)
	}

	ttl := time.Duration(res[1]) * time.Millisecond
	return Window{
		Count:   res[0],
		ResetAt: s.now().Add(ttl),
		TTL:     ttl,
	}, nil
}
