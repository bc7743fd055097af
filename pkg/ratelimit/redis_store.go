package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// reserveScript atomically moves the last slot forward.
// KEYS[1] = slot key, ARGV = now (ms), interval (ms), key ttl (ms).
var reserveScript = redis.NewScript(`
local last = tonumber(redis.call('GET', KEYS[1]) or '0')
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local slot = now
if last > 0 and last + interval > slot then
	slot = last + interval
end
redis.call('SET', KEYS[1], slot, 'PX', ARGV[3])
return slot
`)

// RedisStore shares the pacing state between processes through Redis.
type RedisStore struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed store. The key expires after ttl
// of inactivity; use at least the budget window.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultWindow
	}
	return &RedisStore{
		redis: redisClient,
		key:   RedisKeyLastQuery,
		ttl:   ttl,
	}
}

// Reserve implements Store.
func (s *RedisStore) Reserve(ctx context.Context, now time.Time, interval time.Duration) (time.Time, error) {
	slot, err := reserveScript.Run(ctx, s.redis, []string{s.key},
		now.UnixMilli(), interval.Milliseconds(), s.ttl.Milliseconds()).Int64()
	if err != nil {
		return time.Time{}, fmt.Errorf("reserve query slot in redis: %w", err)
	}
	return time.UnixMilli(slot), nil
}
