package ratelimiter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript implements the refill-and-consume step atomically on
// the Redis side. Running it as a script avoids a read-modify-write race
// between concurrent requests for the same key.
//
// KEYS[1] = bucket key
// ARGV[1] = capacity, ARGV[2] = refill rate, ARGV[3] = refill interval (ms)
// ARGV[4] = tokens to consume, ARGV[5] = now (unix ms)
// Returns {remaining, lastRefill (unix ms)}.
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local consume = tonumber(ARGV[4])
local now = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'refilled')
local tokens = tonumber(state[1])
local refilled = tonumber(state[2])

if tokens == nil then
  tokens = capacity
  refilled = now
end

local intervals = math.floor((now - refilled) / interval)
if intervals > 0 then
  tokens = math.min(tokens + intervals * rate, capacity)
  refilled = now
end

tokens = tokens - consume

redis.call('HSET', KEYS[1], 'tokens', tokens, 'refilled', refilled)
redis.call('PEXPIRE', KEYS[1], interval * math.ceil(capacity / rate) * 2)

return {tokens, refilled}
`)

// RedisStore implements Store backed by Redis, allowing rate limits to be
// shared across service replicas.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed store. Keys are namespaced with the
// given prefix to keep rate limit state separable from other Redis users.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

// ConsumeTokens runs the token bucket step atomically in Redis.
func (s *RedisStore) ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (int, time.Time, error) {
	now := time.Now()

	res, err := tokenBucketScript.Run(ctx, s.client, []string{s.key(key)},
		config.Capacity,
		config.RefillRate,
		config.RefillInterval.Milliseconds(),
		tokens,
		now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, errors.Join(ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, ErrStoreUnavailable
	}

	remaining := int(res[0])
	resetAt := time.UnixMilli(res[1]).Add(config.RefillInterval)

	return remaining, resetAt, nil
}

// Reset clears the rate limit state for the given key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
