package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and consumes atomically on the Redis side, using
// the server clock so instances with skewed clocks agree.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return allowed
`

// RedisLimiter implements Limiter with a token bucket stored in Redis.
type RedisLimiter struct {
	client redis.UniversalClient
	script *redis.Script
	prefix string
	rate   float64
	burst  int
	ttl    time.Duration
}

// NewRedisLimiter creates a limiter sharing buckets through client. Keys are
// namespaced under prefix. The caller owns client; Close does not close it.
func NewRedisLimiter(client redis.UniversalClient, prefix string, rate float64, burst int) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		prefix: prefix,
		rate:   rate,
		burst:  burst,
		ttl:    bucketTTL(rate, burst),
	}
}

// Allow consumes one token from the bucket for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := l.script.Run(ctx, l.client, []string{l.prefix + key},
		l.rate, l.burst, l.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis: %w", err)
	}
	return n == 1, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (l *RedisLimiter) Close() error { return nil }

// bucketTTL keeps an idle bucket around for twice the time it takes to refill.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil(float64(burst) / rate * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
