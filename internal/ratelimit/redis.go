package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] window key
// ARGV: now (ms), window (ms), max, member
// Returns {allowed, count, newest score}
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)

local count = redis.call("ZCARD", key)
local allowed = 0
if count < limit then
  redis.call("ZADD", key, now, ARGV[4])
  count = count + 1
  allowed = 1
end

redis.call("PEXPIRE", key, window)

local newest = now
local last = redis.call("ZRANGE", key, -1, -1, "WITHSCORES")
if last[2] then
  newest = tonumber(last[2])
end

return {allowed, count, newest}
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// Limiter shared by every process using the same redis
type RedisLimiter struct {
	redis redis.UniversalClient
	cfg   Config
}

func NewRedisLimiter(client redis.UniversalClient, cfg Config) *RedisLimiter {
	return &RedisLimiter{redis: client, cfg: cfg.withDefaults()}
}

// Allow records a hit for key
// On failure the result carries only the configured limit
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.cfg.Now()

	values, err := slidingWindowLua.Run(ctx, l.redis,
		[]string{l.cfg.Prefix + key},
		now.UnixMilli(),
		l.cfg.Window.Milliseconds(),
		l.cfg.Max,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Result{Limit: l.cfg.Max}, fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	if len(values) != 3 {
		return Result{Limit: l.cfg.Max}, fmt.Errorf("%w: unexpected script reply %v", ErrRedisUnavailable, values)
	}

	allowed := values[0] == 1
	count := int(values[1])
	newest := time.UnixMilli(values[2])

	return newResult(allowed, count, newest, now, l.cfg), nil
}
