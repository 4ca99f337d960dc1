package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/queuedesk/internal/logger"
)

const (
	defaultMax    = 100
	defaultWindow = time.Minute
	defaultPrefix = "ratelimit:"

	pingTimeout = 2 * time.Second
)

var (
	ErrThrottled        = errors.New("too many requests")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// ThrottleError is returned by Result.Err for rejected requests
// It matches ErrThrottled and carries the retry hint
type ThrottleError struct {
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.RetryAfter)
}

func (e *ThrottleError) Is(target error) bool {
	return target == ErrThrottled
}

// Sliding window limiter: at most Max requests per key in any Window
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

type Result struct {
	Allowed bool

	Limit     int
	Remaining int

	// Time the window fully clears for the key
	Reset time.Time

	// Set for rejected requests only
	RetryAfter time.Duration
}

func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return &ThrottleError{RetryAfter: r.RetryAfter}
}

type Config struct {
	// Requests allowed per window
	// If not set than default is used
	Max    int
	Window time.Duration

	// Prefix of redis keys
	Prefix string

	// Clock, time.Now if not set
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Max <= 0 {
		c.Max = defaultMax
	}
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Shared limiter if redis is reachable, in-process one otherwise
// Degraded mode is logged: limits are not shared between processes then
func NewFromRedis(ctx context.Context, client redis.UniversalClient, cfg Config, l logger.Logger) Limiter {
	if client == nil {
		l.Warn("Redis is not configured, rate limiter works in degraded in-process mode")
		return NewMemoryLimiter(cfg)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		l.Warn("Redis is unreachable, rate limiter works in degraded in-process mode", "error", err)
		return NewMemoryLimiter(cfg)
	}

	return NewRedisLimiter(client, cfg)
}

func newResult(allowed bool, count int, newest time.Time, now time.Time, cfg Config) Result {
	reset := newest.Add(cfg.Window)

	res := Result{
		Allowed:   allowed,
		Limit:     cfg.Max,
		Remaining: max(cfg.Max-count, 0),
		Reset:     reset,
	}
	if !allowed {
		res.RetryAfter = reset.Sub(now)
	}

	return res
}
