package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Per process limiter, used when redis is not available
// Limits are not shared between service instances
type MemoryLimiter struct {
	cfg Config

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
}

func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	cfg = cfg.withDefaults()
	return &MemoryLimiter{
		cfg:       cfg,
		hits:      make(map[string][]time.Time),
		lastSweep: cfg.Now(),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.cfg.Now()
	cutoff := now.Add(-l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepIdle(now, cutoff)

	hits := prune(l.hits[key], cutoff)
	allowed := len(hits) < l.cfg.Max
	if allowed {
		hits = append(hits, now)
	}

	newest := now
	if len(hits) > 0 {
		newest = hits[len(hits)-1]
		l.hits[key] = hits
	} else {
		delete(l.hits, key)
	}

	return newResult(allowed, len(hits), newest, now, l.cfg), nil
}

// Drop keys without hits in the window, at most once per window
func (l *MemoryLimiter) sweepIdle(now time.Time, cutoff time.Time) {
	if now.Sub(l.lastSweep) < l.cfg.Window {
		return
	}
	l.lastSweep = now

	for key, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}

// Keep hits newer than cutoff. Hits are sorted by time
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
