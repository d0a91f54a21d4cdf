// Package ratelimit throttles outbound requests per external system with
// token buckets from golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key. It is safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	config      Config
	limiters    map[string]*limiterEntry
	lastCleanup time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

func NewLimiter(config Config) (*Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{
		config:      config,
		limiters:    make(map[string]*limiterEntry),
		lastCleanup: time.Now(),
	}, nil
}

// WaitForKey blocks until a request for key may proceed or ctx ends.
func (l *Limiter) WaitForKey(ctx context.Context, key string) error {
	if !l.config.Enabled {
		return nil
	}
	return l.limiterFor(key).Wait(ctx)
}

// TryAcquireForKey takes a token for key without blocking
func (l *Limiter) TryAcquireForKey(key string) bool {
	if !l.config.Enabled {
		return true
	}
	return l.limiterFor(key).Allow()
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) > l.config.CleanupPeriod {
		l.cleanup()
	}

	now := time.Now()
	entry, exists := l.limiters[key]
	if !exists {
		entry = &limiterEntry{
			limiter:  rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.BurstSize),
			lastUsed: now,
		}
		l.limiters[key] = entry
		if len(l.limiters) > l.config.MaxKeys {
			l.cleanup()
		}
		if len(l.limiters) > l.config.MaxKeys {
			l.evictOldest(key)
		}
	}
	entry.lastUsed = now
	return entry.limiter
}

// cleanup removes limiters that haven't been used recently
func (l *Limiter) cleanup() {
	cutoff := time.Now().Add(-l.config.CleanupPeriod)
	for key, entry := range l.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
	l.lastCleanup = time.Now()
}

// evictOldest drops least recently used limiters, never keep, until MaxKeys holds.
func (l *Limiter) evictOldest(keep string) {
	for len(l.limiters) > l.config.MaxKeys {
		oldestKey := ""
		var oldest time.Time
		for key, entry := range l.limiters {
			if key == keep {
				continue
			}
			if oldestKey == "" || entry.lastUsed.Before(oldest) {
				oldestKey, oldest = key, entry.lastUsed
			}
		}
		if oldestKey == "" {
			return
		}
		delete(l.limiters, oldestKey)
	}
}

// Stats returns rate limiter statistics
func (l *Limiter) Stats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	return map[string]interface{}{
		"enabled":             l.config.Enabled,
		"requests_per_second": l.config.RequestsPerSecond,
		"burst_size":          l.config.BurstSize,
		"active_keys":         len(l.limiters),
		"max_keys":            l.config.MaxKeys,
		"last_cleanup":        l.lastCleanup.Format(time.RFC3339),
	}
}
