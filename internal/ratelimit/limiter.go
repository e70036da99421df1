// Package ratelimit implements an in-memory sliding-window rate limiter.
//
// Each limiter tracks request timestamps per key (typically the client IP).
// Old entries are pruned on every check. State lives for the process lifetime
// only: a restart resets all counters, which is an accepted trade-off for this
// soft-limiting purpose, and limits are per-instance rather than cluster-wide.
package ratelimit

import (
	"sync"
	"time"
)

// Result is the outcome of a single admission check. RetryAfter is only set
// when the request was denied.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter enforces a cap of maxRequests per window for each key.
type Limiter struct {
	mu          sync.Mutex
	store       map[string][]time.Time
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		store:       make(map[string][]time.Time),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// Check decides whether a request from key is allowed right now. The prune,
// the cap check and the timestamp record happen under one lock so two
// concurrent requests for the same key can never both slip past the cap.
func (l *Limiter) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	kept := l.store[key][:0]
	for _, t := range l.store[key] {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.maxRequests {
		l.store[key] = kept
		oldest := kept[0]
		return Result{
			Allowed:    false,
			RetryAfter: oldest.Add(l.window).Sub(now),
		}
	}

	l.store[key] = append(kept, now)
	return Result{Allowed: true}
}
