package core

// ratelimit.go is a sliding-window request limiter keyed by client. The
// clock is injected so tests can drive the window without sleeping; the
// per-client window is a bounded slice of timestamps, trimmed on every call.

import (
	"sync"
	"time"
)

// RateLimiter allows at most limit events per window per client key.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	clients   map[string][]time.Time
	lastPrune time.Time
}

// NewRateLimiter creates a limiter with the given per-key budget. A nil now
// uses the wall clock.
func NewRateLimiter(limit int, window time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     now,
		clients: make(map[string][]time.Time),
	}
}

// Allow records an event for key and reports whether it fits the budget.
// Events older than the window are dropped before counting, so the state
// held per key never exceeds limit timestamps.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Idle keys are swept at most once per window, so the map stays
	// bounded without a background goroutine.
	if now.Sub(rl.lastPrune) >= rl.window {
		rl.pruneLocked(cutoff)
		rl.lastPrune = now
	}

	events := rl.clients[key]
	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.limit {
		rl.clients[key] = kept
		return false
	}

	rl.clients[key] = append(kept, now)
	return true
}

// Prune drops clients whose every event has aged out of the window. Allow
// runs it once per window on its own; the limiter stays correct without it,
// only larger.
func (rl *RateLimiter) Prune() {
	cutoff := rl.now().Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.pruneLocked(cutoff)
}

func (rl *RateLimiter) pruneLocked(cutoff time.Time) {
	for key, events := range rl.clients {
		live := false
		for _, t := range events {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(rl.clients, key)
		}
	}
}
