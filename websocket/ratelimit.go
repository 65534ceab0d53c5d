package websocket

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window counter keyed by user, shared by all of a
// user's connections. Keys with no hit inside the window are swept once per window.
type RateLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a hit for key and reports whether it fits in the window.
func (r *RateLimiter) Allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	windowStart := now.Add(-r.window)
	if now.Sub(r.lastSweep) >= r.window {
		r.sweepLocked(windowStart)
		r.lastSweep = now
	}

	slice := prune(r.hits[key], windowStart)
	if len(slice) >= r.limit {
		r.hits[key] = slice
		return false
	}
	r.hits[key] = append(slice, now)
	return true
}

func (r *RateLimiter) sweepLocked(windowStart time.Time) {
	for key, slice := range r.hits {
		if len(slice) == 0 || !slice[len(slice)-1].After(windowStart) {
			delete(r.hits, key)
		}
	}
}

func (r *RateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hits)
}

// prune drops timestamps at or before windowStart, reusing slice's storage.
func prune(slice []time.Time, windowStart time.Time) []time.Time {
	idx := 0
	for _, ts := range slice {
		if ts.After(windowStart) {
			slice[idx] = ts
			idx++
		}
	}
	return slice[:idx]
}
