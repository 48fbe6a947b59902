package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// RateLimiter is a single-process sliding-log limiter.
type RateLimiter struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	windows map[string][]time.Time
}

// NewRateLimiter creates a limiter on clock.
func NewRateLimiter(clock timeutil.Clock) *RateLimiter {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &RateLimiter{clock: clock, windows: make(map[string][]time.Time)}
}

// Allow has the same counting as the Redis limiter: the current request is
// recorded before the comparison, rejected or not.
func (r *RateLimiter) Allow(_ context.Context, scope, identifier string, maxPerWindow int, window time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := scope + ":" + identifier
	now := r.clock.Now()
	cutoff := now.Add(-window)

	kept := r.windows[key][:0]
	for _, t := range r.windows[key] {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	r.windows[key] = kept

	return len(kept) <= maxPerWindow
}
