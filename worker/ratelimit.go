package worker

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pruneThreshold is the tracked-requester count above which idle limiters
// are dropped.
const pruneThreshold = 10000

// RateLimiter limits how many files each requester may submit. A nil
// *RateLimiter allows everything.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter returns nil when perMinute is not positive.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[int64]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
	}
}

func (r *RateLimiter) Allow(requesterID int64) bool {
	if r == nil {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, ok := r.limiters[requesterID]
	if !ok {
		if len(r.limiters) >= pruneThreshold {
			r.pruneLocked()
		}
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.limiters[requesterID] = limiter
	}
	return limiter.Allow()
}

// pruneLocked drops limiters that have refilled completely; recreating them
// is indistinguishable.
func (r *RateLimiter) pruneLocked() {
	for id, limiter := range r.limiters {
		if limiter.Tokens() >= float64(r.burst) {
			delete(r.limiters, id)
		}
	}
}
