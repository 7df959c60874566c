package services

import (
	"log/slog"
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by caller, used to
// throttle token-guessing against the access gate. The token is the
// only credential an anonymous viewer has, so validation attempts are
// worth limiting per source address.
type RateLimiter struct {
	mu               sync.Mutex
	requestsPerMin   int
	requestsByCaller map[string][]time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rpm int) *RateLimiter {
	return &RateLimiter{
		requestsPerMin:   rpm,
		requestsByCaller: make(map[string][]time.Time),
	}
}

// Allow reports whether the caller may make another request within the
// current window, recording the attempt when it may.
func (r *RateLimiter) Allow(caller string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-time.Minute)

	// Remove old requests outside the window
	validRequests := make([]time.Time, 0)
	for _, t := range r.requestsByCaller[caller] {
		if t.After(windowStart) {
			validRequests = append(validRequests, t)
		}
	}

	if len(validRequests) >= r.requestsPerMin {
		r.requestsByCaller[caller] = validRequests
		slog.Info("Rate limit reached",
			"caller", caller,
			"rpm", r.requestsPerMin,
		)
		return false
	}

	r.requestsByCaller[caller] = append(validRequests, now)

	// Drop empty buckets so idle callers don't accumulate.
	if len(r.requestsByCaller) > 10000 {
		for k, v := range r.requestsByCaller {
			if len(v) == 0 || !v[len(v)-1].After(windowStart) {
				delete(r.requestsByCaller, k)
			}
		}
	}

	return true
}

// Global limiter for anonymous access validation (gate + polling).
var validationRateLimiter = NewRateLimiter(120)

// AllowValidation reports whether another validation attempt from this
// caller is allowed.
func AllowValidation(caller string) bool {
	return validationRateLimiter.Allow(caller)
}
