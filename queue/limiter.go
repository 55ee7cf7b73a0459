package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter rate-limits submissions per user with a token bucket each.
// A zero rate disables limiting.
type Limiter struct {
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewLimiter creates a limiter allowing perSecond sustained submissions
// per user with the given burst. Burst defaults to 1 when perSecond is
// set.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		rate:     rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Enabled reports whether the limiter ever rejects.
func (l *Limiter) Enabled() bool { return l != nil && l.rate > 0 }

// Allow reports whether userID may submit now, consuming a token if so.
func (l *Limiter) Allow(userID string) bool {
	if !l.Enabled() {
		return true
	}

	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}

// Forget drops a user's bucket.
func (l *Limiter) Forget(userID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.limiters, userID)
	l.mu.Unlock()
}

// Reset drops every bucket.
func (l *Limiter) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.limiters = make(map[string]*rate.Limiter)
	l.mu.Unlock()
}
