package http

import (
	"sync"

	"golang.org/x/time/rate"
)

// tagLimiter keeps one token bucket per leaderboard tag.
type tagLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// newTagLimiter returns nil when perSec <= 0; a nil limiter allows everything.
func newTagLimiter(perSec float64, burst int) *tagLimiter {
	if perSec <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &tagLimiter{
		limit:    rate.Limit(perSec),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *tagLimiter) Allow(tag string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	lim, ok := l.limiters[tag]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[tag] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}
