package local

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterImpl is an in-process token bucket per key, for single-instance deployments.
type RateLimiterImpl struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

// NewRateLimiter admits limit requests per window for each key, with bursts up to limit.
func NewRateLimiter(limit int, window time.Duration) *RateLimiterImpl {
	every := rate.Inf
	burst := 1
	if limit > 0 && window > 0 {
		every = rate.Every(window / time.Duration(limit))
		burst = limit
	}
	return &RateLimiterImpl{
		limiters: make(map[string]*rate.Limiter),
		every:    every,
		burst:    burst,
	}
}

// Wait blocks until a token for key is available or ctx is done.
func (r *RateLimiterImpl) Wait(ctx context.Context, key string) error {
	return r.limiter(key).Wait(ctx)
}

func (r *RateLimiterImpl) limiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(r.every, r.burst)
		r.limiters[key] = l
	}
	return l
}
