package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RequestLimiter throttles individual provider requests with a token bucket
type RequestLimiter struct {
	limiter *rate.Limiter
}

// NewRequestLimiter creates a limiter allowing rps requests per second with
// the given burst. rps <= 0 disables throttling.
func NewRequestLimiter(rps float64, burst int) *RequestLimiter {
	r := rate.Limit(rps)
	if rps <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RequestLimiter{limiter: rate.NewLimiter(r, burst)}
}

// Wait blocks until a request may proceed. A nil limiter never blocks.
func (l *RequestLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
