package llmservice

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum gap between outbound LLM calls. All workers share one.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter allows one call per minInterval. A non-positive interval disables limiting.
func NewLimiter(minInterval time.Duration) *Limiter {
	if minInterval <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Acquire blocks until a call may be issued or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
