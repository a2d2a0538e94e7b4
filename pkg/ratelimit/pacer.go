package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRequestDelay is the minimum spacing between TMDB requests.
const DefaultRequestDelay = 250 * time.Millisecond

// Pacer enforces a minimum delay between consecutive requests.
type Pacer struct {
	limiter *rate.Limiter
	delay   time.Duration
}

// NewPacer creates a pacer allowing one request per delay. A non-positive
// delay disables pacing.
func NewPacer(delay time.Duration) *Pacer {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		delay:   delay,
	}
}

// Wait blocks until the next request may be sent.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// Delay returns the configured spacing.
func (p *Pacer) Delay() time.Duration {
	return p.delay
}
