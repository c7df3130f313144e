package transport

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited caps the messages per second handed to the wrapped transport.
type RateLimited struct {
	next    Transport
	limiter *rate.Limiter
}

func NewRateLimited(next Transport, perSecond float64) *RateLimited {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Name() string { return r.next.Name() }

func (r *RateLimited) Send(ctx context.Context, msg *Message) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit wait: %w", r.next.Name(), err)
	}
	return r.next.Send(ctx, msg)
}
