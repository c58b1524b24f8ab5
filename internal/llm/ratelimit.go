package llm

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/time/rate"
)

const defaultRetries = 2

// RateLimited paces calls to an underlying client and retries temporary API
// errors. Synthesis issues up to batch_size * max_attempts completions per
// run, which can exceed provider quotas.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
	retries int
}

// NewRateLimited allows perMinute requests per minute with the given burst.
func NewRateLimited(next Client, perMinute float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60), burst),
		retries: defaultRetries,
	}
}

// Complete waits for a token, then delegates. A temporary *APIError is
// retried, each retry waiting for its own token.
func (r *RateLimited) Complete(ctx context.Context, req Request) (*Response, error) {
	for attempt := 0; ; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := r.next.Complete(ctx, req)
		var apiErr *APIError
		if err == nil || attempt >= r.retries || !errors.As(err, &apiErr) || !apiErr.Temporary() {
			return resp, err
		}
		log.Printf("llm: %v, retrying (%d/%d)", err, attempt+1, r.retries)
	}
}
