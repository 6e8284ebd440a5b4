package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryingClient retries failed Send calls with exponential backoff.
// Retry policy lives here so that callers of the Model Client never retry
// on their own.
type RetryingClient struct {
	next       Client
	maxRetries int

	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewRetryingClient wraps next, allowing maxRetries retries after the first attempt.
func NewRetryingClient(next Client, maxRetries int) *RetryingClient {
	return &RetryingClient{
		next:            next,
		maxRetries:      maxRetries,
		initialInterval: 500 * time.Millisecond,
		maxInterval:     10 * time.Second,
	}
}

// Provider returns the wrapped client's provider.
func (c *RetryingClient) Provider() string {
	return c.next.Provider()
}

// Model returns the wrapped client's model.
func (c *RetryingClient) Model() string {
	return c.next.Model()
}

// Send calls the wrapped client until it succeeds, the retry budget is spent,
// or ctx is done.
func (c *RetryingClient) Send(ctx context.Context, prompt string) (*Completion, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = c.maxInterval

	return backoff.Retry(ctx, func() (*Completion, error) {
		completion, err := c.next.Send(ctx, prompt)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return completion, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
	)
}
