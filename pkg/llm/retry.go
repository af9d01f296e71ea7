package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"codewright/pkg/llmerrors"
)

// RetryConfig defines retry behavior for completion calls.
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
}

// DefaultRetryConfig provides reasonable defaults.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  200 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
}

// shouldRetry applies the error taxonomy: connection failures are never
// retried since the endpoint is unreachable, and cancellation is always
// final. Everything else in the taxonomy is retryable.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return llmerrors.IsRetryable(err)
}

// calculateDelay computes exponential backoff for the given attempt
// (1-based; attempt 1 has no delay).
func (c RetryConfig) calculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := time.Duration(float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt-2)))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// attemptBudget resolves how many attempts the last error allows: a
// classified error carries its own per-type budget, capped by the
// middleware's configured maximum.
func (c RetryConfig) attemptBudget(err error) int {
	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		perType := llmErr.GetRetryConfig().MaxRetries + 1
		if perType < c.MaxAttempts {
			return perType
		}
	}
	return c.MaxAttempts
}

// RetryMiddleware wraps a client with bounded retry and exponential
// backoff, honoring the taxonomy's retryability rules.
func RetryMiddleware(config RetryConfig) Middleware {
	return func(next Client) Client {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				var lastErr error
				budget := config.MaxAttempts
				for attempt := 1; attempt <= budget; attempt++ {
					if delay := config.calculateDelay(attempt); delay > 0 {
						select {
						case <-ctx.Done():
							return CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
						case <-time.After(delay):
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err
					if !shouldRetry(err) {
						break
					}
					budget = config.attemptBudget(err)
				}
				return CompletionResponse{}, lastErr
			},
			next.GetModelName,
		)
	}
}
