package gateway

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig bounds the backoff loop around gateway calls. Defaults: 4
// attempts, 1s base delay doubling up to 30s, full jitter.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// IsRetryable reports whether an error from an adapter may be retried.
// Only infrastructure errors flagged retryable qualify; validation errors
// and declines (which are not errors at all) never retry.
func IsRetryable(err error) bool {
	var infra *InfraError
	if errors.As(err, &infra) {
		return infra.Retryable
	}
	return false
}

// WithRetry runs fn under exponential backoff with jitter, retrying only
// retryable infrastructure errors. The context deadline wins over the
// attempt budget.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}

	var err error
	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := time.Duration(rand.Int63n(int64(delay) + 1))
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return err
}
