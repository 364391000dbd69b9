// Package retry provides bounded retry with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMaxRetriesExceeded is returned when all attempts have been exhausted
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// RetryConfig describes a retry policy
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// Validate checks the policy is usable
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive, got %v", c.BaseDelay)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1, got %f", c.Multiplier)
	}
	return nil
}

// Delay returns the backoff for the given zero-based attempt number,
// capped at MaxDelay when one is configured.
func (c RetryConfig) Delay(attempt int) time.Duration {
	d := c.BaseDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * c.Multiplier)
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// RetryableFunc reports whether an error should be retried
type RetryableFunc func(error) bool

// WithExponentialBackoff runs operation up to config.MaxAttempts times,
// sleeping config.Delay(attempt) between attempts. A non-retryable error
// aborts immediately; context cancellation aborts between attempts.
func WithExponentialBackoff(ctx context.Context, config RetryConfig, operation func() error, isRetryable RetryableFunc) error {
	if err := config.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(config.Delay(attempt)):
		}
	}

	return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}
