package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestWithExponentialBackoff_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := WithExponentialBackoff(context.Background(), fastPolicy(), func() error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithExponentialBackoff_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := WithExponentialBackoff(context.Background(), fastPolicy(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithExponentialBackoff_ExhaustsAttempts(t *testing.T) {
	calls := 0
	underlying := errors.New("still broken")
	err := WithExponentialBackoff(context.Background(), fastPolicy(), func() error {
		calls++
		return underlying
	}, nil)

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Contains(t, err.Error(), "still broken")
}

func TestWithExponentialBackoff_NonRetryableAbortsImmediately(t *testing.T) {
	calls := 0
	terminal := errors.New("permanent")
	err := WithExponentialBackoff(context.Background(), fastPolicy(), func() error {
		calls++
		return terminal
	}, func(err error) bool {
		return !errors.Is(err, terminal)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, terminal)
	assert.NotErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestWithExponentialBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := WithExponentialBackoff(ctx, RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Minute,
		Multiplier:  2.0,
	}, func() error {
		calls++
		cancel()
		return errors.New("transient")
	}, nil)

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithExponentialBackoff_InvalidPolicy(t *testing.T) {
	err := WithExponentialBackoff(context.Background(), RetryConfig{}, func() error {
		t.Fatal("operation must not run with an invalid policy")
		return nil
	}, nil)
	assert.Error(t, err)
}

func TestRetryConfig_Delay(t *testing.T) {
	cfg := RetryConfig{
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}

	assert.Equal(t, 500*time.Millisecond, cfg.Delay(0))
	assert.Equal(t, time.Second, cfg.Delay(1))
	assert.Equal(t, 2*time.Second, cfg.Delay(2))
	assert.Equal(t, 4*time.Second, cfg.Delay(3))
	assert.Equal(t, 5*time.Second, cfg.Delay(4), "delay is capped at MaxDelay")
}
