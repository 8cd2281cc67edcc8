package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesTransientFailure(t *testing.T) {
	// Given: a function failing twice with a retryable error, then succeeding
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return New(ErrCodeProviderRateLimited, "429 too many requests", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentFailure(t *testing.T) {
	// Given: a non-retryable provider error
	calls := 0
	permanent := Embedding("invalid api key", nil)
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		calls++
		return permanent
	})

	// Then: no further attempts, the error surfaces unchanged
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, permanent))
}

func TestRetry_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		calls++
		return New(ErrCodeProviderTimeout, "deadline exceeded", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls) // initial + 3 retries
	assert.Contains(t, err.Error(), "failed after 3 retries")
	assert.True(t, errors.Is(err, New(ErrCodeProviderTimeout, "", nil)))
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetryConfig(), func() error {
		return New(ErrCodeProviderTimeout, "timeout", nil)
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	result, err := RetryWithResult(context.Background(), fastRetryConfig(), func() ([]float32, error) {
		calls++
		if calls < 2 {
			return nil, New(ErrCodeProviderUnavailable, "503", nil)
		}
		return []float32{0.1, 0.2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, result)
	assert.Equal(t, 2, calls)
}

func TestRetryWithResult_PlainErrorsAreRetried(t *testing.T) {
	// Uncoded errors carry no permanence signal, so the loop keeps trying.
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetryConfig(), func() (int, error) {
		calls++
		return 0, errors.New("flaky")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
}
