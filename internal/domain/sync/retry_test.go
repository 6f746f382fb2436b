package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"florin/internal/infrastructure/aggregator"
)

func transientErr(code string) error {
	return &aggregator.TransientError{Code: code, Message: code, StatusCode: 500}
}

func permanentErr(code string) error {
	return &aggregator.PermanentError{Code: code, Message: code, StatusCode: 400}
}

func fakeSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestWithRetrySucceedsFirstAttempt(t *testing.T) {
	var delays []time.Duration
	calls := 0

	got, err := WithRetry(context.Background(), RetryOptions{Sleep: fakeSleep(&delays)}, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestWithRetryBackoffSequence(t *testing.T) {
	var delays []time.Duration
	calls := 0

	_, err := WithRetry(context.Background(), RetryOptions{
		MaxRetries: 4,
		BaseDelay:  time.Second,
		Sleep:      fakeSleep(&delays),
	}, func(context.Context) (string, error) {
		calls++
		return "", transientErr("INSTITUTION_DOWN")
	})

	require.Error(t, err)
	assert.Equal(t, 5, calls) // initial attempt plus four retries
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}, delays)
}

func TestWithRetryMaxDelayCap(t *testing.T) {
	var delays []time.Duration

	_, _ = WithRetry(context.Background(), RetryOptions{
		MaxRetries: 4,
		BaseDelay:  time.Second,
		MaxDelay:   3 * time.Second,
		Sleep:      fakeSleep(&delays),
	}, func(context.Context) (string, error) {
		return "", transientErr("RATE_LIMIT_EXCEEDED")
	})

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		3 * time.Second,
		3 * time.Second,
	}, delays)
}

func TestWithRetryPermanentErrorShortCircuits(t *testing.T) {
	var delays []time.Duration
	calls := 0

	_, err := WithRetry(context.Background(), RetryOptions{Sleep: fakeSleep(&delays)}, func(context.Context) (string, error) {
		calls++
		return "", permanentErr("INVALID_ACCESS_TOKEN")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)

	var pe *aggregator.PermanentError
	assert.True(t, errors.As(err, &pe))
}

func TestWithRetryRecoversMidSequence(t *testing.T) {
	var delays []time.Duration
	calls := 0

	got, err := WithRetry(context.Background(), RetryOptions{Sleep: fakeSleep(&delays)}, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, transientErr("INSTITUTION_NOT_RESPONDING")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, delays)
}

func TestWithRetryReturnsLastErrorOnExhaustion(t *testing.T) {
	var delays []time.Duration
	calls := 0

	_, err := WithRetry(context.Background(), RetryOptions{
		MaxRetries: 2,
		Sleep:      fakeSleep(&delays),
	}, func(context.Context) (string, error) {
		calls++
		if calls == 3 {
			return "", transientErr("FINAL_ATTEMPT")
		}
		return "", transientErr("EARLIER_ATTEMPT")
	})

	require.Error(t, err)
	var te *aggregator.TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "FINAL_ATTEMPT", te.Code)
}

func TestWithRetryOnRetryCallback(t *testing.T) {
	var attempts []int
	var delays []time.Duration

	_, _ = WithRetry(context.Background(), RetryOptions{
		MaxRetries: 2,
		Sleep:      fakeSleep(&delays),
		OnRetry: func(attempt int, err error, delay time.Duration) {
			attempts = append(attempts, attempt)
		},
	}, func(context.Context) (string, error) {
		return "", transientErr("INTERNAL_SERVER_ERROR")
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestWithRetryContextCanceledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := WithRetry(ctx, RetryOptions{
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}, func(context.Context) (string, error) {
		calls++
		return "", transientErr("INSTITUTION_DOWN")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
