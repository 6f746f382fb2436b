package sync

import (
	"context"
	"time"

	"florin/internal/infrastructure/aggregator"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
)

// RetryOptions configures WithRetry. Zero values fall back to the defaults:
// 3 retries, 1s base delay, no delay cap, transient-provider-error
// classification, real sleeping.
type RetryOptions struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry; each subsequent
	// retry doubles it.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay. Zero means uncapped.
	MaxDelay time.Duration

	// IsRetryable classifies errors; non-retryable errors propagate
	// immediately without delay.
	IsRetryable func(error) bool

	// OnRetry, if set, is invoked with (nextAttemptNumber, err, delay)
	// before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleep waits for the given duration. Tests inject a fake to
	// simulate elapsed time.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxRetries == 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = defaultBaseDelay
	}
	if o.IsRetryable == nil {
		o.IsRetryable = aggregator.IsTransient
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	return o
}

// WithRetry runs op, retrying transient failures with exponential backoff:
// delay = min(MaxDelay, BaseDelay * 2^(attempt-1)), attempt starting at 1
// for the first retry. Non-retryable errors propagate immediately; when
// retries are exhausted the last error is returned.
func WithRetry[T any](ctx context.Context, opts RetryOptions, op func(context.Context) (T, error)) (T, error) {
	opts = opts.withDefaults()

	var zero T
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := opts.BaseDelay << (attempt - 1)
			if opts.MaxDelay > 0 && delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
			if opts.OnRetry != nil {
				opts.OnRetry(attempt, lastErr, delay)
			}
			if err := opts.Sleep(ctx, delay); err != nil {
				return zero, err
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !opts.IsRetryable(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, lastErr
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
