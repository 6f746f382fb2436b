package aggregator

import (
	"context"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerClient wraps the provider client with a circuit breaker so a
// provider outage fails fast instead of tying up sync workers on timeouts.
// Breaker rejections surface as TransientError: the retry engine treats an
// open circuit the same as a rate limit.
type BreakerClient struct {
	inner  API
	cb     *gobreaker.CircuitBreaker[any]
	logger *zap.Logger
}

// Ensure BreakerClient implements API
var _ API = (*BreakerClient)(nil)

// NewBreakerClient wraps an API with a circuit breaker. The circuit opens
// after a 60% failure rate over at least 10 requests, and probes again after
// one minute.
func NewBreakerClient(inner API, logger *zap.Logger) *BreakerClient {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "aggregator-api",
		MaxRequests: 3,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// Permanent errors are the caller's problem, not the
			// provider's health.
			if err == nil {
				return true
			}
			return !IsTransient(err)
		},
	})

	return &BreakerClient{inner: inner, cb: cb, logger: logger}
}

func (b *BreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, &TransientError{Code: "CIRCUIT_OPEN", Message: err.Error()}
	}
	return result, err
}

func (b *BreakerClient) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeTokenResponse, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.ExchangePublicToken(ctx, publicToken)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ExchangeTokenResponse), nil
}

func (b *BreakerClient) GetAccounts(ctx context.Context, accessToken string) (*GetAccountsResponse, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.GetAccounts(ctx, accessToken)
	})
	if err != nil {
		return nil, err
	}
	return result.(*GetAccountsResponse), nil
}

func (b *BreakerClient) GetAccountBalances(ctx context.Context, accessToken string) (*GetAccountsResponse, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.GetAccountBalances(ctx, accessToken)
	})
	if err != nil {
		return nil, err
	}
	return result.(*GetAccountsResponse), nil
}

func (b *BreakerClient) SyncTransactions(ctx context.Context, accessToken string, cursor *string) (*SyncTransactionsResponse, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.SyncTransactions(ctx, accessToken, cursor)
	})
	if err != nil {
		return nil, err
	}
	return result.(*SyncTransactionsResponse), nil
}
