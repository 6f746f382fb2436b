package sync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"florin/internal/domain/account"
	"florin/internal/domain/item"
	"florin/internal/domain/transaction"
	"florin/internal/infrastructure/aggregator"
)

// Locker is the mutual-exclusion surface the orchestrator needs.
// LockManager implements it.
type Locker interface {
	Acquire(ctx context.Context, userID int64, kind string) AcquireResult
	Release(ctx context.Context, lockID string) bool
	ForceReleaseAll(ctx context.Context, userID int64) int64
}

// TokenCipher encrypts and decrypts provider access tokens.
// crypto.Encryptor implements it.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Notifier is told about background-sync terminal states. May be absent.
type Notifier interface {
	HistoricalSyncFinished(ctx context.Context, userID int64, institutionName string, state item.SyncState, transactions int)
}

// Service is the sync orchestrator. It owns no HTTP or scheduling concerns;
// every entry point is invoked by a request handler, webhook handler, or
// scheduler job.
type Service struct {
	client      aggregator.API
	locks       Locker
	itemRepo    item.Repository
	accountRepo account.Repository
	txRepo      transaction.Repository
	cipher      TokenCipher
	notifier    Notifier
	logger      *zap.Logger

	now        func() time.Time
	spawn      func(fn func())
	retrySleep func(ctx context.Context, d time.Duration) error
}

// NewService creates the sync orchestrator. notifier may be nil.
func NewService(
	client aggregator.API,
	locks Locker,
	itemRepo item.Repository,
	accountRepo account.Repository,
	txRepo transaction.Repository,
	cipher TokenCipher,
	notifier Notifier,
	logger *zap.Logger,
) *Service {
	s := &Service{
		client:      client,
		locks:       locks,
		itemRepo:    itemRepo,
		accountRepo: accountRepo,
		txRepo:      txRepo,
		cipher:      cipher,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
		retrySleep:  sleepContext,
	}
	s.spawn = s.spawnGoroutine
	return s
}

// spawnGoroutine runs fn detached with its own error boundary; a panicking
// background sync must never take the process down.
func (s *Service) spawnGoroutine(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background sync panicked", zap.Any("panic", r))
			}
		}()
		fn()
	}()
}

// retryOptions builds the per-call retry policy for provider requests.
func (s *Service) retryOptions(itemID string) RetryOptions {
	return RetryOptions{
		Sleep: s.retrySleep,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			s.logger.Warn("retrying provider call",
				zap.String("itemId", itemID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
	}
}

// markItemError transitions an item to `error` status, carrying the provider
// error code when the failure wraps one.
func (s *Service) markItemError(ctx context.Context, itemID string, syncErr error) {
	code := "SYNC_FAILED"

	var pe *aggregator.PermanentError
	var te *aggregator.TransientError
	if errors.As(syncErr, &pe) {
		code = pe.Code
	} else if errors.As(syncErr, &te) {
		code = te.Code
	}

	if err := s.itemRepo.MarkError(ctx, itemID, code, syncErr.Error()); err != nil {
		s.logger.Error("failed to mark item error",
			zap.String("itemId", itemID),
			zap.Error(err),
		)
	}
}
