package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"florin/internal/domain/account"
	"florin/internal/domain/item"
	"florin/internal/infrastructure/aggregator"
)

// StartHistoricalSync records a pending progress snapshot for the item and
// kicks off the full history import in the background. It returns the sync id
// immediately; callers poll GetSyncStatus with it.
func (s *Service) StartHistoricalSync(ctx context.Context, userID int64, itemID string) (string, error) {
	it, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return "", err
	}
	// Another user's item is indistinguishable from a missing one.
	if it.UserID != userID {
		return "", item.ErrItemNotFound
	}

	syncID := uuid.NewString()
	started := s.now()
	progress := item.Progress{
		SyncID:    syncID,
		State:     item.SyncStatePending,
		Percent:   0,
		Message:   "historical sync queued",
		StartedAt: &started,
	}
	if err := s.itemRepo.UpdateSyncProgress(ctx, itemID, progress); err != nil {
		return "", fmt.Errorf("failed to record sync progress: %w", err)
	}

	s.spawn(func() {
		// Detached from the request context: the import keeps running
		// after the HTTP response is written.
		s.runHistoricalSync(context.Background(), it, syncID, started)
	})

	return syncID, nil
}

func (s *Service) runHistoricalSync(ctx context.Context, it *item.Item, syncID string, started time.Time) {
	ctx, span := syncTracer.Start(ctx, "sync.historical")
	defer span.End()

	// Keyed on the item owner, so this serializes against the owner's
	// foreground syncs regardless of which caller started it.
	lock := s.locks.Acquire(ctx, it.UserID, LockKindTransactionSync)
	if !lock.Acquired {
		syncLockContention.Add(ctx, 1)
		s.finishHistoricalSync(ctx, it, syncID, started, item.SyncStateFailed, 0, 0, lock.Message)
		return
	}
	defer func() {
		if !s.locks.Release(ctx, lock.LockID) {
			s.logger.Warn("failed to release historical sync lock",
				zap.Int64("userId", it.UserID),
				zap.String("lockId", lock.LockID),
			)
		}
	}()

	token, err := s.cipher.Decrypt(it.EncryptedAccessToken)
	if err != nil {
		s.finishHistoricalSync(ctx, it, syncID, started, item.SyncStateFailed, 0, 0, "failed to decrypt access token")
		return
	}

	s.updateProgress(ctx, it.ID, item.Progress{
		SyncID:    syncID,
		State:     item.SyncStateSyncing,
		Percent:   0,
		Message:   "importing transaction history",
		StartedAt: &started,
	})

	deadline := started.Add(historicalSyncTimeout)
	accountCache := make(map[string]*account.Account)
	cursor := it.SyncCursor
	total := 0

	for page := 1; page <= maxSyncPages; page++ {
		if s.now().After(deadline) {
			// Cursor stays at the last fully committed page, so a
			// retried sync resumes there instead of starting over.
			s.finishHistoricalSync(ctx, it, syncID, started, item.SyncStateTimeout, total, estimatePercent(page-1),
				fmt.Sprintf("sync exceeded %s time limit, progress saved", historicalSyncTimeout))
			return
		}

		resp, err := WithRetry(ctx, s.retryOptions(it.ID), func(ctx context.Context) (*aggregator.SyncTransactionsResponse, error) {
			return s.client.SyncTransactions(ctx, token, cursor)
		})
		if err != nil {
			s.markItemError(ctx, it.ID, err)
			s.finishHistoricalSync(ctx, it, syncID, started, item.SyncStateFailed, total, estimatePercent(page-1), err.Error())
			return
		}

		counts := s.applyPage(ctx, it, resp, accountCache)
		total += counts.total()

		cursor = &resp.NextCursor
		if err := s.itemRepo.UpdateCursor(ctx, it.ID, cursor, s.now()); err != nil {
			s.finishHistoricalSync(ctx, it, syncID, started, item.SyncStateFailed, total, estimatePercent(page),
				fmt.Sprintf("failed to persist sync cursor: %v", err))
			return
		}

		if !resp.HasMore {
			break
		}

		s.updateProgress(ctx, it.ID, item.Progress{
			SyncID:       syncID,
			State:        item.SyncStateSyncing,
			Percent:      estimatePercent(page),
			Transactions: total,
			Message:      fmt.Sprintf("imported %d transactions", total),
			StartedAt:    &started,
		})
	}

	s.finishHistoricalSync(ctx, it, syncID, started, item.SyncStateCompleted, total, 100,
		fmt.Sprintf("imported %d transactions", total))
}

// estimatePercent maps page number to a progress estimate. The total page
// count is unknown until the final page, so this grows toward but never
// reaches 100 before completion.
func estimatePercent(page int) int {
	p := page * 10
	if p > 95 {
		return 95
	}
	return p
}

func (s *Service) finishHistoricalSync(ctx context.Context, it *item.Item, syncID string, started time.Time, state item.SyncState, total, percent int, message string) {
	completed := s.now()
	progress := item.Progress{
		SyncID:       syncID,
		State:        state,
		Percent:      percent,
		Transactions: total,
		Message:      message,
		StartedAt:    &started,
		CompletedAt:  &completed,
	}
	if state != item.SyncStateCompleted {
		progress.Error = &message
	}
	s.updateProgress(ctx, it.ID, progress)

	syncDuration.Record(ctx, completed.Sub(started).Seconds())

	s.logger.Info("historical sync finished",
		zap.String("itemId", it.ID),
		zap.String("syncId", syncID),
		zap.String("state", string(state)),
		zap.Int("transactions", total),
	)

	if s.notifier != nil {
		s.notifier.HistoricalSyncFinished(ctx, it.UserID, it.InstitutionName, state, total)
	}
}

func (s *Service) updateProgress(ctx context.Context, itemID string, progress item.Progress) {
	if err := s.itemRepo.UpdateSyncProgress(ctx, itemID, progress); err != nil {
		s.logger.Error("failed to update sync progress",
			zap.String("itemId", itemID),
			zap.String("syncId", progress.SyncID),
			zap.Error(err),
		)
	}
}

// GetSyncStatus returns the latest progress snapshot for an item the caller
// owns, with a rough remaining-time estimate extrapolated from elapsed time
// and percent. Returns nil when no historical sync was ever started.
func (s *Service) GetSyncStatus(ctx context.Context, userID int64, itemID string) (*ProgressSnapshot, error) {
	it, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.UserID != userID {
		return nil, item.ErrItemNotFound
	}

	progress, err := s.itemRepo.GetSyncProgress(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, nil
	}

	snapshot := &ProgressSnapshot{Progress: *progress}

	switch progress.State {
	case item.SyncStateCompleted, item.SyncStateFailed, item.SyncStateTimeout:
		snapshot.EstimatedSecondsRemaining = 0
	default:
		snapshot.EstimatedSecondsRemaining = estimateRemaining(progress, s.now())
	}

	return snapshot, nil
}

const defaultEstimateSeconds = 120

func estimateRemaining(progress *item.Progress, now time.Time) int {
	if progress.StartedAt == nil || progress.Percent < 5 {
		return defaultEstimateSeconds
	}
	elapsed := now.Sub(*progress.StartedAt).Seconds()
	remaining := elapsed*100/float64(progress.Percent) - elapsed
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}
