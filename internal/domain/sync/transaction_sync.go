package sync

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"florin/internal/domain/account"
	"florin/internal/domain/item"
	"florin/internal/domain/transaction"
	"florin/internal/infrastructure/aggregator"
)

// SyncUserTransactionsAsync runs SyncUserTransactions detached from the
// caller, behind the service's panic boundary. Webhook triggers use this so
// a faulty sync cannot take the receiving process down with it.
func (s *Service) SyncUserTransactionsAsync(ctx context.Context, userID int64) {
	s.spawn(func() {
		s.SyncUserTransactions(ctx, userID)
	})
}

// SyncUserTransactions walks the provider change feed for every active
// Linked Item of one user and reconciles it into local storage.
//
// The whole run holds the user's transaction_sync lock. Contention is
// reported through the summary's error list with zero items processed, not
// as a failure. Per-item failures are isolated: a broken connection marks
// its item `error` and the run continues with the next one.
func (s *Service) SyncUserTransactions(ctx context.Context, userID int64) *SyncSummary {
	ctx, span := syncTracer.Start(ctx, "sync.transactions")
	defer span.End()

	start := s.now()
	summary := &SyncSummary{UserID: userID, Errors: []ItemSyncError{}}

	lock := s.locks.Acquire(ctx, userID, LockKindTransactionSync)
	if !lock.Acquired {
		syncLockContention.Add(ctx, 1)
		summary.Errors = append(summary.Errors, ItemSyncError{Message: lock.Message})
		return summary
	}
	defer func() {
		if !s.locks.Release(ctx, lock.LockID) {
			s.logger.Warn("failed to release transaction sync lock",
				zap.Int64("userId", userID),
				zap.String("lockId", lock.LockID),
			)
		}
	}()

	items, err := s.itemRepo.ListActiveByUserID(ctx, userID)
	if err != nil {
		summary.Errors = append(summary.Errors, ItemSyncError{
			Message: fmt.Sprintf("failed to list linked items: %v", err),
		})
		return summary
	}
	if len(items) == 0 {
		return summary
	}

	for _, it := range items {
		summary.ItemsProcessed++

		counts, err := s.syncItemTransactions(ctx, it)
		summary.TransactionsAdded += counts.added
		summary.TransactionsModified += counts.modified
		summary.TransactionsRemoved += counts.removed

		if err != nil {
			summary.ItemsFailed++
			syncItemFailures.Add(ctx, 1)
			s.markItemError(ctx, it.ID, err)
			summary.Errors = append(summary.Errors, ItemSyncError{
				ItemID:          it.ID,
				InstitutionName: it.InstitutionName,
				Message:         err.Error(),
			})
			s.logger.Error("item transaction sync failed",
				zap.Int64("userId", userID),
				zap.String("itemId", it.ID),
				zap.Error(err),
			)
			continue
		}
		summary.ItemsSuccessful++
	}

	syncDuration.Record(ctx, s.now().Sub(start).Seconds())
	s.logger.Info("transaction sync completed",
		zap.Int64("userId", userID),
		zap.Int("itemsProcessed", summary.ItemsProcessed),
		zap.Int("added", summary.TransactionsAdded),
		zap.Int("modified", summary.TransactionsModified),
		zap.Int("removed", summary.TransactionsRemoved),
		zap.Int("errors", len(summary.Errors)),
	)

	return summary
}

// syncItemTransactions drives the cursor loop for one item. The cursor and
// last-sync timestamp are persisted once, after the loop finishes; a failure
// mid-page therefore re-fetches the same page on the next run, which is safe
// because upsert and delete are idempotent by provider transaction id.
func (s *Service) syncItemTransactions(ctx context.Context, it *item.Item) (pageCounts, error) {
	var counts pageCounts

	token, err := s.cipher.Decrypt(it.EncryptedAccessToken)
	if err != nil {
		return counts, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	cursor := it.SyncCursor
	accountCache := make(map[string]*account.Account)

	for page := 1; page <= maxSyncPages; page++ {
		resp, err := WithRetry(ctx, s.retryOptions(it.ID), func(ctx context.Context) (*aggregator.SyncTransactionsResponse, error) {
			return s.client.SyncTransactions(ctx, token, cursor)
		})
		if err != nil {
			return counts, err
		}

		counts.merge(s.applyPage(ctx, it, resp, accountCache))

		next := resp.NextCursor
		cursor = &next

		if !resp.HasMore {
			break
		}
	}

	// Cursor-persistence failure is logged, not propagated: the committed
	// record changes stand, and the next run re-fetches from the old cursor.
	if err := s.itemRepo.UpdateCursor(ctx, it.ID, cursor, s.now()); err != nil {
		s.logger.Error("failed to persist sync cursor",
			zap.String("itemId", it.ID),
			zap.Error(err),
		)
	}

	return counts, nil
}

// applyPage reconciles one page of the change feed. Record-level storage
// failures are logged and skipped; they never abort the page.
func (s *Service) applyPage(ctx context.Context, it *item.Item, page *aggregator.SyncTransactionsResponse, cache map[string]*account.Account) pageCounts {
	var counts pageCounts

	for i := range page.Added {
		if s.upsertRecord(ctx, it, &page.Added[i], cache) {
			counts.added++
		}
	}
	for i := range page.Modified {
		if s.upsertRecord(ctx, it, &page.Modified[i], cache) {
			counts.modified++
		}
	}
	for _, removed := range page.Removed {
		if err := s.txRepo.DeleteByProviderID(ctx, removed.ID); err != nil {
			s.logger.Error("failed to delete removed transaction",
				zap.String("itemId", it.ID),
				zap.String("providerTransactionId", removed.ID),
				zap.Error(err),
			)
			continue
		}
		counts.removed++
	}

	syncRecords.Add(ctx, int64(counts.added), withChangeType("added"))
	syncRecords.Add(ctx, int64(counts.modified), withChangeType("modified"))
	syncRecords.Add(ctx, int64(counts.removed), withChangeType("removed"))

	return counts
}

// upsertRecord resolves a provider record to a local account and upserts it
// by provider transaction id. Records whose account cannot be resolved are
// dropped silently; the return value reports whether the record counts
// toward the summary.
func (s *Service) upsertRecord(ctx context.Context, it *item.Item, tx *aggregator.Transaction, cache map[string]*account.Account) bool {
	acct, cached := cache[tx.AccountID]
	if !cached {
		found, err := s.accountRepo.FindByProviderAccountID(ctx, it.ID, tx.AccountID)
		if err != nil {
			s.logger.Error("failed to resolve provider account",
				zap.String("itemId", it.ID),
				zap.String("providerAccountId", tx.AccountID),
				zap.Error(err),
			)
			return false
		}
		cache[tx.AccountID] = found // nil is cached too: unmapped stays unmapped
		acct = found
	}
	if acct == nil {
		s.logger.Debug("skipping transaction with unmapped account",
			zap.String("itemId", it.ID),
			zap.String("providerAccountId", tx.AccountID),
			zap.String("providerTransactionId", tx.ID),
		)
		return false
	}

	date, err := tx.GetDate()
	if err != nil {
		s.logger.Error("skipping transaction with unparseable date",
			zap.String("providerTransactionId", tx.ID),
			zap.Error(err),
		)
		return false
	}

	_, err = s.txRepo.Upsert(ctx, transaction.UpsertParams{
		UserID:                it.UserID,
		AccountID:             acct.ID,
		ProviderTransactionID: tx.ID,
		Amount:                tx.Amount,
		Description:           tx.Description(),
		Category:              transaction.NormalizeCategory(tx.Category),
		Date:                  date,
		Pending:               tx.Pending,
		CurrencyCode:          tx.CurrencyCode,
	})
	if err != nil {
		s.logger.Error("failed to upsert transaction",
			zap.String("providerTransactionId", tx.ID),
			zap.Error(err),
		)
		return false
	}

	return true
}

func withChangeType(changeType string) metric.AddOption {
	return metric.WithAttributes(attribute.String("change_type", changeType))
}
