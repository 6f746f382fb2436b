package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"florin/internal/domain/item"
	"florin/internal/infrastructure/aggregator"
)

// SyncAccountBalances refreshes current and available balances on every
// linked account of one user. Same locking and per-item isolation as the
// transaction sync, but with its own lock kind: a balance refresh and a
// transaction sync for the same user may run concurrently.
func (s *Service) SyncAccountBalances(ctx context.Context, userID int64) *BalanceSyncSummary {
	ctx, span := syncTracer.Start(ctx, "sync.balances")
	defer span.End()

	summary := &BalanceSyncSummary{UserID: userID, Errors: []ItemSyncError{}}

	lock := s.locks.Acquire(ctx, userID, LockKindBalanceSync)
	if !lock.Acquired {
		syncLockContention.Add(ctx, 1)
		summary.Errors = append(summary.Errors, ItemSyncError{Message: lock.Message})
		return summary
	}
	defer func() {
		if !s.locks.Release(ctx, lock.LockID) {
			s.logger.Warn("failed to release balance sync lock",
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

	for _, it := range items {
		summary.ItemsProcessed++

		updated, err := s.syncItemBalances(ctx, it)
		summary.AccountsUpdated += updated

		if err != nil {
			summary.ItemsFailed++
			syncItemFailures.Add(ctx, 1)
			s.markItemError(ctx, it.ID, err)
			summary.Errors = append(summary.Errors, ItemSyncError{
				ItemID:          it.ID,
				InstitutionName: it.InstitutionName,
				Message:         err.Error(),
			})
			continue
		}
		summary.ItemsSuccessful++
	}

	s.logger.Info("balance sync completed",
		zap.Int64("userId", userID),
		zap.Int("itemsProcessed", summary.ItemsProcessed),
		zap.Int("accountsUpdated", summary.AccountsUpdated),
		zap.Int("errors", len(summary.Errors)),
	)

	return summary
}

// syncItemBalances fetches balances once for one item (no pagination) and
// applies them to the matching local accounts. A single account's update
// failure is logged and skipped.
func (s *Service) syncItemBalances(ctx context.Context, it *item.Item) (int, error) {
	token, err := s.cipher.Decrypt(it.EncryptedAccessToken)
	if err != nil {
		return 0, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	resp, err := WithRetry(ctx, s.retryOptions(it.ID), func(ctx context.Context) (*aggregator.GetAccountsResponse, error) {
		return s.client.GetAccountBalances(ctx, token)
	})
	if err != nil {
		return 0, err
	}

	local, err := s.accountRepo.ListLinkedByItemID(ctx, it.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list linked accounts: %w", err)
	}

	byProviderID := make(map[string]string, len(local)) // provider account id -> local id
	for _, acct := range local {
		if acct.ProviderAccountID != nil {
			byProviderID[*acct.ProviderAccountID] = acct.ID
		}
	}

	updated := 0
	for _, remote := range resp.Accounts {
		localID, ok := byProviderID[remote.ID]
		if !ok {
			continue
		}
		if err := s.accountRepo.UpdateBalances(ctx, localID, remote.Balances.Current, remote.Balances.Available); err != nil {
			s.logger.Error("failed to update account balances",
				zap.String("itemId", it.ID),
				zap.String("accountId", localID),
				zap.Error(err),
			)
			continue
		}
		updated++
	}

	return updated, nil
}
