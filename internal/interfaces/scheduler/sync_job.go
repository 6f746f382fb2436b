package scheduler

import (
	"context"
	"fmt"

	"florin/internal/domain/sync"
)

// TransactionSyncJob runs a full transaction sync for one user.
type TransactionSyncJob struct {
	userID int64
	syncs  *sync.Service
}

func NewTransactionSyncJob(userID int64, syncs *sync.Service) *TransactionSyncJob {
	return &TransactionSyncJob{userID: userID, syncs: syncs}
}

func (j *TransactionSyncJob) Execute(ctx context.Context) error {
	summary := j.syncs.SyncUserTransactions(ctx, j.userID)
	if summary.ItemsFailed > 0 {
		return fmt.Errorf("transaction sync finished with %d of %d items failed", summary.ItemsFailed, summary.ItemsProcessed)
	}
	return nil
}

func (j *TransactionSyncJob) UserID() string      { return fmt.Sprintf("%d", j.userID) }
func (j *TransactionSyncJob) Description() string { return "transaction sync" }

// BalanceSyncJob refreshes account balances for one user.
type BalanceSyncJob struct {
	userID int64
	syncs  *sync.Service
}

func NewBalanceSyncJob(userID int64, syncs *sync.Service) *BalanceSyncJob {
	return &BalanceSyncJob{userID: userID, syncs: syncs}
}

func (j *BalanceSyncJob) Execute(ctx context.Context) error {
	summary := j.syncs.SyncAccountBalances(ctx, j.userID)
	if summary.ItemsFailed > 0 {
		return fmt.Errorf("balance sync finished with %d of %d items failed", summary.ItemsFailed, summary.ItemsProcessed)
	}
	return nil
}

func (j *BalanceSyncJob) UserID() string      { return fmt.Sprintf("%d", j.userID) }
func (j *BalanceSyncJob) Description() string { return "balance sync" }

// UserSource enumerates users that currently have linked items.
type UserSource interface {
	ListUserIDsWithActiveItems(ctx context.Context) ([]int64, error)
}

// SyncJobProvider builds one transaction and one balance job per user with
// active items.
type SyncJobProvider struct {
	users UserSource
	syncs *sync.Service
}

func NewSyncJobProvider(users UserSource, syncs *sync.Service) *SyncJobProvider {
	return &SyncJobProvider{users: users, syncs: syncs}
}

func (p *SyncJobProvider) Jobs(ctx context.Context) ([]Job, error) {
	userIDs, err := p.users.ListUserIDsWithActiveItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users with active items: %w", err)
	}

	jobs := make([]Job, 0, len(userIDs)*2)
	for _, id := range userIDs {
		jobs = append(jobs, NewTransactionSyncJob(id, p.syncs))
		jobs = append(jobs, NewBalanceSyncJob(id, p.syncs))
	}
	return jobs, nil
}
