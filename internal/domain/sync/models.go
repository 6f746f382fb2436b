// Package sync implements the transaction-synchronization core: per-user
// locking, retry with backoff, and the cursor-paginated reconciliation of the
// provider's change feed against local storage.
package sync

import (
	"time"

	"florin/internal/domain/item"
)

// Lock kinds. Different kinds for the same user are independent locks and do
// not contend with each other.
const (
	LockKindTransactionSync = "transaction_sync"
	LockKindBalanceSync     = "balance_sync"
)

const (
	// lockTTL bounds how long a crashed sync can block its user.
	lockTTL = 5 * time.Minute

	// maxSyncPages is the circuit breaker against runaway pagination.
	maxSyncPages = 50

	// historicalSyncTimeout is the wall-clock ceiling for a background
	// historical sync.
	historicalSyncTimeout = 5 * time.Minute
)

// ItemSyncError is one per-item failure entry in a sync summary. A lock
// contention entry carries no item id.
type ItemSyncError struct {
	ItemID          string `json:"itemId,omitempty"`
	InstitutionName string `json:"institutionName,omitempty"`
	Message         string `json:"message"`
}

// SyncSummary aggregates the outcome of one foreground transaction sync.
type SyncSummary struct {
	UserID               int64           `json:"userId"`
	ItemsProcessed       int             `json:"itemsProcessed"`
	ItemsSuccessful      int             `json:"itemsSuccessful"`
	ItemsFailed          int             `json:"itemsFailed"`
	TransactionsAdded    int             `json:"transactionsAdded"`
	TransactionsModified int             `json:"transactionsModified"`
	TransactionsRemoved  int             `json:"transactionsRemoved"`
	Errors               []ItemSyncError `json:"errors"`
}

// BalanceSyncSummary aggregates the outcome of one balance-only sync.
type BalanceSyncSummary struct {
	UserID          int64           `json:"userId"`
	ItemsProcessed  int             `json:"itemsProcessed"`
	ItemsSuccessful int             `json:"itemsSuccessful"`
	ItemsFailed     int             `json:"itemsFailed"`
	AccountsUpdated int             `json:"accountsUpdated"`
	Errors          []ItemSyncError `json:"errors"`
}

// ProgressSnapshot is the externally queryable state of a background
// historical sync, with a derived completion estimate.
type ProgressSnapshot struct {
	item.Progress
	EstimatedSecondsRemaining int `json:"estimatedSecondsRemaining"`
}

// pageCounts accumulates per-page reconciliation results.
type pageCounts struct {
	added    int
	modified int
	removed  int
}

func (c *pageCounts) merge(other pageCounts) {
	c.added += other.added
	c.modified += other.modified
	c.removed += other.removed
}

func (c pageCounts) total() int {
	return c.added + c.modified + c.removed
}
