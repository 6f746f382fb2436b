package transaction

import "context"

// Repository defines data access for transactions.
// Defined in the domain layer, implemented in the infrastructure layer.
type Repository interface {
	// GetByProviderID retrieves a synced transaction by provider id.
	// Returns ErrTransactionNotFound if no row exists.
	GetByProviderID(ctx context.Context, providerTransactionID string) (*Transaction, error)

	// Upsert inserts a transaction keyed by provider transaction id, or
	// updates the existing row when one exists. Replaying the same page is
	// therefore idempotent.
	Upsert(ctx context.Context, params UpsertParams) (*Transaction, error)

	// DeleteByProviderID deletes a synced transaction by provider id.
	// Deleting a row that does not exist is not an error.
	DeleteByProviderID(ctx context.Context, providerTransactionID string) error

	// CountByAccountID returns the number of transactions on an account.
	CountByAccountID(ctx context.Context, accountID string) (int64, error)
}
