package account

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository defines data access for accounts.
// Defined in the domain layer, implemented in the infrastructure layer.
type Repository interface {
	// Create registers a linked account discovered during item exchange.
	Create(ctx context.Context, params CreateParams) (*Account, error)

	// GetByID retrieves an account by its local id.
	// Returns ErrAccountNotFound if no row exists.
	GetByID(ctx context.Context, id string) (*Account, error)

	// ListByUserID retrieves all accounts for a user.
	ListByUserID(ctx context.Context, userID int64) ([]*Account, error)

	// ListLinkedByItemID retrieves the linked accounts of one item.
	ListLinkedByItemID(ctx context.Context, itemID string) ([]*Account, error)

	// FindByProviderAccountID resolves a provider account id to the local
	// account, scoped to one item. Returns (nil, nil) when no match exists;
	// sync treats that as a skippable record, not an error.
	FindByProviderAccountID(ctx context.Context, itemID, providerAccountID string) (*Account, error)

	// UpdateBalances updates current and available balance on one account.
	UpdateBalances(ctx context.Context, id string, current, available decimal.Decimal) error
}
