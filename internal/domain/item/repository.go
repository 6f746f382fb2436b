package item

import (
	"context"
	"time"
)

// Repository defines data access for Linked Items.
// Defined in the domain layer, implemented in the infrastructure layer.
type Repository interface {
	// Create registers a new Linked Item.
	Create(ctx context.Context, params CreateParams) (*Item, error)

	// GetByID retrieves an item by its provider item id.
	// Returns ErrItemNotFound if no row exists.
	GetByID(ctx context.Context, id string) (*Item, error)

	// ListActiveByUserID retrieves all items with status `active` for a user.
	ListActiveByUserID(ctx context.Context, userID int64) ([]*Item, error)

	// UpdateCursor persists the resume cursor and last-sync timestamp.
	UpdateCursor(ctx context.Context, id string, cursor *string, syncedAt time.Time) error

	// UpdateStatus sets the lifecycle status and clears any stored error.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// MarkError sets status `error` together with the provider error code
	// and message.
	MarkError(ctx context.Context, id string, code, message string) error

	// UpdateSyncProgress writes a background-sync progress snapshot.
	UpdateSyncProgress(ctx context.Context, id string, progress Progress) error

	// GetSyncProgress reads the latest background-sync progress snapshot.
	// Returns nil if no historical sync was ever started for the item.
	GetSyncProgress(ctx context.Context, id string) (*Progress, error)
}
