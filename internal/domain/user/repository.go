package user

import "context"

// Repository defines data access for users. Token invalidation is handled
// by the FCM client's deactivation callback, which keys on the token value,
// so it lives outside this interface.
type Repository interface {
	// GetByID retrieves a user. Returns ErrUserNotFound if no row exists.
	GetByID(ctx context.Context, id int64) (*User, error)
}
