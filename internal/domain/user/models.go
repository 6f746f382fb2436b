// Package user defines the account-owner domain entity.
package user

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
)

// User represents an application user. Only the fields the sync core and
// notifications need live here; profile and auth data are outer surfaces.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FCMToken  *string   `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
