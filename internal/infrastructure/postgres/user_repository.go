package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"florin/internal/domain/user"
)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	query := `SELECT id, email, fcm_token, created_at FROM users WHERE id = $1`

	var u user.User
	var fcmToken sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &fcmToken, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if fcmToken.Valid {
		u.FCMToken = &fcmToken.String
	}

	return &u, nil
}

// ClearFCMTokenByValue removes a specific device token wherever it is stored.
// Used by the FCM client's invalid-token callback, which only knows the token.
func (r *UserRepository) ClearFCMTokenByValue(ctx context.Context, token string) error {
	query := `UPDATE users SET fcm_token = NULL WHERE fcm_token = $1`

	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("failed to clear fcm token: %w", err)
	}
	return nil
}
