package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"florin/internal/domain/sync"
)

// uniqueViolation is the PostgreSQL error code raised when the
// (user_id, lock_kind) unique constraint rejects an insert.
const uniqueViolation = "23505"

type LockRepository struct {
	db *DB
}

func NewLockRepository(db *DB) *LockRepository {
	return &LockRepository{db: db}
}

func (r *LockRepository) Insert(ctx context.Context, lock sync.Lock) error {
	query := `
		INSERT INTO sync_locks (id, user_id, lock_kind, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, lock.ID, lock.UserID, lock.Kind, lock.AcquiredAt, lock.ExpiresAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sync.ErrLockHeld
		}
		return fmt.Errorf("failed to insert sync lock: %w", err)
	}
	return nil
}

func (r *LockRepository) Delete(ctx context.Context, lockID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sync_locks WHERE id = $1`, lockID)
	if err != nil {
		return false, fmt.Errorf("failed to delete sync lock: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *LockRepository) Exists(ctx context.Context, userID int64, kind string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM sync_locks WHERE user_id = $1 AND lock_kind = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, kind).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check sync lock: %w", err)
	}
	return exists, nil
}

// PurgeExpired delegates to the purge_expired_sync_locks() database function
// so lock cleanup stays atomic with concurrent acquisitions.
func (r *LockRepository) PurgeExpired(ctx context.Context) (int64, error) {
	var purged int64
	if err := r.db.QueryRowContext(ctx, `SELECT purge_expired_sync_locks()`).Scan(&purged); err != nil {
		return 0, fmt.Errorf("failed to purge expired sync locks: %w", err)
	}
	return purged, nil
}

func (r *LockRepository) DeleteByUserID(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sync_locks WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sync locks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
