package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"florin/internal/domain/item"
)

type ItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `id, user_id, encrypted_access_token, institution_id, institution_name,
	       status, error_code, error_message, sync_cursor, last_synced_at, created_at, updated_at`

func (r *ItemRepository) Create(ctx context.Context, params item.CreateParams) (*item.Item, error) {
	query := `
		INSERT INTO items (id, user_id, encrypted_access_token, institution_id, institution_name, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		RETURNING ` + itemColumns

	it, err := scanItem(r.db.QueryRowContext(
		ctx, query,
		params.ID, params.UserID, params.EncryptedAccessToken,
		params.InstitutionID, params.InstitutionName,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	return it, nil
}

func (r *ItemRepository) GetByID(ctx context.Context, id string) (*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`

	it, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, item.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return it, nil
}

func (r *ItemRepository) ListActiveByUserID(ctx context.Context, userID int64) ([]*item.Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}

	return items, nil
}

// ListUserIDsWithActiveItems returns the users the scheduler should sync.
func (r *ItemRepository) ListUserIDsWithActiveItems(ctx context.Context) ([]int64, error) {
	query := `SELECT DISTINCT user_id FROM items WHERE status = 'active' ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with active items: %w", err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user ids: %w", err)
	}

	return userIDs, nil
}

func (r *ItemRepository) UpdateCursor(ctx context.Context, id string, cursor *string, syncedAt time.Time) error {
	query := `
		UPDATE items
		SET sync_cursor = $2, last_synced_at = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, cursor, syncedAt)
	if err != nil {
		return fmt.Errorf("failed to update sync cursor: %w", err)
	}
	return requireRow(result, item.ErrItemNotFound)
}

func (r *ItemRepository) UpdateStatus(ctx context.Context, id string, status item.Status) error {
	query := `
		UPDATE items
		SET status = $2, error_code = NULL, error_message = NULL, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	return requireRow(result, item.ErrItemNotFound)
}

func (r *ItemRepository) MarkError(ctx context.Context, id string, code, message string) error {
	query := `
		UPDATE items
		SET status = 'error', error_code = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, code, message)
	if err != nil {
		return fmt.Errorf("failed to mark item error: %w", err)
	}
	return requireRow(result, item.ErrItemNotFound)
}

func (r *ItemRepository) UpdateSyncProgress(ctx context.Context, id string, progress item.Progress) error {
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to encode sync progress: %w", err)
	}

	query := `UPDATE items SET sync_progress = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, payload)
	if err != nil {
		return fmt.Errorf("failed to update sync progress: %w", err)
	}
	return requireRow(result, item.ErrItemNotFound)
}

func (r *ItemRepository) GetSyncProgress(ctx context.Context, id string) (*item.Progress, error) {
	query := `SELECT sync_progress FROM items WHERE id = $1`

	var payload []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, item.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync progress: %w", err)
	}
	if payload == nil {
		return nil, nil // no historical sync ever started
	}

	var progress item.Progress
	if err := json.Unmarshal(payload, &progress); err != nil {
		return nil, fmt.Errorf("failed to decode sync progress: %w", err)
	}
	return &progress, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*item.Item, error) {
	var it item.Item
	var errorCode, errorMessage, syncCursor sql.NullString
	var lastSyncedAt sql.NullTime

	err := row.Scan(
		&it.ID, &it.UserID, &it.EncryptedAccessToken,
		&it.InstitutionID, &it.InstitutionName, &it.Status,
		&errorCode, &errorMessage, &syncCursor, &lastSyncedAt,
		&it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if errorCode.Valid {
		it.ErrorCode = &errorCode.String
	}
	if errorMessage.Valid {
		it.ErrorMessage = &errorMessage.String
	}
	if syncCursor.Valid {
		it.SyncCursor = &syncCursor.String
	}
	if lastSyncedAt.Valid {
		it.LastSyncedAt = &lastSyncedAt.Time
	}

	return &it, nil
}

// requireRow translates zero affected rows into notFound. Drivers that
// cannot report affected rows pass through as success.
func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return notFound
	}
	return nil
}
