package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"florin/internal/domain/transaction"
)

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, user_id, account_id, provider_transaction_id, amount, description,
	       category, transaction_date, pending, currency_code, created_at, updated_at`

func (r *TransactionRepository) GetByProviderID(ctx context.Context, providerTransactionID string) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE provider_transaction_id = $1`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, providerTransactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, transaction.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// Upsert writes one provider record, keyed by provider_transaction_id, so a
// replayed change-feed page updates in place instead of duplicating.
func (r *TransactionRepository) Upsert(ctx context.Context, params transaction.UpsertParams) (*transaction.Transaction, error) {
	query := `
		INSERT INTO transactions
			(user_id, account_id, provider_transaction_id, amount, description,
			 category, transaction_date, pending, currency_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider_transaction_id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			amount = EXCLUDED.amount,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			transaction_date = EXCLUDED.transaction_date,
			pending = EXCLUDED.pending,
			currency_code = EXCLUDED.currency_code,
			updated_at = NOW()
		RETURNING ` + transactionColumns

	tx, err := scanTransaction(r.db.QueryRowContext(
		ctx, query,
		params.UserID, params.AccountID, params.ProviderTransactionID,
		params.Amount, params.Description, params.Category,
		params.Date, params.Pending, params.CurrencyCode,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return tx, nil
}

func (r *TransactionRepository) DeleteByProviderID(ctx context.Context, providerTransactionID string) error {
	query := `DELETE FROM transactions WHERE provider_transaction_id = $1`

	// Deleting an absent row is fine: the provider may retract a record we
	// never stored (for example one on an unmapped account).
	if _, err := r.db.ExecContext(ctx, query, providerTransactionID); err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) CountByAccountID(ctx context.Context, accountID string) (int64, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE account_id = $1`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func scanTransaction(row rowScanner) (*transaction.Transaction, error) {
	var tx transaction.Transaction
	var providerID sql.NullString

	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.AccountID, &providerID,
		&tx.Amount, &tx.Description, &tx.Category, &tx.Date,
		&tx.Pending, &tx.CurrencyCode, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if providerID.Valid {
		tx.ProviderTransactionID = &providerID.String
	}

	return &tx, nil
}
