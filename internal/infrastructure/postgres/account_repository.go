package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"florin/internal/domain/account"
)

type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, user_id, item_id, provider_account_id, name, official_name,
	       type, mask, currency_code, current_balance, available_balance, created_at, updated_at`

func (r *AccountRepository) Create(ctx context.Context, params account.CreateParams) (*account.Account, error) {
	query := `
		INSERT INTO accounts
			(user_id, item_id, provider_account_id, name, official_name,
			 type, mask, currency_code, current_balance, available_balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + accountColumns

	acct, err := scanAccount(r.db.QueryRowContext(
		ctx, query,
		params.UserID, params.ItemID, params.ProviderAccountID,
		params.Name, params.OfficialName, params.Type, params.Mask,
		params.CurrencyCode, params.CurrentBalance, params.AvailableBalance,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return acct, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acct, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

func (r *AccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY name`
	return r.list(ctx, query, userID)
}

func (r *AccountRepository) ListLinkedByItemID(ctx context.Context, itemID string) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE item_id = $1 ORDER BY name`
	return r.list(ctx, query, itemID)
}

func (r *AccountRepository) FindByProviderAccountID(ctx context.Context, itemID, providerAccountID string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE item_id = $1 AND provider_account_id = $2`

	acct, err := scanAccount(r.db.QueryRowContext(ctx, query, itemID, providerAccountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // unmapped, the caller skips the record
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by provider id: %w", err)
	}
	return acct, nil
}

func (r *AccountRepository) UpdateBalances(ctx context.Context, id string, current, available decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET current_balance = $2, available_balance = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, current, available)
	if err != nil {
		return fmt.Errorf("failed to update balances: %w", err)
	}
	return requireRow(result, account.ErrAccountNotFound)
}

func (r *AccountRepository) list(ctx context.Context, query string, arg any) ([]*account.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return accounts, nil
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var acct account.Account
	var itemID, providerAccountID sql.NullString

	err := row.Scan(
		&acct.ID, &acct.UserID, &itemID, &providerAccountID,
		&acct.Name, &acct.OfficialName, &acct.Type, &acct.Mask,
		&acct.CurrencyCode, &acct.CurrentBalance, &acct.AvailableBalance,
		&acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if itemID.Valid {
		acct.ItemID = &itemID.String
	}
	if providerAccountID.Valid {
		acct.ProviderAccountID = &providerAccountID.String
	}

	return &acct, nil
}
