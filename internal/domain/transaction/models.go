// Package transaction defines the ledger-entry domain entity and the
// provider-to-local category mapping.
package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Transaction represents one ledger entry. Synced rows carry the provider
// transaction id, which is globally unique and serves as the idempotency key
// for upsert and delete. Manual rows have no provider id and are never
// touched by sync.
type Transaction struct {
	ID                    string          `json:"id"`
	UserID                int64           `json:"userId"`
	AccountID             string          `json:"accountId"`
	ProviderTransactionID *string         `json:"providerTransactionId,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	Description           string          `json:"description"`
	Category              Category        `json:"category"`
	Date                  time.Time       `json:"date"`
	Pending               bool            `json:"pending"`
	CurrencyCode          string          `json:"currencyCode"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// UpsertParams holds the fields written by a sync upsert, keyed by the
// provider transaction id.
type UpsertParams struct {
	UserID                int64
	AccountID             string
	ProviderTransactionID string
	Amount                decimal.Decimal
	Description           string
	Category              Category
	Date                  time.Time
	Pending               bool
	CurrencyCode          string
}
