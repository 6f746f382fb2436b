package aggregator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents one transaction record from the provider's
// cursor-paginated sync feed.
type Transaction struct {
	ID           string          `json:"transaction_id"`
	AccountID    string          `json:"account_id"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"iso_currency_code"`
	DateString   string          `json:"date"` // "2006-01-02" format
	Name         string          `json:"name"`
	MerchantName string          `json:"merchant_name,omitempty"`
	Category     []string        `json:"category"` // most general first
	Pending      bool            `json:"pending"`
}

// GetDate parses and returns the transaction date.
func (t *Transaction) GetDate() (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", t.DateString)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date '%s': %w", t.DateString, err)
	}
	return parsed, nil
}

// Description returns the display description for a transaction, preferring
// the merchant name over the raw name.
func (t *Transaction) Description() string {
	if t.MerchantName != "" {
		return t.MerchantName
	}
	return t.Name
}

// RemovedTransaction identifies a transaction deleted upstream.
type RemovedTransaction struct {
	ID string `json:"transaction_id"`
}

// SyncTransactionsResponse is one page of the provider's change feed.
type SyncTransactionsResponse struct {
	Added      []Transaction        `json:"added"`
	Modified   []Transaction        `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
}

// Balances carries the provider-reported balance pair for one account.
type Balances struct {
	Current      decimal.Decimal `json:"current"`
	Available    decimal.Decimal `json:"available"`
	CurrencyCode string          `json:"iso_currency_code"`
}

// Account represents one account from the provider.
type Account struct {
	ID           string   `json:"account_id"`
	Name         string   `json:"name"`
	OfficialName string   `json:"official_name"`
	Mask         string   `json:"mask"`
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype"`
	Balances     Balances `json:"balances"`
}

// GetAccountsResponse is the response of the account listing and balance
// endpoints.
type GetAccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// ExchangeTokenResponse is the result of exchanging a short-lived public
// token for a long-lived access token.
type ExchangeTokenResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

// apiError is the provider's wire error shape.
type apiError struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}
