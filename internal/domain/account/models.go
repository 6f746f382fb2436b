// Package account defines the financial account domain entity.
package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Type is the application's fixed account-type enum.
type Type string

const (
	TypeChecking   Type = "checking"
	TypeSavings    Type = "savings"
	TypeCredit     Type = "credit"
	TypeLoan       Type = "loan"
	TypeInvestment Type = "investment"
	TypeOther      Type = "other"
)

// Domain errors
var (
	ErrAccountNotFound = errors.New("account not found")
)

// Account represents one bank/card/investment account. Linked accounts carry
// the item id and the provider account id; manual accounts carry neither and
// are never touched by sync.
type Account struct {
	ID                string          `json:"id"`
	UserID            int64           `json:"userId"`
	ItemID            *string         `json:"itemId,omitempty"`
	ProviderAccountID *string         `json:"providerAccountId,omitempty"`
	Name              string          `json:"name"`
	OfficialName      string          `json:"officialName,omitempty"`
	Type              Type            `json:"type"`
	Mask              string          `json:"mask,omitempty"`
	CurrencyCode      string          `json:"currencyCode"`
	CurrentBalance    decimal.Decimal `json:"currentBalance"`
	AvailableBalance  decimal.Decimal `json:"availableBalance"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// IsLinked reports whether the account is tied to a provider item.
// Sync only ever updates balances on linked accounts.
func (a *Account) IsLinked() bool {
	return a.ItemID != nil && a.ProviderAccountID != nil
}

// CreateParams holds the fields for registering a linked account after its
// item is exchanged.
type CreateParams struct {
	UserID            int64
	ItemID            string
	ProviderAccountID string
	Name              string
	OfficialName      string
	Type              Type
	Mask              string
	CurrencyCode      string
	CurrentBalance    decimal.Decimal
	AvailableBalance  decimal.Decimal
}

// providerTypeMapping maps the provider's account taxonomy to the local enum.
var providerTypeMapping = map[string]Type{
	"depository": TypeChecking,
	"credit":     TypeCredit,
	"loan":       TypeLoan,
	"investment": TypeInvestment,
	"brokerage":  TypeInvestment,
}

// NormalizeType maps a provider (type, subtype) pair to the local enum.
// Unknown types map to TypeOther.
func NormalizeType(providerType, providerSubtype string) Type {
	if providerType == "depository" && providerSubtype == "savings" {
		return TypeSavings
	}
	if t, ok := providerTypeMapping[providerType]; ok {
		return t
	}
	return TypeOther
}
