// Package item defines the Linked Item domain entity: one connection to a
// financial institution through the aggregation provider.
package item

import (
	"errors"
	"time"
)

// Status is the lifecycle status of a Linked Item.
type Status string

const (
	StatusActive            Status = "active"
	StatusError             Status = "error"
	StatusPendingExpiration Status = "pending_expiration"
	StatusRevoked           Status = "revoked"
)

// SyncState is the status of a background historical sync for an item.
type SyncState string

const (
	SyncStatePending   SyncState = "pending"
	SyncStateSyncing   SyncState = "syncing"
	SyncStateCompleted SyncState = "completed"
	SyncStateFailed    SyncState = "failed"
	SyncStateTimeout   SyncState = "timeout"
)

// Domain errors
var (
	ErrItemNotFound = errors.New("item not found")
)

// Item represents one institution connection owned by one user. The ID is the
// provider's item id and is globally unique. The access token is stored
// encrypted; this struct never carries the plaintext.
type Item struct {
	ID                   string     `json:"id"`
	UserID               int64      `json:"userId"`
	EncryptedAccessToken string     `json:"-"`
	InstitutionID        string     `json:"institutionId"`
	InstitutionName      string     `json:"institutionName"`
	Status               Status     `json:"status"`
	ErrorCode            *string    `json:"errorCode,omitempty"`
	ErrorMessage         *string    `json:"errorMessage,omitempty"`
	SyncCursor           *string    `json:"-"` // nil = never synced
	LastSyncedAt         *time.Time `json:"lastSyncedAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Progress is the persisted state of a background historical sync,
// written after every committed page so a polling caller can render
// live status.
type Progress struct {
	SyncID       string     `json:"syncId"`
	State        SyncState  `json:"status"`
	Percent      int        `json:"percent"`
	Transactions int        `json:"transactions"`
	Message      string     `json:"message"`
	Error        *string    `json:"error,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// CreateParams holds the fields needed to register a new Linked Item after a
// successful public-token exchange.
type CreateParams struct {
	ID                   string
	UserID               int64
	EncryptedAccessToken string
	InstitutionID        string
	InstitutionName      string
}
