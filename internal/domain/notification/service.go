// Package notification turns sync and item lifecycle events into user-facing
// push messages. Delivery failures are logged, never propagated: a dropped
// notification must not fail a sync.
package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"florin/internal/domain/item"
	"florin/internal/domain/user"
)

// Messenger is the push-delivery surface. firebase.Client implements it.
type Messenger interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// Service resolves the recipient's device token and formats event messages.
type Service struct {
	users     user.Repository
	messenger Messenger
	logger    *zap.Logger
}

func NewService(users user.Repository, messenger Messenger, logger *zap.Logger) *Service {
	return &Service{users: users, messenger: messenger, logger: logger}
}

// HistoricalSyncFinished notifies the user that a background history import
// reached a terminal state. Implements the sync orchestrator's Notifier.
func (s *Service) HistoricalSyncFinished(ctx context.Context, userID int64, institutionName string, state item.SyncState, transactions int) {
	var title, body string
	switch state {
	case item.SyncStateCompleted:
		title = "Transaction history ready"
		body = fmt.Sprintf("Imported %d transactions from %s.", transactions, institutionName)
	case item.SyncStateTimeout:
		title = "Transaction import paused"
		body = fmt.Sprintf("The import from %s is taking longer than expected and will resume shortly.", institutionName)
	case item.SyncStateFailed:
		title = "Transaction import failed"
		body = fmt.Sprintf("We could not import transactions from %s. Please try reconnecting.", institutionName)
	default:
		return
	}

	s.send(ctx, userID, title, body, map[string]string{
		"type":  "historical_sync",
		"state": string(state),
	})
}

// ItemError notifies the user that an institution connection needs attention.
func (s *Service) ItemError(ctx context.Context, userID int64, institutionName string) {
	s.send(ctx, userID, "Connection needs attention",
		fmt.Sprintf("Your connection to %s stopped working. Reconnect to keep your transactions up to date.", institutionName),
		map[string]string{"type": "item_error"},
	)
}

// ItemPendingExpiration warns the user before a connection's consent expires.
func (s *Service) ItemPendingExpiration(ctx context.Context, userID int64, institutionName string) {
	s.send(ctx, userID, "Connection expiring soon",
		fmt.Sprintf("Your connection to %s expires soon. Renew it to avoid interruptions.", institutionName),
		map[string]string{"type": "item_pending_expiration"},
	)
}

func (s *Service) send(ctx context.Context, userID int64, title, body string, data map[string]string) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load notification recipient",
			zap.Int64("userId", userID),
			zap.Error(err),
		)
		return
	}
	if u.FCMToken == nil {
		return
	}

	if err := s.messenger.Send(ctx, *u.FCMToken, title, body, data); err != nil {
		s.logger.Warn("failed to deliver push notification",
			zap.Int64("userId", userID),
			zap.String("title", title),
			zap.Error(err),
		)
	}
}
