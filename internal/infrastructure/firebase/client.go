// Package firebase delivers push notifications through Firebase Cloud
// Messaging. It implements notification.Messenger.
package firebase

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// TokenDeactivator is called to clear a device token FCM reported as invalid.
// Provided by the caller to avoid coupling this package to the repository.
type TokenDeactivator func(ctx context.Context, token string) error

// Client sends push messages through FCM.
type Client struct {
	msgClient   *messaging.Client
	deactivator TokenDeactivator
	logger      *zap.Logger
}

// NewClient initializes a Firebase app from a service-account credentials
// file. deactivator may be nil.
func NewClient(ctx context.Context, credentialsFile string, deactivator TokenDeactivator, logger *zap.Logger) (*Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return &Client{msgClient: msgClient, deactivator: deactivator, logger: logger}, nil
}

// Send delivers a push notification to a single device token. Invalid or
// unregistered tokens are deactivated and reported as an error.
func (c *Client) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	if _, err := c.msgClient.Send(ctx, msg); err != nil {
		if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) {
			c.logger.Info("deactivating invalid fcm token")
			c.deactivateToken(ctx, token)
			return fmt.Errorf("invalid fcm token: %w", err)
		}
		return fmt.Errorf("failed to send fcm message: %w", err)
	}

	return nil
}

func (c *Client) deactivateToken(ctx context.Context, token string) {
	if c.deactivator == nil {
		return
	}
	if err := c.deactivator(ctx, token); err != nil {
		c.logger.Error("failed to deactivate fcm token", zap.Error(err))
	}
}
