package item

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"florin/internal/domain/account"
	"florin/internal/infrastructure/aggregator"
)

// Exchanger is the provider surface the item lifecycle needs.
type Exchanger interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (*aggregator.ExchangeTokenResponse, error)
	GetAccounts(ctx context.Context, accessToken string) (*aggregator.GetAccountsResponse, error)
}

// TokenEncryptor seals access tokens before they reach storage.
type TokenEncryptor interface {
	Encrypt(plaintext string) (string, error)
}

// LockReleaser drops any sync locks a user holds when an item goes away.
type LockReleaser interface {
	ForceReleaseAll(ctx context.Context, userID int64) int64
}

// StatusNotifier is told about webhook-driven lifecycle changes. May be nil.
type StatusNotifier interface {
	ItemError(ctx context.Context, userID int64, institutionName string)
	ItemPendingExpiration(ctx context.Context, userID int64, institutionName string)
}

// Service owns the Linked Item lifecycle: public-token exchange, account
// discovery, webhook status transitions, and disconnection.
type Service struct {
	client   Exchanger
	repo     Repository
	accounts account.Repository
	cipher   TokenEncryptor
	locks    LockReleaser
	notifier StatusNotifier
	logger   *zap.Logger
}

func NewService(
	client Exchanger,
	repo Repository,
	accounts account.Repository,
	cipher TokenEncryptor,
	locks LockReleaser,
	notifier StatusNotifier,
	logger *zap.Logger,
) *Service {
	return &Service{
		client:   client,
		repo:     repo,
		accounts: accounts,
		cipher:   cipher,
		locks:    locks,
		notifier: notifier,
		logger:   logger,
	}
}

// LinkParams carries the client-side result of the provider's link flow.
type LinkParams struct {
	PublicToken     string
	InstitutionID   string
	InstitutionName string
}

// Link exchanges a public token for a long-lived access token, registers the
// item with the token sealed, and imports the institution's accounts. A
// failed account import does not fail the link; the balance sync will pick
// the account up later.
func (s *Service) Link(ctx context.Context, userID int64, params LinkParams) (*Item, error) {
	exchanged, err := s.client.ExchangePublicToken(ctx, params.PublicToken)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange public token: %w", err)
	}

	sealed, err := s.cipher.Encrypt(exchanged.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	it, err := s.repo.Create(ctx, CreateParams{
		ID:                   exchanged.ItemID,
		UserID:               userID,
		EncryptedAccessToken: sealed,
		InstitutionID:        params.InstitutionID,
		InstitutionName:      params.InstitutionName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register item: %w", err)
	}

	s.importAccounts(ctx, it, exchanged.AccessToken)

	s.logger.Info("item linked",
		zap.Int64("userId", userID),
		zap.String("itemId", it.ID),
		zap.String("institution", params.InstitutionName),
	)

	return it, nil
}

func (s *Service) importAccounts(ctx context.Context, it *Item, accessToken string) {
	resp, err := s.client.GetAccounts(ctx, accessToken)
	if err != nil {
		s.logger.Error("failed to fetch accounts for new item",
			zap.String("itemId", it.ID),
			zap.Error(err),
		)
		return
	}

	for _, remote := range resp.Accounts {
		_, err := s.accounts.Create(ctx, account.CreateParams{
			UserID:            it.UserID,
			ItemID:            it.ID,
			ProviderAccountID: remote.ID,
			Name:              remote.Name,
			OfficialName:      remote.OfficialName,
			Type:              account.NormalizeType(remote.Type, remote.Subtype),
			Mask:              remote.Mask,
			CurrencyCode:      remote.Balances.CurrencyCode,
			CurrentBalance:    remote.Balances.Current,
			AvailableBalance:  remote.Balances.Available,
		})
		if err != nil {
			s.logger.Error("failed to import account",
				zap.String("itemId", it.ID),
				zap.String("providerAccountId", remote.ID),
				zap.Error(err),
			)
		}
	}
}

// Disconnect revokes an item and force-releases any sync locks its owner
// holds, so a wedged sync cannot outlive the connection.
func (s *Service) Disconnect(ctx context.Context, userID int64, itemID string) error {
	it, err := s.getOwned(ctx, userID, itemID)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, it.ID, StatusRevoked); err != nil {
		return fmt.Errorf("failed to revoke item: %w", err)
	}

	if released := s.locks.ForceReleaseAll(ctx, userID); released > 0 {
		s.logger.Info("released sync locks on disconnect",
			zap.Int64("userId", userID),
			zap.Int64("released", released),
		)
	}

	return nil
}

// HandleProviderError records a provider-reported item failure and tells the
// owner. Driven by ITEM:ERROR webhooks.
func (s *Service) HandleProviderError(ctx context.Context, itemID, code, message string) error {
	it, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		return err
	}

	if err := s.repo.MarkError(ctx, itemID, code, message); err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.ItemError(ctx, it.UserID, it.InstitutionName)
	}
	return nil
}

// HandlePendingExpiration flags an item whose consent window is closing.
// Driven by ITEM:PENDING_EXPIRATION webhooks.
func (s *Service) HandlePendingExpiration(ctx context.Context, itemID string) error {
	it, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, itemID, StatusPendingExpiration); err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.ItemPendingExpiration(ctx, it.UserID, it.InstitutionName)
	}
	return nil
}

// getOwned loads an item and hides other users' items behind not-found.
func (s *Service) getOwned(ctx context.Context, userID int64, itemID string) (*Item, error) {
	it, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.UserID != userID {
		return nil, ErrItemNotFound
	}
	return it, nil
}
