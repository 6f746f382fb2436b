package main

import (
	"context"

	"go.uber.org/zap"

	"florin/internal/domain/item"
	"florin/internal/domain/notification"
	"florin/internal/domain/sync"
	"florin/internal/infrastructure/aggregator"
	"florin/internal/infrastructure/crypto"
	"florin/internal/infrastructure/firebase"
	"florin/internal/infrastructure/postgres"
	httphandlers "florin/internal/interfaces/http"
	"florin/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	SyncHandler    *httphandlers.SyncHandler
	ItemHandler    *httphandlers.ItemHandler
	WebhookHandler *httphandlers.WebhookHandler
	HealthHandler  *httphandlers.HealthHandler

	// Services (for scheduler)
	SyncService *sync.Service

	// Repositories (for scheduler job provider)
	ItemRepo *postgres.ItemRepository
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	db, err := postgres.New(cfg.Database.ConnectionString(), postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		db.Close()
		return nil, err
	}

	userRepo := postgres.NewUserRepository(db)
	itemRepo := postgres.NewItemRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	lockRepo := postgres.NewLockRepository(db)

	client := aggregator.NewBreakerClient(aggregator.NewClient(aggregator.Config{
		BaseURL:  cfg.Aggregator.BaseURL,
		ClientID: cfg.Aggregator.ClientID,
		Secret:   cfg.Aggregator.Secret,
		Timeout:  cfg.Aggregator.Timeout,
	}), logger)

	locks := sync.NewLockManager(lockRepo, logger)

	// Push delivery is optional; without Firebase the notifier stays nil and
	// sync results are only observable through the API.
	var notifier *notification.Service
	if cfg.Firebase.Enabled {
		fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, userRepo.ClearFCMTokenByValue, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		notifier = notification.NewService(userRepo, fcm, logger)
	}

	syncService := sync.NewService(client, locks, itemRepo, accountRepo, transactionRepo, encryptor, notifierOrNil(notifier), logger)
	itemService := item.NewService(client, itemRepo, accountRepo, encryptor, locks, statusNotifierOrNil(notifier), logger)

	return &Dependencies{
		DB:             db,
		SyncHandler:    httphandlers.NewSyncHandler(syncService, logger),
		ItemHandler:    httphandlers.NewItemHandler(itemService, syncService, logger),
		WebhookHandler: httphandlers.NewWebhookHandler(itemService, itemRepo, syncService, logger),
		HealthHandler:  httphandlers.NewHealthHandler(db),
		SyncService:    syncService,
		ItemRepo:       itemRepo,
	}, nil
}

// notifierOrNil keeps a nil *notification.Service from leaking into the
// service as a non-nil interface value.
func notifierOrNil(n *notification.Service) sync.Notifier {
	if n == nil {
		return nil
	}
	return n
}

func statusNotifierOrNil(n *notification.Service) item.StatusNotifier {
	if n == nil {
		return nil
	}
	return n
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
