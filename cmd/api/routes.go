package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"florin/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler.
func SetupRoutes(deps *Dependencies, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Telemetry)
	r.Use(middleware.Logging(logger))

	r.Get("/health", deps.HealthHandler.HandleHealth)

	// Provider webhooks authenticate out of band, not per user.
	r.Post("/webhooks/aggregator", deps.WebhookHandler.HandleWebhook)

	// User-scoped API. The gateway authenticates and injects the user id.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)

		r.Post("/api/items", deps.ItemHandler.HandleLink)
		r.Delete("/api/items/{itemID}", deps.ItemHandler.HandleDisconnect)
		r.Post("/api/items/{itemID}/sync", deps.SyncHandler.HandleStartHistoricalSync)
		r.Get("/api/items/{itemID}/sync/status", deps.SyncHandler.HandleSyncStatus)

		r.Post("/api/sync/transactions", deps.SyncHandler.HandleSyncTransactions)
		r.Post("/api/sync/balances", deps.SyncHandler.HandleSyncBalances)
	})

	return r
}
