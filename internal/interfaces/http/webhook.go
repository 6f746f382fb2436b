package http

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"florin/internal/domain/item"
	"florin/internal/domain/sync"
)

// WebhookHandler receives provider webhooks. The provider retries on
// non-200, so every handled (or unhandleable) event answers 200; failures
// are logged instead of surfaced.
type WebhookHandler struct {
	items    *item.Service
	itemRepo item.Repository
	syncs    *sync.Service
	logger   *zap.Logger
}

func NewWebhookHandler(items *item.Service, itemRepo item.Repository, syncs *sync.Service, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{items: items, itemRepo: itemRepo, syncs: syncs, logger: logger}
}

type webhookPayload struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
	Error       *struct {
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"error"`
}

func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		// Malformed payloads are not retried into oblivion.
		h.logger.Warn("malformed webhook payload", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	h.logger.Info("webhook received",
		zap.String("type", payload.WebhookType),
		zap.String("code", payload.WebhookCode),
		zap.String("itemId", payload.ItemID),
	)

	switch {
	case payload.WebhookType == "TRANSACTIONS" && payload.WebhookCode == "SYNC_UPDATES_AVAILABLE":
		h.triggerSync(r.Context(), payload.ItemID)

	case payload.WebhookType == "ITEM" && payload.WebhookCode == "ERROR":
		code, message := "ITEM_ERROR", "provider reported an item error"
		if payload.Error != nil {
			code, message = payload.Error.ErrorCode, payload.Error.ErrorMessage
		}
		if err := h.items.HandleProviderError(r.Context(), payload.ItemID, code, message); err != nil {
			h.logger.Error("failed to handle item error webhook",
				zap.String("itemId", payload.ItemID),
				zap.Error(err),
			)
		}

	case payload.WebhookType == "ITEM" && payload.WebhookCode == "PENDING_EXPIRATION":
		if err := h.items.HandlePendingExpiration(r.Context(), payload.ItemID); err != nil {
			h.logger.Error("failed to handle pending expiration webhook",
				zap.String("itemId", payload.ItemID),
				zap.Error(err),
			)
		}

	default:
		h.logger.Debug("ignoring unhandled webhook",
			zap.String("type", payload.WebhookType),
			zap.String("code", payload.WebhookCode),
		)
	}

	w.WriteHeader(http.StatusOK)
}

// triggerSync resolves the item's owner and runs their transaction sync off
// the request, behind the sync service's panic boundary. Lock contention
// inside the sync just means a sync is already pulling these updates.
func (h *WebhookHandler) triggerSync(ctx context.Context, itemID string) {
	it, err := h.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		h.logger.Warn("webhook for unknown item", zap.String("itemId", itemID), zap.Error(err))
		return
	}

	h.syncs.SyncUserTransactionsAsync(context.WithoutCancel(ctx), it.UserID)
}
