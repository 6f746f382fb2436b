package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"florin/internal/domain/item"
	"florin/internal/domain/sync"
	"florin/internal/shared/middleware"
)

type SyncHandler struct {
	syncs  *sync.Service
	logger *zap.Logger
}

func NewSyncHandler(syncs *sync.Service, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{syncs: syncs, logger: logger}
}

// HandleSyncTransactions runs a foreground transaction sync for the caller.
// Contention shows up inside the summary, so the status is always 200.
func (h *SyncHandler) HandleSyncTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summary := h.syncs.SyncUserTransactions(r.Context(), userID)
	writeJSON(w, http.StatusOK, summary)
}

// HandleSyncBalances runs a balance-only refresh for the caller.
func (h *SyncHandler) HandleSyncBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summary := h.syncs.SyncAccountBalances(r.Context(), userID)
	writeJSON(w, http.StatusOK, summary)
}

type startHistoricalResponse struct {
	SyncID string `json:"syncId"`
}

// HandleStartHistoricalSync kicks off a background history import for one
// item and returns the sync id to poll with.
func (h *SyncHandler) HandleStartHistoricalSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	itemID := chi.URLParam(r, "itemID")

	syncID, err := h.syncs.StartHistoricalSync(r.Context(), userID, itemID)
	if errors.Is(err, item.ErrItemNotFound) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to start historical sync",
			zap.String("itemId", itemID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to start sync")
		return
	}

	writeJSON(w, http.StatusAccepted, startHistoricalResponse{SyncID: syncID})
}

// HandleSyncStatus reports the latest background-sync progress for an item.
func (h *SyncHandler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	itemID := chi.URLParam(r, "itemID")

	snapshot, err := h.syncs.GetSyncStatus(r.Context(), userID, itemID)
	if errors.Is(err, item.ErrItemNotFound) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to read sync status",
			zap.String("itemId", itemID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to read sync status")
		return
	}
	if snapshot == nil {
		writeError(w, http.StatusNotFound, "no sync started for this item")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}
