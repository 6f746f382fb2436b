package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"florin/internal/domain/item"
	"florin/internal/domain/sync"
	"florin/internal/shared/middleware"
)

type ItemHandler struct {
	items  *item.Service
	syncs  *sync.Service
	logger *zap.Logger
}

func NewItemHandler(items *item.Service, syncs *sync.Service, logger *zap.Logger) *ItemHandler {
	return &ItemHandler{items: items, syncs: syncs, logger: logger}
}

type linkItemRequest struct {
	PublicToken     string `json:"publicToken"`
	InstitutionID   string `json:"institutionId"`
	InstitutionName string `json:"institutionName"`
}

type linkItemResponse struct {
	Item   *item.Item `json:"item"`
	SyncID string     `json:"syncId,omitempty"`
}

// HandleLink exchanges a public token, registers the item, and starts the
// background history import in the same request.
func (h *ItemHandler) HandleLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req linkItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PublicToken == "" {
		writeError(w, http.StatusBadRequest, "publicToken is required")
		return
	}

	linked, err := h.items.Link(r.Context(), userID, item.LinkParams{
		PublicToken:     req.PublicToken,
		InstitutionID:   req.InstitutionID,
		InstitutionName: req.InstitutionName,
	})
	if err != nil {
		h.logger.Error("failed to link item", zap.Int64("userId", userID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to link institution")
		return
	}

	resp := linkItemResponse{Item: linked}
	if syncID, err := h.syncs.StartHistoricalSync(r.Context(), userID, linked.ID); err != nil {
		// The link itself stands; history can be imported later.
		h.logger.Error("failed to start historical sync for new item",
			zap.String("itemId", linked.ID),
			zap.Error(err),
		)
	} else {
		resp.SyncID = syncID
	}

	writeJSON(w, http.StatusCreated, resp)
}

// HandleDisconnect revokes an item.
func (h *ItemHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	itemID := chi.URLParam(r, "itemID")

	err := h.items.Disconnect(r.Context(), userID, itemID)
	if errors.Is(err, item.ErrItemNotFound) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to disconnect item", zap.String("itemId", itemID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to disconnect item")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
