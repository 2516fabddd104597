package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"chatterbox/internal/core/domain"
	"chatterbox/pkg/logging"
	"chatterbox/pkg/middleware"
)

// Ledger is the unread surface exposed over HTTP.
type Ledger interface {
	MarkRead(ctx context.Context, identityID, channelID string) (domain.Watermark, error)
	ListWithUnread(ctx context.Context, identityID string) ([]domain.ChannelUnread, error)
}

type ChannelHandler struct {
	ledger Ledger
}

func NewChannelHandler(ledger Ledger) *ChannelHandler {
	return &ChannelHandler{ledger: ledger}
}

type markReadResponse struct {
	ChannelID string    `json:"channelId"`
	LastRead  time.Time `json:"lastRead"`
}

// ListUnread serves GET /channels/unread.
func (h *ChannelHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	identityID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.ledger.ListWithUnread(r.Context(), identityID)
	if err != nil {
		log.ErrorContext(r.Context(), "channel handler - list unread failed", logging.Identity(identityID), logging.Err(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// MarkRead serves POST /channels/{id}/read.
func (h *ChannelHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	identityID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	channelID := r.PathValue("id")
	wm, err := h.ledger.MarkRead(r.Context(), identityID, channelID)
	if err != nil {
		log.ErrorContext(r.Context(), "channel handler - mark read failed", logging.Identity(identityID), logging.Channel(channelID), logging.Err(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{ChannelID: wm.ChannelID, LastRead: wm.LastRead})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, domain.ErrNotMember), errors.Is(err, domain.ErrAccessDenied):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrChannelNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInvalidChannelID), errors.Is(err, domain.ErrInvalidIdentityID):
		status, msg = http.StatusBadRequest, err.Error()
	}
	writeJSON(w, status, domain.ErrorMessage{Code: http.StatusText(status), Message: msg})
}
