package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/srujana-sanaka/tars-chat/internal/metrics"
	"github.com/srujana-sanaka/tars-chat/internal/models"
)

// TypingRequest reports whether the caller is currently typing.
type TypingRequest struct {
	Typing bool `json:"typing"`
}

// SetTyping records or clears the caller's typing indicator for a
// conversation. Indicators are never swept by a background job; readers
// filter out stale ones instead, so a missed "stopped typing" update
// ages out on its own.
func (h *Handler) SetTyping(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	convID, ok := h.conversationID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req TypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.db.SetTyping(r.Context(), convID, user.ID, req.Typing); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to update typing state")
		return
	}

	metrics.TypingUpdates.Inc()
	h.notifier.ConversationChanged(r.Context(), convID, "typing")
	w.WriteHeader(http.StatusNoContent)
}

// GetTypers lists who is typing in a conversation right now, excluding the
// caller. Seeing your own indicator come back is never useful.
func (h *Handler) GetTypers(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	convID, ok := h.conversationID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	typists, err := h.db.ActiveTypers(r.Context(), convID, time.Now())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, excludeTypist(typists, user.ID))
}

// GetAllTypers returns active typists across every conversation the caller
// participates in, keyed by conversation id. One call feeds the whole
// conversation list instead of one request per row.
func (h *Handler) GetAllTypers(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	byConv, err := h.db.ActiveTypersForUser(r.Context(), user.ID, time.Now())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	out := make(map[string][]models.Typist, len(byConv))
	for convID, typists := range byConv {
		filtered := excludeTypist(typists, user.ID)
		if len(filtered) > 0 {
			out[convID.String()] = filtered
		}
	}

	h.JSON(w, http.StatusOK, out)
}

func excludeTypist(typists []models.Typist, userID uuid.UUID) []models.Typist {
	out := make([]models.Typist, 0, len(typists))
	for _, t := range typists {
		if t.ID != userID {
			out = append(out, t)
		}
	}
	return out
}
