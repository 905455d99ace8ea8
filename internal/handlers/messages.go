package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/srujana-sanaka/tars-chat/internal/metrics"
	"github.com/srujana-sanaka/tars-chat/internal/models"
	"github.com/srujana-sanaka/tars-chat/internal/store"
)

// deletedPlaceholder is what readers see instead of a soft-deleted message's
// content.
const deletedPlaceholder = ""

// SendMessageRequest carries a new message.
type SendMessageRequest struct {
	Content string `json:"content"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// SendMessage appends a message to a conversation. The store applies the
// unread fan-out and last-message pointer in the same transaction, so the
// response implies the counters moved too.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	convID, ok := h.conversationID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.db.SendMessage(r.Context(), convID, user.ID, req.Content, req.ReplyTo)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmptyContent):
			h.Error(w, http.StatusBadRequest, "content is required")
		case errors.Is(err, store.ErrNotFound):
			h.Error(w, http.StatusNotFound, "conversation or parent message not found")
		default:
			h.Error(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	metrics.MessagesSent.Inc()
	h.notifier.ConversationChanged(r.Context(), convID, "message")

	h.JSON(w, http.StatusCreated, msg)
}

// ListMessages returns a conversation's messages in creation order.
// Soft-deleted rows keep their place in the log but their content is masked.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	convID, ok := h.conversationID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	messages, err := h.db.ListMessages(r.Context(), convID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	for i := range messages {
		maskDeleted(&messages[i])
	}
	h.JSON(w, http.StatusOK, messages)
}

// EditMessageRequest carries replacement content for a message.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// EditMessage updates a message's content. A requester who is not the sender
// gets the unchanged message back, not an error, so retries stay idempotent.
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Content) == 0 {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	msg, err := h.db.EditMessage(r.Context(), chi.URLParam(r, "id"), user.ID, req.Content)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "message not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to edit message")
		return
	}

	h.notifier.ConversationChanged(r.Context(), msg.ConversationID, "message")
	maskDeleted(msg)
	h.JSON(w, http.StatusOK, msg)
}

// DeleteMessage soft-deletes a message. Only the sender's request takes
// effect; anyone else gets the unchanged message back.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	msg, err := h.db.SoftDeleteMessage(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "message not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to delete message")
		return
	}

	h.notifier.ConversationChanged(r.Context(), msg.ConversationID, "message")
	maskDeleted(msg)
	h.JSON(w, http.StatusOK, msg)
}

// ReactRequest names the emoji to toggle.
type ReactRequest struct {
	Emoji string `json:"emoji"`
}

// React toggles the authenticated user's emoji reaction on a message.
// Toggling twice restores the original state.
func (h *Handler) React(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	var req ReactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	messageID := chi.URLParam(r, "id")
	err := h.db.ToggleReaction(r.Context(), messageID, req.Emoji, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmptyEmoji):
			h.Error(w, http.StatusBadRequest, "emoji is required")
		case errors.Is(err, store.ErrNotFound):
			h.Error(w, http.StatusNotFound, "message not found")
		default:
			h.Error(w, http.StatusInternalServerError, "failed to toggle reaction")
		}
		return
	}

	metrics.ReactionsToggled.Inc()
	if msg, err := h.db.GetMessage(r.Context(), messageID); err == nil && msg != nil {
		h.notifier.ConversationChanged(r.Context(), msg.ConversationID, "reaction")
	}

	w.WriteHeader(http.StatusNoContent)
}

// maskDeleted hides the content of a soft-deleted message while leaving the
// row, its metadata and reactions visible.
func maskDeleted(m *models.Message) {
	if m.IsDeleted {
		m.Content = deletedPlaceholder
	}
}
