package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/srujana-sanaka/tars-chat/internal/metrics"
	"github.com/srujana-sanaka/tars-chat/internal/store"
)

// CreateDirectRequest asks for the one conversation with a peer.
type CreateDirectRequest struct {
	PeerID string `json:"peer_id"`
}

// CreateDirect resolves or creates the single direct conversation between the
// authenticated user and a peer. Repeating the call, with either side
// initiating, always lands on the same conversation.
func (h *Handler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	var req CreateDirectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	peerID, err := uuid.Parse(req.PeerID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid peer ID format")
		return
	}
	peer, err := h.db.GetUserByID(r.Context(), peerID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if peer == nil {
		h.Error(w, http.StatusNotFound, "peer not found")
		return
	}

	conv, created, err := h.db.ResolveDirectConversation(r.Context(), user.ID, peerID)
	if err != nil {
		if errors.Is(err, store.ErrSameParticipant) {
			h.Error(w, http.StatusBadRequest, "cannot start a conversation with yourself")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to resolve conversation")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		metrics.ConversationsCreated.WithLabelValues("direct").Inc()
		h.notifier.UsersChanged(r.Context(), "membership")
	}
	h.JSON(w, status, conv)
}

// CreateGroupRequest carries the membership and display name of a new group.
type CreateGroupRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
	Name           string   `json:"name"`
}

// CreateGroup creates a new group conversation. Groups are never
// deduplicated; the authenticated user is always a member.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	participants := []uuid.UUID{user.ID}
	for _, raw := range req.ParticipantIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid participant ID format")
			return
		}
		member, err := h.db.GetUserByID(r.Context(), id)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "database error")
			return
		}
		if member == nil {
			h.Error(w, http.StatusNotFound, "participant not found")
			return
		}
		participants = append(participants, id)
	}

	conv, err := h.db.CreateGroupConversation(r.Context(), participants, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmptyGroupName):
			h.Error(w, http.StatusBadRequest, "group name is required")
		case errors.Is(err, store.ErrTooFewMembers):
			h.Error(w, http.StatusBadRequest, "groups need at least two participants")
		default:
			h.Error(w, http.StatusInternalServerError, "failed to create group")
		}
		return
	}

	metrics.ConversationsCreated.WithLabelValues("group").Inc()
	h.notifier.UsersChanged(r.Context(), "membership")
	h.JSON(w, http.StatusCreated, conv)
}

// ListConversations returns the authenticated user's conversations with
// unread counts and last-message previews, most recently active first.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	summaries, err := h.db.ListConversationsForUser(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, summaries)
}

// GetConversation looks up a single conversation by ID.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID format")
		return
	}

	conv, err := h.db.GetConversation(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if conv == nil {
		h.Error(w, http.StatusNotFound, "conversation not found")
		return
	}

	h.JSON(w, http.StatusOK, conv)
}

// MarkRead resets the authenticated user's unread counter for a
// conversation. Idempotent: acknowledging an already-read conversation keeps
// the counter at zero.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	convID, ok := h.conversationID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.db.MarkConversationRead(r.Context(), convID, user.ID); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to acknowledge read")
		return
	}

	metrics.ReadAcknowledgements.Inc()
	h.notifier.ConversationChanged(r.Context(), convID, "read")
	w.WriteHeader(http.StatusNoContent)
}

// UnreadResponse carries a single unread counter value.
type UnreadResponse struct {
	ConversationID string `json:"conversation_id"`
	UnreadCount    int    `json:"unread_count"`
}

// GetUnread returns the authenticated user's unread count for a
// conversation; a counter that never existed reads as zero.
func (h *Handler) GetUnread(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	convID, ok := h.conversationID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	count, err := h.db.UnreadCount(r.Context(), user.ID, convID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, UnreadResponse{
		ConversationID: convID.String(),
		UnreadCount:    count,
	})
}
