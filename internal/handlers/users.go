package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/srujana-sanaka/tars-chat/internal/api/middleware"
	"github.com/srujana-sanaka/tars-chat/internal/metrics"
	"github.com/srujana-sanaka/tars-chat/internal/models"
	"github.com/srujana-sanaka/tars-chat/internal/presence"
	"github.com/srujana-sanaka/tars-chat/internal/store"
)

// SyncProfileRequest optionally overrides the profile fields carried in the
// session token. Most clients send an empty body.
type SyncProfileRequest struct {
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Email     string `json:"email,omitempty"`
}

// UserResponse is a user plus their rendered activity status.
type UserResponse struct {
	models.User
	Activity string `json:"activity"`
}

// SyncProfile upserts the authenticated user from their identity-provider
// session and marks them online. Under the exclusive presence policy every
// other user is forced offline at the same time.
func (h *Handler) SyncProfile(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetSessionFromContext(r.Context())
	if claims == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SyncProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	profile := store.UserProfile{
		ExternalID: claims.ExternalID(),
		Name:       sanitizeName(firstNonEmpty(req.Name, claims.Name)),
		AvatarURL:  firstNonEmpty(req.AvatarURL, claims.AvatarURL),
		Email:      firstNonEmpty(req.Email, claims.Email),
	}
	if !isValidEmail(profile.Email) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}

	user, err := h.db.UpsertUser(r.Context(), profile, h.exclusivePresence)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to sync profile")
		return
	}

	metrics.UsersSynced.Inc()
	h.notifier.UsersChanged(r.Context(), "presence")

	h.JSON(w, http.StatusOK, user)
}

// SetOnlineRequest carries the client's presence assertion.
type SetOnlineRequest struct {
	Online bool `json:"online"`
}

// SetOnline flips the authenticated user's online flag. Clients call this
// from their activity/visibility heartbeat.
func (h *Handler) SetOnline(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetSessionFromContext(r.Context())
	if claims == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SetOnlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.db.SetUserOnline(r.Context(), claims.ExternalID(), req.Online); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to update presence")
		return
	}

	h.notifier.UsersChanged(r.Context(), "presence")
	w.WriteHeader(http.StatusNoContent)
}

// ListUsers returns every known user with a human-readable activity label.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListUsers(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	now := time.Now().UTC()
	resp := make([]UserResponse, len(users))
	for i, u := range users {
		resp[i] = UserResponse{
			User:     u,
			Activity: presence.FormatActivity(u.IsOnline, u.LastSeen, now),
		}
	}

	h.JSON(w, http.StatusOK, resp)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
