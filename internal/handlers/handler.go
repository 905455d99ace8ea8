package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/srujana-sanaka/tars-chat/internal/api/middleware"
	"github.com/srujana-sanaka/tars-chat/internal/models"
	"github.com/srujana-sanaka/tars-chat/internal/notify"
	"github.com/srujana-sanaka/tars-chat/internal/store"
)

// emailRegex validates email addresses per RFC 5322 (simplified).
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db                store.DataStore
	notifier          notify.Notifier
	redis             *notify.RedisNotifier // nil when no delivery layer is configured
	exclusivePresence bool
}

// NewHandler creates a new Handler with the given stores.
func NewHandler(db store.DataStore, redis *notify.RedisNotifier, exclusivePresence bool) *Handler {
	var notifier notify.Notifier = notify.Nop{}
	if redis != nil {
		notifier = redis
	}
	return &Handler{
		db:                db,
		notifier:          notifier,
		redis:             redis,
		exclusivePresence: exclusivePresence,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// currentUser resolves the authenticated session to a stored user. It writes
// the error response itself and returns nil when the caller should bail out.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) *models.User {
	claims := middleware.GetSessionFromContext(r.Context())
	if claims == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return nil
	}

	user, err := h.db.GetUserByExternalID(r.Context(), claims.ExternalID())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return nil
	}
	if user == nil {
		h.Error(w, http.StatusForbidden, "profile not synced")
		return nil
	}
	return user
}

// conversationID parses and resolves the {id} route parameter, writing the
// error response on failure.
func (h *Handler) conversationID(w http.ResponseWriter, r *http.Request, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID format")
		return uuid.Nil, false
	}
	conv, err := h.db.GetConversation(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return uuid.Nil, false
	}
	if conv == nil {
		h.Error(w, http.StatusNotFound, "conversation not found")
		return uuid.Nil, false
	}
	return id, true
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if len(name) > 100 {
		name = name[:100]
	}

	return name
}

// isValidEmail validates email addresses using RFC 5322 pattern.
func isValidEmail(email string) bool {
	if email == "" {
		return true // Empty is valid (optional field)
	}
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}
