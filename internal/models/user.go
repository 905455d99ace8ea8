package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a chat participant mirrored from the external identity provider.
// Profile fields are refreshed on every session sync; the online flag and
// last-seen timestamp track activity reported by the client.
type User struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	Email      string    `json:"email,omitempty"`
	IsOnline   bool      `json:"is_online"`
	LastSeen   time.Time `json:"last_seen"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
