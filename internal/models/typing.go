package models

import (
	"time"

	"github.com/google/uuid"
)

// TypingIndicator marks a user's most recent "I am typing" assertion in a
// conversation. Indicators are never swept; readers filter out anything
// older than the liveness window.
type TypingIndicator struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Typist is the projection of an actively typing user for display.
type Typist struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
