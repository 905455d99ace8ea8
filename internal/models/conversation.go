package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a channel between a fixed set of participants. Direct
// (non-group) conversations are unique per unordered participant pair;
// groups are always distinct even with identical membership.
type Conversation struct {
	ID            uuid.UUID   `json:"id"`
	IsGroup       bool        `json:"is_group"`
	Name          string      `json:"name,omitempty"`
	Participants  []uuid.UUID `json:"participants"`
	LastMessageID string      `json:"last_message_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// ConversationSummary is the per-user projection used by conversation
// listings: the conversation plus that user's unread count and a preview
// of the most recent message. The preview is empty when the conversation
// has no messages yet or when the last message was soft-deleted.
type ConversationSummary struct {
	Conversation
	UnreadCount        int    `json:"unread_count"`
	LastMessagePreview string `json:"last_message_preview,omitempty"`
}
