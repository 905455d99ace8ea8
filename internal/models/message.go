package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one entry in a conversation's ordered log. Deletion is a soft
// flag: the row and its metadata survive, readers mask the content.
type Message struct {
	ID             string     `json:"id"` // ULID
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderID       uuid.UUID  `json:"sender_id"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	IsDeleted      bool       `json:"is_deleted"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	ReplyTo        string     `json:"reply_to,omitempty"`
	Reactions      []Reaction `json:"reactions"`
}

// Reaction groups every user who reacted with one emoji. A message holds at
// most one entry per distinct emoji.
type Reaction struct {
	Emoji   string      `json:"emoji"`
	UserIDs []uuid.UUID `json:"user_ids"`
}

// ToggleReaction applies toggle semantics to a reaction list: if the user
// already reacted with the emoji they are removed (and an emptied entry is
// dropped), otherwise they are added, creating the entry if needed. Applying
// it twice with the same arguments restores the original list.
func ToggleReaction(reactions []Reaction, emoji string, userID uuid.UUID) []Reaction {
	for i, r := range reactions {
		if r.Emoji != emoji {
			continue
		}
		for j, id := range r.UserIDs {
			if id == userID {
				reactions[i].UserIDs = append(r.UserIDs[:j], r.UserIDs[j+1:]...)
				if len(reactions[i].UserIDs) == 0 {
					return append(reactions[:i], reactions[i+1:]...)
				}
				return reactions
			}
		}
		reactions[i].UserIDs = append(r.UserIDs, userID)
		return reactions
	}
	return append(reactions, Reaction{Emoji: emoji, UserIDs: []uuid.UUID{userID}})
}
