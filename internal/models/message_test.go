package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleReactionAddsAndRemoves(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()

	var reactions []Reaction

	reactions = ToggleReaction(reactions, "👍", alice)
	require.Len(t, reactions, 1)
	assert.Equal(t, "👍", reactions[0].Emoji)
	assert.Equal(t, []uuid.UUID{alice}, reactions[0].UserIDs)

	// Second user joins the same entry
	reactions = ToggleReaction(reactions, "👍", bob)
	require.Len(t, reactions, 1)
	assert.Equal(t, []uuid.UUID{alice, bob}, reactions[0].UserIDs)

	// A different emoji gets its own entry
	reactions = ToggleReaction(reactions, "🎉", alice)
	require.Len(t, reactions, 2)

	// Removing one user leaves the entry for the other
	reactions = ToggleReaction(reactions, "👍", alice)
	require.Len(t, reactions, 2)
	assert.Equal(t, []uuid.UUID{bob}, reactions[0].UserIDs)

	// Removing the last user drops the entry entirely
	reactions = ToggleReaction(reactions, "👍", bob)
	require.Len(t, reactions, 1)
	assert.Equal(t, "🎉", reactions[0].Emoji)
}

func TestToggleReactionSelfInverse(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()

	reactions := []Reaction{
		{Emoji: "👍", UserIDs: []uuid.UUID{alice}},
		{Emoji: "🎉", UserIDs: []uuid.UUID{alice, bob}},
	}

	toggled := ToggleReaction(append([]Reaction(nil), cloneReactions(reactions)...), "🎉", bob)
	restored := ToggleReaction(toggled, "🎉", bob)

	assert.Equal(t, reactions, restored)
}

func cloneReactions(in []Reaction) []Reaction {
	out := make([]Reaction, len(in))
	for i, r := range in {
		out[i] = Reaction{Emoji: r.Emoji, UserIDs: append([]uuid.UUID(nil), r.UserIDs...)}
	}
	return out
}
