package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srujana-sanaka/tars-chat/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, externalID, name string) *models.User {
	t.Helper()
	u, err := s.UpsertUser(context.Background(), UserProfile{
		ExternalID: externalID,
		Name:       name,
		Email:      externalID + "@example.com",
	}, false)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func TestUpsertUserCreatesAndRefreshes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := seedUser(t, s, "ext-alice", "Alice")
	assert.True(t, first.IsOnline)
	assert.Equal(t, "Alice", first.Name)

	second, err := s.UpsertUser(ctx, UserProfile{ExternalID: "ext-alice", Name: "Alice L"}, false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same external ID must map to the same user row")
	assert.Equal(t, "Alice L", second.Name)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestUpsertUserExclusivePresence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")

	_, err := s.UpsertUser(ctx, UserProfile{ExternalID: "ext-carol", Name: "Carol"}, true)
	require.NoError(t, err)

	for _, id := range []uuid.UUID{alice.ID, bob.ID} {
		u, err := s.GetUserByID(ctx, id)
		require.NoError(t, err)
		assert.False(t, u.IsOnline, "exclusive sync must force other users offline")
	}

	carol, err := s.GetUserByExternalID(ctx, "ext-carol")
	require.NoError(t, err)
	assert.True(t, carol.IsOnline)
}

func TestUpsertUserSharedPresenceLeavesOthersAlone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	seedUser(t, s, "ext-bob", "Bob")

	got, err := s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOnline)
}

func TestSetUserOnlineUnknownUserIsNoop(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetUserOnline(context.Background(), "nobody", true))
}

func TestUserLookupsReturnNilWhenMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.GetUserByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = s.GetUserByExternalID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestResolveDirectConversationIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")

	conv, created, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.True(t, created)
	assert.False(t, conv.IsGroup)
	assert.ElementsMatch(t, []uuid.UUID{alice.ID, bob.ID}, conv.Participants)

	// Same pair, reversed arguments: must resolve to the same row
	again, created, err := s.ResolveDirectConversation(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)

	convs, err := s.ListConversationsForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, convs, 1, "repeated resolution must never create a second row")
}

func TestResolveDirectConversationRejectsSelf(t *testing.T) {
	s := newTestStore(t)
	alice := seedUser(t, s, "ext-alice", "Alice")

	_, _, err := s.ResolveDirectConversation(context.Background(), alice.ID, alice.ID)
	assert.ErrorIs(t, err, ErrSameParticipant)
}

func TestCreateGroupConversationNeverDeduplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	members := []uuid.UUID{alice.ID, bob.ID}

	first, err := s.CreateGroupConversation(ctx, members, "Team")
	require.NoError(t, err)
	second, err := s.CreateGroupConversation(ctx, members, "Team")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "identical groups are distinct conversations")
	assert.True(t, first.IsGroup)
}

func TestCreateGroupConversationValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")

	_, err := s.CreateGroupConversation(ctx, []uuid.UUID{alice.ID, bob.ID}, "   ")
	assert.ErrorIs(t, err, ErrEmptyGroupName)

	_, err = s.CreateGroupConversation(ctx, []uuid.UUID{alice.ID, alice.ID}, "Team")
	assert.ErrorIs(t, err, ErrTooFewMembers)
}

func TestSendMessageFansOutUnreadCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	carol := seedUser(t, s, "ext-carol", "Carol")

	conv, err := s.CreateGroupConversation(ctx, []uuid.UUID{alice.ID, bob.ID, carol.ID}, "Team")
	require.NoError(t, err)

	_, err = s.SendMessage(ctx, conv.ID, alice.ID, "hello team", "")
	require.NoError(t, err)
	_, err = s.SendMessage(ctx, conv.ID, alice.ID, "anyone here?", "")
	require.NoError(t, err)

	senderCount, err := s.UnreadCount(ctx, alice.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, senderCount, "sender never counts their own message as unread")

	for _, id := range []uuid.UUID{bob.ID, carol.ID} {
		n, err := s.UnreadCount(ctx, id, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}
}

func TestMarkConversationReadResetsAndIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	conv, _, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = s.SendMessage(ctx, conv.ID, alice.ID, "ping", "")
	require.NoError(t, err)

	require.NoError(t, s.MarkConversationRead(ctx, conv.ID, bob.ID))
	n, err := s.UnreadCount(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Reading again, or reading with no counter at all, changes nothing
	require.NoError(t, s.MarkConversationRead(ctx, conv.ID, bob.ID))
	require.NoError(t, s.MarkConversationRead(ctx, conv.ID, alice.ID))

	_, err = s.SendMessage(ctx, conv.ID, alice.ID, "ping again", "")
	require.NoError(t, err)
	n, err = s.UnreadCount(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "counting resumes from zero after a read")
}

func TestSendMessageValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	conv, _, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = s.SendMessage(ctx, conv.ID, alice.ID, "   ", "")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = s.SendMessage(ctx, uuid.New(), alice.ID, "hello", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.SendMessage(ctx, conv.ID, alice.ID, "reply", "01HNOSUCHMESSAGE0000000000")
	assert.ErrorIs(t, err, ErrNotFound)

	// Failed sends must leave no partial effects behind
	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	n, err := s.UnreadCount(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestListMessagesOrderedByCreation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	conv, _, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	var ids []string
	for _, content := range []string{"one", "two", "three", "four"} {
		m, err := s.SendMessage(ctx, conv.ID, alice.ID, content, "")
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		assert.Equal(t, ids[i], m.ID, "messages list in insertion order even within one millisecond")
	}
}

func TestSendMessageThreadedReply(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	conv, _, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	parent, err := s.SendMessage(ctx, conv.ID, alice.ID, "question", "")
	require.NoError(t, err)
	reply, err := s.SendMessage(ctx, conv.ID, bob.ID, "answer", parent.ID)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, reply.ReplyTo)
}

func TestEditMessageOnlySenderTakesEffect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	conv, _, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	msg, err := s.SendMessage(ctx, conv.ID, alice.ID, "original", "")
	require.NoError(t, err)

	// Non-sender edit: unchanged row, no error
	unchanged, err := s.EditMessage(ctx, msg.ID, bob.ID, "hijacked")
	require.NoError(t, err)
	assert.Equal(t, "original", unchanged.Content)
	assert.Nil(t, unchanged.EditedAt)

	edited, err := s.EditMessage(ctx, msg.ID, alice.ID, "revised")
	require.NoError(t, err)
	assert.Equal(t, "revised", edited.Content)
	require.NotNil(t, edited.EditedAt)

	_, err = s.EditMessage(ctx, "01HNOSUCHMESSAGE0000000000", alice.ID, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSoftDeleteMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	conv, _, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	msg, err := s.SendMessage(ctx, conv.ID, alice.ID, "regret", "")
	require.NoError(t, err)

	// Non-sender delete is a no-op
	kept, err := s.SoftDeleteMessage(ctx, msg.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, kept.IsDeleted)

	deleted, err := s.SoftDeleteMessage(ctx, msg.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)

	// The row stays in the log
	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsDeleted)

	// Editing a deleted message is a no-op
	still, err := s.EditMessage(ctx, msg.ID, alice.ID, "resurrect")
	require.NoError(t, err)
	assert.True(t, still.IsDeleted)
	assert.Equal(t, "regret", still.Content)
}

func TestToggleReactionSelfInverse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	conv, _, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	msg, err := s.SendMessage(ctx, conv.ID, alice.ID, "react to me", "")
	require.NoError(t, err)

	require.NoError(t, s.ToggleReaction(ctx, msg.ID, "👍", bob.ID))
	require.NoError(t, s.ToggleReaction(ctx, msg.ID, "👍", alice.ID))
	require.NoError(t, s.ToggleReaction(ctx, msg.ID, "🎉", bob.ID))

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, 2)
	assert.Equal(t, "👍", got.Reactions[0].Emoji)
	assert.ElementsMatch(t, []uuid.UUID{bob.ID, alice.ID}, got.Reactions[0].UserIDs)
	assert.Equal(t, "🎉", got.Reactions[1].Emoji)

	// Toggling again removes the user; emptied entries disappear
	require.NoError(t, s.ToggleReaction(ctx, msg.ID, "👍", bob.ID))
	require.NoError(t, s.ToggleReaction(ctx, msg.ID, "👍", alice.ID))

	got, err = s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, 1)
	assert.Equal(t, "🎉", got.Reactions[0].Emoji)

	require.NoError(t, s.ToggleReaction(ctx, msg.ID, "🎉", bob.ID))
	got, err = s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Reactions)
}

func TestToggleReactionValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "ext-alice", "Alice")

	assert.ErrorIs(t, s.ToggleReaction(ctx, "whatever", "", alice.ID), ErrEmptyEmoji)
	assert.ErrorIs(t, s.ToggleReaction(ctx, "01HNOSUCHMESSAGE0000000000", "👍", alice.ID), ErrNotFound)
}

func TestDeletedMessageKeepsReactions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	conv, _, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	msg, err := s.SendMessage(ctx, conv.ID, alice.ID, "soon gone", "")
	require.NoError(t, err)
	require.NoError(t, s.ToggleReaction(ctx, msg.ID, "👍", bob.ID))

	_, err = s.SoftDeleteMessage(ctx, msg.ID, alice.ID)
	require.NoError(t, err)

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	require.Len(t, got.Reactions, 1)
	assert.Equal(t, "👍", got.Reactions[0].Emoji)
}

func TestListConversationsForUserPreviews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	conv, _, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	// No messages yet: empty preview, zero unread
	summaries, err := s.ListConversationsForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "", summaries[0].LastMessagePreview)
	assert.Equal(t, 0, summaries[0].UnreadCount)

	msg, err := s.SendMessage(ctx, conv.ID, alice.ID, "latest news", "")
	require.NoError(t, err)

	summaries, err = s.ListConversationsForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "latest news", summaries[0].LastMessagePreview)
	assert.Equal(t, msg.ID, summaries[0].LastMessageID)
	assert.Equal(t, 1, summaries[0].UnreadCount)

	// Soft-deleting the last message blanks the preview but keeps the pointer
	_, err = s.SoftDeleteMessage(ctx, msg.ID, alice.ID)
	require.NoError(t, err)

	summaries, err = s.ListConversationsForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "", summaries[0].LastMessagePreview)
	assert.Equal(t, msg.ID, summaries[0].LastMessageID)
}

func TestListConversationsForUserMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	carol := seedUser(t, s, "ext-carol", "Carol")

	withBob, _, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	withCarol, _, err := s.ResolveDirectConversation(ctx, alice.ID, carol.ID)
	require.NoError(t, err)

	_, err = s.SendMessage(ctx, withCarol.ID, carol.ID, "first", "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.SendMessage(ctx, withBob.ID, bob.ID, "second", "")
	require.NoError(t, err)

	summaries, err := s.ListConversationsForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, withBob.ID, summaries[0].ID, "conversation with the newest message sorts first")
	assert.Equal(t, withCarol.ID, summaries[1].ID)
}

func TestTypingLivenessWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	conv, _, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	require.NoError(t, s.SetTyping(ctx, conv.ID, alice.ID, true))

	typists, err := s.ActiveTypers(ctx, conv.ID, time.Now())
	require.NoError(t, err)
	require.Len(t, typists, 1)
	assert.Equal(t, alice.ID, typists[0].ID)
	assert.Equal(t, "Alice", typists[0].Name)

	// Without any cleanup job, the indicator ages out of the liveness window
	typists, err = s.ActiveTypers(ctx, conv.ID, time.Now().Add(3*time.Second))
	require.NoError(t, err)
	assert.Empty(t, typists)

	// An explicit stop removes it immediately
	require.NoError(t, s.SetTyping(ctx, conv.ID, alice.ID, true))
	require.NoError(t, s.SetTyping(ctx, conv.ID, alice.ID, false))
	typists, err = s.ActiveTypers(ctx, conv.ID, time.Now())
	require.NoError(t, err)
	assert.Empty(t, typists)
}

func TestTypingRefreshExtendsWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	conv, _, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	require.NoError(t, s.SetTyping(ctx, conv.ID, alice.ID, true))
	require.NoError(t, s.SetTyping(ctx, conv.ID, alice.ID, true))

	typists, err := s.ActiveTypers(ctx, conv.ID, time.Now().Add(TypingWindow-100*time.Millisecond))
	require.NoError(t, err)
	assert.Len(t, typists, 1)
}

func TestActiveTypersForUserSpansConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")
	carol := seedUser(t, s, "ext-carol", "Carol")

	withBob, _, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	withCarol, _, err := s.ResolveDirectConversation(ctx, alice.ID, carol.ID)
	require.NoError(t, err)
	bobCarol, _, err := s.ResolveDirectConversation(ctx, bob.ID, carol.ID)
	require.NoError(t, err)

	require.NoError(t, s.SetTyping(ctx, withBob.ID, bob.ID, true))
	require.NoError(t, s.SetTyping(ctx, withCarol.ID, carol.ID, true))
	require.NoError(t, s.SetTyping(ctx, bobCarol.ID, carol.ID, true))

	byConv, err := s.ActiveTypersForUser(ctx, alice.ID, time.Now())
	require.NoError(t, err)
	require.Len(t, byConv, 2, "only conversations alice participates in appear")
	require.Len(t, byConv[withBob.ID], 1)
	assert.Equal(t, bob.ID, byConv[withBob.ID][0].ID)
	require.Len(t, byConv[withCarol.ID], 1)
	assert.Equal(t, carol.ID, byConv[withCarol.ID][0].ID)
}

func TestDirectConversationEndToEnd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "ext-alice", "Alice")
	bob := seedUser(t, s, "ext-bob", "Bob")

	conv, _, err := s.ResolveDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	hello, err := s.SendMessage(ctx, conv.ID, alice.ID, "hello", "")
	require.NoError(t, err)
	hi, err := s.SendMessage(ctx, conv.ID, bob.ID, "hi", "")
	require.NoError(t, err)

	require.NoError(t, s.ToggleReaction(ctx, hi.ID, "👋", alice.ID))
	_, err = s.SoftDeleteMessage(ctx, hi.ID, bob.ID)
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, hello.ID, msgs[0].ID)
	assert.Equal(t, hi.ID, msgs[1].ID)
	assert.False(t, msgs[0].IsDeleted)
	assert.True(t, msgs[1].IsDeleted)
	require.Len(t, msgs[1].Reactions, 1)

	aliceUnread, err := s.UnreadCount(ctx, alice.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, aliceUnread)
	bobUnread, err := s.UnreadCount(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, bobUnread)
}
