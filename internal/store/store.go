package store

import (
	"context"
	"crypto/rand"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/srujana-sanaka/tars-chat/internal/models"
)

// TypingWindow is how long a typing indicator counts as live. Indicators
// older than this are filtered at read time, not deleted.
const TypingWindow = 2 * time.Second

var (
	// ErrNotFound is returned by mutating operations whose target row does
	// not exist. Lookups return (nil, nil) instead.
	ErrNotFound = errors.New("store: not found")

	ErrEmptyContent    = errors.New("store: message content is empty")
	ErrEmptyGroupName  = errors.New("store: group name is required")
	ErrEmptyEmoji      = errors.New("store: reaction emoji is empty")
	ErrTooFewMembers   = errors.New("store: at least two participants required")
	ErrSameParticipant = errors.New("store: direct conversation requires two distinct users")
)

// UserProfile is the identity-provider view of a user, applied on session sync.
type UserProfile struct {
	ExternalID string
	Name       string
	AvatarURL  string
	Email      string
}

// DataStore is the persistence contract for the consistency engine. Every
// mutating operation executes as a single transaction: a message is never
// visible without its unread fan-out, and two racing direct-conversation
// resolutions converge on one row. PostgresStore and SQLiteStore both
// implement it.
type DataStore interface {
	Close()
	Ping(ctx context.Context) error

	// Users. UpsertUser marks the subject online; with exclusive set it also
	// forces every other user offline in the same transaction (single-session
	// presence policy).
	UpsertUser(ctx context.Context, profile UserProfile, exclusive bool) (*models.User, error)
	SetUserOnline(ctx context.Context, externalID string, online bool) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)

	// Conversations. ResolveDirectConversation reports whether it created the
	// conversation or found an existing one.
	ResolveDirectConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, bool, error)
	CreateGroupConversation(ctx context.Context, participants []uuid.UUID, name string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error)
	MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) error
	UnreadCount(ctx context.Context, userID, conversationID uuid.UUID) (int, error)

	// Messages.
	SendMessage(ctx context.Context, conversationID, senderID uuid.UUID, content, replyTo string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	EditMessage(ctx context.Context, messageID string, requesterID uuid.UUID, content string) (*models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID string, requesterID uuid.UUID) (*models.Message, error)
	ToggleReaction(ctx context.Context, messageID, emoji string, userID uuid.UUID) error

	// Typing presence.
	SetTyping(ctx context.Context, conversationID, userID uuid.UUID, isTyping bool) error
	ActiveTypers(ctx context.Context, conversationID uuid.UUID, now time.Time) ([]models.Typist, error)
	ActiveTypersForUser(ctx context.Context, userID uuid.UUID, now time.Time) (map[uuid.UUID][]models.Typist, error)
}

// directKey canonicalizes an unordered user pair so the same two users always
// map to one representation, whichever order they arrive in. A unique index
// on this key is what makes direct-conversation resolution race-safe.
func directKey(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// Message IDs are ULIDs from a shared monotonic source so that messages
// created within the same millisecond still sort in insertion order.
var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

func newMessageID(t time.Time) string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), ulidEntropy).String()
}

func trimContent(s string) string {
	return strings.TrimSpace(s)
}

// dedupe removes duplicate user IDs while keeping first-seen order.
func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
