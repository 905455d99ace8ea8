package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/srujana-sanaka/tars-chat/internal/models"
)

// SQLiteStore implements DataStore on SQLite for development and tests.
// Timestamps are stored as integer unix milliseconds so ordering and the
// typing liveness filter behave identically to the PostgreSQL store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/tars-chat.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/tars-chat.db"
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	// A single writer sidesteps SQLITE_BUSY under concurrent transactions.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		external_id TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		is_online INTEGER NOT NULL DEFAULT 0,
		last_seen INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		is_group INTEGER NOT NULL DEFAULT 0,
		name TEXT,
		participant_key TEXT,
		last_message_id TEXT,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_direct_key
		ON conversations (participant_key) WHERE is_group = 0;

	CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (conversation_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_participants_user
		ON conversation_participants (user_id);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		edited_at INTEGER,
		reply_to TEXT,
		reactions TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages (conversation_id, created_at, id);

	CREATE TABLE IF NOT EXISTS unread_counts (
		user_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, conversation_id)
	);

	CREATE TABLE IF NOT EXISTS typing_indicators (
		conversation_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

const liteUserColumns = `id, external_id, name, avatar_url, email, is_online, last_seen, created_at, updated_at`

func scanLiteUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var id string
	var lastSeen, createdAt, updatedAt int64
	err := row.Scan(&id, &u.ExternalID, &u.Name, &u.AvatarURL, &u.Email, &u.IsOnline, &lastSeen, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.ID = uuid.MustParse(id)
	u.LastSeen = msToTime(lastSeen)
	u.CreatedAt = msToTime(createdAt)
	u.UpdatedAt = msToTime(updatedAt)
	return u, nil
}

// UpsertUser creates or refreshes a user from an identity-provider sync and
// marks them online. With exclusive presence every other user is forced
// offline in the same transaction.
func (s *SQLiteStore) UpsertUser(ctx context.Context, profile UserProfile, exclusive bool) (*models.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, external_id, name, avatar_url, email, is_online, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			name = excluded.name,
			avatar_url = excluded.avatar_url,
			email = excluded.email,
			is_online = 1,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at
	`, uuid.New().String(), profile.ExternalID, profile.Name, profile.AvatarURL, profile.Email, now, now, now)
	if err != nil {
		return nil, err
	}

	if exclusive {
		_, err = tx.ExecContext(ctx, `
			UPDATE users SET is_online = 0, updated_at = ?
			WHERE external_id <> ? AND is_online = 1
		`, now, profile.ExternalID)
		if err != nil {
			return nil, err
		}
	}

	user, err := scanLiteUser(tx.QueryRowContext(ctx, `
		SELECT `+liteUserColumns+` FROM users WHERE external_id = ?
	`, profile.ExternalID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return user, nil
}

// SetUserOnline flips the online flag and stamps last-seen. Unknown external
// IDs are a no-op.
func (s *SQLiteStore) SetUserOnline(ctx context.Context, externalID string, online bool) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_online = ?, last_seen = ?, updated_at = ?
		WHERE external_id = ?
	`, online, now, now, externalID)
	return err
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanLiteUser(s.db.QueryRowContext(ctx, `
		SELECT `+liteUserColumns+` FROM users WHERE id = ?
	`, id.String()))
}

// GetUserByExternalID retrieves a user by their identity-provider ID.
func (s *SQLiteStore) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return scanLiteUser(s.db.QueryRowContext(ctx, `
		SELECT `+liteUserColumns+` FROM users WHERE external_id = ?
	`, externalID))
}

// ListUsers retrieves all users ordered by name.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+liteUserColumns+` FROM users ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanLiteUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

const liteConversationColumns = `id, is_group, COALESCE(name, ''), COALESCE(last_message_id, ''), created_at, updated_at`

func (s *SQLiteStore) scanConversation(ctx context.Context, q sqlQuerier, row rowScanner) (*models.Conversation, error) {
	c := &models.Conversation{}
	var id string
	var createdAt, updatedAt int64
	err := row.Scan(&id, &c.IsGroup, &c.Name, &c.LastMessageID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.ID = uuid.MustParse(id)
	c.CreatedAt = msToTime(createdAt)
	c.UpdatedAt = msToTime(updatedAt)
	if c.Participants, err = s.participants(ctx, q, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStore) participants(ctx context.Context, q sqlQuerier, conversationID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id FROM conversation_participants
		WHERE conversation_id = ? ORDER BY user_id
	`, conversationID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, uuid.MustParse(id))
	}
	return ids, rows.Err()
}

// ResolveDirectConversation finds or creates the one non-group conversation
// for a pair of users, canonicalizing the pair so argument order never
// matters. The unique index on the canonical key de-duplicates racing
// creators.
func (s *SQLiteStore) ResolveDirectConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, bool, error) {
	if a == b {
		return nil, false, ErrSameParticipant
	}
	key := directKey(a, b)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	conv, err := s.scanConversation(ctx, tx, tx.QueryRowContext(ctx, `
		SELECT `+liteConversationColumns+` FROM conversations
		WHERE participant_key = ? AND is_group = 0
	`, key))
	if err != nil {
		return nil, false, err
	}

	created := false
	if conv == nil {
		now := time.Now().UnixMilli()
		id := uuid.New().String()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, is_group, participant_key, created_at, updated_at)
			VALUES (?, 0, ?, ?, ?)
			ON CONFLICT (participant_key) WHERE is_group = 0 DO NOTHING
		`, id, key, now, now)
		if err != nil {
			return nil, false, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created = true
			for _, userID := range []uuid.UUID{a, b} {
				_, err = tx.ExecContext(ctx, `
					INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)
				`, id, userID.String())
				if err != nil {
					return nil, false, err
				}
			}
		}
		conv, err = s.scanConversation(ctx, tx, tx.QueryRowContext(ctx, `
			SELECT `+liteConversationColumns+` FROM conversations
			WHERE participant_key = ? AND is_group = 0
		`, key))
		if err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return conv, created, nil
}

// CreateGroupConversation always creates a new conversation; groups are never
// deduplicated.
func (s *SQLiteStore) CreateGroupConversation(ctx context.Context, participants []uuid.UUID, name string) (*models.Conversation, error) {
	members := dedupe(participants)
	if len(members) < 2 {
		return nil, ErrTooFewMembers
	}
	name = trimContent(name)
	if name == "" {
		return nil, ErrEmptyGroupName
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	id := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, is_group, name, created_at, updated_at)
		VALUES (?, 1, ?, ?, ?)
	`, id, name, now, now)
	if err != nil {
		return nil, err
	}
	for _, userID := range members {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)
		`, id, userID.String())
		if err != nil {
			return nil, err
		}
	}

	conv, err := s.scanConversation(ctx, tx, tx.QueryRowContext(ctx, `
		SELECT `+liteConversationColumns+` FROM conversations WHERE id = ?
	`, id))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return s.scanConversation(ctx, s.db, s.db.QueryRowContext(ctx, `
		SELECT `+liteConversationColumns+` FROM conversations WHERE id = ?
	`, id.String()))
}

// ListConversationsForUser returns every conversation the user participates
// in, most recently updated first, with unread counts and last-message
// previews. Soft-deleted last messages preview as empty.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.is_group, COALESCE(c.name, ''), COALESCE(c.last_message_id, ''),
		       c.created_at, c.updated_at,
		       COALESCE(uc.count, 0),
		       COALESCE(CASE WHEN m.is_deleted = 1 THEN '' ELSE m.content END, '')
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.user_id = ?
		LEFT JOIN unread_counts uc ON uc.conversation_id = c.id AND uc.user_id = ?
		LEFT JOIN messages m ON m.id = c.last_message_id
		ORDER BY c.updated_at DESC, c.id
	`, userID.String(), userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.ConversationSummary
	for rows.Next() {
		var sum models.ConversationSummary
		var id string
		var createdAt, updatedAt int64
		err := rows.Scan(&id, &sum.IsGroup, &sum.Name, &sum.LastMessageID, &createdAt, &updatedAt, &sum.UnreadCount, &sum.LastMessagePreview)
		if err != nil {
			return nil, err
		}
		sum.ID = uuid.MustParse(id)
		sum.CreatedAt = msToTime(createdAt)
		sum.UpdatedAt = msToTime(updatedAt)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		if summaries[i].Participants, err = s.participants(ctx, s.db, summaries[i].ID); err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

// MarkConversationRead resets the user's unread counter to zero. Idempotent;
// a missing counter row means nothing to reset.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE unread_counts SET count = 0
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID.String(), userID.String())
	return err
}

// UnreadCount returns the user's unread count for a conversation; absent rows
// count as zero.
func (s *SQLiteStore) UnreadCount(ctx context.Context, userID, conversationID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT count FROM unread_counts WHERE user_id = ? AND conversation_id = ?), 0)
	`, userID.String(), conversationID.String()).Scan(&count)
	return count, err
}

const liteMessageColumns = `id, conversation_id, sender_id, content, created_at, is_deleted, edited_at, COALESCE(reply_to, ''), reactions`

func scanLiteMessage(row rowScanner) (*models.Message, error) {
	m := &models.Message{}
	var convID, senderID, reactions string
	var createdAt int64
	var editedAt sql.NullInt64
	err := row.Scan(&m.ID, &convID, &senderID, &m.Content, &createdAt, &m.IsDeleted, &editedAt, &m.ReplyTo, &reactions)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.ConversationID = uuid.MustParse(convID)
	m.SenderID = uuid.MustParse(senderID)
	m.CreatedAt = msToTime(createdAt)
	if editedAt.Valid {
		t := msToTime(editedAt.Int64)
		m.EditedAt = &t
	}
	if err := json.Unmarshal([]byte(reactions), &m.Reactions); err != nil {
		return nil, err
	}
	return m, nil
}

// SendMessage appends a message and applies the unread fan-out and the
// conversation's last-message pointer in the same transaction.
func (s *SQLiteStore) SendMessage(ctx context.Context, conversationID, senderID uuid.UUID, content, replyTo string) (*models.Message, error) {
	trimmed := trimContent(content)
	if trimmed == "" {
		return nil, ErrEmptyContent
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var isGroup bool
	err = tx.QueryRowContext(ctx, `
		SELECT is_group FROM conversations WHERE id = ?
	`, conversationID.String()).Scan(&isGroup)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if replyTo != "" {
		var exists int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM messages WHERE id = ? AND conversation_id = ?
		`, replyTo, conversationID.String()).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, ErrNotFound
		}
	}

	now := time.Now().UTC()
	id := newMessageID(now)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, created_at, is_deleted, reply_to, reactions)
		VALUES (?, ?, ?, ?, ?, 0, NULLIF(?, ''), '[]')
	`, id, conversationID.String(), senderID.String(), trimmed, now.UnixMilli(), replyTo)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_id = ?, updated_at = ? WHERE id = ?
	`, id, now.UnixMilli(), conversationID.String())
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO unread_counts (user_id, conversation_id, count)
		SELECT user_id, ?, 1 FROM conversation_participants
		WHERE conversation_id = ? AND user_id <> ?
		ON CONFLICT (user_id, conversation_id) DO UPDATE SET count = count + 1
	`, conversationID.String(), conversationID.String(), senderID.String())
	if err != nil {
		return nil, err
	}

	msg, err := scanLiteMessage(tx.QueryRowContext(ctx, `
		SELECT `+liteMessageColumns+` FROM messages WHERE id = ?
	`, id))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the conversation's full log in creation order with the
// message ID as tie-break; soft-deleted rows included.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+liteMessageColumns+` FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at, id
	`, conversationID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	return scanLiteMessage(s.db.QueryRowContext(ctx, `
		SELECT `+liteMessageColumns+` FROM messages WHERE id = ?
	`, id))
}

// EditMessage updates content and edit timestamp for the sender of a live
// message; every other case returns the row unchanged with no error.
func (s *SQLiteStore) EditMessage(ctx context.Context, messageID string, requesterID uuid.UUID, content string) (*models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	msg, err := scanLiteMessage(tx.QueryRowContext(ctx, `
		SELECT `+liteMessageColumns+` FROM messages WHERE id = ?
	`, messageID))
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrNotFound
	}

	if msg.SenderID == requesterID && !msg.IsDeleted {
		now := time.Now().UnixMilli()
		_, err = tx.ExecContext(ctx, `
			UPDATE messages SET content = ?, edited_at = ? WHERE id = ?
		`, content, now, messageID)
		if err != nil {
			return nil, err
		}
		msg, err = scanLiteMessage(tx.QueryRowContext(ctx, `
			SELECT `+liteMessageColumns+` FROM messages WHERE id = ?
		`, messageID))
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// SoftDeleteMessage marks a message deleted when the requester is the sender;
// reactions and metadata are retained.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, messageID string, requesterID uuid.UUID) (*models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	msg, err := scanLiteMessage(tx.QueryRowContext(ctx, `
		SELECT `+liteMessageColumns+` FROM messages WHERE id = ?
	`, messageID))
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrNotFound
	}

	if msg.SenderID == requesterID && !msg.IsDeleted {
		_, err = tx.ExecContext(ctx, `UPDATE messages SET is_deleted = 1 WHERE id = ?`, messageID)
		if err != nil {
			return nil, err
		}
		msg, err = scanLiteMessage(tx.QueryRowContext(ctx, `
			SELECT `+liteMessageColumns+` FROM messages WHERE id = ?
		`, messageID))
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// ToggleReaction toggles the user's emoji reaction inside one transaction.
func (s *SQLiteStore) ToggleReaction(ctx context.Context, messageID, emoji string, userID uuid.UUID) error {
	if emoji == "" {
		return ErrEmptyEmoji
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT reactions FROM messages WHERE id = ?`, messageID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	var reactions []models.Reaction
	if err := json.Unmarshal([]byte(raw), &reactions); err != nil {
		return err
	}
	reactions = models.ToggleReaction(reactions, emoji, userID)

	updated, err := json.Marshal(reactions)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET reactions = ? WHERE id = ?`, string(updated), messageID); err != nil {
		return err
	}

	return tx.Commit()
}

// SetTyping refreshes the user's typing indicator when typing and deletes it
// when not; expiry is otherwise a read-time filter.
func (s *SQLiteStore) SetTyping(ctx context.Context, conversationID, userID uuid.UUID, isTyping bool) error {
	if !isTyping {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM typing_indicators WHERE conversation_id = ? AND user_id = ?
		`, conversationID.String(), userID.String())
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO typing_indicators (conversation_id, user_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (conversation_id, user_id) DO UPDATE SET updated_at = excluded.updated_at
	`, conversationID.String(), userID.String(), time.Now().UnixMilli())
	return err
}

// ActiveTypers returns users whose indicator is within the liveness window of
// now, without touching stored rows.
func (s *SQLiteStore) ActiveTypers(ctx context.Context, conversationID uuid.UUID, now time.Time) ([]models.Typist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name
		FROM typing_indicators t
		JOIN users u ON u.id = t.user_id
		WHERE t.conversation_id = ? AND t.updated_at >= ?
		ORDER BY u.name, u.id
	`, conversationID.String(), now.Add(-TypingWindow).UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var typists []models.Typist
	for rows.Next() {
		var id string
		var t models.Typist
		if err := rows.Scan(&id, &t.Name); err != nil {
			return nil, err
		}
		t.ID = uuid.MustParse(id)
		typists = append(typists, t)
	}
	return typists, rows.Err()
}

// ActiveTypersForUser applies the liveness filter across every conversation
// the user participates in.
func (s *SQLiteStore) ActiveTypersForUser(ctx context.Context, userID uuid.UUID, now time.Time) (map[uuid.UUID][]models.Typist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.conversation_id, u.id, u.name
		FROM typing_indicators t
		JOIN conversation_participants cp ON cp.conversation_id = t.conversation_id AND cp.user_id = ?
		JOIN users u ON u.id = t.user_id
		WHERE t.updated_at >= ?
		ORDER BY t.conversation_id, u.name, u.id
	`, userID.String(), now.Add(-TypingWindow).UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byConversation := make(map[uuid.UUID][]models.Typist)
	for rows.Next() {
		var convID, typistID string
		var t models.Typist
		if err := rows.Scan(&convID, &typistID, &t.Name); err != nil {
			return nil, err
		}
		t.ID = uuid.MustParse(typistID)
		byConversation[uuid.MustParse(convID)] = append(byConversation[uuid.MustParse(convID)], t)
	}
	return byConversation, rows.Err()
}
