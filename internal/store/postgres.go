package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/srujana-sanaka/tars-chat/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, so read helpers
// can run inside or outside a transaction.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const userColumns = `id, external_id, name, avatar_url, email, is_online, last_seen, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID,
		&u.ExternalID,
		&u.Name,
		&u.AvatarURL,
		&u.Email,
		&u.IsOnline,
		&u.LastSeen,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// UpsertUser creates or refreshes a user from an identity-provider sync and
// marks them online. With exclusive presence every other user is forced
// offline in the same transaction.
func (s *PostgresStore) UpsertUser(ctx context.Context, profile UserProfile, exclusive bool) (*models.User, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	user, err := scanUser(tx.QueryRow(ctx, `
		INSERT INTO users (id, external_id, name, avatar_url, email, is_online, last_seen, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6, $6)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			avatar_url = EXCLUDED.avatar_url,
			email = EXCLUDED.email,
			is_online = TRUE,
			last_seen = EXCLUDED.last_seen,
			updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns,
		uuid.New(), profile.ExternalID, profile.Name, profile.AvatarURL, profile.Email, now))
	if err != nil {
		return nil, err
	}

	if exclusive {
		_, err = tx.Exec(ctx, `
			UPDATE users SET is_online = FALSE, updated_at = $2
			WHERE external_id <> $1 AND is_online
		`, profile.ExternalID, now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

// SetUserOnline flips the online flag and stamps last-seen. Unknown external
// IDs are a no-op.
func (s *PostgresStore) SetUserOnline(ctx context.Context, externalID string, online bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET is_online = $2, last_seen = $3, updated_at = $3
		WHERE external_id = $1
	`, externalID, online, time.Now().UTC())
	return err
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByExternalID retrieves a user by their identity-provider ID.
func (s *PostgresStore) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID))
}

// ListUsers retrieves all users ordered by name.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		err := rows.Scan(&u.ID, &u.ExternalID, &u.Name, &u.AvatarURL, &u.Email, &u.IsOnline, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

const conversationColumns = `id, is_group, COALESCE(name, ''), COALESCE(last_message_id, ''), created_at, updated_at`

func (s *PostgresStore) scanConversation(ctx context.Context, q pgQuerier, row pgx.Row) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := row.Scan(&c.ID, &c.IsGroup, &c.Name, &c.LastMessageID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if c.Participants, err = s.participants(ctx, q, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) participants(ctx context.Context, q pgQuerier, conversationID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `
		SELECT user_id FROM conversation_participants
		WHERE conversation_id = $1 ORDER BY user_id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResolveDirectConversation finds or creates the one non-group conversation
// for a pair of users. The pair is canonicalized before lookup, so argument
// order never matters; a unique index on the canonical key guarantees that
// concurrent resolutions converge on a single row.
func (s *PostgresStore) ResolveDirectConversation(ctx context.Context, a, b uuid.UUID) (*models.Conversation, bool, error) {
	if a == b {
		return nil, false, ErrSameParticipant
	}
	key := directKey(a, b)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	conv, err := s.scanConversation(ctx, tx, tx.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE participant_key = $1 AND NOT is_group
	`, key))
	if err != nil {
		return nil, false, err
	}

	created := false
	if conv == nil {
		now := time.Now().UTC()
		id := uuid.New()
		tag, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, is_group, participant_key, created_at, updated_at)
			VALUES ($1, FALSE, $2, $3, $3)
			ON CONFLICT (participant_key) WHERE NOT is_group DO NOTHING
		`, id, key, now)
		if err != nil {
			return nil, false, err
		}
		if tag.RowsAffected() == 0 {
			// Lost the race: another writer created the row first.
			conv, err = s.scanConversation(ctx, tx, tx.QueryRow(ctx, `
				SELECT `+conversationColumns+` FROM conversations
				WHERE participant_key = $1 AND NOT is_group
			`, key))
			if err != nil {
				return nil, false, err
			}
		} else {
			created = true
			for _, userID := range []uuid.UUID{a, b} {
				_, err = tx.Exec(ctx, `
					INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)
				`, id, userID)
				if err != nil {
					return nil, false, err
				}
			}
			conv, err = s.scanConversation(ctx, tx, tx.QueryRow(ctx, `
				SELECT `+conversationColumns+` FROM conversations WHERE id = $1
			`, id))
			if err != nil {
				return nil, false, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return conv, created, nil
}

// CreateGroupConversation always creates a new conversation; groups are never
// deduplicated, distinct groups may share identical membership.
func (s *PostgresStore) CreateGroupConversation(ctx context.Context, participants []uuid.UUID, name string) (*models.Conversation, error) {
	members := dedupe(participants)
	if len(members) < 2 {
		return nil, ErrTooFewMembers
	}
	name = trimContent(name)
	if name == "" {
		return nil, ErrEmptyGroupName
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	id := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, is_group, name, created_at, updated_at)
		VALUES ($1, TRUE, $2, $3, $3)
	`, id, name, now)
	if err != nil {
		return nil, err
	}
	for _, userID := range members {
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)
		`, id, userID)
		if err != nil {
			return nil, err
		}
	}

	conv, err := s.scanConversation(ctx, tx, tx.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID.
func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return s.scanConversation(ctx, s.pool, s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE id = $1
	`, id))
}

// ListConversationsForUser returns every conversation the user participates
// in, most recently updated first, annotated with the user's unread count and
// a preview of the last message. Soft-deleted last messages preview as empty.
func (s *PostgresStore) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.is_group, COALESCE(c.name, ''), COALESCE(c.last_message_id, ''),
		       c.created_at, c.updated_at,
		       COALESCE(uc.count, 0),
		       COALESCE(CASE WHEN m.is_deleted THEN '' ELSE m.content END, '')
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.user_id = $1
		LEFT JOIN unread_counts uc ON uc.conversation_id = c.id AND uc.user_id = $1
		LEFT JOIN messages m ON m.id = c.last_message_id
		ORDER BY c.updated_at DESC, c.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.ConversationSummary
	for rows.Next() {
		var sum models.ConversationSummary
		err := rows.Scan(
			&sum.ID, &sum.IsGroup, &sum.Name, &sum.LastMessageID,
			&sum.CreatedAt, &sum.UpdatedAt,
			&sum.UnreadCount, &sum.LastMessagePreview,
		)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		if summaries[i].Participants, err = s.participants(ctx, s.pool, summaries[i].ID); err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

// MarkConversationRead resets the user's unread counter to zero. Idempotent;
// a missing counter row means nothing to reset.
func (s *PostgresStore) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE unread_counts SET count = 0
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID)
	return err
}

// UnreadCount returns the user's unread count for a conversation. Absence
// means no unread activity, which is zero.
func (s *PostgresStore) UnreadCount(ctx context.Context, userID, conversationID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE((SELECT count FROM unread_counts WHERE user_id = $1 AND conversation_id = $2), 0)
	`, userID, conversationID).Scan(&count)
	return count, err
}

const messageColumns = `id, conversation_id, sender_id, content, created_at, is_deleted, edited_at, COALESCE(reply_to, ''), reactions`

func scanMessage(row pgx.Row) (*models.Message, error) {
	m := &models.Message{}
	var reactions []byte
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Content,
		&m.CreatedAt, &m.IsDeleted, &m.EditedAt, &m.ReplyTo, &reactions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
		return nil, err
	}
	return m, nil
}

// SendMessage appends a message to a conversation and, in the same
// transaction, updates the conversation's last-message pointer and increments
// the unread counter of every participant except the sender. The message is
// never visible without its fan-out.
func (s *PostgresStore) SendMessage(ctx context.Context, conversationID, senderID uuid.UUID, content, replyTo string) (*models.Message, error) {
	trimmed := trimContent(content)
	if trimmed == "" {
		return nil, ErrEmptyContent
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var isGroup bool
	err = tx.QueryRow(ctx, `
		SELECT is_group FROM conversations WHERE id = $1 FOR UPDATE
	`, conversationID).Scan(&isGroup)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if replyTo != "" {
		var exists bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1 AND conversation_id = $2)
		`, replyTo, conversationID).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
	}

	now := time.Now().UTC()
	id := newMessageID(now)
	msg, err := scanMessage(tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, created_at, is_deleted, reply_to, reactions)
		VALUES ($1, $2, $3, $4, $5, FALSE, NULLIF($6, ''), '[]')
		RETURNING `+messageColumns,
		id, conversationID, senderID, trimmed, now, replyTo))
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations SET last_message_id = $2, updated_at = $3 WHERE id = $1
	`, conversationID, id, now)
	if err != nil {
		return nil, err
	}

	// Unread fan-out: one increment per participant other than the sender,
	// creating missing rows at 1.
	_, err = tx.Exec(ctx, `
		INSERT INTO unread_counts (user_id, conversation_id, count)
		SELECT user_id, $1, 1 FROM conversation_participants
		WHERE conversation_id = $1 AND user_id <> $2
		ON CONFLICT (user_id, conversation_id) DO UPDATE SET count = unread_counts.count + 1
	`, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the conversation's full log in creation order, with
// the message ID as a stable tie-break. Soft-deleted rows are included with
// their content intact; masking is the reader's concern.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var reactions []byte
		err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt, &m.IsDeleted, &m.EditedAt, &m.ReplyTo, &reactions)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetMessage retrieves a message by ID.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	return scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

// EditMessage updates the content and edit timestamp when the requester is
// the sender and the message is not deleted. Anything else returns the row
// unchanged with no error, keeping retries idempotent.
func (s *PostgresStore) EditMessage(ctx context.Context, messageID string, requesterID uuid.UUID, content string) (*models.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	msg, err := scanMessage(tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, messageID))
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrNotFound
	}

	if msg.SenderID == requesterID && !msg.IsDeleted {
		now := time.Now().UTC()
		msg, err = scanMessage(tx.QueryRow(ctx, `
			UPDATE messages SET content = $2, edited_at = $3 WHERE id = $1
			RETURNING `+messageColumns,
			messageID, content, now))
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

// SoftDeleteMessage marks a message deleted when the requester is the sender.
// Content, metadata and reactions are retained; non-senders get the row back
// unchanged.
func (s *PostgresStore) SoftDeleteMessage(ctx context.Context, messageID string, requesterID uuid.UUID) (*models.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	msg, err := scanMessage(tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, messageID))
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrNotFound
	}

	if msg.SenderID == requesterID && !msg.IsDeleted {
		msg, err = scanMessage(tx.QueryRow(ctx, `
			UPDATE messages SET is_deleted = TRUE WHERE id = $1
			RETURNING `+messageColumns,
			messageID))
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

// ToggleReaction toggles the user's emoji reaction on a message inside a
// row-locked read-modify-write of the reaction list.
func (s *PostgresStore) ToggleReaction(ctx context.Context, messageID, emoji string, userID uuid.UUID) error {
	if emoji == "" {
		return ErrEmptyEmoji
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT reactions FROM messages WHERE id = $1 FOR UPDATE`, messageID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	var reactions []models.Reaction
	if err := json.Unmarshal(raw, &reactions); err != nil {
		return err
	}
	reactions = models.ToggleReaction(reactions, emoji, userID)

	updated, err := json.Marshal(reactions)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE messages SET reactions = $2 WHERE id = $1`, messageID, updated); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SetTyping refreshes the user's typing indicator when typing, and deletes it
// when not. Deletion here is the only explicit cleanup; expiry is otherwise a
// read-time filter.
func (s *PostgresStore) SetTyping(ctx context.Context, conversationID, userID uuid.UUID, isTyping bool) error {
	if !isTyping {
		_, err := s.pool.Exec(ctx, `
			DELETE FROM typing_indicators WHERE conversation_id = $1 AND user_id = $2
		`, conversationID, userID)
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO typing_indicators (conversation_id, user_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id, user_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
	`, conversationID, userID, time.Now().UTC())
	return err
}

// ActiveTypers returns the users whose typing indicator is within the
// liveness window of now. Stale indicators are filtered, never deleted.
func (s *PostgresStore) ActiveTypers(ctx context.Context, conversationID uuid.UUID, now time.Time) ([]models.Typist, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.name
		FROM typing_indicators t
		JOIN users u ON u.id = t.user_id
		WHERE t.conversation_id = $1 AND t.updated_at >= $2
		ORDER BY u.name, u.id
	`, conversationID, now.Add(-TypingWindow))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTypistsPgx(rows)
}

// ActiveTypersForUser applies the liveness filter across every conversation
// the user participates in, keyed by conversation ID.
func (s *PostgresStore) ActiveTypersForUser(ctx context.Context, userID uuid.UUID, now time.Time) (map[uuid.UUID][]models.Typist, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.conversation_id, u.id, u.name
		FROM typing_indicators t
		JOIN conversation_participants cp ON cp.conversation_id = t.conversation_id AND cp.user_id = $1
		JOIN users u ON u.id = t.user_id
		WHERE t.updated_at >= $2
		ORDER BY t.conversation_id, u.name, u.id
	`, userID, now.Add(-TypingWindow))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byConversation := make(map[uuid.UUID][]models.Typist)
	for rows.Next() {
		var convID uuid.UUID
		var typist models.Typist
		if err := rows.Scan(&convID, &typist.ID, &typist.Name); err != nil {
			return nil, err
		}
		byConversation[convID] = append(byConversation[convID], typist)
	}
	return byConversation, rows.Err()
}

func collectTypistsPgx(rows pgx.Rows) ([]models.Typist, error) {
	var typists []models.Typist
	for rows.Next() {
		var t models.Typist
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		typists = append(typists, t)
	}
	return typists, rows.Err()
}
