package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// schema holds the PostgreSQL DDL, applied idempotently at startup. The
// partial unique index on participant_key is what enforces one conversation
// per unordered direct pair.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		external_id TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		is_online BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY,
		is_group BOOLEAN NOT NULL DEFAULT FALSE,
		name TEXT,
		participant_key TEXT,
		last_message_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_direct_key
		ON conversations (participant_key) WHERE NOT is_group`,

	`CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (conversation_id, user_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_participants_user
		ON conversation_participants (user_id)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL REFERENCES users(id),
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		edited_at TIMESTAMPTZ,
		reply_to TEXT,
		reactions JSONB NOT NULL DEFAULT '[]'
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages (conversation_id, created_at, id)`,

	`CREATE TABLE IF NOT EXISTS unread_counts (
		user_id UUID NOT NULL,
		conversation_id UUID NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, conversation_id)
	)`,

	`CREATE TABLE IF NOT EXISTS typing_indicators (
		conversation_id UUID NOT NULL,
		user_id UUID NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	)`,
}

// RunMigrations applies the schema to the target database.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	for _, stmt := range schema {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
