package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// postgresSchema creates the messages and conversations tables.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	from_agent TEXT NOT NULL,
	to_agent TEXT NOT NULL,
	type TEXT NOT NULL,
	priority TEXT NOT NULL DEFAULT 'normal',
	priority_rank SMALLINT NOT NULL DEFAULT 2,
	status TEXT NOT NULL DEFAULT 'pending',
	content JSONB NOT NULL DEFAULT '{}',
	subject TEXT NOT NULL DEFAULT '',
	conversation_id TEXT,
	in_reply_to TEXT,
	requires_ack BOOLEAN NOT NULL DEFAULT FALSE,
	timeout_seconds INTEGER NOT NULL DEFAULT 30,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	read_at TIMESTAMPTZ,
	acknowledged_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_messages_inbox
	ON messages (to_agent, priority_rank, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages (conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_in_reply_to
	ON messages (in_reply_to);

CREATE TABLE IF NOT EXISTS conversations (
	id UUID PRIMARY KEY,
	participants TEXT[] NOT NULL,
	topic TEXT NOT NULL DEFAULT '',
	purpose TEXT NOT NULL DEFAULT '',
	tags TEXT[] NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'active',
	message_count BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_conversations_participants
	ON conversations USING GIN (participants);
CREATE INDEX IF NOT EXISTS idx_conversations_activity
	ON conversations (status, last_message_at DESC);
`

// RunMigrations applies the schema to the PostgreSQL database.
func RunMigrations(databaseURL string) error {
	ctx := context.Background()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, postgresSchema)
	return err
}
