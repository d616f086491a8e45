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

	"github.com/a2abus-protocol/a2abus/internal/metrics"
	"github.com/a2abus-protocol/a2abus/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/a2abus.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/a2abus.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		from_agent TEXT NOT NULL,
		to_agent TEXT NOT NULL,
		type TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'normal',
		priority_rank INTEGER NOT NULL DEFAULT 2,
		status TEXT NOT NULL DEFAULT 'pending',
		content TEXT NOT NULL DEFAULT '{}',
		subject TEXT NOT NULL DEFAULT '',
		conversation_id TEXT,
		in_reply_to TEXT,
		requires_ack INTEGER NOT NULL DEFAULT 0,
		timeout_seconds INTEGER NOT NULL DEFAULT 30,
		created_at DATETIME NOT NULL,
		read_at DATETIME,
		acknowledged_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		participants TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		purpose TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'active',
		message_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		last_message_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_inbox ON messages(to_agent, priority_rank, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_activity ON conversations(status, last_message_at);
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

// CreateMessage persists a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	var conversationID, inReplyTo *string
	if msg.ConversationID != "" {
		conversationID = &msg.ConversationID
	}
	if msg.InReplyTo != "" {
		inReplyTo = &msg.InReplyTo
	}

	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, from_agent, to_agent, type, priority, priority_rank,
			status, content, subject, conversation_id, in_reply_to, requires_ack,
			timeout_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.FromAgent, msg.ToAgent, string(msg.Type), string(msg.Priority),
		msg.Priority.Rank(), string(msg.Status), string(msg.Content), msg.Subject,
		conversationID, inReplyTo, boolToInt(msg.RequiresAck), msg.TimeoutSec, msg.CreatedAt)
	metrics.StoreLatency.Observe(time.Since(start).Seconds())
	return err
}

// scanSQLiteMessage scans one message row.
func scanSQLiteMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	msg := &models.Message{}
	var content string
	var conversationID, inReplyTo *string
	var requiresAck int

	err := row.Scan(
		&msg.ID,
		&msg.FromAgent,
		&msg.ToAgent,
		&msg.Type,
		&msg.Priority,
		&msg.Status,
		&content,
		&msg.Subject,
		&conversationID,
		&inReplyTo,
		&requiresAck,
		&msg.TimeoutSec,
		&msg.CreatedAt,
		&msg.ReadAt,
		&msg.AcknowledgedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.Content = json.RawMessage(content)
	msg.RequiresAck = requiresAck == 1
	if conversationID != nil {
		msg.ConversationID = *conversationID
	}
	if inReplyTo != nil {
		msg.InReplyTo = *inReplyTo
	}
	return msg, nil
}

const sqliteMessageColumns = `id, from_agent, to_agent, type, priority, status, content,
	subject, conversation_id, in_reply_to, requires_ack, timeout_seconds,
	created_at, read_at, acknowledged_at`

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteMessageColumns+` FROM messages WHERE id = ?
	`, id)
	msg, err := scanSQLiteMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// UpdateStatus sets a message's status and stamps the matching timestamp column.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status models.Status, at time.Time) error {
	switch status {
	case models.StatusRead:
		_, err := s.db.ExecContext(ctx, `
			UPDATE messages SET status = ?, read_at = COALESCE(read_at, ?) WHERE id = ?
		`, string(status), at, id)
		return err
	case models.StatusAcknowledged:
		_, err := s.db.ExecContext(ctx, `
			UPDATE messages SET status = ?, acknowledged_at = COALESCE(acknowledged_at, ?) WHERE id = ?
		`, string(status), at, id)
		return err
	default:
		_, err := s.db.ExecContext(ctx, `
			UPDATE messages SET status = ? WHERE id = ?
		`, string(status), id)
		return err
	}
}

// QueryInbox retrieves an agent's inbox ordered by priority rank then creation time.
func (s *SQLiteStore) QueryInbox(ctx context.Context, agent string, limit int, unreadOnly bool) ([]models.Message, error) {
	query := `
		SELECT ` + sqliteMessageColumns + `
		FROM messages
		WHERE to_agent = ?`
	if unreadOnly {
		query += ` AND status IN ('pending', 'delivered')`
	}
	query += `
		ORDER BY priority_rank ASC, created_at ASC
		LIMIT ?`

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, agent, limit)
	metrics.StoreLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// CreateConversation persists a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	participants, err := json.Marshal(conv.Participants)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(conv.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, participants, topic, purpose, tags, status,
			message_count, created_at, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, conv.ID.String(), string(participants), conv.Topic, conv.Purpose, string(tags),
		string(conv.Status), conv.MessageCount, conv.CreatedAt, conv.LastMessageAt)
	return err
}

// scanSQLiteConversation scans one conversation row.
func scanSQLiteConversation(row interface{ Scan(...any) error }) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var idStr, participants, tags string

	err := row.Scan(
		&idStr,
		&participants,
		&conv.Topic,
		&conv.Purpose,
		&tags,
		&conv.Status,
		&conv.MessageCount,
		&conv.CreatedAt,
		&conv.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}

	conv.ID = uuid.MustParse(idStr)
	if err := json.Unmarshal([]byte(participants), &conv.Participants); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &conv.Tags); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, participants, topic, purpose, tags, status, message_count, created_at, last_message_at
		FROM conversations WHERE id = ?
	`, id.String())
	conv, err := scanSQLiteConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// GetConversationMessages retrieves a conversation's messages chronologically.
func (s *SQLiteStore) GetConversationMessages(ctx context.Context, id uuid.UUID, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteMessageColumns+`
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
		LIMIT ?
	`, id.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// GetActiveConversations retrieves active conversations an agent participates in.
func (s *SQLiteStore) GetActiveConversations(ctx context.Context, agent string) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, participants, topic, purpose, tags, status, message_count, created_at, last_message_at
		FROM conversations
		WHERE status = 'active'
		  AND EXISTS (SELECT 1 FROM json_each(conversations.participants) WHERE value = ?)
		ORDER BY last_message_at DESC
	`, agent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		conv, err := scanSQLiteConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conv)
	}
	return conversations, rows.Err()
}

// TouchConversation bumps a conversation's message count and activity time.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET message_count = message_count + 1, last_message_at = ?
		WHERE id = ?
	`, at, id.String())
	return err
}

// GetStatistics returns per-agent message counters.
func (s *SQLiteStore) GetStatistics(ctx context.Context, agent string) (*Statistics, error) {
	stats := &Statistics{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM messages WHERE from_agent = ?),
			(SELECT COUNT(*) FROM messages WHERE to_agent = ?),
			(SELECT COUNT(*) FROM messages WHERE to_agent = ? AND status IN ('pending', 'delivered')),
			(SELECT COUNT(*) FROM conversations
			 WHERE EXISTS (SELECT 1 FROM json_each(conversations.participants) WHERE value = ?))
	`, agent, agent, agent, agent).Scan(&stats.TotalSent, &stats.TotalReceived, &stats.Unread, &stats.Conversations)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
