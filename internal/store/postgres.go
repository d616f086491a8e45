package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/a2abus-protocol/a2abus/internal/metrics"
	"github.com/a2abus-protocol/a2abus/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
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

const messageColumns = `id, from_agent, to_agent, type, priority, status, content,
	subject, conversation_id, in_reply_to, requires_ack, timeout_seconds,
	created_at, read_at, acknowledged_at`

// scanMessage scans one message row in messageColumns order.
func scanMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	var conversationID, inReplyTo *string
	err := row.Scan(
		&msg.ID,
		&msg.FromAgent,
		&msg.ToAgent,
		&msg.Type,
		&msg.Priority,
		&msg.Status,
		&msg.Content,
		&msg.Subject,
		&conversationID,
		&inReplyTo,
		&msg.RequiresAck,
		&msg.TimeoutSec,
		&msg.CreatedAt,
		&msg.ReadAt,
		&msg.AcknowledgedAt,
	)
	if err != nil {
		return nil, err
	}
	if conversationID != nil {
		msg.ConversationID = *conversationID
	}
	if inReplyTo != nil {
		msg.InReplyTo = *inReplyTo
	}
	return msg, nil
}

// CreateMessage persists a new message.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	var conversationID, inReplyTo *string
	if msg.ConversationID != "" {
		conversationID = &msg.ConversationID
	}
	if msg.InReplyTo != "" {
		inReplyTo = &msg.InReplyTo
	}

	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, from_agent, to_agent, type, priority, priority_rank,
			status, content, subject, conversation_id, in_reply_to, requires_ack,
			timeout_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, msg.ID, msg.FromAgent, msg.ToAgent, msg.Type, msg.Priority, msg.Priority.Rank(),
		msg.Status, msg.Content, msg.Subject, conversationID, inReplyTo, msg.RequiresAck,
		msg.TimeoutSec, msg.CreatedAt)
	metrics.StoreLatency.Observe(time.Since(start).Seconds())
	return err
}

// GetMessage retrieves a message by ID.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = $1
	`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// UpdateStatus sets a message's status and stamps the matching timestamp
// column. Monotonicity of the transition is the caller's responsibility.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status models.Status, at time.Time) error {
	switch status {
	case models.StatusRead:
		_, err := s.pool.Exec(ctx, `
			UPDATE messages SET status = $2, read_at = COALESCE(read_at, $3) WHERE id = $1
		`, id, status, at)
		return err
	case models.StatusAcknowledged:
		_, err := s.pool.Exec(ctx, `
			UPDATE messages SET status = $2, acknowledged_at = COALESCE(acknowledged_at, $3) WHERE id = $1
		`, id, status, at)
		return err
	default:
		_, err := s.pool.Exec(ctx, `
			UPDATE messages SET status = $2 WHERE id = $1
		`, id, status)
		return err
	}
}

// QueryInbox retrieves an agent's inbox ordered by priority rank ascending
// (critical first), then creation time ascending within a tier.
func (s *PostgresStore) QueryInbox(ctx context.Context, agent string, limit int, unreadOnly bool) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE to_agent = $1`
	if unreadOnly {
		query += ` AND status IN ('pending', 'delivered')`
	}
	query += `
		ORDER BY priority_rank ASC, created_at ASC
		LIMIT $2`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, agent, limit)
	metrics.StoreLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

// collectMessages drains rows into a message slice.
func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// CreateConversation persists a new conversation.
func (s *PostgresStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, participants, topic, purpose, tags, status,
			message_count, created_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, conv.ID, conv.Participants, conv.Topic, conv.Purpose, conv.Tags, conv.Status,
		conv.MessageCount, conv.CreatedAt, conv.LastMessageAt)
	return err
}

// GetConversation retrieves a conversation by ID.
func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, participants, topic, purpose, tags, status, message_count, created_at, last_message_at
		FROM conversations WHERE id = $1
	`, id).Scan(
		&conv.ID,
		&conv.Participants,
		&conv.Topic,
		&conv.Purpose,
		&conv.Tags,
		&conv.Status,
		&conv.MessageCount,
		&conv.CreatedAt,
		&conv.LastMessageAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// GetConversationMessages retrieves a conversation's messages chronologically.
func (s *PostgresStore) GetConversationMessages(ctx context.Context, id uuid.UUID, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, id.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

// GetActiveConversations retrieves active conversations an agent participates
// in, most recent activity first.
func (s *PostgresStore) GetActiveConversations(ctx context.Context, agent string) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, participants, topic, purpose, tags, status, message_count, created_at, last_message_at
		FROM conversations
		WHERE $1 = ANY(participants) AND status = 'active'
		ORDER BY last_message_at DESC
	`, agent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		err := rows.Scan(
			&conv.ID,
			&conv.Participants,
			&conv.Topic,
			&conv.Purpose,
			&conv.Tags,
			&conv.Status,
			&conv.MessageCount,
			&conv.CreatedAt,
			&conv.LastMessageAt,
		)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

// TouchConversation bumps a conversation's message count and activity time.
func (s *PostgresStore) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET message_count = message_count + 1, last_message_at = $2
		WHERE id = $1
	`, id, at)
	return err
}

// GetStatistics returns per-agent message counters.
func (s *PostgresStore) GetStatistics(ctx context.Context, agent string) (*Statistics, error) {
	stats := &Statistics{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM messages WHERE from_agent = $1),
			(SELECT COUNT(*) FROM messages WHERE to_agent = $1),
			(SELECT COUNT(*) FROM messages WHERE to_agent = $1 AND status IN ('pending', 'delivered')),
			(SELECT COUNT(*) FROM conversations WHERE $1 = ANY(participants))
	`, agent).Scan(&stats.TotalSent, &stats.TotalReceived, &stats.Unread, &stats.Conversations)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
