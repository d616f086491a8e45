package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/a2abus-protocol/a2abus/internal/models"
)

// Statistics holds per-agent message counters.
type Statistics struct {
	TotalSent     int64 `json:"total_sent"`
	TotalReceived int64 `json:"total_received"`
	Unread        int64 `json:"unread"`
	Conversations int64 `json:"conversations"`
}

// DataStore defines the interface for durable storage of messages and
// conversations. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Message operations
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	UpdateStatus(ctx context.Context, id string, status models.Status, at time.Time) error
	QueryInbox(ctx context.Context, agent string, limit int, unreadOnly bool) ([]models.Message, error)

	// Conversation operations
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	GetConversationMessages(ctx context.Context, id uuid.UUID, limit int) ([]models.Message, error)
	GetActiveConversations(ctx context.Context, agent string) ([]models.Conversation, error)
	TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error

	// Statistics
	GetStatistics(ctx context.Context, agent string) (*Statistics, error)
}
