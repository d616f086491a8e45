package models

import (
	"time"

	"github.com/google/uuid"
)

// ConversationStatus marks whether a conversation is still receiving messages.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationCompleted ConversationStatus = "completed"
)

// Conversation groups messages exchanged between two or more agents.
type Conversation struct {
	ID            uuid.UUID          `json:"id"`
	Participants  []string           `json:"participants"`
	Topic         string             `json:"topic,omitempty"`
	Purpose       string             `json:"purpose,omitempty"`
	Tags          []string           `json:"tags,omitempty"`
	Status        ConversationStatus `json:"status"`
	MessageCount  int64              `json:"message_count"`
	CreatedAt     time.Time          `json:"created_at"`
	LastMessageAt time.Time          `json:"last_message_at"`
}
