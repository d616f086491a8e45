package a2a

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/a2abus-protocol/a2abus/internal/models"
)

// CreateConversation starts a conversation between two or more agents.
// Fewer than 2 participants is a validation error.
func (s *Service) CreateConversation(ctx context.Context, participants []string, topic, purpose string, tags []string) (*models.Conversation, error) {
	if len(participants) < 2 {
		return nil, ErrTooFewParticipants
	}

	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:            uuid.New(),
		Participants:  participants,
		Topic:         topic,
		Purpose:       purpose,
		Tags:          tags,
		Status:        models.ConversationActive,
		CreatedAt:     now,
		LastMessageAt: now,
	}

	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("conversation_id", conv.ID.String()).
		Int("participants", len(participants)).
		Msg("conversation created")

	return conv, nil
}

// GetConversation returns a conversation and its messages in chronological
// order. A nil conversation means the ID is unknown.
func (s *Service) GetConversation(ctx context.Context, id uuid.UUID, limit int) (*models.Conversation, []models.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, nil
	}

	messages, err := s.store.GetConversationMessages(ctx, id, limit)
	if err != nil {
		return nil, nil, err
	}
	return conv, messages, nil
}

// GetActiveConversations returns the active conversations an agent
// participates in, newest activity first.
func (s *Service) GetActiveConversations(ctx context.Context, agent string) ([]models.Conversation, error) {
	return s.store.GetActiveConversations(ctx, agent)
}

// parseConversationID parses a conversation ID string.
func parseConversationID(id string) (uuid.UUID, error) {
	return uuid.Parse(id)
}
