// Package a2a implements the agent-to-agent protocol service: priority
// messaging, request/response correlation, conversations, and per-agent
// delivery subscriptions.
package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/a2abus-protocol/a2abus/internal/metrics"
	"github.com/a2abus-protocol/a2abus/internal/models"
	"github.com/a2abus-protocol/a2abus/internal/store"
)

// Sentinel errors surfaced to callers.
var (
	ErrTooFewParticipants = errors.New("a2a: conversation requires at least 2 participants")
	ErrMessageNotFound    = errors.New("a2a: message not found")
	ErrInvalidTransition  = errors.New("a2a: invalid status transition")
	ErrInvalidPriority    = errors.New("a2a: unknown priority")
	ErrInvalidMessageType = errors.New("a2a: unknown message type")
)

// DefaultTimeout is the send_request timeout when none is configured.
const DefaultTimeout = 30 * time.Second

// Broker is the transport the service publishes through. *broker.RedisBroker
// satisfies it; tests substitute a fake.
type Broker interface {
	PublishEvent(ctx context.Context, event models.Event) error
	PublishToAgent(ctx context.Context, agentID string, event models.Event) error
	AddToInbox(ctx context.Context, agentID, messageID string, score float64) error
	RemoveFromInbox(ctx context.Context, agentID, messageID string) error
	InboxIDs(ctx context.Context, agentID string, limit int) ([]string, error)
	SubscribeAgent(ctx context.Context, agentID string) (<-chan []byte, io.Closer)
}

// Service coordinates message persistence, broker publication, and
// request/response correlation. Lifetime is owned by the caller: construct
// with NewService, tear down with Close.
type Service struct {
	store          store.DataStore
	broker         Broker
	logger         zerolog.Logger
	defaultTimeout time.Duration

	// pending correlates outstanding request message IDs with the channel
	// their caller is blocked on. Guarded by mu: the table is touched from
	// requester, responder, and timeout goroutines.
	mu      sync.Mutex
	pending map[string]chan json.RawMessage
	closed  bool
}

// NewService creates a new A2A protocol service.
func NewService(ds store.DataStore, b Broker, logger zerolog.Logger, defaultTimeout time.Duration) *Service {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &Service{
		store:          ds,
		broker:         b,
		logger:         logger,
		defaultTimeout: defaultTimeout,
		pending:        make(map[string]chan json.RawMessage),
	}
}

// Close tears down the service. Outstanding requests are released and
// observe a nil (no answer) result.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

// SendInput carries the parameters for SendMessage.
type SendInput struct {
	From           string
	To             string
	Type           models.MessageType
	Content        json.RawMessage
	Priority       models.Priority
	Subject        string
	ConversationID string
	InReplyTo      string
	RequiresAck    bool
	TimeoutSec     int
}

// SendMessage persists a message, indexes it in the recipient's inbox, and
// publishes a delivery notification on the recipient's private channel.
// Repository failures propagate unchanged.
func (s *Service) SendMessage(ctx context.Context, in SendInput) (*models.Message, error) {
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if !in.Priority.Valid() {
		return nil, ErrInvalidPriority
	}
	if in.Type == "" {
		in.Type = models.TypeNotification
	}
	if !in.Type.Valid() {
		return nil, ErrInvalidMessageType
	}
	if in.TimeoutSec <= 0 {
		in.TimeoutSec = int(s.defaultTimeout / time.Second)
	}
	if len(in.Content) == 0 {
		in.Content = json.RawMessage(`{}`)
	}

	msg := &models.Message{
		ID:             ulid.Make().String(),
		FromAgent:      in.From,
		ToAgent:        in.To,
		Type:           in.Type,
		Priority:       in.Priority,
		Status:         models.StatusPending,
		Content:        in.Content,
		Subject:        in.Subject,
		ConversationID: in.ConversationID,
		InReplyTo:      in.InReplyTo,
		RequiresAck:    in.RequiresAck,
		TimeoutSec:     in.TimeoutSec,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	if msg.ConversationID != "" {
		if cid, err := parseConversationID(msg.ConversationID); err == nil {
			if err := s.store.TouchConversation(ctx, cid, msg.CreatedAt); err != nil {
				s.logger.Warn().Err(err).Str("conversation_id", msg.ConversationID).
					Msg("failed to touch conversation")
			}
		}
	}

	score := models.InboxScore(msg.Priority, msg.CreatedAt)
	if err := s.broker.AddToInbox(ctx, msg.ToAgent, msg.ID, score); err != nil {
		s.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to index inbox")
	}

	// Two audiences: the recipient's private channel for programmatic
	// subscribers, and the shared channel so the dispatcher fans the event
	// out to clients in the recipient's room.
	data, _ := json.Marshal(msg)
	event := models.NewEvent("a2a_message", msg.ToAgent, data)
	if err := s.broker.PublishToAgent(ctx, msg.ToAgent, event); err != nil {
		s.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to publish delivery notification")
	}
	if err := s.broker.PublishEvent(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to publish fan-out event")
	}

	metrics.MessagesSent.WithLabelValues(string(msg.Type), string(msg.Priority)).Inc()

	s.logger.Debug().
		Str("message_id", msg.ID).
		Str("from", msg.FromAgent).
		Str("to", msg.ToAgent).
		Str("type", string(msg.Type)).
		Str("priority", string(msg.Priority)).
		Msg("message sent")

	return msg, nil
}

// SendNotification sends a one-way notification message.
func (s *Service) SendNotification(ctx context.Context, from, to, subject string, content json.RawMessage, priority models.Priority) (*models.Message, error) {
	return s.SendMessage(ctx, SendInput{
		From:     from,
		To:       to,
		Type:     models.TypeNotification,
		Content:  content,
		Priority: priority,
		Subject:  subject,
	})
}

// BroadcastMessage fans out one independent message per recipient,
// sequentially so each recipient's inbox keeps FIFO order within a priority
// tier. It returns the IDs of all messages created before any failure.
func (s *Service) BroadcastMessage(ctx context.Context, from string, recipients []string, subject string, content json.RawMessage, priority models.Priority) ([]string, error) {
	ids := make([]string, 0, len(recipients))
	for _, to := range recipients {
		msg, err := s.SendMessage(ctx, SendInput{
			From:     from,
			To:       to,
			Type:     models.TypeBroadcast,
			Content:  content,
			Priority: priority,
			Subject:  subject,
		})
		if err != nil {
			return ids, err
		}
		ids = append(ids, msg.ID)
	}
	metrics.BroadcastsFanned.Inc()
	return ids, nil
}

// GetInbox returns an agent's inbox ordered by priority rank ascending
// (critical first) and creation time ascending within a tier. The
// unread-only view walks the broker's sorted-set index, whose score encodes
// the same ordering; the full view queries the repository.
func (s *Service) GetInbox(ctx context.Context, agent string, limit int, unreadOnly bool) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	if !unreadOnly {
		return s.store.QueryInbox(ctx, agent, limit, false)
	}

	ids, err := s.broker.InboxIDs(ctx, agent, limit)
	if err != nil {
		// Index unavailable: fall back to the repository query.
		s.logger.Warn().Err(err).Str("agent", agent).Msg("inbox index unavailable")
		return s.store.QueryInbox(ctx, agent, limit, true)
	}

	messages := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.store.GetMessage(ctx, id)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue // expired from the store but not yet from the index
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}

// MarkAsRead transitions a message to read. Repeating the transition is a
// no-op; moving backwards from a later state is rejected.
func (s *Service) MarkAsRead(ctx context.Context, id string) error {
	return s.advanceStatus(ctx, id, models.StatusRead)
}

// AcknowledgeMessage transitions a message to acknowledged.
func (s *Service) AcknowledgeMessage(ctx context.Context, id string) error {
	return s.advanceStatus(ctx, id, models.StatusAcknowledged)
}

// advanceStatus applies an idempotent, monotonic status transition and
// retires the message from the unread inbox index.
func (s *Service) advanceStatus(ctx context.Context, id string, target models.Status) error {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	if msg.Status == target {
		return nil
	}
	if !msg.Status.CanAdvanceTo(target) {
		return ErrInvalidTransition
	}

	if err := s.store.UpdateStatus(ctx, id, target, time.Now().UTC()); err != nil {
		return err
	}
	if err := s.broker.RemoveFromInbox(ctx, msg.ToAgent, id); err != nil {
		s.logger.Warn().Err(err).Str("message_id", id).Msg("failed to retire inbox index entry")
	}
	return nil
}

// GetStatistics returns the agent's message counters.
func (s *Service) GetStatistics(ctx context.Context, agent string) (*store.Statistics, error) {
	return s.store.GetStatistics(ctx, agent)
}
