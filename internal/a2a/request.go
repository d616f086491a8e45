package a2a

import (
	"context"
	"encoding/json"
	"time"

	"github.com/a2abus-protocol/a2abus/internal/metrics"
	"github.com/a2abus-protocol/a2abus/internal/models"
)

// RequestContent is the payload shape of a request message.
type RequestContent struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// SendRequest sends a request message and blocks until the recipient
// responds via SendResponse, the timeout elapses, or ctx is cancelled.
//
// A nil, nil return means no answer arrived within the timeout; the
// underlying message is then marked timeout. The correlation entry is
// removed on every exit path.
func (s *Service) SendRequest(ctx context.Context, from, to, action string, params json.RawMessage, priority models.Priority, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	content, err := json.Marshal(RequestContent{Action: action, Params: params})
	if err != nil {
		return nil, err
	}

	msg, err := s.SendMessage(ctx, SendInput{
		From:        from,
		To:          to,
		Type:        models.TypeRequest,
		Content:     content,
		Priority:    priority,
		RequiresAck: true,
		TimeoutSec:  int(timeout / time.Second),
	})
	if err != nil {
		return nil, err
	}

	ch := s.registerPending(msg.ID)
	defer s.removePending(msg.ID)

	metrics.RequestsInFlight.Inc()
	defer metrics.RequestsInFlight.Dec()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case response, ok := <-ch:
		if !ok {
			// Service shut down while waiting.
			return nil, nil
		}
		return response, nil
	case <-timer.C:
		metrics.RequestTimeouts.Inc()
		s.logger.Warn().
			Str("message_id", msg.ID).
			Str("to", to).
			Dur("timeout", timeout).
			Msg("request timed out")
		if err := s.store.UpdateStatus(ctx, msg.ID, models.StatusTimeout, time.Now().UTC()); err != nil {
			s.logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to mark request timeout")
		}
		if err := s.broker.RemoveFromInbox(ctx, to, msg.ID); err != nil {
			s.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to retire timed-out request")
		}
		return nil, nil
	case <-ctx.Done():
		if err := s.store.UpdateStatus(context.WithoutCancel(ctx), msg.ID, models.StatusCancelled, time.Now().UTC()); err != nil {
			s.logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to mark request cancelled")
		}
		return nil, ctx.Err()
	}
}

// SendResponse sends a response message and, when in_reply_to matches an
// outstanding request, resolves the waiting caller. Responses are forced to
// high priority so they preempt steady-state traffic.
func (s *Service) SendResponse(ctx context.Context, from, to, inReplyTo string, content json.RawMessage, conversationID string) (*models.Message, error) {
	msg, err := s.SendMessage(ctx, SendInput{
		From:           from,
		To:             to,
		Type:           models.TypeResponse,
		Content:        content,
		Priority:       models.PriorityHigh,
		ConversationID: conversationID,
		InReplyTo:      inReplyTo,
	})
	if err != nil {
		return nil, err
	}

	if s.resolvePending(inReplyTo, content) {
		s.logger.Debug().
			Str("in_reply_to", inReplyTo).
			Str("response_id", msg.ID).
			Msg("resolved pending request")
	}

	return msg, nil
}

// registerPending installs a single-consumer reply handle for a message ID.
// The channel holds one value so the resolver never blocks.
func (s *Service) registerPending(id string) chan json.RawMessage {
	ch := make(chan json.RawMessage, 1)
	s.mu.Lock()
	if s.closed {
		close(ch)
	} else {
		s.pending[id] = ch
	}
	s.mu.Unlock()
	return ch
}

// removePending deletes the correlation entry, if still present.
func (s *Service) removePending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// resolvePending delivers a response to the waiting requester. The entry is
// popped under the lock, so a handle resolves at most once.
func (s *Service) resolvePending(id string, content json.RawMessage) bool {
	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	ch <- content
	return true
}

// PendingRequests reports the number of outstanding correlations.
func (s *Service) PendingRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
