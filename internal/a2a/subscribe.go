package a2a

import (
	"context"
	"encoding/json"
	"io"

	"github.com/a2abus-protocol/a2abus/internal/models"
)

// SubscribeToMessages opens a long-lived listener on the agent's private
// channel and invokes callback for each delivered event. The listener runs
// on its own goroutine and never blocks the caller; it stops when ctx is
// cancelled or the returned Closer is closed.
func (s *Service) SubscribeToMessages(ctx context.Context, agent string, callback func(models.Event)) io.Closer {
	frames, closer := s.broker.SubscribeAgent(ctx, agent)

	go func() {
		for {
			select {
			case frame, ok := <-frames:
				if !ok {
					return
				}
				var event models.Event
				if err := json.Unmarshal(frame, &event); err != nil {
					s.logger.Warn().Err(err).Str("agent", agent).Msg("dropping malformed frame")
					continue
				}
				callback(event)
			case <-ctx.Done():
				return
			}
		}
	}()

	return closer
}
