// Package dispatch subscribes to the broker's shared events channel and
// fans incoming events out to connected clients through the hub. The
// dispatcher owns a reference to the connection manager; the manager never
// reaches back into dispatcher state.
package dispatch

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/a2abus-protocol/a2abus/internal/broker"
	"github.com/a2abus-protocol/a2abus/internal/hub"
	"github.com/a2abus-protocol/a2abus/internal/metrics"
	"github.com/a2abus-protocol/a2abus/internal/models"
)

// State names the dispatcher's connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateListening    State = "listening"
	StateBackingOff   State = "backing_off"
)

const (
	receiveTimeout = time.Second
	backoffInitial = time.Second
	backoffMax     = 30 * time.Second
)

// Dispatcher pumps events from the broker to the connection manager.
type Dispatcher struct {
	broker *broker.RedisBroker
	hub    *hub.Manager
	logger zerolog.Logger

	targetLatency time.Duration
	gate          *tokenBucket
	window        *latencyWindow
	eventRate     *rateCounter

	state      atomic.Value // State
	dispatched atomic.Int64
	dropped    atomic.Int64
}

// NewDispatcher creates a dispatcher wired to the given broker and hub.
// maxEventsPerSec bounds admission; events beyond it are dropped and
// counted. A non-positive value disables the gate.
func NewDispatcher(b *broker.RedisBroker, h *hub.Manager, logger zerolog.Logger, targetLatency time.Duration, maxEventsPerSec int) *Dispatcher {
	d := &Dispatcher{
		broker:        b,
		hub:           h,
		logger:        logger,
		targetLatency: targetLatency,
		gate:          newTokenBucket(maxEventsPerSec),
		window:        newLatencyWindow(),
		eventRate:     &rateCounter{},
	}
	d.state.Store(StateDisconnected)
	return d
}

// State returns the dispatcher's current lifecycle state.
func (d *Dispatcher) State() State {
	return d.state.Load().(State)
}

// Run connects to the broker and pumps events until ctx is cancelled. On
// receive errors it backs off and resubscribes; it never returns early
// except on cancellation.
func (d *Dispatcher) Run(ctx context.Context) {
	var backoff time.Duration

	for ctx.Err() == nil {
		d.state.Store(StateConnecting)
		sub := d.broker.SubscribeEvents(ctx)

		d.state.Store(StateListening)
		d.logger.Info().Str("channel", broker.EventsChannel).Msg("dispatcher listening")

		started := time.Now()
		err := d.listen(ctx, sub)
		sub.Close()

		if ctx.Err() != nil {
			break
		}

		backoff = reconnectDelay(backoff, time.Since(started))

		d.state.Store(StateBackingOff)
		d.logger.Warn().Err(err).Dur("backoff", backoff).Msg("dispatcher lost broker, backing off")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}
	}

	d.state.Store(StateDisconnected)
	d.logger.Info().Msg("dispatcher stopped")
}

// reconnectDelay returns the wait before the next subscribe attempt given
// the previous delay and how long the last session stayed up. A session
// that outlived the backoff ceiling counts as healthy and restarts the
// ladder, so a flaky stretch hours ago does not tax today's reconnect.
func reconnectDelay(prev, session time.Duration) time.Duration {
	if session > backoffMax {
		return backoffInitial
	}
	next := prev * 2
	if next < backoffInitial {
		next = backoffInitial
	}
	if next > backoffMax {
		next = backoffMax
	}
	return next
}

// receiver is the subset of redis.PubSub the listen loop needs.
type receiver interface {
	ReceiveTimeout(ctx context.Context, timeout time.Duration) (any, error)
}

// listen polls the subscription with a bounded wait so cancellation is
// observed promptly. It returns when the subscription errors.
func (d *Dispatcher) listen(ctx context.Context, sub receiver) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, err := sub.ReceiveTimeout(ctx, receiveTimeout)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue // bounded wait elapsed, poll again
			}
			return err
		}

		switch msg := raw.(type) {
		case *redis.Message:
			d.HandleEvent([]byte(msg.Payload))
		case *redis.Subscription:
			// subscribe/unsubscribe confirmation, nothing to deliver
		default:
			// pong or other control traffic
		}
	}
}

// HandleEvent deserializes one broker payload and fans it out. Malformed
// payloads and rate-gated events are dropped with a counter; the loop never
// dies on bad input.
func (d *Dispatcher) HandleEvent(payload []byte) {
	var event models.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		d.dropped.Add(1)
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		d.logger.Warn().Err(err).Int("bytes", len(payload)).Msg("dropping malformed event")
		return
	}

	now := time.Now()

	if !d.gate.allow(now) {
		d.dropped.Add(1)
		metrics.EventsDropped.WithLabelValues("rate_limited").Inc()
		d.logger.Warn().Str("type", event.Type).Str("room", event.Room).Msg("event rate gate engaged, dropping event")
		return
	}

	d.eventRate.tick(now)

	if event.PublishTime > 0 {
		latency := event.Latency(now)
		d.window.add(latency)
		metrics.EventLatency.Observe(latency.Seconds())
		if d.targetLatency > 0 && latency > d.targetLatency {
			d.logger.Warn().
				Dur("latency", latency).
				Dur("target", d.targetLatency).
				Str("type", event.Type).
				Msg("event latency above target")
		}
	}

	room := event.Room
	if room == "" {
		room = hub.RoomAll
	}

	frame := hub.Frame{
		"type":      event.Type,
		"data":      event.Data,
		"room":      room,
		"timestamp": event.Timestamp,
	}

	delivered := d.hub.Broadcast(frame, room, nil)
	d.dispatched.Add(1)
	metrics.EventsDispatched.WithLabelValues(room).Inc()

	d.logger.Debug().
		Str("type", event.Type).
		Str("room", room).
		Int("delivered", delivered).
		Msg("event dispatched")
}

// Stats summarizes the dispatcher's counters.
type Stats struct {
	State      State           `json:"state"`
	Dispatched int64           `json:"events_dispatched"`
	Dropped    int64           `json:"events_dropped"`
	EventRate  int             `json:"events_per_second"`
	Latency    LatencySnapshot `json:"latency"`
}

// GetStats returns the dispatcher's current counters and latency window.
func (d *Dispatcher) GetStats() Stats {
	return Stats{
		State:      d.State(),
		Dispatched: d.dispatched.Load(),
		Dropped:    d.dropped.Load(),
		EventRate:  d.eventRate.rate(),
		Latency:    d.window.snapshot(),
	}
}

// Dropped returns the count of events dropped so far.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}
