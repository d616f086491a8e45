// Package broker wraps Redis as the broadcast transport: a single shared
// events channel for the fan-out layer, one private channel per agent for
// direct delivery, and a per-agent sorted-set inbox index keyed by the
// numeric priority score so the inbox can be read in urgency order without
// a full scan.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/a2abus-protocol/a2abus/internal/metrics"
	"github.com/a2abus-protocol/a2abus/internal/models"
)

// EventsChannel is the shared channel carrying all broadcast events.
const EventsChannel = "a2abus:events"

const inboxTTL = 7 * 24 * time.Hour

// RedisBroker handles Redis pub/sub and inbox index operations.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker connects to Redis and verifies the connection.
func NewRedisBroker(ctx context.Context, redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisBroker{client: client}, nil
}

// Close closes the Redis connection.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// Ping checks the Redis connection.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// AgentChannel returns the private channel name for an agent.
func AgentChannel(agentID string) string {
	return fmt.Sprintf("a2abus:agent:%s", agentID)
}

// inboxKey returns the key for an agent's inbox sorted set.
func inboxKey(agentID string) string {
	return fmt.Sprintf("inbox:%s", agentID)
}

// PublishEvent publishes an event on the shared events channel.
func (b *RedisBroker) PublishEvent(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	start := time.Now()
	err = b.client.Publish(ctx, EventsChannel, data).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	return err
}

// PublishToAgent publishes an event on an agent's private channel.
func (b *RedisBroker) PublishToAgent(ctx context.Context, agentID string, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	start := time.Now()
	err = b.client.Publish(ctx, AgentChannel(agentID), data).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	return err
}

// AddToInbox indexes a message in the recipient's inbox sorted set. The
// score encodes priority rank then creation time, so an ascending range
// walk yields the inbox ordering contract.
func (b *RedisBroker) AddToInbox(ctx context.Context, agentID, messageID string, score float64) error {
	key := inboxKey(agentID)

	err := b.client.ZAdd(ctx, key, redis.Z{
		Score:  score,
		Member: messageID,
	}).Err()
	if err != nil {
		return err
	}

	b.client.Expire(ctx, key, inboxTTL)
	return nil
}

// RemoveFromInbox removes a message from the recipient's inbox index.
func (b *RedisBroker) RemoveFromInbox(ctx context.Context, agentID, messageID string) error {
	return b.client.ZRem(ctx, inboxKey(agentID), messageID).Err()
}

// InboxIDs returns up to limit message IDs in urgency order.
func (b *RedisBroker) InboxIDs(ctx context.Context, agentID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	return b.client.ZRange(ctx, inboxKey(agentID), 0, int64(limit)-1).Result()
}

// SubscribeEvents subscribes to the shared events channel.
func (b *RedisBroker) SubscribeEvents(ctx context.Context) *redis.PubSub {
	return b.client.Subscribe(ctx, EventsChannel)
}

// SubscribeAgent opens a long-lived subscription on an agent's private
// channel and returns the raw payload stream. Closing the returned Closer
// ends the stream.
func (b *RedisBroker) SubscribeAgent(ctx context.Context, agentID string) (<-chan []byte, io.Closer) {
	sub := b.client.Subscribe(ctx, AgentChannel(agentID))

	out := make(chan []byte)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, sub
}
