package models

import (
	"encoding/json"
	"time"
)

// Event is the broker envelope carried on the shared broadcast channel and
// on per-agent channels. PublishTime is Unix seconds with fractional part;
// the dispatcher uses it to measure end-to-end latency.
type Event struct {
	Type        string          `json:"type"`
	Room        string          `json:"room"`
	Data        json.RawMessage `json:"data"`
	Timestamp   string          `json:"timestamp"`
	PublishTime float64         `json:"publish_time"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(eventType, room string, data json.RawMessage) Event {
	now := time.Now()
	return Event{
		Type:        eventType,
		Room:        room,
		Data:        data,
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		PublishTime: float64(now.UnixNano()) / 1e9,
	}
}

// Latency returns the elapsed time since the event was published.
func (e Event) Latency(now time.Time) time.Duration {
	sec := float64(now.UnixNano())/1e9 - e.PublishTime
	return time.Duration(sec * float64(time.Second))
}
