package dispatch

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/a2abus-protocol/a2abus/internal/hub"
	"github.com/a2abus-protocol/a2abus/internal/models"
)

type captureConn struct {
	mu     sync.Mutex
	frames []hub.Frame
	failed bool
}

func (c *captureConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed {
		return errors.New("write failed")
	}
	c.frames = append(c.frames, v.(hub.Frame))
	return nil
}

func (c *captureConn) Close() error { return nil }

func (c *captureConn) received() []hub.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]hub.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

func newTestDispatcher(maxEventsPerSec int) (*Dispatcher, *hub.Manager) {
	h := hub.NewManager(zerolog.Nop())
	d := NewDispatcher(nil, h, zerolog.Nop(), 500*time.Millisecond, maxEventsPerSec)
	return d, h
}

func eventPayload(t *testing.T, eventType, room string, data map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	payload, err := json.Marshal(models.NewEvent(eventType, room, raw))
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestHandleEventDeliversToRoom(t *testing.T) {
	d, h := newTestDispatcher(0)
	conn := &captureConn{}
	h.Connect(conn, "client-1", []string{"builds"})

	d.HandleEvent(eventPayload(t, "build_done", "builds", map[string]any{"job": "42"}))

	frames := conn.received()
	if len(frames) != 2 { // ack + event
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	got := frames[1]
	if got["type"] != "build_done" || got["room"] != "builds" {
		t.Errorf("unexpected frame: %v", got)
	}

	stats := d.GetStats()
	if stats.Dispatched != 1 {
		t.Errorf("dispatched = %d, want 1", stats.Dispatched)
	}
	if stats.Latency.Samples != 1 {
		t.Errorf("latency samples = %d, want 1", stats.Latency.Samples)
	}
}

func TestHandleEventEmptyRoomBroadcastsToAll(t *testing.T) {
	d, h := newTestDispatcher(0)
	conn := &captureConn{}
	h.Connect(conn, "client-1", []string{"specific"})

	d.HandleEvent(eventPayload(t, "announce", "", map[string]any{"msg": "hi"}))

	frames := conn.received()
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[1]["room"] != hub.RoomAll {
		t.Errorf("room = %v, want %q", frames[1]["room"], hub.RoomAll)
	}
}

func TestHandleEventMalformedPayload(t *testing.T) {
	d, h := newTestDispatcher(0)
	conn := &captureConn{}
	h.Connect(conn, "client-1", nil)

	d.HandleEvent([]byte("not json{"))

	if got := d.Dropped(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
	if len(conn.received()) != 1 { // ack only
		t.Error("malformed payload reached a client")
	}

	// The dispatcher keeps working after bad input.
	d.HandleEvent(eventPayload(t, "ok", "", nil))
	if got := d.GetStats().Dispatched; got != 1 {
		t.Errorf("dispatched after recovery = %d, want 1", got)
	}
}

func TestHandleEventRateGate(t *testing.T) {
	d, _ := newTestDispatcher(3)

	payload := eventPayload(t, "tick", "", nil)
	for i := 0; i < 10; i++ {
		d.HandleEvent(payload)
	}

	stats := d.GetStats()
	if stats.Dispatched != 3 {
		t.Errorf("dispatched = %d, want 3", stats.Dispatched)
	}
	if stats.Dropped != 7 {
		t.Errorf("dropped = %d, want 7", stats.Dropped)
	}
}

func TestReconnectDelay(t *testing.T) {
	tests := []struct {
		name          string
		prev, session time.Duration
		want          time.Duration
	}{
		{"first outage", 0, 0, backoffInitial},
		{"doubles", backoffInitial, 0, 2 * backoffInitial},
		{"caps at ceiling", 20 * time.Second, 0, backoffMax},
		{"stays at ceiling", backoffMax, 0, backoffMax},
		{"healthy session resets the ladder", backoffMax, time.Hour, backoffInitial},
		{"short session keeps climbing", 4 * time.Second, 5 * time.Second, 8 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reconnectDelay(tt.prev, tt.session); got != tt.want {
				t.Errorf("reconnectDelay(%v, %v) = %v, want %v", tt.prev, tt.session, got, tt.want)
			}
		})
	}
}

func TestDispatcherStateInitial(t *testing.T) {
	d, _ := newTestDispatcher(0)
	if got := d.State(); got != StateDisconnected {
		t.Errorf("initial state = %s, want %s", got, StateDisconnected)
	}
}
