package session

import (
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/a2abus-protocol/a2abus/internal/hub"
)

type replyConn struct {
	mu     sync.Mutex
	frames []hub.Frame
}

func (c *replyConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, v.(hub.Frame))
	return nil
}

func (c *replyConn) Close() error { return nil }

func (c *replyConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// last returns the most recent frame after the connection ack.
func (c *replyConn) last(t *testing.T) hub.Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) < 2 {
		t.Fatalf("no reply received, frames: %v", c.frames)
	}
	return c.frames[len(c.frames)-1]
}

func newTestSession(t *testing.T) (*Handler, *hub.Manager, *replyConn) {
	t.Helper()
	m := hub.NewManager(zerolog.Nop())
	conn := &replyConn{}
	m.Connect(conn, "agent-1", []string{"alpha"})
	return NewHandler(m, zerolog.Nop()), m, conn
}

func TestHandleSubscribe(t *testing.T) {
	h, _, conn := newTestSession(t)

	h.Handle("agent-1", []byte(`{"type":"subscribe","rooms":["beta"]}`))

	reply := conn.last(t)
	if reply["type"] != "subscribed" {
		t.Fatalf("reply type = %v, want subscribed", reply["type"])
	}
	if got := reply["rooms"].([]string); !reflect.DeepEqual(got, []string{"alpha", "beta"}) {
		t.Errorf("rooms = %v, want [alpha beta]", got)
	}
}

func TestHandleUnsubscribe(t *testing.T) {
	h, _, conn := newTestSession(t)

	h.Handle("agent-1", []byte(`{"type":"unsubscribe","rooms":["alpha"]}`))

	reply := conn.last(t)
	if reply["type"] != "unsubscribed" {
		t.Fatalf("reply type = %v, want unsubscribed", reply["type"])
	}
	if got := reply["rooms"].([]string); len(got) != 0 {
		t.Errorf("rooms = %v, want empty", got)
	}
}

func TestHandlePing(t *testing.T) {
	h, _, conn := newTestSession(t)

	h.Handle("agent-1", []byte(`{"type":"ping","time":1234.5}`))

	reply := conn.last(t)
	if reply["type"] != "pong" {
		t.Fatalf("reply type = %v, want pong", reply["type"])
	}
	if reply["client_time"] != 1234.5 {
		t.Errorf("client_time = %v, want 1234.5", reply["client_time"])
	}
	if st, ok := reply["server_time"].(float64); !ok || st <= 0 {
		t.Errorf("server_time = %v, want positive float", reply["server_time"])
	}
}

func TestHandleFilter(t *testing.T) {
	h, m, conn := newTestSession(t)

	h.Handle("agent-1", []byte(`{"type":"filter","filters":{"severity":"critical"}}`))

	reply := conn.last(t)
	if reply["type"] != "filter_set" {
		t.Fatalf("reply type = %v, want filter_set", reply["type"])
	}

	// The filter is live: a non-matching broadcast is withheld.
	before := conn.count()
	m.Broadcast(hub.Frame{"type": "event", "data": map[string]any{"severity": "info"}}, "alpha", nil)
	if conn.count() != before {
		t.Error("filtered-out event was delivered")
	}
	m.Broadcast(hub.Frame{"type": "event", "data": map[string]any{"severity": "critical"}}, "alpha", nil)
	if conn.count() != before+1 {
		t.Error("matching event was not delivered")
	}
}

func TestHandleMalformed(t *testing.T) {
	h, _, conn := newTestSession(t)

	h.Handle("agent-1", []byte(`{"type":`))

	reply := conn.last(t)
	if reply["type"] != "error" {
		t.Fatalf("reply type = %v, want error", reply["type"])
	}

	// Session survives: the next command still works.
	h.Handle("agent-1", []byte(`{"type":"ping"}`))
	if conn.last(t)["type"] != "pong" {
		t.Error("session dead after malformed frame")
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	h, _, conn := newTestSession(t)

	h.Handle("agent-1", []byte(`{"type":"reboot"}`))

	reply := conn.last(t)
	if reply["type"] != "error" {
		t.Fatalf("reply type = %v, want error", reply["type"])
	}
}
