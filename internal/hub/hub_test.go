package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// fakeConn records frames and can be made to fail writes.
type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	failed bool
	closed bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return errors.New("broken pipe")
	}
	f.frames = append(f.frames, v.(Frame))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Frame, len(f.frames))
	copy(out, f.frames)
	return out
}

func newTestManager() *Manager {
	return NewManager(zerolog.Nop())
}

func TestConnectSendsAck(t *testing.T) {
	m := newTestManager()
	conn := &fakeConn{}
	m.Connect(conn, "agent-1", nil)

	frames := conn.received()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1 ack", len(frames))
	}
	if frames[0]["type"] != "connection" || frames[0]["status"] != "connected" {
		t.Errorf("unexpected ack frame: %v", frames[0])
	}
	rooms, _ := frames[0]["rooms"].([]string)
	if len(rooms) != 1 || rooms[0] != RoomAll {
		t.Errorf("default rooms = %v, want [all]", rooms)
	}
}

func TestConnectReplacesExisting(t *testing.T) {
	m := newTestManager()
	old := &fakeConn{}
	m.Connect(old, "agent-1", nil)
	m.Connect(&fakeConn{}, "agent-1", nil)

	if !old.closed {
		t.Error("replaced connection was not closed")
	}
	if got := m.GetStats().Connections; got != 1 {
		t.Errorf("connections = %d, want 1", got)
	}
}

func TestBroadcastRoomRouting(t *testing.T) {
	m := newTestManager()
	inRoom := &fakeConn{}
	outOfRoom := &fakeConn{}
	wildcard := &fakeConn{}
	m.Connect(inRoom, "in", []string{"builds"})
	m.Connect(outOfRoom, "out", []string{"deploys"})
	m.Connect(wildcard, "any", []string{RoomAll})

	n := m.Broadcast(Frame{"type": "event", "data": map[string]any{"ok": true}}, "builds", nil)
	if n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	if len(inRoom.received()) != 2 { // ack + event
		t.Error("room member did not receive the event")
	}
	if len(outOfRoom.received()) != 1 { // ack only
		t.Error("non-member received the event")
	}
	if len(wildcard.received()) != 2 {
		t.Error("wildcard subscriber did not receive the event")
	}
}

func TestBroadcastExcludes(t *testing.T) {
	m := newTestManager()
	a := &fakeConn{}
	b := &fakeConn{}
	m.Connect(a, "a", nil)
	m.Connect(b, "b", nil)

	n := m.Broadcast(Frame{"type": "event"}, RoomAll, map[string]struct{}{"a": {}})
	if n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
	if len(a.received()) != 1 {
		t.Error("excluded client received the broadcast")
	}
}

func TestBroadcastFailureIsolation(t *testing.T) {
	m := newTestManager()
	good := &fakeConn{}
	bad := &fakeConn{}
	m.Connect(good, "good", nil)
	m.Connect(bad, "bad", nil)
	bad.failed = true

	n := m.Broadcast(Frame{"type": "event"}, RoomAll, nil)
	if n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
	if !bad.closed {
		t.Error("failed client was not disconnected")
	}
	if got := m.GetStats().Connections; got != 1 {
		t.Errorf("connections after failure = %d, want 1", got)
	}
	// The healthy client keeps working.
	if !m.SendToClient("good", Frame{"type": "direct"}) {
		t.Error("healthy client unreachable after peer failure")
	}
}

func TestSendToClientUnknown(t *testing.T) {
	m := newTestManager()
	if m.SendToClient("ghost", Frame{"type": "direct"}) {
		t.Error("send to unknown client reported success")
	}
}

func TestDisconnectConnStaleSocket(t *testing.T) {
	m := newTestManager()
	old := &fakeConn{}
	m.Connect(old, "agent-1", nil)
	replacement := &fakeConn{}
	m.Connect(replacement, "agent-1", nil)

	// The replaced handler's teardown must not remove the successor.
	m.DisconnectConn("agent-1", old)
	if got := m.GetStats().Connections; got != 1 {
		t.Fatalf("connections after stale teardown = %d, want 1", got)
	}
	if replacement.closed {
		t.Error("replacement connection was closed by stale teardown")
	}
	if !m.SendToClient("agent-1", Frame{"type": "direct"}) {
		t.Error("replacement unreachable after stale teardown")
	}

	// The current socket's teardown still works.
	m.DisconnectConn("agent-1", replacement)
	if got := m.GetStats().Connections; got != 0 {
		t.Errorf("connections = %d, want 0", got)
	}
	if !replacement.closed {
		t.Error("current connection not closed")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	m := newTestManager()
	conn := &fakeConn{}
	m.Connect(conn, "agent-1", nil)
	m.Disconnect("agent-1")
	m.Disconnect("agent-1")

	if !conn.closed {
		t.Error("connection not closed")
	}
	if got := m.GetStats().Connections; got != 0 {
		t.Errorf("connections = %d, want 0", got)
	}
}
