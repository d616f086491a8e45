package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/a2abus-protocol/a2abus/internal/hub"
	"github.com/a2abus-protocol/a2abus/internal/session"
)

func newWSTestServer(t *testing.T) (*httptest.Server, *hub.Manager) {
	t.Helper()
	m := hub.NewManager(zerolog.Nop())
	h := NewHandler(nil, m, nil, session.NewHandler(m, zerolog.Nop()), nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.WebSocket))
	t.Cleanup(srv.Close)
	return srv, m
}

func dialWS(t *testing.T, srv *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?client_id=" + clientID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	return frame
}

func TestWebSocketReconnectSameClientID(t *testing.T) {
	srv, m := newWSTestServer(t)

	first := dialWS(t, srv, "agent-1")
	if frame := readFrame(t, first); frame["type"] != "connection" {
		t.Fatalf("first connect ack = %v", frame)
	}

	// Reconnect under the same ID. The server replaces and closes the old
	// socket; the old handler's teardown must not unregister the new one.
	second := dialWS(t, srv, "agent-1")
	if frame := readFrame(t, second); frame["type"] != "connection" {
		t.Fatalf("second connect ack = %v", frame)
	}

	// Give the replaced handler goroutine time to observe the close and
	// run its teardown.
	time.Sleep(300 * time.Millisecond)

	if got := m.GetStats().Connections; got != 1 {
		t.Fatalf("connections after reconnect = %d, want 1", got)
	}

	// The replacement still receives fan-out.
	if n := m.Broadcast(hub.Frame{"type": "event"}, hub.RoomAll, nil); n != 1 {
		t.Fatalf("broadcast delivered to %d clients, want 1", n)
	}
	if frame := readFrame(t, second); frame["type"] != "event" {
		t.Errorf("replacement received %v, want the broadcast", frame)
	}
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	srv, m := newWSTestServer(t)

	conn := dialWS(t, srv, "agent-1")
	readFrame(t, conn)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for m.GetStats().Connections != 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection state not removed after client close")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
