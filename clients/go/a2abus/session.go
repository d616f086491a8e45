package a2abus

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session is a live WebSocket connection speaking the client session
// protocol: room subscriptions, pings, and delivery filters.
type Session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	// Frames receives every server frame, including command replies.
	Frames chan map[string]any
}

// Connect opens a session subscribed to the given rooms.
func (c *Client) Connect(rooms []string) (*Session, error) {
	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1)
	u := fmt.Sprintf("%s/ws?client_id=%s", wsURL, url.QueryEscape(c.AgentID))
	if len(rooms) > 0 {
		u += "&rooms=" + url.QueryEscape(strings.Join(rooms, ","))
	}

	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		return nil, err
	}

	s := &Session{
		conn:   conn,
		Frames: make(chan map[string]any, 64),
	}

	go s.readLoop()
	return s, nil
}

// readLoop pumps server frames into the Frames channel until the
// connection closes.
func (s *Session) readLoop() {
	defer close(s.Frames)
	for {
		var frame map[string]any
		if err := s.conn.ReadJSON(&frame); err != nil {
			return
		}
		s.Frames <- frame
	}
}

// send writes one command frame.
func (s *Session) send(cmd map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(cmd)
}

// Subscribe adds rooms to this session's subscription set.
func (s *Session) Subscribe(rooms ...string) error {
	return s.send(map[string]any{"type": "subscribe", "rooms": rooms})
}

// Unsubscribe removes rooms from this session's subscription set.
func (s *Session) Unsubscribe(rooms ...string) error {
	return s.send(map[string]any{"type": "unsubscribe", "rooms": rooms})
}

// Ping sends a latency probe; the server echoes the client time in the
// pong frame.
func (s *Session) Ping() error {
	return s.send(map[string]any{
		"type": "ping",
		"time": float64(time.Now().UnixNano()) / 1e9,
	})
}

// SetFilters installs a delivery filter: only frames whose data matches
// every entry are delivered.
func (s *Session) SetFilters(filters map[string]any) error {
	return s.send(map[string]any{"type": "filter", "filters": filters})
}

// Close tears down the session.
func (s *Session) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

// RawContent extracts a frame's data payload as JSON.
func RawContent(frame map[string]any) json.RawMessage {
	data, err := json.Marshal(frame["data"])
	if err != nil {
		return nil
	}
	return data
}
