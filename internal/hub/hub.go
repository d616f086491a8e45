// Package hub tracks live client connections, their room subscriptions and
// filters, and performs room-filtered fan-out. It owns every connection for
// the lifetime of the socket; nothing else writes to a registered Conn.
package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/a2abus-protocol/a2abus/internal/metrics"
)

// RoomAll is the wildcard room every client is implicitly interested in.
const RoomAll = "all"

// Frame is one JSON object sent to a client.
type Frame map[string]any

// Conn is one live client transport. *ws.Conn satisfies it; tests
// substitute a fake.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// client is the per-connection state.
type client struct {
	conn         Conn
	rooms        map[string]struct{}
	filters      map[string]any
	connectedAt  time.Time
	messagesSent atomic.Int64

	// serializes writes; broadcasts run concurrently across clients but
	// never concurrently on one socket.
	writeMu sync.Mutex
}

func (c *client) send(frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(frame); err != nil {
		return err
	}
	c.messagesSent.Add(1)
	return nil
}

// Manager owns all live connections in this process.
type Manager struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

// NewManager creates an empty connection manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		logger:  logger,
		clients: make(map[string]*client),
	}
}

// Connect registers a connection under clientID with the given rooms
// (default {"all"}) and sends the connection acknowledgment frame. An
// existing connection under the same ID is replaced and closed.
func (m *Manager) Connect(conn Conn, clientID string, rooms []string) {
	if len(rooms) == 0 {
		rooms = []string{RoomAll}
	}
	roomSet := make(map[string]struct{}, len(rooms))
	for _, r := range rooms {
		roomSet[r] = struct{}{}
	}

	c := &client{
		conn:        conn,
		rooms:       roomSet,
		connectedAt: time.Now(),
	}

	m.mu.Lock()
	if old, ok := m.clients[clientID]; ok {
		old.conn.Close()
	} else {
		metrics.ConnectedClients.Inc()
	}
	m.clients[clientID] = c
	m.mu.Unlock()

	m.logger.Info().
		Str("client_id", clientID).
		Strs("rooms", rooms).
		Msg("client connected")

	ack := Frame{
		"type":      "connection",
		"status":    "connected",
		"client_id": clientID,
		"rooms":     rooms,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := c.send(ack); err != nil {
		m.logger.Warn().Err(err).Str("client_id", clientID).Msg("connection ack failed")
		m.DisconnectConn(clientID, c.conn)
	}
}

// Disconnect removes all state for a client. Safe to call repeatedly.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	c, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	m.release(clientID, c)
}

// DisconnectConn removes a client's state only while conn is still the
// registered transport. A handler whose socket was replaced by a newer
// connection under the same ID must not tear down its successor.
func (m *Manager) DisconnectConn(clientID string, conn Conn) {
	m.mu.Lock()
	c, ok := m.clients[clientID]
	if ok && c.conn == conn {
		delete(m.clients, clientID)
	} else {
		c, ok = nil, false
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	m.release(clientID, c)
}

func (m *Manager) release(clientID string, c *client) {
	c.conn.Close()
	metrics.ConnectedClients.Dec()
	m.logger.Info().Str("client_id", clientID).Msg("client disconnected")
}

// SendToClient sends a frame to one client. On transport failure the client
// is disconnected and false is returned; a bad connection never aborts the
// caller's batch.
func (m *Manager) SendToClient(clientID string, frame Frame) bool {
	m.mu.RLock()
	c, ok := m.clients[clientID]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	if err := c.send(frame); err != nil {
		m.logger.Warn().Err(err).Str("client_id", clientID).Msg("send failed, dropping client")
		metrics.DeliveryFailures.Inc()
		m.DisconnectConn(clientID, c.conn)
		return false
	}
	return true
}

// Broadcast fans a frame out to every client whose room set matches room,
// minus exclusions. Sends run concurrently with per-client failure
// isolation. Returns the number of clients that received the frame.
func (m *Manager) Broadcast(frame Frame, room string, exclude map[string]struct{}) int {
	if room == "" {
		room = RoomAll
	}
	if _, ok := frame["timestamp"]; !ok {
		frame["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	// Snapshot recipients under the read lock, write outside it.
	m.mu.RLock()
	targets := make(map[string]*client)
	for id, c := range m.clients {
		if _, skip := exclude[id]; skip {
			continue
		}
		if !c.inRoom(room) {
			continue
		}
		if !matchesFilters(c.filters, frame) {
			continue
		}
		targets[id] = c
	}
	m.mu.RUnlock()

	var delivered atomic.Int64
	var wg sync.WaitGroup
	for id, c := range targets {
		wg.Add(1)
		go func(id string, c *client) {
			defer wg.Done()
			if err := c.send(frame); err != nil {
				m.logger.Warn().Err(err).Str("client_id", id).Msg("broadcast send failed, dropping client")
				metrics.DeliveryFailures.Inc()
				m.DisconnectConn(id, c.conn)
				return
			}
			delivered.Add(1)
		}(id, c)
	}
	wg.Wait()

	return int(delivered.Load())
}

// inRoom reports whether the client should see frames for room. A client
// subscribed to "all" sees everything, and a broadcast to "all" reaches
// every client.
func (c *client) inRoom(room string) bool {
	if room == RoomAll {
		return true
	}
	if _, ok := c.rooms[RoomAll]; ok {
		return true
	}
	_, ok := c.rooms[room]
	return ok
}
