package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// upgrader promotes HTTP requests to WebSocket connections. Origin checks
// are delegated to the API-key gate; agents connect from anywhere.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// maxFrameSize bounds inbound session command frames.
const maxFrameSize = 8 * 1024

// WebSocket upgrades the connection, registers it with the connection
// manager, and pumps inbound frames through the session protocol until the
// client goes away.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.New().String()
	}

	var rooms []string
	if raw := r.URL.Query().Get("rooms"); raw != "" {
		for _, room := range strings.Split(raw, ",") {
			room = strings.TrimSpace(room)
			if room != "" {
				rooms = append(rooms, room)
			}
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		return
	}
	conn.SetReadLimit(maxFrameSize)

	h.hub.Connect(conn, clientID, rooms)
	// Identity-aware teardown: if a reconnect under the same client_id has
	// already replaced this socket, leave the successor's registration alone.
	defer h.hub.DisconnectConn(clientID, conn)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.session.Handle(clientID, payload)
	}
}
