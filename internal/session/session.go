// Package session implements the wire contract clients speak to the
// dispatcher: subscribe/unsubscribe to rooms, ping for latency, and set
// delivery filters.
package session

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/a2abus-protocol/a2abus/internal/hub"
)

// Command is one client-to-dispatcher frame.
type Command struct {
	Type    string         `json:"type"`
	Rooms   []string       `json:"rooms,omitempty"`
	Time    float64        `json:"time,omitempty"`
	Filters map[string]any `json:"filters,omitempty"`
}

// Handler applies session commands for connected clients. It only mutates
// state through the connection manager.
type Handler struct {
	hub    *hub.Manager
	logger zerolog.Logger
}

// NewHandler creates a session protocol handler.
func NewHandler(h *hub.Manager, logger zerolog.Logger) *Handler {
	return &Handler{hub: h, logger: logger}
}

// Handle processes one raw frame from a client and sends the protocol
// reply. Malformed or unknown frames get an error reply; they never tear
// down the session.
func (h *Handler) Handle(clientID string, payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		h.logger.Warn().Err(err).Str("client_id", clientID).Msg("malformed session command")
		h.hub.SendToClient(clientID, hub.Frame{
			"type":  "error",
			"error": "invalid JSON",
		})
		return
	}

	switch cmd.Type {
	case "subscribe":
		rooms := h.hub.Subscribe(clientID, cmd.Rooms)
		h.hub.SendToClient(clientID, hub.Frame{
			"type":  "subscribed",
			"rooms": rooms,
		})

	case "unsubscribe":
		rooms := h.hub.Unsubscribe(clientID, cmd.Rooms)
		h.hub.SendToClient(clientID, hub.Frame{
			"type":  "unsubscribed",
			"rooms": rooms,
		})

	case "ping":
		h.hub.SendToClient(clientID, hub.Frame{
			"type":        "pong",
			"client_time": cmd.Time,
			"server_time": float64(time.Now().UnixNano()) / 1e9,
		})

	case "filter":
		h.hub.SetFilters(clientID, cmd.Filters)
		h.hub.SendToClient(clientID, hub.Frame{
			"type":    "filter_set",
			"filters": cmd.Filters,
		})

	default:
		h.hub.SendToClient(clientID, hub.Frame{
			"type":  "error",
			"error": "unknown command type: " + cmd.Type,
		})
	}
}
