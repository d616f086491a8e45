package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/a2abus-protocol/a2abus/internal/a2a"
	"github.com/a2abus-protocol/a2abus/internal/broker"
	"github.com/a2abus-protocol/a2abus/internal/dispatch"
	"github.com/a2abus-protocol/a2abus/internal/hub"
	"github.com/a2abus-protocol/a2abus/internal/session"
	"github.com/a2abus-protocol/a2abus/internal/store"
)

// agentIDRegex validates agent identifiers: 1-64 chars, alphanumeric with
// hyphens, underscores and dots.
var agentIDRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	svc        *a2a.Service
	hub        *hub.Manager
	dispatcher *dispatch.Dispatcher
	session    *session.Handler
	store      store.DataStore
	broker     *broker.RedisBroker
}

// NewHandler creates a new Handler with the given services.
func NewHandler(svc *a2a.Service, h *hub.Manager, d *dispatch.Dispatcher, sess *session.Handler, ds store.DataStore, b *broker.RedisBroker) *Handler {
	return &Handler{
		svc:        svc,
		hub:        h,
		dispatcher: d,
		session:    sess,
		store:      ds,
		broker:     b,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// isValidAgentID validates an agent identifier.
func isValidAgentID(id string) bool {
	return agentIDRegex.MatchString(id)
}
