package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/a2abus-protocol/a2abus/internal/dispatch"
	"github.com/a2abus-protocol/a2abus/internal/hub"
)

// StatsResponse represents the service statistics response.
type StatsResponse struct {
	Connections hub.Stats      `json:"connections"`
	Dispatcher  dispatch.Stats `json:"dispatcher"`
	PendingReqs int            `json:"pending_requests"`
}

// Stats returns live service statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, StatsResponse{
		Connections: h.hub.GetStats(),
		Dispatcher:  h.dispatcher.GetStats(),
		PendingReqs: h.svc.PendingRequests(),
	})
}

// AgentStats returns per-agent message counters from the repository.
func (h *Handler) AgentStats(w http.ResponseWriter, r *http.Request) {
	agent := chi.URLParam(r, "id")
	if !isValidAgentID(agent) {
		h.Error(w, http.StatusBadRequest, "invalid agent ID")
		return
	}

	stats, err := h.svc.GetStatistics(r.Context(), agent)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch statistics")
		return
	}

	h.JSON(w, http.StatusOK, stats)
}
