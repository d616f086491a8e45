package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/a2abus-protocol/a2abus/internal/a2a"
	"github.com/a2abus-protocol/a2abus/internal/models"
)

// CreateConversationRequest represents the conversation creation body.
type CreateConversationRequest struct {
	Participants []string `json:"participants"`
	Topic        string   `json:"topic,omitempty"`
	Purpose      string   `json:"purpose,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// CreateConversation handles starting a conversation.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	for _, p := range req.Participants {
		if !isValidAgentID(p) {
			h.Error(w, http.StatusBadRequest, "invalid participant: "+p)
			return
		}
	}

	conv, err := h.svc.CreateConversation(r.Context(), req.Participants, req.Topic, req.Purpose, req.Tags)
	if err != nil {
		if errors.Is(err, a2a.ErrTooFewParticipants) {
			h.Error(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	h.JSON(w, http.StatusCreated, conv)
}

// ConversationResponse represents the conversation detail response.
type ConversationResponse struct {
	Conversation *models.Conversation `json:"conversation"`
	Messages     []models.Message     `json:"messages"`
}

// GetConversation handles fetching a conversation with its messages.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID format")
		return
	}

	limit := 100
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > 500 {
		limit = 500
	}

	conv, messages, err := h.svc.GetConversation(r.Context(), id, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch conversation")
		return
	}
	if conv == nil {
		h.Error(w, http.StatusNotFound, "conversation not found")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, ConversationResponse{Conversation: conv, Messages: messages})
}

// GetActiveConversations handles listing an agent's active conversations.
func (h *Handler) GetActiveConversations(w http.ResponseWriter, r *http.Request) {
	agent := chi.URLParam(r, "id")
	if !isValidAgentID(agent) {
		h.Error(w, http.StatusBadRequest, "invalid agent ID")
		return
	}

	conversations, err := h.svc.GetActiveConversations(r.Context(), agent)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch conversations")
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}

	h.JSON(w, http.StatusOK, map[string]any{
		"agent":         agent,
		"conversations": conversations,
	})
}
