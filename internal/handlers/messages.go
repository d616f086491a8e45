package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/a2abus-protocol/a2abus/internal/a2a"
	"github.com/a2abus-protocol/a2abus/internal/models"
)

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	From           string          `json:"from"`
	To             string          `json:"to"`
	Type           string          `json:"type,omitempty"`
	Content        json.RawMessage `json:"content"`
	Priority       string          `json:"priority,omitempty"`
	Subject        string          `json:"subject,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	InReplyTo      string          `json:"in_reply_to,omitempty"`
	RequiresAck    bool            `json:"requires_ack,omitempty"`
	TimeoutSec     int             `json:"timeout_seconds,omitempty"`
}

// SendMessageResponse represents the send message response.
type SendMessageResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessage handles sending a single A2A message.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !isValidAgentID(req.From) || !isValidAgentID(req.To) {
		h.Error(w, http.StatusBadRequest, "from and to must be valid agent IDs")
		return
	}

	msg, err := h.svc.SendMessage(r.Context(), a2a.SendInput{
		From:           req.From,
		To:             req.To,
		Type:           models.MessageType(req.Type),
		Content:        req.Content,
		Priority:       models.Priority(req.Priority),
		Subject:        req.Subject,
		ConversationID: req.ConversationID,
		InReplyTo:      req.InReplyTo,
		RequiresAck:    req.RequiresAck,
		TimeoutSec:     req.TimeoutSec,
	})
	if err != nil {
		if errors.Is(err, a2a.ErrInvalidPriority) || errors.Is(err, a2a.ErrInvalidMessageType) {
			h.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	h.JSON(w, http.StatusCreated, SendMessageResponse{
		ID:        msg.ID,
		Status:    string(msg.Status),
		CreatedAt: msg.CreatedAt,
	})
}

// BroadcastRequest represents the broadcast request body.
type BroadcastRequest struct {
	From       string          `json:"from"`
	Recipients []string        `json:"recipients"`
	Subject    string          `json:"subject,omitempty"`
	Content    json.RawMessage `json:"content"`
	Priority   string          `json:"priority,omitempty"`
}

// BroadcastResponse represents the broadcast response.
type BroadcastResponse struct {
	MessageIDs []string `json:"message_ids"`
	Recipients int      `json:"recipients"`
}

// Broadcast handles fanning one payload out as independent messages.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !isValidAgentID(req.From) {
		h.Error(w, http.StatusBadRequest, "from must be a valid agent ID")
		return
	}
	if len(req.Recipients) == 0 {
		h.Error(w, http.StatusBadRequest, "recipients is required")
		return
	}
	for _, to := range req.Recipients {
		if !isValidAgentID(to) {
			h.Error(w, http.StatusBadRequest, "invalid recipient: "+to)
			return
		}
	}

	ids, err := h.svc.BroadcastMessage(r.Context(), req.From, req.Recipients, req.Subject, req.Content, models.Priority(req.Priority))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "broadcast failed after "+strconv.Itoa(len(ids))+" messages")
		return
	}

	h.JSON(w, http.StatusCreated, BroadcastResponse{
		MessageIDs: ids,
		Recipients: len(ids),
	})
}

// SendRequestRequest represents the blocking request body.
type SendRequestRequest struct {
	From       string          `json:"from"`
	To         string          `json:"to"`
	Action     string          `json:"action"`
	Params     json.RawMessage `json:"params,omitempty"`
	Priority   string          `json:"priority,omitempty"`
	TimeoutSec int             `json:"timeout_seconds,omitempty"`
}

// SendRequest handles a blocking request/response exchange. A 204 response
// means the recipient did not answer within the timeout.
func (h *Handler) SendRequest(w http.ResponseWriter, r *http.Request) {
	var req SendRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !isValidAgentID(req.From) || !isValidAgentID(req.To) {
		h.Error(w, http.StatusBadRequest, "from and to must be valid agent IDs")
		return
	}
	if req.Action == "" {
		h.Error(w, http.StatusBadRequest, "action is required")
		return
	}

	timeout := time.Duration(req.TimeoutSec) * time.Second

	response, err := h.svc.SendRequest(r.Context(), req.From, req.To, req.Action, req.Params, models.Priority(req.Priority), timeout)
	if err != nil {
		if errors.Is(err, a2a.ErrInvalidPriority) {
			h.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Error(w, http.StatusInternalServerError, "request failed")
		return
	}
	if response == nil {
		// No answer within the timeout: distinct from an error response,
		// which arrives as ordinary content.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(response)
}

// SendResponseRequest represents the response body for answering a request.
type SendResponseRequest struct {
	From           string          `json:"from"`
	To             string          `json:"to"`
	InReplyTo      string          `json:"in_reply_to"`
	Content        json.RawMessage `json:"content"`
	ConversationID string          `json:"conversation_id,omitempty"`
}

// SendResponse handles answering an outstanding request.
func (h *Handler) SendResponse(w http.ResponseWriter, r *http.Request) {
	var req SendResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !isValidAgentID(req.From) || !isValidAgentID(req.To) {
		h.Error(w, http.StatusBadRequest, "from and to must be valid agent IDs")
		return
	}
	if req.InReplyTo == "" {
		h.Error(w, http.StatusBadRequest, "in_reply_to is required")
		return
	}

	msg, err := h.svc.SendResponse(r.Context(), req.From, req.To, req.InReplyTo, req.Content, req.ConversationID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to send response")
		return
	}

	h.JSON(w, http.StatusCreated, SendMessageResponse{
		ID:        msg.ID,
		Status:    string(msg.Status),
		CreatedAt: msg.CreatedAt,
	})
}

// InboxResponse represents the inbox query response.
type InboxResponse struct {
	Agent    string           `json:"agent"`
	Messages []models.Message `json:"messages"`
}

// GetInbox handles fetching an agent's priority-ordered inbox.
func (h *Handler) GetInbox(w http.ResponseWriter, r *http.Request) {
	agent := chi.URLParam(r, "agent")
	if !isValidAgentID(agent) {
		h.Error(w, http.StatusBadRequest, "invalid agent ID")
		return
	}

	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > 200 {
		limit = 200
	}
	unreadOnly := r.URL.Query().Get("unread_only") == "true"

	messages, err := h.svc.GetInbox(r.Context(), agent, limit, unreadOnly)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch inbox")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, InboxResponse{Agent: agent, Messages: messages})
}

// MarkRead handles marking a message as read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.MarkAsRead)
}

// Acknowledge handles acknowledging a message.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.AcknowledgeMessage)
}

// transition applies a status transition handler to the message in the URL.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.Error(w, http.StatusBadRequest, "message ID is required")
		return
	}

	err := fn(r.Context(), id)
	switch {
	case err == nil:
		h.JSON(w, http.StatusOK, map[string]string{"id": id, "status": "ok"})
	case errors.Is(err, a2a.ErrMessageNotFound):
		h.Error(w, http.StatusNotFound, "message not found")
	case errors.Is(err, a2a.ErrInvalidTransition):
		h.Error(w, http.StatusConflict, "invalid status transition")
	default:
		h.Error(w, http.StatusInternalServerError, "failed to update message")
	}
}
