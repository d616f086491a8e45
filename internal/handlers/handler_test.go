package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/a2abus-protocol/a2abus/internal/a2a"
)

// newValidationHandler builds a handler whose backends are never reached:
// every request in these tests is rejected at the validation layer.
func newValidationHandler() *Handler {
	svc := a2a.NewService(nil, nil, zerolog.Nop(), 0)
	return NewHandler(svc, nil, nil, nil, nil, nil)
}

func TestIsValidAgentID(t *testing.T) {
	valid := []string{"alice", "agent-1", "svc.worker_2", "A", strings.Repeat("x", 64)}
	for _, id := range valid {
		if !isValidAgentID(id) {
			t.Errorf("%q rejected, want valid", id)
		}
	}
	invalid := []string{"", "has space", "semi;colon", "sla/sh", strings.Repeat("x", 65), "ünïcode"}
	for _, id := range invalid {
		if isValidAgentID(id) {
			t.Errorf("%q accepted, want invalid", id)
		}
	}
}

func TestSendMessageValidation(t *testing.T) {
	h := newValidationHandler()
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"from":`},
		{"missing to", `{"from":"alice","content":{}}`},
		{"bad agent id", `{"from":"alice","to":"bad agent","content":{}}`},
		{"unknown priority", `{"from":"alice","to":"bob","priority":"urgent","content":{}}`},
		{"unknown type", `{"from":"alice","to":"bob","type":"gossip","content":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.SendMessage(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestBroadcastValidation(t *testing.T) {
	h := newValidationHandler()
	tests := []struct {
		name string
		body string
	}{
		{"no recipients", `{"from":"alice","recipients":[],"content":{}}`},
		{"bad recipient", `{"from":"alice","recipients":["bob","not ok"],"content":{}}`},
		{"bad from", `{"from":"","recipients":["bob"],"content":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/messages/broadcast", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Broadcast(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSendRequestValidation(t *testing.T) {
	h := newValidationHandler()

	req := httptest.NewRequest(http.MethodPost, "/requests", strings.NewReader(`{"from":"alice","to":"bob"}`))
	rec := httptest.NewRecorder()
	h.SendRequest(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing action: status = %d, want 400", rec.Code)
	}
}

func TestSendResponseValidation(t *testing.T) {
	h := newValidationHandler()

	req := httptest.NewRequest(http.MethodPost, "/responses", strings.NewReader(`{"from":"bob","to":"alice","content":{}}`))
	rec := httptest.NewRecorder()
	h.SendResponse(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing in_reply_to: status = %d, want 400", rec.Code)
	}
}

func TestGetInboxInvalidAgent(t *testing.T) {
	h := newValidationHandler()

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("agent", "not valid!")
	req := httptest.NewRequest(http.MethodGet, "/inbox/not%20valid", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	h.GetInbox(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
