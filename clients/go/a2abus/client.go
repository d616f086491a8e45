// Package a2abus provides a client for the a2abus agent messaging service.
package a2abus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is an a2abus API client.
type Client struct {
	BaseURL    string
	APIKey     string
	AgentID    string
	HTTPClient *http.Client
}

// NewClient creates a new client for the given server and agent identity.
func NewClient(baseURL, apiKey, agentID string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		AgentID:    agentID,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-A2A-Key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, resp.StatusCode, fmt.Errorf("a2abus error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, resp.StatusCode, nil
}

// SendMessageInput is the body for Send.
type SendMessageInput struct {
	To             string          `json:"to"`
	Type           string          `json:"type,omitempty"`
	Content        json.RawMessage `json:"content"`
	Priority       string          `json:"priority,omitempty"`
	Subject        string          `json:"subject,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	RequiresAck    bool            `json:"requires_ack,omitempty"`
}

// SendResult is the response from sending a message.
type SendResult struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Send sends a single message from this client's agent.
func (c *Client) Send(in SendMessageInput) (*SendResult, error) {
	payload := struct {
		From string `json:"from"`
		SendMessageInput
	}{From: c.AgentID, SendMessageInput: in}

	body, _ := json.Marshal(payload)
	respBody, _, err := c.doRequest("POST", "/messages", body)
	if err != nil {
		return nil, err
	}

	var result SendResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Request sends a blocking request and returns the response content, or
// nil when the recipient did not answer within the timeout.
func (c *Client) Request(to, action string, params json.RawMessage, timeoutSec int) (json.RawMessage, error) {
	payload := map[string]any{
		"from":            c.AgentID,
		"to":              to,
		"action":          action,
		"params":          params,
		"timeout_seconds": timeoutSec,
	}

	body, _ := json.Marshal(payload)
	respBody, status, err := c.doRequest("POST", "/requests", body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return respBody, nil
}

// Respond answers an outstanding request.
func (c *Client) Respond(to, inReplyTo string, content json.RawMessage) (*SendResult, error) {
	payload := map[string]any{
		"from":        c.AgentID,
		"to":          to,
		"in_reply_to": inReplyTo,
		"content":     content,
	}

	body, _ := json.Marshal(payload)
	respBody, _, err := c.doRequest("POST", "/responses", body)
	if err != nil {
		return nil, err
	}

	var result SendResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Message mirrors the server's message shape.
type Message struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Type      string          `json:"type"`
	Priority  string          `json:"priority"`
	Status    string          `json:"status"`
	Content   json.RawMessage `json:"content"`
	Subject   string          `json:"subject,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// InboxResult is the response from fetching the inbox.
type InboxResult struct {
	Agent    string    `json:"agent"`
	Messages []Message `json:"messages"`
}

// Inbox fetches this agent's priority-ordered inbox.
func (c *Client) Inbox(limit int, unreadOnly bool) (*InboxResult, error) {
	path := fmt.Sprintf("/inbox/%s?limit=%d", c.AgentID, limit)
	if unreadOnly {
		path += "&unread_only=true"
	}

	respBody, _, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var result InboxResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkRead marks a message as read.
func (c *Client) MarkRead(messageID string) error {
	_, _, err := c.doRequest("POST", "/messages/"+messageID+"/read", nil)
	return err
}

// Acknowledge acknowledges a message.
func (c *Client) Acknowledge(messageID string) error {
	_, _, err := c.doRequest("POST", "/messages/"+messageID+"/ack", nil)
	return err
}

// Health fetches the server health report.
func (c *Client) Health() (json.RawMessage, error) {
	respBody, _, err := c.doRequest("GET", "/health", nil)
	return respBody, err
}
