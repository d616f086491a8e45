package models

import (
	"encoding/json"
	"time"
)

// MessageType classifies a message on the A2A protocol.
type MessageType string

const (
	TypeRequest      MessageType = "request"
	TypeResponse     MessageType = "response"
	TypeNotification MessageType = "notification"
	TypeBroadcast    MessageType = "broadcast"
	TypeHandshake    MessageType = "handshake"
	TypeHeartbeat    MessageType = "heartbeat"
)

var messageTypes = map[MessageType]bool{
	TypeRequest:      true,
	TypeResponse:     true,
	TypeNotification: true,
	TypeBroadcast:    true,
	TypeHandshake:    true,
	TypeHeartbeat:    true,
}

// Valid reports whether t is one of the defined message types.
func (t MessageType) Valid() bool {
	return messageTypes[t]
}

// Priority orders messages within an agent's inbox. Lower rank is more urgent.
type Priority string

const (
	PriorityCritical   Priority = "critical"
	PriorityHigh       Priority = "high"
	PriorityNormal     Priority = "normal"
	PriorityLow        Priority = "low"
	PriorityBackground Priority = "background"
)

// priorityRanks maps each priority to its numeric score (critical=0 ... background=4).
var priorityRanks = map[Priority]int{
	PriorityCritical:   0,
	PriorityHigh:       1,
	PriorityNormal:     2,
	PriorityLow:        3,
	PriorityBackground: 4,
}

// Rank returns the numeric urgency score. Unknown priorities rank as normal.
func (p Priority) Rank() int {
	if r, ok := priorityRanks[p]; ok {
		return r
	}
	return priorityRanks[PriorityNormal]
}

// Valid reports whether p is one of the defined priorities.
func (p Priority) Valid() bool {
	_, ok := priorityRanks[p]
	return ok
}

// Status tracks a message through its delivery lifecycle.
type Status string

const (
	StatusPending      Status = "pending"
	StatusDelivered    Status = "delivered"
	StatusRead         Status = "read"
	StatusAcknowledged Status = "acknowledged"
	StatusFailed       Status = "failed"
	StatusTimeout      Status = "timeout"
	StatusCancelled    Status = "cancelled"
)

// statusSeq orders the happy-path lifecycle. Terminal failure states are
// not part of the sequence and never advance further.
var statusSeq = map[Status]int{
	StatusPending:      0,
	StatusDelivered:    1,
	StatusRead:         2,
	StatusAcknowledged: 3,
}

// CanAdvanceTo reports whether moving from s to next is a legal, monotonic
// transition. Repeating the current status is allowed (idempotent marks);
// moving backwards or out of a terminal state is not.
func (s Status) CanAdvanceTo(next Status) bool {
	switch next {
	case StatusFailed, StatusTimeout, StatusCancelled:
		// A live message may always fail; a terminal one may not change.
		_, live := statusSeq[s]
		return live || s == next
	}
	from, okFrom := statusSeq[s]
	to, okTo := statusSeq[next]
	if !okFrom || !okTo {
		return false
	}
	return to >= from
}

// Message is a single A2A protocol message between two agents.
type Message struct {
	ID             string          `json:"id"` // ULID
	FromAgent      string          `json:"from"`
	ToAgent        string          `json:"to"`
	Type           MessageType     `json:"type"`
	Priority       Priority        `json:"priority"`
	Status         Status          `json:"status"`
	Content        json.RawMessage `json:"content"`
	Subject        string          `json:"subject,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	InReplyTo      string          `json:"in_reply_to,omitempty"`
	RequiresAck    bool            `json:"requires_ack"`
	TimeoutSec     int             `json:"timeout_seconds"`
	CreatedAt      time.Time       `json:"created_at"`
	ReadAt         *time.Time      `json:"read_at,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
}

// InboxScore computes the sorted-set score that yields priority-then-FIFO
// ordering from a single ascending range: the priority rank occupies the
// high digits, the creation time in unix milliseconds the low ones.
func InboxScore(p Priority, createdAt time.Time) float64 {
	return float64(p.Rank())*1e13 + float64(createdAt.UnixMilli())
}
