package models

import (
	"testing"
	"time"
)

func TestPriorityRank(t *testing.T) {
	ordered := []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow, PriorityBackground}
	for i, p := range ordered {
		if p.Rank() != i {
			t.Errorf("%s: rank = %d, want %d", p, p.Rank(), i)
		}
		if !p.Valid() {
			t.Errorf("%s: Valid() = false", p)
		}
	}
	if Priority("urgent").Valid() {
		t.Error("unknown priority reported valid")
	}
	if got := Priority("urgent").Rank(); got != PriorityNormal.Rank() {
		t.Errorf("unknown priority rank = %d, want normal's %d", got, PriorityNormal.Rank())
	}
}

func TestMessageTypeValid(t *testing.T) {
	for _, mt := range []MessageType{TypeRequest, TypeResponse, TypeNotification, TypeBroadcast, TypeHandshake, TypeHeartbeat} {
		if !mt.Valid() {
			t.Errorf("%s: Valid() = false", mt)
		}
	}
	for _, mt := range []MessageType{"", "bogus", "REQUEST"} {
		if mt.Valid() {
			t.Errorf("%q: Valid() = true", mt)
		}
	}
}

func TestInboxScoreOrdering(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	later := base.Add(5 * time.Minute)

	// Higher priority always sorts first, regardless of age.
	if InboxScore(PriorityCritical, later) >= InboxScore(PriorityHigh, base) {
		t.Error("critical message should score below older high message")
	}
	if InboxScore(PriorityNormal, base) >= InboxScore(PriorityLow, base) {
		t.Error("normal should score below low at the same instant")
	}

	// Within a priority, older messages sort first.
	if InboxScore(PriorityNormal, base) >= InboxScore(PriorityNormal, later) {
		t.Error("older message should score below newer at same priority")
	}
}

func TestStatusCanAdvanceTo(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusDelivered, true},
		{StatusPending, StatusRead, true},
		{StatusDelivered, StatusAcknowledged, true},
		{StatusRead, StatusRead, true}, // idempotent re-mark
		{StatusRead, StatusDelivered, false},
		{StatusAcknowledged, StatusRead, false},
		{StatusPending, StatusTimeout, true},
		{StatusRead, StatusFailed, true},
		{StatusTimeout, StatusDelivered, false},
		{StatusFailed, StatusFailed, true},
		{StatusCancelled, StatusTimeout, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanAdvanceTo(tt.to); got != tt.ok {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}
