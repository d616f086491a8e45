package hub

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	m := newTestManager()
	m.Connect(&fakeConn{}, "agent-1", []string{"alpha"})

	got := m.Subscribe("agent-1", []string{"beta", "gamma", ""})
	want := []string{"alpha", "beta", "gamma"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("after subscribe: %v, want %v", got, want)
	}

	got = m.Unsubscribe("agent-1", []string{"alpha", "missing"})
	want = []string{"beta", "gamma"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("after unsubscribe: %v, want %v", got, want)
	}

	if rooms := m.Subscribe("ghost", []string{"x"}); rooms != nil {
		t.Errorf("subscribe for unknown client returned %v", rooms)
	}
}

func TestFilteredBroadcast(t *testing.T) {
	m := newTestManager()
	filtered := &fakeConn{}
	open := &fakeConn{}
	m.Connect(filtered, "picky", nil)
	m.Connect(open, "open", nil)
	m.SetFilters("picky", map[string]any{"severity": "critical"})

	m.Broadcast(Frame{"type": "event", "data": map[string]any{"severity": "info"}}, RoomAll, nil)
	m.Broadcast(Frame{"type": "event", "data": map[string]any{"severity": "critical"}}, RoomAll, nil)

	if got := len(filtered.received()); got != 2 { // ack + one matching event
		t.Errorf("filtered client got %d frames, want 2", got)
	}
	if got := len(open.received()); got != 3 { // ack + both events
		t.Errorf("unfiltered client got %d frames, want 3", got)
	}
}

func TestMatchesFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters map[string]any
		frame   Frame
		want    bool
	}{
		{"no filters", nil, Frame{"data": map[string]any{"a": 1}}, true},
		{"match", map[string]any{"a": "x"}, Frame{"data": map[string]any{"a": "x"}}, true},
		{"mismatch", map[string]any{"a": "x"}, Frame{"data": map[string]any{"a": "y"}}, false},
		{"missing key", map[string]any{"a": "x"}, Frame{"data": map[string]any{"b": "x"}}, false},
		{"no data", map[string]any{"a": "x"}, Frame{"type": "event"}, false},
		{"numeric across encodings", map[string]any{"n": 3}, Frame{"data": map[string]any{"n": float64(3)}}, true},
		{"raw json data", map[string]any{"room": "ops"}, Frame{"data": json.RawMessage(`{"room":"ops"}`)}, true},
		{"extra keys ignored", map[string]any{"a": true}, Frame{"data": map[string]any{"a": true, "b": 1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesFilters(tt.filters, tt.frame); got != tt.want {
				t.Errorf("matchesFilters = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	m := newTestManager()
	m.Connect(&fakeConn{}, "b", []string{"ops"})
	m.Connect(&fakeConn{}, "a", []string{"ops", "dev"})

	m.Broadcast(Frame{"type": "event"}, "ops", nil)

	stats := m.GetStats()
	if stats.Connections != 2 {
		t.Errorf("connections = %d, want 2", stats.Connections)
	}
	if !reflect.DeepEqual(stats.Rooms["ops"], []string{"a", "b"}) {
		t.Errorf("ops members = %v, want [a b]", stats.Rooms["ops"])
	}
	// Each client got a connection ack plus the broadcast.
	if stats.TotalSent != 4 {
		t.Errorf("total sent = %d, want 4", stats.TotalSent)
	}
	if stats.AvgSent != 2 {
		t.Errorf("avg sent = %g, want 2", stats.AvgSent)
	}
}
