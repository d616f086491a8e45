package hub

import (
	"encoding/json"
	"reflect"
	"sort"
	"time"
)

// Subscribe adds rooms to a client's subscription set and returns the
// resulting set, sorted for stable replies.
func (m *Manager) Subscribe(clientID string, rooms []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[clientID]
	if !ok {
		return nil
	}
	for _, r := range rooms {
		if r != "" {
			c.rooms[r] = struct{}{}
		}
	}
	return roomList(c.rooms)
}

// Unsubscribe removes rooms from a client's subscription set and returns
// the resulting set.
func (m *Manager) Unsubscribe(clientID string, rooms []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[clientID]
	if !ok {
		return nil
	}
	for _, r := range rooms {
		delete(c.rooms, r)
	}
	return roomList(c.rooms)
}

// SetFilters stores a client's delivery filter. Frames whose data does not
// match every filter entry are withheld from that client during fan-out.
func (m *Manager) SetFilters(clientID string, filters map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[clientID]; ok {
		c.filters = filters
	}
}

// matchesFilters reports whether a frame passes a client's filter: every
// filter key must be present in the frame's data with an equal value. A
// client without filters receives everything.
func matchesFilters(filters map[string]any, frame Frame) bool {
	if len(filters) == 0 {
		return true
	}

	data, ok := frameData(frame)
	if !ok {
		return false
	}
	for k, want := range filters {
		got, present := data[k]
		if !present || !reflect.DeepEqual(normalize(want), normalize(got)) {
			return false
		}
	}
	return true
}

// frameData extracts the frame's data payload as a map.
func frameData(frame Frame) (map[string]any, bool) {
	switch v := frame["data"].(type) {
	case map[string]any:
		return v, true
	case json.RawMessage:
		var data map[string]any
		if err := json.Unmarshal(v, &data); err != nil {
			return nil, false
		}
		return data, true
	case []byte:
		var data map[string]any
		if err := json.Unmarshal(v, &data); err != nil {
			return nil, false
		}
		return data, true
	default:
		return nil, false
	}
}

// normalize round-trips a value through JSON so filter values set from Go
// literals compare equal to decoded wire values.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// Stats summarizes the manager's current connections.
type Stats struct {
	Connections   int                 `json:"connections"`
	Rooms         map[string][]string `json:"rooms"`
	TotalSent     int64               `json:"total_messages_sent"`
	AvgSent       float64             `json:"avg_messages_sent"`
	OldestConnAge float64             `json:"oldest_connection_age_seconds"`
}

// GetStats returns connection counts, room membership, send totals, and the
// age of the oldest connection.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Connections: len(m.clients),
		Rooms:       make(map[string][]string),
	}

	now := time.Now()
	for id, c := range m.clients {
		stats.TotalSent += c.messagesSent.Load()
		for room := range c.rooms {
			stats.Rooms[room] = append(stats.Rooms[room], id)
		}
		if age := now.Sub(c.connectedAt).Seconds(); age > stats.OldestConnAge {
			stats.OldestConnAge = age
		}
	}
	for room := range stats.Rooms {
		sort.Strings(stats.Rooms[room])
	}
	if stats.Connections > 0 {
		stats.AvgSent = float64(stats.TotalSent) / float64(stats.Connections)
	}
	return stats
}

// roomList returns a sorted copy of a room set.
func roomList(set map[string]struct{}) []string {
	rooms := make([]string, 0, len(set))
	for r := range set {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}
