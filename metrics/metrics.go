package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"doc-collab/backend/cache"
)

// Metrics holds process-wide counters for the realtime layer.
type Metrics struct {
	activeConns    atomic.Int64
	connsTotal     atomic.Uint64
	messagesSent   atomic.Uint64
	messageErrors  atomic.Uint64
	joinErrors     atomic.Uint64
	presenceEvents atomic.Uint64

	// RoomCount reports live rooms when set.
	RoomCount func() int
	// CacheStats reports the author profile cache when it is enabled.
	CacheStats func() cache.Stats
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncConn() {
	m.activeConns.Add(1)
	m.connsTotal.Add(1)
}

func (m *Metrics) DecConn() {
	m.activeConns.Add(-1)
}

func (m *Metrics) IncMessage() {
	m.messagesSent.Add(1)
}

func (m *Metrics) IncMessageError() {
	m.messageErrors.Add(1)
}

func (m *Metrics) IncJoinError() {
	m.joinErrors.Add(1)
}

func (m *Metrics) IncPresence() {
	m.presenceEvents.Add(1)
}

// Snapshot returns the counters keyed by their exported names.
func (m *Metrics) Snapshot() map[string]any {
	payload := map[string]any{
		"active_connections": m.activeConns.Load(),
		"connections_total":  m.connsTotal.Load(),
		"messages_total":     m.messagesSent.Load(),
		"message_errors":     m.messageErrors.Load(),
		"join_errors":        m.joinErrors.Load(),
		"presence_events":    m.presenceEvents.Load(),
	}
	if m.RoomCount != nil {
		payload["active_rooms"] = m.RoomCount()
	}
	if m.CacheStats != nil {
		payload["profile_cache"] = m.CacheStats()
	}
	return payload
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
