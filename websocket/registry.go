package websocket

import (
	"log"
	"sync"
)

// Sink delivers encoded frames to one live connection. Send must not block.
type Sink interface {
	Send(frame []byte) error
	Close() error
}

// ConnectionInfo is the registry's view of one connection.
type ConnectionInfo struct {
	ConnectionID string
	UserID       string
	DocumentID   string
}

type connEntry struct {
	userID     string
	documentID string
	sink       Sink
}

// ConnectionRegistry owns the connection -> (user, document) mapping for the
// lifetime of the process.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*connEntry
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{conns: make(map[string]*connEntry)}
}

// Register adds a new connection. A second registration of the same ID is an
// invariant violation and returns ErrDuplicateConnection.
func (r *ConnectionRegistry) Register(connectionID, userID string, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[connectionID]; exists {
		return ErrDuplicateConnection
	}
	r.conns[connectionID] = &connEntry{userID: userID, sink: sink}
	return nil
}

// SetRoom records the document a connection is in ("" for none). It reports
// false when the connection is not registered.
func (r *ConnectionRegistry) SetRoom(connectionID, documentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[connectionID]
	if !ok {
		return false
	}
	entry.documentID = documentID
	return true
}

// Unregister removes a connection and returns its last known state. Repeated
// calls report false.
func (r *ConnectionRegistry) Unregister(connectionID string) (ConnectionInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[connectionID]
	if !ok {
		return ConnectionInfo{}, false
	}
	delete(r.conns, connectionID)
	return entry.info(connectionID), true
}

// Lookup returns the current state of a connection.
func (r *ConnectionRegistry) Lookup(connectionID string) (ConnectionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[connectionID]
	if !ok {
		return ConnectionInfo{}, false
	}
	return entry.info(connectionID), true
}

// Count returns the number of live connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every live sink. Each transport then runs its own disconnect path.
func (r *ConnectionRegistry) CloseAll() {
	r.mu.RLock()
	sinks := make([]Sink, 0, len(r.conns))
	for _, entry := range r.conns {
		sinks = append(sinks, entry.sink)
	}
	r.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			log.Printf("[registry] close failed: %v", err)
		}
	}
}

func (r *ConnectionRegistry) sink(connectionID string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[connectionID]
	if !ok {
		return nil, false
	}
	return entry.sink, true
}

func (e *connEntry) info(connectionID string) ConnectionInfo {
	return ConnectionInfo{ConnectionID: connectionID, UserID: e.userID, DocumentID: e.documentID}
}
