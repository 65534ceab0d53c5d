package websocket

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"doc-collab/backend/models"
)

// RoomState tags where a room is in its lifecycle. A room that reaches
// RoomEmpty is removed from the manager in the same critical section.
type RoomState int

const (
	RoomEmpty RoomState = iota
	RoomActive
)

func (s RoomState) String() string {
	if s == RoomActive {
		return "active"
	}
	return "empty"
}

// Room is the set of connections viewing one document.
type Room struct {
	documentID string
	state      RoomState
	members    map[string]string // connectionID -> userID
}

func newRoom(documentID string) *Room {
	return &Room{documentID: documentID, state: RoomEmpty, members: make(map[string]string)}
}

func (room *Room) add(connectionID, userID string) {
	room.members[connectionID] = userID
	room.state = RoomActive
}

func (room *Room) remove(connectionID string) (string, bool) {
	userID, ok := room.members[connectionID]
	if !ok {
		return "", false
	}
	delete(room.members, connectionID)
	if len(room.members) == 0 {
		room.state = RoomEmpty
	}
	return userID, true
}

// RoomManager owns the document -> members mapping. Lock order is always
// RoomManager then ConnectionRegistry.
type RoomManager struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	registry *ConnectionRegistry
}

func NewRoomManager(registry *ConnectionRegistry) *RoomManager {
	return &RoomManager{rooms: make(map[string]*Room), registry: registry}
}

// Join puts a connection in a document's room and tells the other members.
// A connection is in at most one room, so joining a new document leaves the
// previous one first. Re-joining the current room changes nothing and reports false.
func (m *RoomManager) Join(documentID, connectionID, userID string) (bool, error) {
	if documentID == "" {
		return false, fmt.Errorf("%w: document id is required", ErrJoin)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.registry.Lookup(connectionID)
	if !ok {
		return false, ErrUnknownConnection
	}
	if room, exists := m.rooms[documentID]; exists {
		if _, member := room.members[connectionID]; member {
			return false, nil
		}
	}
	if info.DocumentID != "" && info.DocumentID != documentID {
		m.leaveLocked(info.DocumentID, connectionID)
	}

	room, exists := m.rooms[documentID]
	if !exists {
		room = newRoom(documentID)
		m.rooms[documentID] = room
	}
	room.add(connectionID, userID)
	m.registry.SetRoom(connectionID, documentID)

	log.Printf("[rooms] %s (user %s) joined %s, %d member(s)", connectionID, userID, documentID, len(room.members))
	m.broadcastLocked(room, models.NewPresenceEvent(models.EventUserJoined, userID, connectionID), connectionID)
	return true, nil
}

// Leave removes a connection from a room. Non-members are ignored. It reports
// whether the membership changed.
func (m *RoomManager) Leave(documentID, connectionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	left := m.leaveLocked(documentID, connectionID)
	if info, ok := m.registry.Lookup(connectionID); ok && info.DocumentID == documentID {
		m.registry.SetRoom(connectionID, "")
	}
	return left
}

// Broadcast delivers event to every live member of the room and returns how
// many deliveries succeeded. Failures are logged and skipped.
func (m *RoomManager) Broadcast(documentID string, event *models.Event) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[documentID]
	if !ok {
		log.Printf("[rooms] Room %s not found for broadcasting %s", documentID, event.Name)
		return 0
	}
	return m.broadcastLocked(room, event, "")
}

// Members returns a copy of a room's connectionID -> userID set.
func (m *RoomManager) Members(documentID string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := make(map[string]string)
	if room, ok := m.rooms[documentID]; ok {
		for connectionID, userID := range room.members {
			members[connectionID] = userID
		}
	}
	return members
}

// PresentUsers returns the distinct users viewing a document, sorted.
func (m *RoomManager) PresentUsers(documentID string) []string {
	seen := make(map[string]struct{})
	users := make([]string, 0)
	for _, userID := range m.Members(documentID) {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// State returns the lifecycle tag of a room; removed rooms report RoomEmpty and false.
func (m *RoomManager) State(documentID string) (RoomState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[documentID]
	if !ok {
		return RoomEmpty, false
	}
	return room.state, true
}

// RoomCount returns the number of live rooms.
func (m *RoomManager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

func (m *RoomManager) leaveLocked(documentID, connectionID string) bool {
	room, ok := m.rooms[documentID]
	if !ok {
		return false
	}
	userID, ok := room.remove(connectionID)
	if !ok {
		return false
	}

	log.Printf("[rooms] %s (user %s) left %s, %d member(s)", connectionID, userID, documentID, len(room.members))
	if room.state == RoomEmpty {
		delete(m.rooms, documentID)
		return true
	}
	m.broadcastLocked(room, models.NewPresenceEvent(models.EventUserLeft, userID, connectionID), "")
	return true
}

// broadcastLocked encodes event once and fans it out to members other than except.
func (m *RoomManager) broadcastLocked(room *Room, event *models.Event, except string) int {
	frame, err := json.Marshal(event)
	if err != nil {
		log.Printf("[rooms] Failed to marshal %s: %v", event.Name, err)
		return 0
	}

	delivered := 0
	for connectionID := range room.members {
		if connectionID == except {
			continue
		}
		sink, live := m.registry.sink(connectionID)
		if !live {
			continue
		}
		if err := sink.Send(frame); err != nil {
			log.Printf("[rooms] Failed to send %s to %s: %v", event.Name, connectionID, err)
			continue
		}
		delivered++
	}
	return delivered
}
