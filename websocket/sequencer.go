package websocket

import "sync"

// roomSequencer hands out one mutex per document so that a room's messages
// are persisted and broadcast one at a time. Entries are dropped once no
// sender holds or waits on them.
type roomSequencer struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomSequencer() *roomSequencer {
	return &roomSequencer{locks: make(map[string]*roomLock)}
}

// lock blocks until documentID is free and returns the matching unlock.
func (s *roomSequencer) lock(documentID string) func() {
	s.mu.Lock()
	l, ok := s.locks[documentID]
	if !ok {
		l = &roomLock{}
		s.locks[documentID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, documentID)
		}
		s.mu.Unlock()
	}
}

func (s *roomSequencer) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
