package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"doc-collab/backend/models"

	"github.com/stretchr/testify/require"
)

// recordingSink stores every frame it receives, or fails when told to.
type recordingSink struct {
	mu     sync.Mutex
	frames []models.Frame
	fail   bool
	closed bool
}

func (s *recordingSink) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink unavailable")
	}
	var f models.Frame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		names = append(names, f.Event)
	}
	return names
}

func (s *recordingSink) last(t *testing.T) models.Frame {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.frames, "no frames received")
	return s.frames[len(s.frames)-1]
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}

func decodeData[T any](t *testing.T, f models.Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}
