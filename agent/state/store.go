package state

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	ErrStateNotFound   = errors.New("session not found")
	ErrNilSessionState = errors.New("session is nil")
)

// Store is the persistence contract used by the orchestrator. Sessions live
// only as long as the process.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore keeps deep copies so callers never share a live *Session.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session, 4)}
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (*Session, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, ErrInvalidSession
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrStateNotFound
	}
	return s.Snapshot(), nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if s == nil {
		return ErrNilSessionState
	}
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sessions[s.ID]; ok && statusRank(s.Status) < statusRank(prev.Status) {
		return ErrInvalidTransition
	}
	m.sessions[s.ID] = s.Snapshot()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, strings.TrimSpace(sessionID))
	return nil
}

func statusRank(s Status) int {
	switch s {
	case StatusActive:
		return 0
	case StatusQualified, StatusAbandoned:
		return 1
	case StatusCompleted:
		return 2
	default:
		return -1
	}
}
