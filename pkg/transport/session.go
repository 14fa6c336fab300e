package transport

import (
	"errors"
	"sync"
)

// ErrSessionExists is returned when a peer attaches twice.
var ErrSessionExists = errors.New("session already exists")

// session is one attached client: its identifier (client DID in sealed
// mode, a generated session ID otherwise) and the queue of events to be
// written onto its SSE stream.
type session struct {
	id     string
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func newSession(id string) *session {
	return &session{
		id:     id,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
}

// push queues an event for the SSE writer, dropping it if the session
// has ended.
func (s *session) push(ev Event) bool {
	select {
	case <-s.done:
		return false
	case s.events <- ev:
		return true
	}
}

func (s *session) close() {
	s.once.Do(func() { close(s.done) })
}

// sessionManager tracks attached clients by identifier.
type sessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionManager() *sessionManager {
	return &sessionManager{sessions: make(map[string]*session)}
}

func (m *sessionManager) add(id string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		return nil, ErrSessionExists
	}
	s := newSession(id)
	m.sessions[id] = s
	return s, nil
}

func (m *sessionManager) get(id string) *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

func (m *sessionManager) remove(id string) {
	m.mu.Lock()
	s := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if s != nil {
		s.close()
	}
}

func (m *sessionManager) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
