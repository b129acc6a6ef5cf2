package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ironsheep/docrect-mcp/internal/geometry"
)

// Manager owns the live editing sessions, keyed by id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Open seeds and registers a new session with a fresh id.
func (m *Manager) Open(imageRef string, source geometry.Size, viewport geometry.Rect, seed geometry.SourcePolygon, origin Origin) *Session {
	s := New(uuid.NewString(), imageRef, source, viewport, seed, origin)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove forgets a session. Unknown ids are ignored.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
