package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SinkFactory builds the per-session view sink.
type SinkFactory func(sessionID string) ViewSink

// Manager owns the live sessions. Sessions are independent: each gets its own
// controller and sink; only the read-only catalog is shared.
type Manager struct {
	catalog  Cataloger
	provider TimeSeriesProvider
	newSink  SinkFactory

	mu       sync.RWMutex
	sessions map[string]*Controller
}

func NewManager(cat Cataloger, provider TimeSeriesProvider, newSink SinkFactory) *Manager {
	return &Manager{
		catalog:  cat,
		provider: provider,
		newSink:  newSink,
		sessions: make(map[string]*Controller),
	}
}

// Create starts a new session and returns its controller.
func (m *Manager) Create() *Controller {
	id := uuid.NewString()
	ctrl := NewController(id, m.catalog, m.provider, m.newSink(id))
	m.mu.Lock()
	m.sessions[id] = ctrl
	m.mu.Unlock()
	ctrl.Start()
	return ctrl
}

// Get returns the controller for a session id and refreshes its idle timer.
func (m *Manager) Get(id string) (*Controller, bool) {
	m.mu.RLock()
	ctrl, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		ctrl.Touch()
	}
	return ctrl, ok
}

// Remove drops a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctrl, ok := m.sessions[id]; ok {
		ctrl.Clear()
		delete(m.sessions, id)
	}
}

// ExpireIdle drops every session that has seen no activity for at least
// maxIdle and returns the removed ids. Browsers never delete their session on
// reload or tab close, so abandoned sessions must be reaped here.
func (m *Manager) ExpireIdle(maxIdle time.Duration) []string {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []string
	for id, ctrl := range m.sessions {
		if now.Sub(ctrl.LastSeen()) >= maxIdle {
			delete(m.sessions, id)
			expired = append(expired, id)
		}
	}
	return expired
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
