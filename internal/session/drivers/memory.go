// Package drivers provides the session store implementations.
package drivers

import (
	"context"
	"sync"

	"github.com/fieldvoice/fieldvoice/internal/models"
)

// InMemoryStore implements session.Store using an in-memory map. It is the
// default for single-instance deployments and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewInMemoryStore creates a new in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*models.Session),
	}
}

// Put creates or replaces a session. The store keeps its own copy so the
// caller can go on mutating the session without racing later readers.
func (s *InMemoryStore) Put(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

// Get returns nil if the session is not found (not an error). The returned
// session is the caller's to mutate.
func (s *InMemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, exists := s.sessions[id]
	if !exists {
		return nil, nil
	}
	return cloneSession(sess), nil
}

// Delete removes a session by ID.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// List returns copies of all live sessions.
func (s *InMemoryStore) List(_ context.Context) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, cloneSession(sess))
	}
	return out, nil
}

// cloneSession isolates stored state from the caller's live session, the
// way the redis driver's JSON round-trip does. The asset descriptor is
// shared: it is read-only once resolved.
func cloneSession(sess *models.Session) *models.Session {
	out := *sess
	if sess.History != nil {
		out.History = append([]models.Command(nil), sess.History...)
	}
	if sess.Transitions != nil {
		out.Transitions = append([]models.TransitionRecord(nil), sess.Transitions...)
	}
	if sess.Asset != nil {
		asset := *sess.Asset
		out.Asset = &asset
	}
	return &out
}

// Close drops all sessions.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = nil
	return nil
}
