// Package memory provides an in-process implementation of the session repository.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/apron-guard/internal/session"
)

// Repository keeps sessions in a map. Callers always receive copies.
type Repository struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{sessions: make(map[string]*session.Session)}
}

// Create stores a new session with version 1.
func (r *Repository) Create(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return fmt.Errorf("create session %s: already exists", s.ID)
	}
	s.Version = 1
	r.sessions[s.ID] = s.Clone()
	return nil
}

// Get returns a copy of the stored session.
func (r *Repository) Get(_ context.Context, id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// Save replaces the stored session if s.Version matches, then bumps the version.
func (r *Repository) Save(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[s.ID]
	if !ok {
		return session.ErrSessionNotFound
	}
	if stored.Version != s.Version {
		return fmt.Errorf("%w: have %d, stored %d", session.ErrVersionConflict, s.Version, stored.Version)
	}
	if err := session.CheckAppendOnly(stored.Trail, s.Trail); err != nil {
		return err
	}

	s.Version++
	s.UpdatedAt = time.Now().UTC()
	r.sessions[s.ID] = s.Clone()
	return nil
}

// Delete removes a session.
func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return session.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error {
	return nil
}
