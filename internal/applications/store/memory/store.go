package memory

import (
	"context"
	"sync"

	"intake/internal/applications"
	"intake/pkg/platform/sentinel"
)

// Store keeps applications in process memory.
type Store struct {
	mu   sync.RWMutex
	apps map[string]applications.Application
}

func New() *Store {
	return &Store{apps: make(map[string]applications.Application)}
}

func (s *Store) Create(_ context.Context, app applications.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apps[app.Reference]; exists {
		return sentinel.ErrConflict
	}
	app.Draft = app.Draft.Clone()
	s.apps[app.Reference] = app
	return nil
}

func (s *Store) Get(_ context.Context, reference string) (applications.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[reference]
	if !ok {
		return applications.Application{}, sentinel.ErrNotFound
	}
	app.Draft = app.Draft.Clone()
	return app, nil
}
