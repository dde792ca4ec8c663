package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"intake/internal/drafts"
	"intake/internal/form"
	"intake/pkg/platform/sentinel"
)

type record struct {
	id  string
	env drafts.Envelope
}

// Store keeps drafts in process memory.
type Store struct {
	mu      sync.RWMutex
	records map[drafts.Key]record
	clock   func() time.Time
}

type Option func(*Store)

func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[drafts.Key]record),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Load(_ context.Context, key drafts.Key) (drafts.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return drafts.Envelope{}, sentinel.ErrNotFound
	}
	return drafts.Envelope{Draft: rec.env.Draft.Clone(), LastSaved: rec.env.LastSaved}, nil
}

func (s *Store) Save(_ context.Context, key drafts.Key, draft form.Draft) (drafts.SaveReceipt, error) {
	if err := key.Validate(); err != nil {
		return drafts.SaveReceipt{}, err
	}
	now := s.clock().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		rec.id = uuid.NewString()
	}
	rec.env = drafts.Envelope{Draft: draft.Clone(), LastSaved: now}
	s.records[key] = rec
	return drafts.SaveReceipt{SavedAt: now, DraftID: rec.id}, nil
}

func (s *Store) Delete(_ context.Context, key drafts.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

func (s *Store) QuickSave(ctx context.Context, key drafts.Key, draft form.Draft) error {
	_, err := s.Save(ctx, key, draft)
	return err
}

// Put stores env verbatim, keeping its lastSaved. Used to seed old drafts.
func (s *Store) Put(key drafts.Key, env drafts.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		rec.id = uuid.NewString()
	}
	rec.env = env
	s.records[key] = rec
}

// Len reports how many drafts are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
