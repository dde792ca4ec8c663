// Package fallback routes draft persistence to a remote primary and falls
// back to a device-local store while the primary is unreachable.
package fallback

import (
	"context"
	"errors"
	"log/slog"

	"intake/internal/drafts"
	"intake/internal/form"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/circuit"
	"intake/pkg/platform/sentinel"
)

// Store implements drafts.Store over a primary and a local store. Only
// sentinel.ErrUnavailable from the primary counts against the breaker; other
// primary errors are returned as they are.
type Store struct {
	primary drafts.Store
	local   drafts.Store
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New constructs a fallback store. primary may be nil, in which case every
// operation goes to local.
func New(primary, local drafts.Store, breaker *circuit.Breaker, opts ...Option) (*Store, error) {
	if local == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "local draft store is required")
	}
	if breaker == nil {
		breaker = circuit.New("draft-store")
	}
	s := &Store{
		primary: primary,
		local:   local,
		breaker: breaker,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load prefers the primary. A draft written locally while the primary was
// down wins when it is newer than the primary's copy.
func (s *Store) Load(ctx context.Context, key drafts.Key) (drafts.Envelope, error) {
	if !s.usePrimary() {
		return s.local.Load(ctx, key)
	}
	remote, err := s.primary.Load(ctx, key)
	switch {
	case err == nil:
		s.recordSuccess(ctx)
		if local, lerr := s.local.Load(ctx, key); lerr == nil && local.LastSaved.After(remote.LastSaved) {
			return local, nil
		}
		return remote, nil
	case errors.Is(err, sentinel.ErrNotFound):
		s.recordSuccess(ctx)
		return s.local.Load(ctx, key)
	case errors.Is(err, sentinel.ErrUnavailable):
		s.recordFailure(ctx, "load", err)
		return s.local.Load(ctx, key)
	default:
		return drafts.Envelope{}, err
	}
}

func (s *Store) Save(ctx context.Context, key drafts.Key, draft form.Draft) (drafts.SaveReceipt, error) {
	if !s.usePrimary() {
		return s.local.Save(ctx, key, draft)
	}
	receipt, err := s.primary.Save(ctx, key, draft)
	if err == nil {
		s.recordSuccess(ctx)
		return receipt, nil
	}
	if !errors.Is(err, sentinel.ErrUnavailable) {
		return drafts.SaveReceipt{}, err
	}
	s.recordFailure(ctx, "save", err)
	return s.local.Save(ctx, key, draft)
}

// Delete removes the draft from both stores. It reports ErrNotFound only
// when neither store held it.
func (s *Store) Delete(ctx context.Context, key drafts.Key) error {
	localErr := s.local.Delete(ctx, key)
	if localErr != nil && !errors.Is(localErr, sentinel.ErrNotFound) {
		return localErr
	}
	if !s.usePrimary() {
		return localErr
	}
	err := s.primary.Delete(ctx, key)
	switch {
	case err == nil:
		s.recordSuccess(ctx)
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		s.recordSuccess(ctx)
		return localErr
	case errors.Is(err, sentinel.ErrUnavailable):
		s.recordFailure(ctx, "delete", err)
		return err
	default:
		return err
	}
}

func (s *Store) QuickSave(ctx context.Context, key drafts.Key, draft form.Draft) error {
	if s.usePrimary() {
		if err := s.primary.QuickSave(ctx, key, draft); err == nil {
			return nil
		} else if errors.Is(err, sentinel.ErrUnavailable) {
			s.recordFailure(ctx, "quick_save", err)
		}
	}
	return s.local.QuickSave(ctx, key, draft)
}

// Breaker exposes the breaker for health reporting.
func (s *Store) Breaker() *circuit.Breaker {
	return s.breaker
}

func (s *Store) usePrimary() bool {
	return s.primary != nil && s.breaker.Allow()
}

func (s *Store) recordFailure(ctx context.Context, op string, err error) {
	_, change := s.breaker.RecordFailure()
	s.logger.WarnContext(ctx, "draft store primary unavailable, using local store",
		"operation", op,
		"breaker", s.breaker.Name(),
		"error", err,
	)
	if change.Opened {
		s.logger.WarnContext(ctx, "draft store breaker opened", "breaker", s.breaker.Name())
	}
}

func (s *Store) recordSuccess(ctx context.Context) {
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "draft store breaker closed", "breaker", s.breaker.Name())
	}
}
