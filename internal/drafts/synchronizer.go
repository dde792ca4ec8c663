package drafts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"intake/internal/drafts/metrics"
	"intake/internal/form"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/sentinel"
)

// State is the synchroniser's save status.
type State int

const (
	StateIdle State = iota
	StateSaving
	StateError
)

func (s State) String() string {
	switch s {
	case StateSaving:
		return "saving"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Save triggers, used as metric labels.
const (
	TriggerAutosave = "autosave"
	TriggerManual   = "manual"
	TriggerFlush    = "flush"
)

// MountOutcome describes what Mount found in the store.
type MountOutcome int

const (
	MountFresh MountOutcome = iota
	MountRestored
	MountExpired
	MountFailed
)

func (o MountOutcome) String() string {
	switch o {
	case MountRestored:
		return "restored"
	case MountExpired:
		return "expired"
	case MountFailed:
		return "failed"
	default:
		return "fresh"
	}
}

// Default timings.
const (
	DefaultInterval    = 60 * time.Second
	DefaultDebounce    = time.Second
	DefaultSaveTimeout = 10 * time.Second
)

var tracer = otel.Tracer("intake/drafts")

// Synchronizer keeps one container in step with a Store for one session.
// Saves always read the container at send time, so edits made while a save
// is in flight are picked up by the next one.
type Synchronizer struct {
	store     Store
	container *form.Container
	key       Key

	logger      *slog.Logger
	metrics     *metrics.Metrics
	clock       func() time.Time
	expiry      time.Duration
	interval    time.Duration
	debounce    time.Duration
	saveTimeout time.Duration
	onError     func(error)
	onState     func(State)

	mu           sync.Mutex
	state        State
	inflight     int
	lastSaved    time.Time
	savedVersion uint64
	timer        *time.Timer
	closed       bool
	generation   uint64 // bumped by Clear

	background sync.WaitGroup
}

type Option func(*Synchronizer)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) {
		s.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Synchronizer) {
		s.clock = clock
	}
}

// WithExpiry sets the retention window applied at load.
func WithExpiry(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInterval sets the autosave period used by Run.
func WithInterval(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithDebounce sets the quiet period Schedule waits for.
func WithDebounce(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithSaveTimeout bounds background saves.
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.saveTimeout = d
		}
	}
}

// WithErrorHandler receives every persistence failure. It is the hook for
// a transient, dismissible notification.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Synchronizer) {
		s.onError = fn
	}
}

// WithStateListener observes state transitions. The listener runs while
// the synchronizer holds its lock and must not call back into it.
func WithStateListener(fn func(State)) Option {
	return func(s *Synchronizer) {
		s.onState = fn
	}
}

// NewSynchronizer binds container to key in store.
func NewSynchronizer(store Store, container *form.Container, key Key, opts ...Option) (*Synchronizer, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "draft store is required")
	}
	if container == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "form container is required")
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s := &Synchronizer{
		store:       store,
		container:   container,
		key:         key,
		logger:      slog.New(slog.DiscardHandler),
		clock:       time.Now,
		expiry:      DefaultExpiry,
		interval:    DefaultInterval,
		debounce:    DefaultDebounce,
		saveTimeout: DefaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Key returns the draft key.
func (s *Synchronizer) Key() Key {
	return s.key
}

// State returns the current save status.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSaved is the store timestamp of the last successful save, or zero.
func (s *Synchronizer) LastSaved() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

// Dirty reports whether the container changed since the last successful save.
func (s *Synchronizer) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.container.Version() != s.savedVersion
}

// DismissError returns an Error state to Idle.
func (s *Synchronizer) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateError && s.inflight == 0 {
		s.setStateLocked(StateIdle)
	}
}

// Mount loads the stored draft and merges it into the container. Not found
// and expired drafts leave the container as it is. A load failure is
// reported and returned, but the session can carry on with an empty draft.
func (s *Synchronizer) Mount(ctx context.Context) (MountOutcome, error) {
	ctx, span := tracer.Start(ctx, "drafts.Mount")
	defer span.End()

	env, err := s.store.Load(ctx, s.key)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		s.recordLoad(MountFresh)
		return MountFresh, nil
	case err != nil:
		perr := dErrors.Wrap(err, dErrors.CodePersistence, "failed to load draft")
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		s.report(ctx, perr)
		s.recordLoad(MountFailed)
		return MountFailed, perr
	}

	if env.Expired(s.clock(), s.expiry) {
		s.logger.InfoContext(ctx, "discarding expired draft",
			"caller_id", s.key.CallerID,
			"form_id", s.key.FormID,
			"last_saved", env.LastSaved,
		)
		if err := s.store.Delete(ctx, s.key); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to delete expired draft", "error", err)
		}
		s.recordLoad(MountExpired)
		return MountExpired, nil
	}

	s.container.Merge(env.Draft)
	s.mu.Lock()
	s.lastSaved = env.LastSaved
	s.savedVersion = s.container.Version()
	s.mu.Unlock()
	span.SetAttributes(attribute.String("outcome", MountRestored.String()))
	s.recordLoad(MountRestored)
	return MountRestored, nil
}

// Run saves on every interval tick while the container is dirty, until ctx
// is done. Ticks go through the debounce like any other autosave trigger.
func (s *Synchronizer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Dirty() {
				s.Schedule()
			}
		}
	}
}

// Schedule requests an autosave after the debounce window. Calls within the
// window collapse into one save.
func (s *Synchronizer) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.fireAutosave)
}

func (s *Synchronizer) fireAutosave() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.background.Add(1)
	s.mu.Unlock()
	defer s.background.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	_ = s.save(ctx, TriggerAutosave)
}

// Save writes the container now, cancelling any pending autosave. Failures
// are reported to the error handler and returned.
func (s *Synchronizer) Save(ctx context.Context) error {
	s.cancelPending()
	return s.save(ctx, TriggerManual)
}

// Flush fires a best-effort quick-save and returns immediately. Nothing
// about delivery is guaranteed.
func (s *Synchronizer) Flush() {
	s.cancelPending()
	version := s.container.Version()
	snap := s.container.Snapshot()
	if snap.IsEmpty() {
		return
	}
	s.mu.Lock()
	if version == s.savedVersion {
		s.mu.Unlock()
		return
	}
	gen := s.generation
	s.background.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
		defer cancel()
		err := s.store.QuickSave(ctx, s.key, snap)
		if err == nil && s.undoIfCleared(ctx, gen) {
			s.recordSave(TriggerFlush, "discarded")
			return
		}
		if err != nil {
			s.logger.Debug("exit flush failed",
				"caller_id", s.key.CallerID,
				"form_id", s.key.FormID,
				"error", err,
			)
			s.recordSave(TriggerFlush, "failure")
			return
		}
		s.recordSave(TriggerFlush, "success")
	}()
}

// Clear deletes the stored draft and resets lastSaved. A draft that is
// already gone counts as cleared.
func (s *Synchronizer) Clear(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "drafts.Clear")
	defer span.End()

	s.cancelPending()
	s.mu.Lock()
	s.generation++
	previous := s.lastSaved
	s.lastSaved = time.Time{}
	s.mu.Unlock()
	if err := s.store.Delete(ctx, s.key); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.mu.Lock()
		if s.lastSaved.IsZero() {
			s.lastSaved = previous
		}
		s.mu.Unlock()
		perr := dErrors.Wrap(err, dErrors.CodePersistence, "failed to delete draft")
		span.RecordError(err)
		s.report(ctx, perr)
		return perr
	}
	s.mu.Lock()
	s.savedVersion = s.container.Version()
	s.mu.Unlock()
	return nil
}

// undoIfCleared deletes a write that started before a Clear and landed after
// it. A save that began after the Clear and already succeeded wins, so the
// write is kept once lastSaved is set again.
func (s *Synchronizer) undoIfCleared(ctx context.Context, gen uint64) bool {
	s.mu.Lock()
	stale := s.generation != gen && s.lastSaved.IsZero()
	s.mu.Unlock()
	if !stale {
		return false
	}
	if err := s.store.Delete(ctx, s.key); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "failed to remove draft written after clear",
			"caller_id", s.key.CallerID,
			"form_id", s.key.FormID,
			"error", err,
		)
	}
	return true
}

// Close stops pending autosaves. Saves already running complete in the
// background; Wait blocks for them.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Wait blocks until background saves and flushes have returned. Call it
// after Close.
func (s *Synchronizer) Wait() {
	s.background.Wait()
}

func (s *Synchronizer) cancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Synchronizer) save(ctx context.Context, trigger string) error {
	version := s.container.Version()
	snap := s.container.Snapshot()
	if snap.IsEmpty() {
		s.recordSave(trigger, "skipped")
		return nil
	}

	ctx, span := tracer.Start(ctx, "drafts.Save")
	defer span.End()
	span.SetAttributes(
		attribute.String("trigger", trigger),
		attribute.Int64("version", int64(version)),
	)

	s.mu.Lock()
	if s.state == StateError {
		s.setStateLocked(StateIdle)
	}
	gen := s.generation
	s.inflight++
	s.setStateLocked(StateSaving)
	s.mu.Unlock()

	start := time.Now()
	receipt, err := s.store.Save(ctx, s.key, snap)
	if s.metrics != nil {
		s.metrics.ObserveSave(start)
	}

	s.mu.Lock()
	s.inflight--
	if err != nil {
		s.setStateLocked(StateError)
		s.mu.Unlock()
		perr := dErrors.Wrap(err, dErrors.CodePersistence, "failed to save draft")
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		s.recordSave(trigger, "failure")
		s.report(ctx, perr)
		return perr
	}
	if s.generation != gen {
		if s.inflight == 0 && s.state == StateSaving {
			s.setStateLocked(StateIdle)
		}
		s.mu.Unlock()
		if s.undoIfCleared(ctx, gen) {
			s.recordSave(trigger, "discarded")
			return nil
		}
		s.mu.Lock()
	}
	if receipt.SavedAt.After(s.lastSaved) {
		s.lastSaved = receipt.SavedAt
	}
	if version > s.savedVersion {
		s.savedVersion = version
	}
	if s.inflight == 0 && s.state == StateSaving {
		s.setStateLocked(StateIdle)
	}
	s.mu.Unlock()

	s.recordSave(trigger, "success")
	s.logger.DebugContext(ctx, "draft saved",
		"caller_id", s.key.CallerID,
		"form_id", s.key.FormID,
		"draft_id", receipt.DraftID,
		"trigger", trigger,
	)
	return nil
}

func (s *Synchronizer) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	if s.onState != nil {
		s.onState(st)
	}
}

func (s *Synchronizer) report(ctx context.Context, err error) {
	s.logger.WarnContext(ctx, "draft persistence failed",
		"caller_id", s.key.CallerID,
		"form_id", s.key.FormID,
		"error", err,
	)
	if s.onError != nil {
		s.onError(err)
	}
}

func (s *Synchronizer) recordSave(trigger, result string) {
	if s.metrics != nil {
		s.metrics.IncSave(trigger, result)
	}
}

func (s *Synchronizer) recordLoad(outcome MountOutcome) {
	if s.metrics != nil {
		s.metrics.IncLoad(outcome.String())
	}
}
