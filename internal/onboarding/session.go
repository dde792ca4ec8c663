// Package onboarding drives one application attempt: step navigation over
// the resolved pathway, with validation gating, draft synchronisation,
// document uploads and the final submission.
package onboarding

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"intake/internal/documents"
	"intake/internal/drafts"
	"intake/internal/form"
	"intake/internal/pathway"
	"intake/internal/submission"
	"intake/internal/validation"
	dErrors "intake/pkg/domain-errors"
)

// StepValidator gates navigation and submission.
type StepValidator interface {
	ValidateStep(d form.Draft, step pathway.StepID) validation.Result
	ValidateAll(d form.Draft) validation.Result
}

// Config carries a session's collaborators. Documents may be nil when the
// caller does not upload through the session.
type Config struct {
	Key       drafts.Key
	Registry  *pathway.Registry
	Validator StepValidator
	Store     drafts.Store
	Submitter submission.Submitter
	Documents *documents.Service
}

// Progress describes where the session stands.
type Progress struct {
	ActivityType pathway.ActivityType `json:"activityType,omitempty"`
	CurrentStep  pathway.StepID       `json:"currentStep"`
	StepNumber   int                  `json:"stepNumber"`
	TotalSteps   int                  `json:"totalSteps"`
	Percent      int                  `json:"percent"`
	SaveState    string               `json:"saveState"`
	LastSaved    time.Time            `json:"lastSaved,omitzero"`
}

// Session is scoped to one attempt by one caller. It is discarded after
// Submit or Close; nothing about it is process-wide.
type Session struct {
	key          drafts.Key
	registry     *pathway.Registry
	validator    StepValidator
	container    *form.Container
	syncer       *drafts.Synchronizer
	docs         *documents.Service
	orchestrator *submission.Orchestrator
	logger       *slog.Logger
	order        map[pathway.StepID]int

	mu        sync.Mutex
	resolver  *pathway.Resolver
	current   pathway.StepID
	furthest  pathway.StepID
	submitted bool
	stop      context.CancelFunc
	done      chan struct{}
}

type Option func(*options)

type options struct {
	logger        *slog.Logger
	draftOpts     []drafts.Option
	submitOpts    []submission.Option
	containerOpts []form.Option
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDraftOptions configures the session's synchronizer.
func WithDraftOptions(opts ...drafts.Option) Option {
	return func(o *options) {
		o.draftOpts = append(o.draftOpts, opts...)
	}
}

// WithSubmissionOptions configures the session's orchestrator.
func WithSubmissionOptions(opts ...submission.Option) Option {
	return func(o *options) {
		o.submitOpts = append(o.submitOpts, opts...)
	}
}

func WithContainerOptions(opts ...form.Option) Option {
	return func(o *options) {
		o.containerOpts = append(o.containerOpts, opts...)
	}
}

// New builds a session. Call Start before using it.
func New(cfg Config, opts ...Option) (*Session, error) {
	if cfg.Registry == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "pathway registry is required")
	}
	if cfg.Validator == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "validator is required")
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	container := form.New(o.containerOpts...)
	syncer, err := drafts.NewSynchronizer(cfg.Store, container, cfg.Key,
		append([]drafts.Option{drafts.WithLogger(o.logger)}, o.draftOpts...)...)
	if err != nil {
		return nil, err
	}
	orchestrator, err := submission.NewOrchestrator(cfg.Validator, cfg.Submitter,
		append([]submission.Option{
			submission.WithLogger(o.logger),
			submission.WithDraftClearer(syncer),
		}, o.submitOpts...)...)
	if err != nil {
		return nil, err
	}

	order := make(map[pathway.StepID]int)
	for i, step := range cfg.Registry.Catalogue() {
		order[step.ID] = i
	}
	return &Session{
		key:          cfg.Key,
		registry:     cfg.Registry,
		validator:    cfg.Validator,
		container:    container,
		syncer:       syncer,
		docs:         cfg.Documents,
		orchestrator: orchestrator,
		logger:       o.logger.With("caller_id", cfg.Key.CallerID, "form_id", cfg.Key.FormID),
		order:        order,
		current:      pathway.StepWelcome,
		furthest:     pathway.StepWelcome,
	}, nil
}

// Form is the session's state container. Edits made through it are picked
// up by the next save.
func (s *Session) Form() *form.Container {
	return s.container
}

// Drafts exposes the synchronizer for save state and manual saves.
func (s *Session) Drafts() *drafts.Synchronizer {
	return s.syncer
}

// Start restores any stored draft and starts the autosave loop. A load
// failure is returned alongside MountFailed; the session is still usable
// with an empty form.
func (s *Session) Start(ctx context.Context) (drafts.MountOutcome, error) {
	outcome, err := s.syncer.Mount(ctx)
	if outcome == drafts.MountRestored {
		s.resume()
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.mu.Lock()
	s.stop = cancel
	s.done = done
	s.mu.Unlock()
	go func() {
		defer close(done)
		s.syncer.Run(loopCtx)
	}()

	s.logger.InfoContext(ctx, "onboarding session started", "mount", outcome.String())
	return outcome, err
}

// resume re-resolves the pathway of a restored draft and places the session
// on the first visible step whose validation fails.
func (s *Session) resume() {
	snap := s.container.Snapshot()
	t := pathway.ActivityType(snap.ActivityType())
	resolver, err := s.registry.Resolver(t)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolver = resolver
	steps := resolver.VisibleStepIDs()
	s.current = steps[len(steps)-1]
	for _, id := range steps {
		if !s.validator.ValidateStep(snap, id).Valid() {
			s.current = id
			break
		}
	}
	s.furthest = s.current
}

// SelectActivity records the activity type and re-resolves the visible
// steps. The current step is kept when still visible, otherwise the session
// moves to the nearest visible step before it.
func (s *Session) SelectActivity(t pathway.ActivityType) error {
	resolver, err := s.registry.Resolver(t)
	if err != nil {
		return err
	}
	if err := s.container.Set(form.FieldActivityType, string(t)); err != nil {
		return err
	}

	s.mu.Lock()
	s.resolver = resolver
	s.current = s.nearestVisible(s.current)
	s.furthest = s.nearestVisible(s.furthest)
	s.mu.Unlock()

	s.syncer.Schedule()
	return nil
}

// nearestVisible walks back through the catalogue from id to the first
// step visible on the current pathway. Caller holds mu.
func (s *Session) nearestVisible(id pathway.StepID) pathway.StepID {
	if s.resolver.IsStepVisible(id) {
		return id
	}
	catalogue := s.registry.Catalogue()
	for i := s.order[id]; i >= 0; i-- {
		if s.resolver.IsStepVisible(catalogue[i].ID) {
			return catalogue[i].ID
		}
	}
	return s.resolver.FirstStepID()
}

func (s *Session) CurrentStep() pathway.StepID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// VisibleSteps lists the steps of the selected pathway, or nil before an
// activity type is chosen.
func (s *Session) VisibleSteps() []pathway.StepDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolver == nil {
		return nil
	}
	return s.resolver.VisibleSteps()
}

// Next validates the current step and, if it is clean, advances. The
// returned result is the step's validation; the session only moves when it
// is valid. A debounced save is scheduled either way.
func (s *Session) Next() (validation.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.container.Snapshot()
	result := s.validator.ValidateStep(snap, s.current)
	s.syncer.Schedule()
	if !result.Valid() {
		return result, nil
	}
	if s.resolver == nil {
		// The activity type was set on the form directly.
		resolver, err := s.registry.Resolver(pathway.ActivityType(snap.ActivityType()))
		if err != nil {
			return result, dErrors.New(dErrors.CodeBadRequest, "select an activity type first")
		}
		s.resolver = resolver
	}
	next, ok := s.resolver.NextStepID(s.current)
	if !ok {
		return result, dErrors.New(dErrors.CodeBadRequest, "already on the last step")
	}
	s.current = next
	if s.order[next] > s.order[s.furthest] {
		s.furthest = next
	}
	return result, nil
}

// Previous moves back one visible step without validating.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolver == nil {
		return dErrors.New(dErrors.CodeBadRequest, "already on the first step")
	}
	prev, ok := s.resolver.PreviousStepID(s.current)
	if !ok {
		return dErrors.New(dErrors.CodeBadRequest, "already on the first step")
	}
	s.current = prev
	return nil
}

// GoTo jumps to a visible step that has already been reached.
func (s *Session) GoTo(id pathway.StepID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolver == nil || !s.resolver.IsStepVisible(id) {
		return dErrors.New(dErrors.CodeBadRequest, "step "+string(id)+" is not on this pathway")
	}
	if s.order[id] > s.order[s.furthest] {
		return dErrors.New(dErrors.CodeBadRequest, "step "+string(id)+" has not been reached yet")
	}
	s.current = id
	return nil
}

func (s *Session) Progress() Progress {
	s.mu.Lock()
	p := Progress{CurrentStep: s.current}
	if s.resolver != nil {
		p.ActivityType = s.resolver.ActivityType()
		p.StepNumber = s.resolver.StepNumber(s.current)
		p.TotalSteps = s.resolver.TotalSteps()
		p.Percent = s.resolver.CompletionPercentage(s.current)
	}
	s.mu.Unlock()
	p.SaveState = s.syncer.State().String()
	p.LastSaved = s.syncer.LastSaved()
	return p
}

// Upload stores a document through the document service and schedules a
// save so the new reference is persisted.
func (s *Session) Upload(ctx context.Context, documentID pathway.DocumentID, filename string, content io.Reader) (string, error) {
	if s.docs == nil {
		return "", dErrors.New(dErrors.CodeConfiguration, "document uploads are not configured")
	}
	url, err := s.docs.Upload(ctx, s.container, s.key.CallerID, documents.File{
		DocumentID: documentID,
		Filename:   filename,
		Content:    content,
	})
	if err != nil {
		return "", err
	}
	s.syncer.Schedule()
	return url, nil
}

// Submit runs the final gate. On success the draft is cleared and the
// session should be closed.
func (s *Session) Submit(ctx context.Context) (submission.Receipt, error) {
	receipt, err := s.orchestrator.Submit(ctx, s.container)
	if err != nil {
		return submission.Receipt{}, err
	}
	s.mu.Lock()
	s.submitted = true
	s.mu.Unlock()
	return receipt, nil
}

// Close fires the exit flush and stops the autosave loop. It does not wait
// for the flush to be delivered; use CloseAndWait or Wait for that.
func (s *Session) Close() {
	s.mu.Lock()
	submitted := s.submitted
	stop, done := s.stop, s.done
	s.mu.Unlock()

	if !submitted {
		s.syncer.Flush()
	}
	s.syncer.Close()
	if stop != nil {
		stop()
		<-done
	}
	s.logger.Info("onboarding session closed", "submitted", submitted)
}

// Wait blocks until background saves and the exit flush have returned. Each
// is bounded by the synchronizer's save timeout.
func (s *Session) Wait() {
	s.syncer.Wait()
}

// CloseAndWait is Close followed by Wait, for processes about to exit.
func (s *Session) CloseAndWait() {
	s.Close()
	s.Wait()
}
