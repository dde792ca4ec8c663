package applications

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"intake/internal/form"
	"intake/internal/pathway"
	"intake/internal/submission"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/requestcontext"
)

// DefaultQueueSize bounds the number of unpublished events held in memory.
const DefaultQueueSize = 256

// Service accepts applications. It re-validates independently of the client
// because it cannot trust that the client gated submission.
type Service struct {
	validator submission.Validator
	store     Store
	events    chan Event
	logger    *slog.Logger
	clock     func() time.Time // nil means the request-scoped time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.events = make(chan Event, n)
		}
	}
}

// NewService creates an application service.
func NewService(validator submission.Validator, store Store, opts ...Option) (*Service, error) {
	if validator == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "validator is required")
	}
	if store == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "application store is required")
	}
	s := &Service{
		validator: validator,
		store:     store,
		events:    make(chan Event, DefaultQueueSize),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Events is the queue consumed by a Worker.
func (s *Service) Events() <-chan Event {
	return s.events
}

// Submit validates and stores an application for callerID.
func (s *Service) Submit(ctx context.Context, callerID string, d form.Draft) (submission.Receipt, error) {
	ctx, span := otel.Tracer("intake/applications").Start(ctx, "applications.Submit",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	if callerID == "" {
		return submission.Receipt{}, dErrors.New(dErrors.CodeUnauthorized, "caller id is required")
	}
	if result := s.validator.ValidateAll(d); !result.Valid() {
		return submission.Receipt{}, &submission.ValidationFailed{Result: result}
	}

	now := s.now(ctx).UTC()
	app := Application{
		Reference:    NewReference(now),
		CallerID:     callerID,
		ActivityType: pathway.ActivityType(d.ActivityType()),
		Draft:        d.Clone(),
		DocumentURLs: documentURLs(d),
		SubmittedAt:  now,
	}
	span.SetAttributes(
		attribute.String("application_reference", app.Reference),
		attribute.String("activity_type", string(app.ActivityType)),
	)
	if err := s.store.Create(ctx, app); err != nil {
		return submission.Receipt{}, dErrors.Wrap(err, dErrors.CodePersistence, "failed to store application")
	}

	select {
	case s.events <- app.Event():
	default:
		s.logger.WarnContext(ctx, "application event queue full, event dropped",
			"application_reference", app.Reference,
		)
	}

	s.logger.InfoContext(ctx, "application accepted",
		"caller_id", callerID,
		"application_reference", app.Reference,
		"activity_type", app.ActivityType,
	)
	return submission.Receipt{ApplicationReference: app.Reference, SubmittedAt: now}, nil
}

func (s *Service) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return requestcontext.Now(ctx)
}

// Get returns an application owned by callerID.
func (s *Service) Get(ctx context.Context, callerID, reference string) (Application, error) {
	app, err := s.store.Get(ctx, reference)
	if err != nil {
		return Application{}, err
	}
	if app.CallerID != callerID {
		return Application{}, dErrors.New(dErrors.CodeForbidden, "application belongs to another caller")
	}
	return app, nil
}
