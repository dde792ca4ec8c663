// Package submission is the final gate: it re-validates the whole
// application and hands it to the submission collaborator.
package submission

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"intake/internal/form"
	"intake/internal/submission/metrics"
	"intake/internal/validation"
	dErrors "intake/pkg/domain-errors"
)

var tracer = otel.Tracer("intake/submission")

// Receipt is the collaborator's acknowledgement of a submitted application.
type Receipt struct {
	ApplicationReference string    `json:"applicationReference"`
	SubmittedAt          time.Time `json:"submittedAt"`
}

// Submitter hands a complete application to the submission collaborator.
type Submitter interface {
	Submit(ctx context.Context, d form.Draft) (Receipt, error)
}

// Validator runs global validation.
type Validator interface {
	ValidateAll(d form.Draft) validation.Result
}

// DraftClearer deletes the session's draft once it is obsolete.
type DraftClearer interface {
	Clear(ctx context.Context) error
}

// ValidationFailed is returned when the application is not clean. The
// submitter was not contacted.
type ValidationFailed struct {
	Result validation.Result
}

func (e *ValidationFailed) Error() string {
	return "application failed validation: " + e.Result.Summary()
}

// Unwrap exposes a CodeValidation error so dErrors.HasCode classifies the
// failure.
func (e *ValidationFailed) Unwrap() error {
	return dErrors.New(dErrors.CodeValidation, e.Result.Summary())
}

// Orchestrator gates submission on a clean ValidateAll.
type Orchestrator struct {
	validator Validator
	submitter Submitter
	clearer   DraftClearer
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithDraftClearer deletes the draft after a successful submission.
func WithDraftClearer(c DraftClearer) Option {
	return func(o *Orchestrator) {
		o.clearer = c
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(validator Validator, submitter Submitter, opts ...Option) (*Orchestrator, error) {
	if validator == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "validator is required")
	}
	if submitter == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "submitter is required")
	}
	o := &Orchestrator{
		validator: validator,
		submitter: submitter,
		logger:    slog.Default(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Submit validates the container's current state and, only if it is clean,
// submits it. The form stays populated on any failure.
func (o *Orchestrator) Submit(ctx context.Context, c *form.Container) (Receipt, error) {
	ctx, span := tracer.Start(ctx, "submission.Submit", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	start := o.clock()

	draft := c.Snapshot()
	activity := draft.ActivityType()
	span.SetAttributes(attribute.String("activity_type", activity))

	result := o.validator.ValidateAll(draft)
	if !result.Valid() {
		o.logger.InfoContext(ctx, "submission blocked by validation",
			"activity_type", activity,
			"failures", len(result.FieldErrors)+len(result.AggregateErrors),
		)
		o.record("rejected", start)
		span.SetStatus(codes.Error, "validation failed")
		return Receipt{}, &ValidationFailed{Result: result}
	}

	receipt, err := o.submitter.Submit(ctx, draft)
	if err != nil {
		o.logger.ErrorContext(ctx, "submission failed",
			"activity_type", activity,
			"error", err,
		)
		o.record("failed", start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		if dErrors.HasCode(err, dErrors.CodeSubmission) {
			return Receipt{}, err
		}
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeSubmission, "submission failed")
	}

	o.record("accepted", start)
	span.SetAttributes(attribute.String("application_reference", receipt.ApplicationReference))
	o.logger.InfoContext(ctx, "application submitted",
		"activity_type", activity,
		"application_reference", receipt.ApplicationReference,
	)

	if o.clearer != nil {
		if err := o.clearer.Clear(ctx); err != nil {
			o.logger.WarnContext(ctx, "failed to clear submitted draft",
				"application_reference", receipt.ApplicationReference,
				"error", err,
			)
		}
	}
	return receipt, nil
}

func (o *Orchestrator) record(result string, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.IncSubmission(result)
	o.metrics.ObserveSubmit(o.clock().Sub(start))
}
