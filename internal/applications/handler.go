package applications

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"intake/internal/form"
	"intake/internal/platform/middleware"
	"intake/internal/submission"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/httputil"
	"intake/pkg/platform/sentinel"
	"intake/pkg/requestcontext"
)

const maxApplicationBytes = 1 << 20

// Handler serves POST /applications and GET /applications/{reference}.
type Handler struct {
	service   *Service
	validator middleware.TokenValidator
	logger    *slog.Logger
	timeout   time.Duration
}

func NewHandler(service *Service, validator middleware.TokenValidator, logger *slog.Logger) (*Handler, error) {
	if service == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "application service is required")
	}
	if validator == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "token validator is required")
	}
	return &Handler{service: service, validator: validator, logger: logger, timeout: 30 * time.Second}, nil
}

// Register registers the application routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	appRouter := chi.NewRouter()
	appRouter.Use(middleware.Recovery(h.logger))
	appRouter.Use(middleware.RequestID)
	appRouter.Use(middleware.Logger(h.logger))
	appRouter.Use(middleware.Timeout(h.timeout))
	appRouter.Use(middleware.ContentTypeJSON)
	appRouter.Use(middleware.RequireAuth(h.validator, h.logger))
	appRouter.Post("/", h.handleSubmit)
	appRouter.Get("/{reference}", h.handleGet)

	r.Mount("/applications", appRouter)
}

type validationErrorResponse struct {
	Error           string            `json:"error"`
	FieldErrors     map[string]string `json:"fieldErrors,omitempty"`
	AggregateErrors []string          `json:"aggregateErrors,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := requestcontext.CallerID(ctx)

	var d form.Draft
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxApplicationBytes)).Decode(&d); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid application body"))
		return
	}

	receipt, err := h.service.Submit(ctx, callerID, d)
	var failed *submission.ValidationFailed
	switch {
	case errors.As(err, &failed):
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, validationErrorResponse{
			Error:           string(dErrors.CodeValidation),
			FieldErrors:     failed.Result.FieldErrors,
			AggregateErrors: failed.Result.AggregateErrors,
		})
	case err != nil:
		h.logger.ErrorContext(ctx, "application submission failed",
			"request_id", middleware.GetRequestID(ctx),
			"caller_id", callerID,
			"error", err,
		)
		httputil.WriteError(w, err)
	default:
		httputil.WriteJSON(w, http.StatusCreated, receipt)
	}
}

type applicationResponse struct {
	ApplicationReference string     `json:"applicationReference"`
	ActivityType         string     `json:"activityType"`
	SubmittedAt          time.Time  `json:"submittedAt"`
	Application          form.Draft `json:"application"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app, err := h.service.Get(ctx, requestcontext.CallerID(ctx), chi.URLParam(r, "reference"))
	if errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "application not found"))
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, applicationResponse{
		ApplicationReference: app.Reference,
		ActivityType:         string(app.ActivityType),
		SubmittedAt:          app.SubmittedAt,
		Application:          app.Draft,
	})
}
