// Package handler serves the draft store over HTTP.
package handler

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xeipuuv/gojsonschema"

	"intake/internal/drafts"
	"intake/internal/drafts/metrics"
	"intake/internal/form"
	"intake/internal/platform/middleware"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/httputil"
	"intake/pkg/platform/sentinel"
	"intake/pkg/requestcontext"
)

//go:embed draft.schema.json
var draftSchema string

// DefaultMaxBodyBytes caps draft request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Handler exposes a drafts.Store as the draft store API. Callers may only
// read and write their own drafts.
type Handler struct {
	store     drafts.Store
	validator middleware.TokenValidator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	schema    *gojsonschema.Schema
	maxBody   int64
	timeout   time.Duration
}

type Option func(*Handler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New creates a draft store handler.
func New(store drafts.Store, validator middleware.TokenValidator, logger *slog.Logger, opts ...Option) (*Handler, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "draft store is required")
	}
	if validator == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "token validator is required")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(draftSchema))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "invalid draft schema")
	}
	h := &Handler{
		store:     store,
		validator: validator,
		logger:    logger,
		schema:    schema,
		maxBody:   DefaultMaxBodyBytes,
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register registers the draft routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	draftRouter := chi.NewRouter()
	draftRouter.Use(middleware.Recovery(h.logger))
	draftRouter.Use(middleware.RequestID)
	draftRouter.Use(middleware.Logger(h.logger))
	draftRouter.Use(middleware.Timeout(h.timeout))
	draftRouter.Use(middleware.ContentTypeJSON)
	draftRouter.Use(middleware.RequireAuth(h.validator, h.logger))
	draftRouter.Post("/quick-save", h.handleQuickSave)
	draftRouter.Get("/{callerId}/{formId}", h.handleLoad)
	draftRouter.Put("/{callerId}/{formId}", h.handleSave)
	draftRouter.Delete("/{callerId}/{formId}", h.handleDelete)

	r.Mount("/drafts", draftRouter)
}

func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := h.authorizedKey(w, r)
	if !ok {
		return
	}

	env, err := h.store.Load(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		h.record("load", "not_found")
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no draft"))
		return
	}
	if err != nil {
		h.fail(w, r, "load", err)
		return
	}
	h.record("load", "success")
	httputil.WriteJSON(w, http.StatusOK, env)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := h.authorizedKey(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		h.record("save", "rejected")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body too large or unreadable"))
		return
	}
	draft, err := h.decodeDraft(body)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid draft body",
			"request_id", middleware.GetRequestID(ctx),
			"caller_id", key.CallerID,
			"error", err,
		)
		h.record("save", "rejected")
		httputil.WriteError(w, err)
		return
	}

	receipt, err := h.store.Save(ctx, key, draft)
	if err != nil {
		h.fail(w, r, "save", err)
		return
	}
	h.record("save", "success")
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := h.authorizedKey(w, r)
	if !ok {
		return
	}

	err := h.store.Delete(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		h.record("delete", "not_found")
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no draft"))
		return
	}
	if err != nil {
		h.fail(w, r, "delete", err)
		return
	}
	h.record("delete", "success")
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleQuickSave accepts the exit flush. The client does not wait for the
// response, so failures are only logged.
func (h *Handler) handleQuickSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		CallerID string          `json:"callerId"`
		FormID   string          `json:"formId"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody)).Decode(&req); err != nil {
		h.record("quick_save", "rejected")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	key := drafts.Key{CallerID: req.CallerID, FormID: req.FormID}
	if err := key.Validate(); err != nil {
		h.record("quick_save", "rejected")
		httputil.WriteError(w, err)
		return
	}
	if !h.owns(w, r, key) {
		return
	}
	draft, err := h.decodeDraft(req.Data)
	if err != nil {
		h.record("quick_save", "rejected")
		httputil.WriteError(w, err)
		return
	}
	if err := h.store.QuickSave(ctx, key, draft); err != nil {
		h.logger.WarnContext(ctx, "quick-save failed",
			"request_id", middleware.GetRequestID(ctx),
			"caller_id", key.CallerID,
			"form_id", key.FormID,
			"error", err,
		)
		h.record("quick_save", "failure")
	} else {
		h.record("quick_save", "success")
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) authorizedKey(w http.ResponseWriter, r *http.Request) (drafts.Key, bool) {
	key := drafts.Key{
		CallerID: pathParam(r, "callerId"),
		FormID:   pathParam(r, "formId"),
	}
	if err := key.Validate(); err != nil {
		httputil.WriteError(w, err)
		return key, false
	}
	return key, h.owns(w, r, key)
}

// pathParam unescapes a route parameter. chi matches on the raw path when
// the request carries escaped slashes.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func (h *Handler) owns(w http.ResponseWriter, r *http.Request, key drafts.Key) bool {
	ctx := r.Context()
	if caller := requestcontext.CallerID(ctx); caller != key.CallerID {
		h.logger.WarnContext(ctx, "caller attempted to access another caller's draft",
			"request_id", middleware.GetRequestID(ctx),
			"caller_id", caller,
			"draft_caller_id", key.CallerID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "drafts belong to their caller"))
		return false
	}
	return true
}

func (h *Handler) decodeDraft(body []byte) (form.Draft, error) {
	if len(body) == 0 {
		return form.Draft{}, dErrors.New(dErrors.CodeBadRequest, "draft body is required")
	}
	result, err := h.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return form.Draft{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "draft body is not valid JSON")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return form.Draft{}, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("draft does not match schema: %s", strings.Join(msgs, "; ")))
	}
	var d form.Draft
	if err := json.Unmarshal(body, &d); err != nil {
		return form.Draft{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "draft body could not be decoded")
	}
	delete(d.Fields, "lastSaved")
	return d, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	h.logger.ErrorContext(ctx, "draft store operation failed",
		"request_id", middleware.GetRequestID(ctx),
		"operation", op,
		"error", err,
	)
	h.record(op, "failure")
	httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodePersistence, "draft store unavailable"))
}

func (h *Handler) record(op, result string) {
	if h.metrics != nil {
		h.metrics.IncStoreOp(op, result)
	}
}
