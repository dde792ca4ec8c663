package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"intake/internal/drafts"
	"intake/internal/drafts/metrics"
	"intake/internal/drafts/store/memory"
	"intake/internal/form"
	dErrors "intake/pkg/domain-errors"
	httptestutil "intake/pkg/testutil"
)

// tokens maps bearer tokens straight to caller ids.
type tokens map[string]string

func (t tokens) CallerIDFromToken(token string) (string, error) {
	if id, ok := t[token]; ok {
		return id, nil
	}
	return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
}

type HandlerSuite struct {
	suite.Suite
	store   *memory.Store
	metrics *metrics.Metrics
	router  chi.Router
	now     time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.store = memory.New(memory.WithClock(func() time.Time { return s.now }))
	s.metrics = metrics.New(prometheus.NewRegistry())
	h, err := New(s.store, tokens{"alice-token": "alice", "bob-token": "bob"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithMetrics(s.metrics),
		WithMaxBodyBytes(4096),
	)
	s.Require().NoError(err)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) do(req *http.Request, token string) (int, map[string]any) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptestutil.DoRequest(s.router, req)
	var body map[string]any
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &body)
	}
	return rr.Code, body
}

func (s *HandlerSuite) TestRequiresBearerToken() {
	status, _ := s.do(httptestutil.NewRequest(s.T(), http.MethodGet, "/drafts/alice/form-1"), "")
	s.Equal(http.StatusUnauthorized, status)
}

func (s *HandlerSuite) TestSaveThenLoad() {
	body := `{"activityType":"token_issuance","legalEntityName":"Acme","shareholders":[{"id":"sh-1","name":"A","percentage":100}]}`
	status, receipt := s.do(httptestutil.NewRequestWithBody(s.T(), http.MethodPut, "/drafts/alice/form-1", body), "alice-token")
	s.Require().Equal(http.StatusOK, status)
	s.NotEmpty(receipt["draftId"])

	status, env := s.do(httptestutil.NewRequest(s.T(), http.MethodGet, "/drafts/alice/form-1"), "alice-token")
	s.Require().Equal(http.StatusOK, status)
	s.Equal("Acme", env["legalEntityName"])
	s.Equal(s.now.Format(time.RFC3339), env["lastSaved"])
	s.Len(env["shareholders"], 1)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.StoreOps.WithLabelValues("save", "success")))
}

func (s *HandlerSuite) TestLoadMissingDraft() {
	status, body := s.do(httptestutil.NewRequest(s.T(), http.MethodGet, "/drafts/alice/none"), "alice-token")
	s.Equal(http.StatusNotFound, status)
	s.Equal("not_found", body["error"])
}

func (s *HandlerSuite) TestCallerCannotTouchAnotherCallersDraft() {
	s.store.Put(drafts.Key{CallerID: "alice", FormID: "form-1"}, drafts.Envelope{Draft: form.NewDraft(), LastSaved: s.now})

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		status, _ := s.do(httptestutil.NewRequest(s.T(), method, "/drafts/alice/form-1"), "bob-token")
		s.Equal(http.StatusForbidden, status, method)
	}
	status, _ := s.do(httptestutil.NewRequestWithBody(s.T(), http.MethodPut, "/drafts/alice/form-1", `{}`), "bob-token")
	s.Equal(http.StatusForbidden, status)
	s.Equal(1, s.store.Len())
}

func (s *HandlerSuite) TestSchemaRejections() {
	rows := make([]string, 16)
	for i := range rows {
		rows[i] = fmt.Sprintf(`{"id":"sh-%d"}`, i)
	}
	cases := map[string]string{
		"unknown activity type": `{"activityType":"casino"}`,
		"too many shareholders": `{"shareholders":[` + strings.Join(rows, ",") + `]}`,
		"row without id":        `{"fundingSources":[{"source":"equity"}]}`,
		"not an object":         `[1,2,3]`,
		"malformed json":        `{"activityType":`,
		"empty body":            ``,
	}
	for name, body := range cases {
		s.Run(name, func() {
			status, resp := s.do(httptestutil.NewRequestWithBody(s.T(), http.MethodPut, "/drafts/alice/form-1", body), "alice-token")
			s.Equal(http.StatusBadRequest, status)
			s.Equal("bad_request", resp["error"])
		})
	}
	s.Equal(0, s.store.Len())
}

func (s *HandlerSuite) TestBodyLimit() {
	body := `{"notes":"` + strings.Repeat("x", 5000) + `"}`
	status, _ := s.do(httptestutil.NewRequestWithBody(s.T(), http.MethodPut, "/drafts/alice/form-1", body), "alice-token")
	s.Equal(http.StatusBadRequest, status)
}

func (s *HandlerSuite) TestNonJSONContentType() {
	req := httptestutil.NewRequestWithBody(s.T(), http.MethodPut, "/drafts/alice/form-1", `{}`)
	req.Header.Set("Content-Type", "text/plain")
	status, _ := s.do(req, "alice-token")
	s.Equal(http.StatusUnsupportedMediaType, status)
}

func (s *HandlerSuite) TestDelete() {
	key := drafts.Key{CallerID: "alice", FormID: "form-1"}
	s.store.Put(key, drafts.Envelope{Draft: form.NewDraft(), LastSaved: s.now})

	status, _ := s.do(httptestutil.NewRequest(s.T(), http.MethodDelete, "/drafts/alice/form-1"), "alice-token")
	s.Equal(http.StatusOK, status)
	s.Equal(0, s.store.Len())

	status, _ = s.do(httptestutil.NewRequest(s.T(), http.MethodDelete, "/drafts/alice/form-1"), "alice-token")
	s.Equal(http.StatusNotFound, status)
}

func (s *HandlerSuite) TestQuickSave() {
	req := httptestutil.NewJSONRequest(s.T(), http.MethodPost, "/drafts/quick-save", map[string]any{
		"callerId": "alice",
		"formId":   "form-1",
		"data":     map[string]any{"legalEntityName": "Acme"},
	})
	status, _ := s.do(req, "alice-token")
	s.Equal(http.StatusAccepted, status)

	env, err := s.store.Load(s.T().Context(), drafts.Key{CallerID: "alice", FormID: "form-1"})
	s.Require().NoError(err)
	s.Equal("Acme", env.Draft.String("legalEntityName"))
}

func (s *HandlerSuite) TestQuickSaveForAnotherCaller() {
	req := httptestutil.NewJSONRequest(s.T(), http.MethodPost, "/drafts/quick-save", map[string]any{
		"callerId": "alice",
		"formId":   "form-1",
		"data":     map[string]any{},
	})
	status, _ := s.do(req, "bob-token")
	s.Equal(http.StatusForbidden, status)
	s.Equal(0, s.store.Len())
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(nil, tokens{}, logger)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))

	_, err = New(memory.New(), nil, logger)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))
}
