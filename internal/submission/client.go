package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"intake/internal/form"
	dErrors "intake/pkg/domain-errors"
)

// maxErrorBody bounds how much of a rejection body is carried in the error.
const maxErrorBody = 64 << 10

// HTTPSubmitter posts the application draft to {baseURL}/applications.
type HTTPSubmitter struct {
	baseURL    string
	httpClient *http.Client
	token      func(ctx context.Context) (string, error)
}

type ClientOption func(*HTTPSubmitter)

// WithBearerToken attaches a bearer token to each request.
func WithBearerToken(token func(ctx context.Context) (string, error)) ClientOption {
	return func(s *HTTPSubmitter) {
		s.token = token
	}
}

func WithHTTPClient(c *http.Client) ClientOption {
	return func(s *HTTPSubmitter) {
		s.httpClient = c
	}
}

// NewHTTPSubmitter builds a submitter against baseURL.
func NewHTTPSubmitter(baseURL string, timeout time.Duration, opts ...ClientOption) *HTTPSubmitter {
	s := &HTTPSubmitter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit sends the draft. A non-2xx response is a CodeSubmission error whose
// message carries the status and the response body as received.
func (s *HTTPSubmitter) Submit(ctx context.Context, d form.Draft) (Receipt, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return Receipt{}, fmt.Errorf("encode application: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/applications", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("create submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != nil {
		token, err := s.token(ctx)
		if err != nil {
			return Receipt{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "cannot obtain submission token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeSubmission, "submission request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Receipt{}, &RejectedError{Status: resp.StatusCode, Body: string(msg)}
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeSubmission, "decode submission response")
	}
	if receipt.ApplicationReference == "" {
		return Receipt{}, dErrors.New(dErrors.CodeSubmission, "submission response has no application reference")
	}
	return receipt, nil
}

// RejectedError is a non-2xx answer from the submission collaborator.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("submission rejected with status %d: %s", e.Status, e.Body)
}

func (e *RejectedError) Unwrap() error {
	return dErrors.New(dErrors.CodeSubmission, e.Error())
}
