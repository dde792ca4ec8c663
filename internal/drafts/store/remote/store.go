// Package remote talks to the draft store over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"intake/internal/drafts"
	"intake/internal/form"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/sentinel"
)

// TokenSource returns the bearer token for outgoing requests.
type TokenSource func(ctx context.Context) (string, error)

// Store is an HTTP client for GET/PUT/DELETE /drafts/{callerId}/{formId}
// and POST /drafts/quick-save.
type Store struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
}

type Option func(*Store)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		s.httpClient = c
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(s *Store) {
		s.token = ts
	}
}

// New constructs a remote store. timeout bounds every request.
func New(baseURL string, timeout time.Duration, opts ...Option) *Store {
	s := &Store{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) draftURL(key drafts.Key) string {
	return fmt.Sprintf("%s/drafts/%s/%s", s.baseURL, url.PathEscape(key.CallerID), url.PathEscape(key.FormID))
}

func (s *Store) Load(ctx context.Context, key drafts.Key) (drafts.Envelope, error) {
	resp, err := s.do(ctx, http.MethodGet, s.draftURL(key), nil)
	if err != nil {
		return drafts.Envelope{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return drafts.Envelope{}, sentinel.ErrNotFound
	}
	if err := checkStatus(resp); err != nil {
		return drafts.Envelope{}, err
	}
	var env drafts.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return drafts.Envelope{}, fmt.Errorf("decode draft: %w", err)
	}
	return env, nil
}

func (s *Store) Save(ctx context.Context, key drafts.Key, draft form.Draft) (drafts.SaveReceipt, error) {
	if err := key.Validate(); err != nil {
		return drafts.SaveReceipt{}, err
	}
	body, err := json.Marshal(draft)
	if err != nil {
		return drafts.SaveReceipt{}, fmt.Errorf("encode draft: %w", err)
	}
	resp, err := s.do(ctx, http.MethodPut, s.draftURL(key), body)
	if err != nil {
		return drafts.SaveReceipt{}, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return drafts.SaveReceipt{}, err
	}
	var receipt drafts.SaveReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return drafts.SaveReceipt{}, fmt.Errorf("decode save receipt: %w", err)
	}
	return receipt, nil
}

func (s *Store) Delete(ctx context.Context, key drafts.Key) error {
	resp, err := s.do(ctx, http.MethodDelete, s.draftURL(key), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return sentinel.ErrNotFound
	}
	return checkStatus(resp)
}

// QuickSave posts the draft and does not read the response.
func (s *Store) QuickSave(ctx context.Context, key drafts.Key, draft form.Draft) error {
	body, err := json.Marshal(drafts.QuickSaveRequest{CallerID: key.CallerID, FormID: key.FormID, Data: draft})
	if err != nil {
		return fmt.Errorf("encode quick-save: %w", err)
	}
	resp, err := s.do(ctx, http.MethodPost, s.baseURL+"/drafts/quick-save", body)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

func (s *Store) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create draft request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != nil {
		token, err := s.token(ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "cannot obtain draft store token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: draft store request failed: %v", sentinel.ErrUnavailable, err)
	}
	return resp, nil
}

// checkStatus maps non-2xx responses to errors. Gateway failures count as
// the store being unavailable.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	detail := fmt.Sprintf("draft store returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", sentinel.ErrUnavailable, detail)
	case http.StatusUnauthorized:
		return dErrors.New(dErrors.CodeUnauthorized, detail)
	case http.StatusForbidden:
		return dErrors.New(dErrors.CodeForbidden, detail)
	default:
		return dErrors.New(dErrors.CodePersistence, detail)
	}
}
