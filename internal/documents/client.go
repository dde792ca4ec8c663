package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	dErrors "intake/pkg/domain-errors"
)

// HTTPUploader posts files as multipart form data to {baseURL}/documents/upload.
type HTTPUploader struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPUploader builds an uploader against baseURL.
func NewHTTPUploader(baseURL string, timeout time.Duration) *HTTPUploader {
	return &HTTPUploader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Upload sends the file and decodes the returned reference.
func (u *HTTPUploader) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("documentType", string(req.DocumentType)); err != nil {
		return nil, err
	}
	if err := mw.WriteField("callerId", req.CallerID); err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, err
	}
	if req.Content != nil {
		if _, err := io.Copy(part, req.Content); err != nil {
			return nil, fmt.Errorf("read upload content: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/documents/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, dErrors.New(dErrors.CodeUpload,
			fmt.Sprintf("upload service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &out, nil
}
