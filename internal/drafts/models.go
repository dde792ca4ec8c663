// Package drafts persists in-progress applications and keeps a session's
// form container synchronised with a draft store.
package drafts

import (
	"encoding/json"
	"fmt"
	"time"

	"intake/internal/form"
	dErrors "intake/pkg/domain-errors"
)

// DefaultExpiry is how old a draft may be before it is discarded at load.
const DefaultExpiry = 30 * 24 * time.Hour

const fieldLastSaved = "lastSaved"

// Key identifies one draft. Both parts are opaque to this package.
type Key struct {
	CallerID string `json:"callerId"`
	FormID   string `json:"formId"`
}

// Validate rejects keys with missing parts.
func (k Key) Validate() error {
	if k.CallerID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "caller id is required")
	}
	if k.FormID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "form id is required")
	}
	return nil
}

func (k Key) String() string {
	return k.CallerID + "/" + k.FormID
}

// Envelope is the persisted shape: the draft's fields plus lastSaved, all
// in one JSON object.
type Envelope struct {
	Draft     form.Draft
	LastSaved time.Time
}

// Expired reports whether the envelope is older than maxAge at now. An
// envelope without lastSaved has an unknown age and is kept.
func (e Envelope) Expired(now time.Time, maxAge time.Duration) bool {
	if e.LastSaved.IsZero() {
		return false
	}
	return now.Sub(e.LastSaved) > maxAge
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(e.Draft)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	ts, err := json.Marshal(e.LastSaved.UTC())
	if err != nil {
		return nil, err
	}
	obj[fieldLastSaved] = ts
	return json.Marshal(obj)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var stamp struct {
		LastSaved *time.Time `json:"lastSaved"`
	}
	if err := json.Unmarshal(data, &stamp); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	var d form.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	delete(d.Fields, fieldLastSaved)
	e.Draft = d
	if stamp.LastSaved != nil {
		e.LastSaved = *stamp.LastSaved
	}
	return nil
}

// SaveReceipt is what a store reports after a successful save.
type SaveReceipt struct {
	SavedAt time.Time `json:"savedAt"`
	DraftID string    `json:"draftId"`
}

// QuickSaveRequest is the exit-flush body.
type QuickSaveRequest struct {
	CallerID string     `json:"callerId"`
	FormID   string     `json:"formId"`
	Data     form.Draft `json:"data"`
}
