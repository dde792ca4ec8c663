// Package identity supplies the opaque caller id that keys drafts, uploads
// and submissions.
package identity

import (
	"context"

	dErrors "intake/pkg/domain-errors"
	"intake/pkg/requestcontext"
)

// Accessor resolves the caller for a request or session.
type Accessor interface {
	CallerID(ctx context.Context) (string, error)
}

// Static always returns the same caller. Used by the CLI.
type Static string

func (s Static) CallerID(context.Context) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "caller id is not configured")
	}
	return string(s), nil
}

// FromContext reads the caller id placed in the context by the auth middleware.
type FromContext struct{}

func (FromContext) CallerID(ctx context.Context) (string, error) {
	id := requestcontext.CallerID(ctx)
	if id == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "request is not authenticated")
	}
	return id, nil
}
