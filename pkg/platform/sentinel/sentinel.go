package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and collaborators return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: draft or application does not exist in the store
// - ErrExpired: draft is older than the retention window
// - ErrUnavailable: store or collaborator not configured or unreachable
// - ErrLimitExceeded: a bounded collection is already full
//
// For validation failures, use the validation package result types.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrExpired       = errors.New("expired")
	ErrUnavailable   = errors.New("unavailable")
	ErrLimitExceeded = errors.New("limit exceeded")
)
