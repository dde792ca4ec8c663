package drafts

import (
	"context"

	"intake/internal/form"
)

// Store persists drafts. Load and Delete return sentinel.ErrNotFound
// (possibly wrapped) when nothing is stored under key. Save stamps the
// envelope with the store's own clock; the last successful write wins.
type Store interface {
	Load(ctx context.Context, key Key) (Envelope, error)
	Save(ctx context.Context, key Key, draft form.Draft) (SaveReceipt, error)
	Delete(ctx context.Context, key Key) error
	// QuickSave is a best-effort write used on exit. Callers do not rely
	// on its outcome.
	QuickSave(ctx context.Context, key Key, draft form.Draft) error
}
