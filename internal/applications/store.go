package applications

import "context"

// Store persists accepted applications. Get returns sentinel.ErrNotFound
// for unknown references.
type Store interface {
	Create(ctx context.Context, app Application) error
	Get(ctx context.Context, reference string) (Application, error)
}

// Publisher announces accepted applications.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
