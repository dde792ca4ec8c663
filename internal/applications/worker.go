package applications

import (
	"context"
	"log/slog"
)

// Worker drains the service's event queue into a Publisher so a slow or
// unavailable broker never delays the HTTP response.
type Worker struct {
	publisher Publisher
	inbox     <-chan Event
	logger    *slog.Logger
}

func NewWorker(publisher Publisher, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{publisher: publisher, inbox: inbox, logger: logger}
}

// Run publishes events until ctx is cancelled or the inbox is closed.
// Publish failures are logged and the event is dropped; the application
// itself is already stored.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.publisher.Publish(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "failed to publish application event",
					"application_reference", event.ApplicationReference,
					"error", err,
				)
			}
		}
	}
}
