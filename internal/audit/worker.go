package audit

import (
	"context"
	"log/slog"

	"corpdesk/internal/platform/logger"
)

// Store persists mirrored entries.
type Store interface {
	Append(ctx context.Context, e Entry) error
}

// Worker consumes mirrored entries from a channel and persists them.
// Persistence is best-effort: a failed write is logged and skipped.
type Worker struct {
	store  Store
	inbox  <-chan Entry
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Entry, lg *slog.Logger) *Worker {
	if lg == nil {
		lg = logger.Discard()
	}
	return &Worker{store: store, inbox: inbox, logger: lg}
}

// Run drains the inbox until ctx is cancelled or the inbox is closed.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, e); err != nil {
				w.logger.ErrorContext(ctx, "failed to persist audit entry",
					"entry_id", e.ID,
					"action", e.Action,
					"error", err,
				)
			}
		}
	}
}
