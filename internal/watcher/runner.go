package watcher

import (
	"context"
	"log/slog"

	"github.com/codeqa/codeqa/internal/index"
)

// Runner drains watcher batches into the incremental index
// coordinator and flushes the vector store after each batch.
type Runner struct {
	watcher *Watcher
	coord   *index.Coordinator
}

// NewRunner wires a watcher to a coordinator.
func NewRunner(w *Watcher, coord *index.Coordinator) *Runner {
	return &Runner{watcher: w, coord: coord}
}

// Run starts the watcher and applies event batches until the context
// is cancelled. Per-file failures are logged and skipped; one
// unreadable file must not stall watch mode.
func (r *Runner) Run(ctx context.Context) error {
	go func() {
		if err := r.watcher.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("watcher stopped", "error", err)
		}
	}()
	defer func() { _ = r.watcher.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-r.watcher.Events():
			if !ok {
				return nil
			}
			r.apply(ctx, batch)
		case err, ok := <-r.watcher.Errors():
			if ok && err != nil {
				slog.Warn("watch error", "error", err)
			}
		}
	}
}

func (r *Runner) apply(ctx context.Context, batch []FileEvent) {
	for _, event := range batch {
		var err error
		switch event.Operation {
		case OpCreate, OpModify:
			err = r.coord.UpdateFile(ctx, event.Path)
		case OpDelete:
			err = r.coord.RemoveFile(ctx, event.Path)
		}
		if err != nil {
			slog.Warn("incremental update failed",
				"path", event.Path,
				"op", event.Operation.String(),
				"error", err)
		}
	}
	if err := r.coord.Flush(); err != nil {
		slog.Warn("vector flush failed", "error", err)
	}
	slog.Debug("applied watch batch", "events", len(batch))
}
