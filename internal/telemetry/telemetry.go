// Package telemetry tracks simple usage counters in the metadata
// store. The counters live in the index database, so they reset with a
// full rebuild and never leave the machine. The status command
// surfaces them.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/codeqa/codeqa/internal/store"
)

// Counter names recorded by the pipeline.
const (
	CounterQueries         = "queries"
	CounterSearches        = "searches"
	CounterCompletionCalls = "completion_calls"
	CounterIndexBuilds     = "index_builds"
)

// Recorder increments usage counters. A nil Recorder is valid and
// records nothing, so callers can treat telemetry as optional.
type Recorder struct {
	meta store.MetadataStore
}

// NewRecorder creates a recorder over the given metadata store.
func NewRecorder(meta store.MetadataStore) *Recorder {
	return &Recorder{meta: meta}
}

// Record increments the named counter. Failures are logged and
// swallowed; telemetry must never fail the operation it observes.
func (r *Recorder) Record(ctx context.Context, name string) {
	if r == nil || r.meta == nil {
		return
	}
	if err := r.meta.IncrCounter(ctx, name); err != nil {
		slog.Warn("telemetry counter update failed", "counter", name, "error", err)
	}
}

// Counters returns the current counter values for display.
func (r *Recorder) Counters(ctx context.Context) (map[string]int64, error) {
	if r == nil || r.meta == nil {
		return map[string]int64{}, nil
	}
	return r.meta.Counters(ctx)
}
