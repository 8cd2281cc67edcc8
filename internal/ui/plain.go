package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer prints one line per progress update. Suited to CI
// logs and pipes where cursor control would produce garbage.
type PlainRenderer struct {
	mu        sync.Mutex
	out       io.Writer
	lastStage Stage
	lastLine  time.Time
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, lastStage: -1}
}

func (r *PlainRenderer) Start(context.Context) error { return nil }

// UpdateProgress prints stage transitions immediately and throttles
// within-stage updates so large builds do not flood the log.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	stageChanged := event.Stage != r.lastStage
	final := event.Total > 0 && event.Current >= event.Total
	if !stageChanged && !final && now.Sub(r.lastLine) < 200*time.Millisecond {
		return
	}
	r.lastStage = event.Stage
	r.lastLine = now

	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s\n", event.Stage.Icon(), event.Current, event.Total, event.Message)
	case event.Message != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
	}
}

func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Indexed %d files (%d chunks) in %s\n",
		stats.Files, stats.Chunks, stats.Duration.Round(100*time.Millisecond))
	if stats.EmbedderModel != "" {
		_, _ = fmt.Fprintf(r.out, "Embedder: %s (%d dims)\n", stats.EmbedderModel, stats.Dimensions)
	}
}

func (r *PlainRenderer) Stop() error { return nil }
