package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_WritesStageLines(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})
	require.NoError(t, r.Start(t.Context()))

	r.UpdateProgress(ProgressEvent{Stage: StageScanning, Message: "discovering files"})
	r.UpdateProgress(ProgressEvent{Stage: StageEmbedding, Current: 3, Total: 10})

	out := buf.String()
	assert.Contains(t, out, "[SCAN] discovering files")
	assert.Contains(t, out, "[EMBED] 3/10")
	require.NoError(t, r.Stop())
}

func TestPlainRenderer_ThrottlesRepeatedUpdates(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})

	// A burst of same-stage updates collapses to the first one; the
	// final update always prints.
	for i := 1; i <= 100; i++ {
		r.UpdateProgress(ProgressEvent{Stage: StageEmbedding, Current: i, Total: 100})
	}

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	assert.Less(t, lines, 10)
	assert.Contains(t, buf.String(), "100/100")
}

func TestPlainRenderer_Complete(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})

	r.Complete(CompletionStats{
		Files:         12,
		Chunks:        80,
		Duration:      1500 * time.Millisecond,
		EmbedderModel: "static/fnv-256",
		Dimensions:    256,
	})

	out := buf.String()
	assert.Contains(t, out, "Indexed 12 files (80 chunks)")
	assert.Contains(t, out, "static/fnv-256")
}
