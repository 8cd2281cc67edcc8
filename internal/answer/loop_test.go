package answer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeqa/codeqa/internal/chunk"
	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/embed"
	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/index"
	"github.com/codeqa/codeqa/internal/llm"
	"github.com/codeqa/codeqa/internal/store"
	"github.com/codeqa/codeqa/internal/telemetry"
)

// newTestSnapshot builds an in-memory snapshot from path -> content,
// one chunk per file, embedded with the static embedder.
func newTestSnapshot(t *testing.T, files map[string]string) *index.Snapshot {
	t.Helper()
	ctx := context.Background()
	emb := embed.NewStaticEmbedder()

	vectors, err := store.NewHNSWStore(store.VectorStoreConfig{Dimensions: emb.Dimensions()})
	require.NoError(t, err)
	meta, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	bm25, err := store.NewSQLiteBM25("", store.BM25Config{})
	require.NoError(t, err)

	snap := &index.Snapshot{
		Vectors:       vectors,
		Meta:          meta,
		BM25:          bm25,
		EmbedderModel: emb.ModelName(),
		Dimensions:    emb.Dimensions(),
		BuiltAt:       time.Now(),
	}
	t.Cleanup(func() { _ = snap.Close() })

	var ids []string
	var chunks []*chunk.Chunk
	var texts []string
	for path, content := range files {
		id := path + ":1"
		ids = append(ids, id)
		chunks = append(chunks, &chunk.Chunk{
			ID:        id,
			FilePath:  path,
			Content:   content,
			StartLine: 1,
			EndLine:   5,
		})
		texts = append(texts, content)
	}
	if len(ids) == 0 {
		return snap
	}
	vecs, err := emb.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.NoError(t, vectors.Add(ctx, ids, vecs))
	require.NoError(t, meta.SaveChunks(ctx, chunks))
	return snap
}

func twoFileProject() map[string]string {
	return map[string]string{
		"a.py": "def foo(name):\n    \"\"\"Find things by name.\"\"\"\n    return lookup(name)",
		"b.py": "def bar(count):\n    \"\"\"Count things.\"\"\"\n    return count + 1",
	}
}

func newTestLoop(t *testing.T, files map[string]string) (*Loop, *telemetry.Recorder) {
	t.Helper()
	snap := newTestSnapshot(t, files)
	rec := telemetry.NewRecorder(snap.Meta)
	loop, err := NewLoop(snap, embed.NewStaticEmbedder(), llm.NewStaticCompleter(),
		config.CompletionConfig{PromptBudget: DefaultPromptBudget, MaxTokens: 1024}, rec)
	require.NoError(t, err)
	return loop, rec
}

func TestLoop_Answer(t *testing.T) {
	loop, rec := newTestLoop(t, twoFileProject())

	// When asking for foo
	result, err := loop.Answer(context.Background(), "find foo", 2)
	require.NoError(t, err)

	// Then the top context chunk comes from a.py and the completion
	// output is returned verbatim
	require.NotEmpty(t, result.Context)
	assert.Equal(t, "a.py", result.Context[0].Path)
	assert.Contains(t, result.Text, "a.py")
	assert.Equal(t, "static/context-echo", result.Model)

	// And exactly one query and one completion call were recorded
	counters, err := rec.Counters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters[telemetry.CounterQueries])
	assert.Equal(t, int64(1), counters[telemetry.CounterCompletionCalls])
}

func TestLoop_ClampsKToChunkCount(t *testing.T) {
	loop, _ := newTestLoop(t, twoFileProject())

	result, err := loop.Answer(context.Background(), "find foo", 50)
	require.NoError(t, err)

	assert.Len(t, result.Context, 2)
}

func TestLoop_InvalidArguments(t *testing.T) {
	loop, _ := newTestLoop(t, twoFileProject())

	tests := []struct {
		name  string
		query string
		k     int
	}{
		{name: "zero k", query: "find foo", k: 0},
		{name: "negative k", query: "find foo", k: -1},
		{name: "empty query", query: "   ", k: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loop.Answer(context.Background(), tt.query, tt.k)
			require.Error(t, err)
			assert.Equal(t, qaerrors.ErrCodeInvalidArgument, qaerrors.GetCode(err))
		})
	}
}

func TestLoop_EmptyIndex(t *testing.T) {
	loop, _ := newTestLoop(t, nil)

	_, err := loop.Answer(context.Background(), "anything", 5)
	require.Error(t, err)
	assert.Equal(t, qaerrors.ErrCodeEmptyIndex, qaerrors.GetCode(err))
}

// failingCompleter fails every completion with a provider error.
type failingCompleter struct{}

func (failingCompleter) Complete(context.Context, llm.Request) (*llm.Response, error) {
	return nil, qaerrors.Completion("model overloaded", nil)
}
func (failingCompleter) ModelName() string              { return "failing/test" }
func (failingCompleter) Available(context.Context) bool { return true }
func (failingCompleter) Close() error                   { return nil }

func TestLoop_CompletionErrorPropagates(t *testing.T) {
	snap := newTestSnapshot(t, twoFileProject())
	loop, err := NewLoop(snap, embed.NewStaticEmbedder(), failingCompleter{},
		config.CompletionConfig{}, nil)
	require.NoError(t, err)

	_, err = loop.Answer(context.Background(), "find foo", 2)
	require.Error(t, err)
	assert.Equal(t, qaerrors.ErrCodeCompletionFailed, qaerrors.GetCode(err))
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestNewLoop_EmbedderMismatch(t *testing.T) {
	snap := newTestSnapshot(t, twoFileProject())
	snap.EmbedderModel = "openai/text-embedding-3-small"

	_, err := NewLoop(snap, embed.NewStaticEmbedder(), llm.NewStaticCompleter(),
		config.CompletionConfig{}, nil)
	require.Error(t, err)
	assert.Equal(t, qaerrors.ErrCodeProviderMismatch, qaerrors.GetCode(err))
}
