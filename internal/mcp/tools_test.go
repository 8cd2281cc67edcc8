package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeqa/codeqa/internal/answer"
	"github.com/codeqa/codeqa/internal/chunk"
	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/embed"
	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/index"
	"github.com/codeqa/codeqa/internal/llm"
	"github.com/codeqa/codeqa/internal/search"
	"github.com/codeqa/codeqa/internal/store"
	"github.com/codeqa/codeqa/internal/telemetry"
)

const fileA = "def foo(name):\n    \"\"\"Find things by name.\"\"\"\n    return lookup(name)\n"
const fileB = "def bar(count):\n    \"\"\"Count things.\"\"\"\n    return count + 1\n"

// newTestServer builds a server over a two-file project with an
// in-memory index and static providers.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte(fileA), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.py"), []byte(fileB), 0o644))

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

	chunks := []*chunk.Chunk{
		{ID: "a1", FilePath: "a.py", Content: fileA, Language: "python", StartLine: 1, EndLine: 3},
		{ID: "b1", FilePath: "b.py", Content: fileB, Language: "python", StartLine: 1, EndLine: 3},
	}
	ids := []string{"a1", "b1"}
	vecs, err := emb.EmbedBatch(ctx, []string{fileA, fileB})
	require.NoError(t, err)
	require.NoError(t, vectors.Add(ctx, ids, vecs))
	require.NoError(t, bm25.Index(ctx, []*store.Document{
		{ID: "a1", Content: fileA},
		{ID: "b1", Content: fileB},
	}))
	require.NoError(t, meta.SaveChunks(ctx, chunks))

	engine, err := search.NewEngineFromSnapshot(snap, emb, config.RetrievalConfig{})
	require.NoError(t, err)
	loop, err := answer.NewLoop(snap, emb, llm.NewStaticCompleter(), config.CompletionConfig{}, nil)
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{
		Root:      root,
		Snapshot:  snap,
		Engine:    engine,
		Loop:      loop,
		Telemetry: telemetry.NewRecorder(meta),
	})
	require.NoError(t, err)
	return srv
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	require.Error(t, err)
	assert.Equal(t, qaerrors.ErrCodeInvalidArgument, qaerrors.GetCode(err))
}

func TestAskTool(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleAsk(context.Background(), nil, AskInput{Question: "find foo"})
	require.NoError(t, err)

	assert.NotEmpty(t, out.Answer)
	assert.Equal(t, "static/context-echo", out.Model)
	require.NotEmpty(t, out.Sources)
	assert.Equal(t, "a.py", out.Sources[0].Path)
}

func TestAskTool_EmptyQuestion(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.handleAsk(context.Background(), nil, AskInput{Question: "  "})
	require.Error(t, err)
}

func TestSearchTool(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleSearch(context.Background(), nil, SearchInput{Query: "count things"})
	require.NoError(t, err)

	require.NotEmpty(t, out.Results)
	assert.Equal(t, "b.py", out.Results[0].Path)
	assert.Positive(t, out.Results[0].Score)
	assert.NotEmpty(t, out.Results[0].Snippet)
}

func TestSearchTool_RecordsTelemetry(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.handleSearch(context.Background(), nil, SearchInput{Query: "foo"})
	require.NoError(t, err)

	counters, err := srv.cfg.Telemetry.Counters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters[telemetry.CounterSearches])
}

func TestListFilesTool(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleListFiles(context.Background(), nil, ListFilesInput{})
	require.NoError(t, err)

	assert.Equal(t, 2, out.Count)
	paths := []string{out.Files[0].Path, out.Files[1].Path}
	assert.ElementsMatch(t, []string{"a.py", "b.py"}, paths)
}

func TestReadFileTool(t *testing.T) {
	srv := newTestServer(t)

	t.Run("whole file", func(t *testing.T) {
		_, out, err := srv.handleReadFile(context.Background(), nil, ReadFileInput{Path: "a.py"})
		require.NoError(t, err)
		assert.Equal(t, fileA, out.Content)
		assert.Equal(t, "python", out.Language)
	})

	t.Run("line range", func(t *testing.T) {
		_, out, err := srv.handleReadFile(context.Background(), nil, ReadFileInput{Path: "a.py", StartLine: 2, EndLine: 2})
		require.NoError(t, err)
		assert.Equal(t, "    \"\"\"Find things by name.\"\"\"", out.Content)
		assert.Equal(t, 2, out.StartLine)
		assert.Equal(t, 2, out.EndLine)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := srv.handleReadFile(context.Background(), nil, ReadFileInput{Path: "ghost.py"})
		require.Error(t, err)
		assert.Equal(t, qaerrors.ErrCodeFileNotFound, qaerrors.GetCode(err))
	})

	t.Run("escape attempt", func(t *testing.T) {
		for _, p := range []string{"../secrets.txt", "/etc/passwd", "a/../../b"} {
			_, _, err := srv.handleReadFile(context.Background(), nil, ReadFileInput{Path: p})
			require.Error(t, err, "path %q must be rejected", p)
			assert.Equal(t, qaerrors.ErrCodeInvalidArgument, qaerrors.GetCode(err))
		}
	})
}

func TestIndexStatusTool(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleIndexStatus(context.Background(), nil, IndexStatusInput{})
	require.NoError(t, err)

	assert.True(t, out.Ready)
	assert.Equal(t, 2, out.ChunkCount)
	assert.Equal(t, "static/fnv-256", out.EmbedderModel)
	assert.Equal(t, 256, out.Dimensions)
	assert.NotEmpty(t, out.BuiltAt)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultToolLimit, clampLimit(0))
	assert.Equal(t, defaultToolLimit, clampLimit(-3))
	assert.Equal(t, 5, clampLimit(5))
	assert.Equal(t, maxToolLimit, clampLimit(500))
}
