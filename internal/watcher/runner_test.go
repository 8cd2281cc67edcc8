package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeqa/codeqa/internal/chunk"
	"github.com/codeqa/codeqa/internal/embed"
	"github.com/codeqa/codeqa/internal/index"
	"github.com/codeqa/codeqa/internal/store"
)

func newTestCoordinator(t *testing.T, root string) (*index.Coordinator, *index.Snapshot) {
	t.Helper()
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

	coord, err := index.NewCoordinator(index.CoordinatorConfig{
		Root:     root,
		Snapshot: snap,
		Chunker:  chunk.NewFileChunker(chunk.StrategySyntax, chunk.Options{}),
		Embedder: emb,
	})
	require.NoError(t, err)
	return coord, snap
}

func TestRunner_ApplyIndexesAndRemoves(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def foo():\n    return 1\n"), 0o644))
	coord, snap := newTestCoordinator(t, root)
	r := &Runner{coord: coord}
	ctx := context.Background()

	// Create event indexes the file
	r.apply(ctx, []FileEvent{event("a.py", OpCreate)})
	paths, err := snap.Meta.ListFilePaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py"}, paths)
	count, err := snap.Meta.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Positive(t, count)

	// Delete event removes it again
	r.apply(ctx, []FileEvent{event("a.py", OpDelete)})
	paths, err = snap.Meta.ListFilePaths(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.Zero(t, snap.Vectors.Count())
}

func TestRunner_ApplySkipsFailingFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "ok.py"), []byte("def ok(): pass\n"), 0o644))
	coord, snap := newTestCoordinator(t, root)
	r := &Runner{coord: coord}
	ctx := context.Background()

	// A path that vanished before the event is applied must not stop
	// the rest of the batch.
	r.apply(ctx, []FileEvent{
		event("ghost.py", OpModify),
		event("ok.py", OpCreate),
	})

	paths, err := snap.Meta.ListFilePaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.py"}, paths)
}

func TestRunner_EndToEnd(t *testing.T) {
	root := t.TempDir()
	coord, snap := newTestCoordinator(t, root)
	w, err := New(root, Options{DebounceWindow: 30 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewRunner(w, coord).Run(ctx)
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "live.py"), []byte("def live(): pass\n"), 0o644))

	require.Eventually(t, func() bool {
		count, err := snap.Meta.FileCount(context.Background())
		return err == nil && count == 1
	}, 5*time.Second, 50*time.Millisecond, "file never reached the index")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop on cancellation")
	}
}
