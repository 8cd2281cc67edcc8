package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/store"
)

func defaultBM25() store.BM25Config {
	return store.BM25Config{}
}

func TestOpenSnapshot_NotBuilt(t *testing.T) {
	_, err := OpenSnapshot(context.Background(), t.TempDir(), defaultBM25())
	require.Error(t, err)
	assert.Equal(t, qaerrors.ErrCodeIndexNotBuilt, qaerrors.GetCode(err))
}

func TestSnapshot_RoundTripThroughDisk(t *testing.T) {
	ctx := context.Background()
	root := writeProject(t, twoFileProject)
	dataDir := root + "/.codeqa"

	snap, err := newTestBuilder(t, root, dataDir, nil).Build(ctx)
	require.NoError(t, err)
	wantCount, err := snap.ChunkCount(ctx)
	require.NoError(t, err)
	require.NoError(t, snap.Close())

	// When: opening the same index fresh
	reopened, err := OpenSnapshot(ctx, dataDir, defaultBM25())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	// Then: state and content survive
	assert.Equal(t, "static/fnv-256", reopened.EmbedderModel)
	assert.Equal(t, 256, reopened.Dimensions)
	assert.False(t, reopened.BuiltAt.IsZero())
	count, err := reopened.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantCount, count)
	assert.Equal(t, wantCount, reopened.Vectors.Count())

	// And: the keyword index came back too
	results, err := reopened.BM25.Search(ctx, "foo", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSnapshot_ValidateEmbedder(t *testing.T) {
	snap := &Snapshot{EmbedderModel: "static/fnv-256", Dimensions: 256}

	// Matching embedder passes
	assert.NoError(t, snap.ValidateEmbedder("static/fnv-256", 256))

	// A different model is a provider mismatch
	err := snap.ValidateEmbedder("ollama/nomic-embed-text", 768)
	require.Error(t, err)
	assert.Equal(t, qaerrors.ErrCodeProviderMismatch, qaerrors.GetCode(err))

	// Same model with different dimensionality is a dimension mismatch
	err = snap.ValidateEmbedder("static/fnv-256", 768)
	require.Error(t, err)
	assert.Equal(t, qaerrors.ErrCodeDimensionMismatch, qaerrors.GetCode(err))
}

func TestPublisher_AtomicSwap(t *testing.T) {
	var p Publisher

	// Nothing published yet
	_, err := p.Current()
	require.Error(t, err)
	assert.Equal(t, qaerrors.ErrCodeIndexNotBuilt, qaerrors.GetCode(err))

	// First publish returns no previous snapshot
	first := &Snapshot{EmbedderModel: "a"}
	assert.Nil(t, p.Publish(first))
	got, err := p.Current()
	require.NoError(t, err)
	assert.Same(t, first, got)

	// Second publish returns the first for deferred cleanup
	second := &Snapshot{EmbedderModel: "b"}
	assert.Same(t, first, p.Publish(second))
	got, err = p.Current()
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestCheckConsistency_DetectsDrift(t *testing.T) {
	ctx := context.Background()
	root := writeProject(t, twoFileProject)
	dataDir := root + "/.codeqa"

	snap, err := newTestBuilder(t, root, dataDir, nil).Build(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = snap.Close() })

	// Given: a vector deleted behind the metadata store's back
	ids, err := snap.Meta.AllChunkIDs(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	require.NoError(t, snap.Vectors.Delete(ctx, ids[:1]))

	// Then: the report flags exactly that chunk
	report, err := CheckConsistency(ctx, snap)
	require.NoError(t, err)
	assert.False(t, report.Consistent())
	assert.Equal(t, []string{ids[0]}, report.MissingVectors)
	assert.Empty(t, report.MissingBM25)
	assert.Empty(t, report.OrphanVectors)
}
