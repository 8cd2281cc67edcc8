package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

func newTestVectorStore(t *testing.T, dims int) *HNSWStore {
	t.Helper()
	s, err := NewHNSWStore(VectorStoreConfig{Dimensions: dims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHNSWStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 3)

	// Given: three well-separated vectors
	err := s.Add(ctx,
		[]string{"chunk-a", "chunk-b", "chunk-c"},
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count())

	// When: searching near the first vector
	results, err := s.Search(ctx, []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)

	// Then: the closest vector comes back first with the highest score
	require.Len(t, results, 2)
	assert.Equal(t, "chunk-a", results[0].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestHNSWStore_SearchDeterministicTieBreak(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 3)

	// Given: two identical vectors with different IDs
	err := s.Add(ctx,
		[]string{"chunk-z", "chunk-a"},
		[][]float32{{1, 0, 0}, {1, 0, 0}})
	require.NoError(t, err)

	// When: searching repeatedly
	for i := 0; i < 5; i++ {
		results, err := s.Search(ctx, []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)

		// Then: equal scores break ties by ascending chunk ID every time
		assert.Equal(t, "chunk-a", results[0].ID)
		assert.Equal(t, "chunk-z", results[1].ID)
	}
}

func TestHNSWStore_ReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 2)

	require.NoError(t, s.Add(ctx, []string{"c1"}, [][]float32{{1, 0}}))

	// When: re-adding the same ID with a new vector
	require.NoError(t, s.Add(ctx, []string{"c1"}, [][]float32{{0, 1}}))

	// Then: the count stays at one and search finds the new vector
	assert.Equal(t, 1, s.Count())
	results, err := s.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)

	// When: deleting the ID
	require.NoError(t, s.Delete(ctx, []string{"c1"}))

	// Then: it is gone from every accessor
	assert.Equal(t, 0, s.Count())
	assert.False(t, s.Contains("c1"))
	results, err = s.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_DeletedVectorsNeverCrowdOutLive(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 2)

	// Given: several vectors near the query, most of them then deleted
	ids := []string{"d1", "d2", "d3", "live"}
	vecs := [][]float32{{1, 0}, {0.99, 0.01}, {0.98, 0.02}, {0.5, 0.5}}
	require.NoError(t, s.Add(ctx, ids, vecs))
	require.NoError(t, s.Delete(ctx, []string{"d1", "d2", "d3"}))

	// When: searching with a small k
	results, err := s.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)

	// Then: the surviving vector is still found
	require.Len(t, results, 1)
	assert.Equal(t, "live", results[0].ID)
}

func TestHNSWStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 4)

	// When: adding a vector with the wrong dimensionality
	err := s.Add(ctx, []string{"bad"}, [][]float32{{1, 0}})

	// Then: the error carries the dimension-mismatch code
	require.Error(t, err)
	assert.Equal(t, qaerrors.ErrCodeDimensionMismatch, qaerrors.GetCode(err))

	// And: so does searching with a wrong-sized query
	_, err = s.Search(ctx, []float32{1, 0}, 1)
	require.Error(t, err)
	assert.Equal(t, qaerrors.ErrCodeDimensionMismatch, qaerrors.GetCode(err))
}

func TestHNSWStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	s := newTestVectorStore(t, 3)
	require.NoError(t, s.Add(ctx,
		[]string{"c1", "c2"},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, s.Save(path))

	// When: loading into a fresh store
	loaded, err := NewHNSWStore(VectorStoreConfig{Dimensions: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = loaded.Close() })
	require.NoError(t, loaded.Load(path))

	// Then: contents and search behavior survive the round trip
	assert.Equal(t, 2, loaded.Count())
	assert.True(t, loaded.Contains("c1"))
	results, err := loaded.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ID)

	// And: the stored dimensionality is readable without loading the graph
	dims, err := ReadStoredDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 3, dims)
}

func TestReadStoredDimensions_MissingFile(t *testing.T) {
	dims, err := ReadStoredDimensions(filepath.Join(t.TempDir(), "absent.hnsw"))
	require.NoError(t, err)
	assert.Equal(t, 0, dims)
}

func TestHNSWStore_EmptySearch(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 2)

	results, err := s.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_ClosedRejectsOperations(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 2)
	require.NoError(t, s.Close())

	assert.Error(t, s.Add(ctx, []string{"c"}, [][]float32{{1, 0}}))
	_, err := s.Search(ctx, []float32{1, 0}, 1)
	assert.Error(t, err)
	assert.Equal(t, 0, s.Count())
	assert.NoError(t, s.Close())
}
