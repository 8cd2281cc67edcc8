package search

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeqa/codeqa/internal/store"
)

func bm25Hit(id string, score float64) *store.BM25Result {
	return &store.BM25Result{DocID: id, Score: score, MatchedTerms: []string{"term"}}
}

func vecHit(id string, score float32) *store.VectorResult {
	return &store.VectorResult{ID: id, Score: score}
}

func TestFuseRRF_BothChannels(t *testing.T) {
	// Given two chunks ranked oppositely by the two channels
	bm25 := []*store.BM25Result{bm25Hit("chunk-a", 3.0), bm25Hit("chunk-b", 2.0)}
	vec := []*store.VectorResult{vecHit("chunk-b", 0.9), vecHit("chunk-a", 0.8)}

	// When fusing with semantic-leaning weights
	fused := FuseRRF(bm25, vec, Weights{BM25: 0.4, Semantic: 0.6}, DefaultRRFConstant)

	// Then the semantically stronger chunk wins and both are flagged
	// as dual-channel hits
	require.Len(t, fused, 2)
	assert.Equal(t, "chunk-b", fused[0].ChunkID)
	assert.Equal(t, "chunk-a", fused[1].ChunkID)
	for _, f := range fused {
		assert.True(t, f.InBothLists)
	}
	assert.Equal(t, 1.0, fused[0].RRFScore)
	assert.Less(t, fused[1].RRFScore, 1.0)
	assert.Greater(t, fused[1].RRFScore, 0.0)
	assert.Equal(t, []string{"term"}, fused[0].MatchedTerms)
}

func TestFuseRRF_MissingRankPenalty(t *testing.T) {
	// Given a chunk only the vector channel found, ranked first there
	bm25 := []*store.BM25Result{bm25Hit("chunk-a", 3.0), bm25Hit("chunk-b", 2.0)}
	vec := []*store.VectorResult{vecHit("chunk-c", 0.95)}

	fused := FuseRRF(bm25, vec, Weights{BM25: 0.4, Semantic: 0.6}, DefaultRRFConstant)

	// Then it still scores: the missing rank is one past the longer
	// list, not infinity
	require.Len(t, fused, 3)
	assert.Equal(t, "chunk-c", fused[0].ChunkID)
	assert.Equal(t, 3, fused[0].BM25Rank)
	assert.Equal(t, 1, fused[0].VectorRank)
	assert.False(t, fused[0].InBothLists)
}

func TestFuseRRF_DualChannelBeatsSingleAtSameRank(t *testing.T) {
	// Given one chunk both channels rank first and one chunk only
	// BM25 also returned
	bm25 := []*store.BM25Result{bm25Hit("chunk-a", 3.0), bm25Hit("chunk-b", 2.9)}
	vec := []*store.VectorResult{vecHit("chunk-a", 0.9)}

	fused := FuseRRF(bm25, vec, DefaultWeights(), DefaultRRFConstant)

	require.Len(t, fused, 2)
	assert.Equal(t, "chunk-a", fused[0].ChunkID)
	assert.True(t, fused[0].InBothLists)
	assert.False(t, fused[1].InBothLists)
}

func TestFuseRRF_TieBrokenByChunkID(t *testing.T) {
	// Given two vector-only hits and a zero semantic weight, so their
	// fused scores are identical
	vec := []*store.VectorResult{vecHit("chunk-b", 0.9), vecHit("chunk-a", 0.8)}

	fused := FuseRRF(nil, vec, Weights{BM25: 1.0, Semantic: 0}, DefaultRRFConstant)

	// Then ordering falls through to ascending chunk ID
	require.Len(t, fused, 2)
	assert.Equal(t, "chunk-a", fused[0].ChunkID)
	assert.Equal(t, "chunk-b", fused[1].ChunkID)
	assert.Equal(t, fused[0].RRFScore, fused[1].RRFScore)
}

func TestFuseRRF_Empty(t *testing.T) {
	assert.Empty(t, FuseRRF(nil, nil, DefaultWeights(), DefaultRRFConstant))
}

func TestFuseRRF_ZeroConstantUsesDefault(t *testing.T) {
	bm25 := []*store.BM25Result{bm25Hit("chunk-a", 1.0)}

	fused := FuseRRF(bm25, nil, DefaultWeights(), 0)

	require.Len(t, fused, 1)
	assert.Equal(t, 1.0, fused[0].RRFScore)
}

func BenchmarkFuseRRF(b *testing.B) {
	const n = 1000
	bm25 := make([]*store.BM25Result, n)
	vec := make([]*store.VectorResult, n)
	for i := range n {
		bm25[i] = bm25Hit(fmt.Sprintf("chunk-%04d", i), float64(n-i))
		// Half the vector hits overlap with the BM25 list.
		vec[i] = vecHit(fmt.Sprintf("chunk-%04d", i+n/2), float32(n-i)/float32(n))
	}
	w := DefaultWeights()

	b.ResetTimer()
	for range b.N {
		FuseRRF(bm25, vec, w, DefaultRRFConstant)
	}
}
