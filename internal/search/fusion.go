package search

import (
	"sort"

	"github.com/codeqa/codeqa/internal/store"
)

// DefaultRRFConstant is the smoothing constant K in the reciprocal
// rank fusion formula score = weight / (K + rank). Larger values
// flatten the difference between adjacent ranks.
const DefaultRRFConstant = 60

// FusedResult is one chunk's combined ranking after RRF.
type FusedResult struct {
	ChunkID string

	// RRFScore is the fused score, normalized so the best result is 1.
	RRFScore float64

	// Per-channel scores and 1-based ranks. Rank is the missing-rank
	// penalty when the chunk did not appear in that channel.
	BM25Score   float64
	BM25Rank    int
	VectorScore float64
	VectorRank  int

	// InBothLists is true when both channels returned the chunk.
	InBothLists bool

	MatchedTerms []string
}

// FuseRRF merges a BM25 ranking and a vector ranking with weighted
// reciprocal rank fusion. A chunk absent from one list is assigned a
// rank one past the longer list, so single-channel hits still score
// but never outrank a chunk both channels agree on at similar ranks.
//
// Ordering is deterministic: RRF score descending, then chunks found
// by both channels first, then BM25 score descending, then chunk ID
// ascending.
func FuseRRF(bm25 []*store.BM25Result, vec []*store.VectorResult, w Weights, k int) []*FusedResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	missingRank := max(len(bm25), len(vec)) + 1
	fused := make(map[string]*FusedResult, len(bm25)+len(vec))

	for i, r := range bm25 {
		fused[r.DocID] = &FusedResult{
			ChunkID:      r.DocID,
			BM25Score:    r.Score,
			BM25Rank:     i + 1,
			VectorRank:   missingRank,
			MatchedTerms: r.MatchedTerms,
		}
	}
	for i, r := range vec {
		f, ok := fused[r.ID]
		if !ok {
			f = &FusedResult{
				ChunkID:  r.ID,
				BM25Rank: missingRank,
			}
			fused[r.ID] = f
		} else {
			f.InBothLists = true
		}
		f.VectorScore = float64(r.Score)
		f.VectorRank = i + 1
	}

	results := make([]*FusedResult, 0, len(fused))
	for _, f := range fused {
		f.RRFScore = w.BM25/float64(k+f.BM25Rank) + w.Semantic/float64(k+f.VectorRank)
		results = append(results, f)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		if a.InBothLists != b.InBothLists {
			return a.InBothLists
		}
		if a.BM25Score != b.BM25Score {
			return a.BM25Score > b.BM25Score
		}
		return a.ChunkID < b.ChunkID
	})

	normalizeRRF(results)
	return results
}

// normalizeRRF rescales fused scores to [0, 1] by dividing by the
// maximum. Raw RRF scores live in a narrow band near zero and are
// meaningless to display.
func normalizeRRF(results []*FusedResult) {
	if len(results) == 0 {
		return
	}
	best := results[0].RRFScore
	if best <= 0 {
		return
	}
	for _, f := range results {
		f.RRFScore /= best
	}
}
