// Package search implements retrieval over a built index: a
// deterministic vector retriever used by the answer loop, and a hybrid
// engine that runs BM25 and vector search in parallel and merges the
// two rankings with reciprocal rank fusion.
package search

import (
	"github.com/codeqa/codeqa/internal/chunk"
	"github.com/codeqa/codeqa/internal/config"
)

// DefaultLimit is the number of results returned when the caller does
// not specify one.
const DefaultLimit = 5

// Weights blends the BM25 and vector contributions during fusion.
// They do not need to sum to 1; only the ratio matters.
type Weights struct {
	BM25     float64
	Semantic float64
}

// DefaultWeights favors semantic matches, which handle the natural
// language questions this tool is asked most often.
func DefaultWeights() Weights {
	return Weights{
		BM25:     0.4,
		Semantic: 0.6,
	}
}

// Options controls a single hybrid search call.
type Options struct {
	// Limit is the maximum number of results to return.
	// Zero means DefaultLimit.
	Limit int

	// Weights blends keyword and semantic scores. Zero value means
	// the engine's configured weights.
	Weights Weights
}

// Result is a retrieved chunk with its retrieval scores attached.
type Result struct {
	Chunk *chunk.Chunk

	// Score is the final ranking score: cosine similarity for
	// vector-only retrieval, normalized RRF score for hybrid search.
	Score float64

	// BM25Score and VectorScore are the per-channel scores before
	// fusion. Zero when the chunk was absent from that channel.
	BM25Score   float64
	VectorScore float64

	// MatchedTerms lists the query terms BM25 matched, when any.
	MatchedTerms []string
}

// weightsFromConfig maps the retrieval config onto fusion weights,
// falling back to defaults when both are unset.
func weightsFromConfig(cfg config.RetrievalConfig) Weights {
	if cfg.BM25Weight == 0 && cfg.SemanticWeight == 0 {
		return DefaultWeights()
	}
	return Weights{BM25: cfg.BM25Weight, Semantic: cfg.SemanticWeight}
}
