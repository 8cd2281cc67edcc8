package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/embed"
	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/index"
	"github.com/codeqa/codeqa/internal/store"
)

// candidateFloor is the minimum number of candidates fetched from each
// channel before fusion, regardless of the requested limit. Fusion
// needs headroom: a chunk ranked 8th by both channels can beat a chunk
// ranked 1st by only one.
const candidateFloor = 20

// EngineConfig wires the stores and embedder a hybrid engine searches
// over. BM25, Vectors, Meta and Embedder are required.
type EngineConfig struct {
	BM25     store.BM25Index
	Vectors  store.VectorStore
	Meta     store.MetadataStore
	Embedder embed.Embedder

	// Weights blends the two channels. Zero value means DefaultWeights.
	Weights Weights

	// RRFConstant is the fusion smoothing constant.
	// Zero means DefaultRRFConstant.
	RRFConstant int
}

// Engine runs BM25 and vector retrieval in parallel over a built index
// and fuses the rankings into one deterministic result list.
type Engine struct {
	bm25     store.BM25Index
	vectors  store.VectorStore
	meta     store.MetadataStore
	embedder embed.Embedder
	weights  Weights
	rrfK     int
}

// NewEngine builds a hybrid engine from explicit stores.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.BM25 == nil || cfg.Vectors == nil || cfg.Meta == nil {
		return nil, qaerrors.InvalidArg("engine requires bm25, vector and metadata stores")
	}
	if cfg.Embedder == nil {
		return nil, qaerrors.InvalidArg("engine requires an embedder")
	}
	w := cfg.Weights
	if w.BM25 == 0 && w.Semantic == 0 {
		w = DefaultWeights()
	}
	k := cfg.RRFConstant
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &Engine{
		bm25:     cfg.BM25,
		vectors:  cfg.Vectors,
		meta:     cfg.Meta,
		embedder: cfg.Embedder,
		weights:  w,
		rrfK:     k,
	}, nil
}

// NewEngineFromSnapshot builds a hybrid engine over a published index
// snapshot, taking weights and the RRF constant from the retrieval
// config. It verifies the embedder matches the one that built the
// snapshot.
func NewEngineFromSnapshot(snap *index.Snapshot, embedder embed.Embedder, cfg config.RetrievalConfig) (*Engine, error) {
	if err := snap.ValidateEmbedder(embedder.ModelName(), embedder.Dimensions()); err != nil {
		return nil, err
	}
	return NewEngine(EngineConfig{
		BM25:        snap.BM25,
		Vectors:     snap.Vectors,
		Meta:        snap.Meta,
		Embedder:    embedder,
		Weights:     weightsFromConfig(cfg),
		RRFConstant: cfg.RRFConstant,
	})
}

// Search answers a free-text query with the top fused results,
// enriched with their chunks from the metadata store.
func (e *Engine) Search(ctx context.Context, query string, opts *Options) ([]*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, qaerrors.InvalidArg("query must not be empty")
	}
	if e.vectors.Count() == 0 {
		return nil, qaerrors.EmptyIndex("the index contains no chunks")
	}

	limit := DefaultLimit
	weights := e.weights
	if opts != nil {
		if opts.Limit > 0 {
			limit = opts.Limit
		}
		if opts.Weights.BM25 != 0 || opts.Weights.Semantic != 0 {
			weights = opts.Weights
		}
	}
	fetch := max(limit*3, candidateFloor)

	start := time.Now()
	bm25Results, vecResults, err := e.parallelSearch(ctx, query, fetch)
	if err != nil {
		return nil, err
	}

	fused := FuseRRF(bm25Results, vecResults, weights, e.rrfK)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	results, err := e.enrich(ctx, fused)
	if err != nil {
		return nil, err
	}
	slog.Debug("hybrid search complete",
		"query_len", len(query),
		"bm25_hits", len(bm25Results),
		"vector_hits", len(vecResults),
		"results", len(results),
		"duration", time.Since(start))
	return results, nil
}

// parallelSearch runs the two retrieval channels concurrently. Either
// channel failing fails the search; an index that answers only half
// the question would return silently skewed rankings.
func (e *Engine) parallelSearch(ctx context.Context, query string, fetch int) ([]*store.BM25Result, []*store.VectorResult, error) {
	var (
		bm25Results []*store.BM25Result
		vecResults  []*store.VectorResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bm25Results, err = e.bm25.Search(gctx, query, fetch)
		if err != nil {
			return fmt.Errorf("bm25 search: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		vec, err := e.embedder.EmbedQuery(gctx, query)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		vecResults, err = e.vectors.Search(gctx, vec, fetch)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return bm25Results, vecResults, nil
}

// enrich resolves fused chunk IDs against the metadata store,
// preserving fusion order. IDs the store no longer has are dropped;
// the stores can drift briefly while a rebuild publishes.
func (e *Engine) enrich(ctx context.Context, fused []*FusedResult) ([]*Result, error) {
	if len(fused) == 0 {
		return nil, nil
	}
	ids := make([]string, len(fused))
	byID := make(map[string]*FusedResult, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
		byID[f.ChunkID] = f
	}

	chunks, err := e.meta.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	results := make([]*Result, 0, len(chunks))
	for _, c := range chunks {
		f := byID[c.ID]
		results = append(results, &Result{
			Chunk:        c,
			Score:        f.RRFScore,
			BM25Score:    f.BM25Score,
			VectorScore:  f.VectorScore,
			MatchedTerms: f.MatchedTerms,
		})
	}
	return results, nil
}
