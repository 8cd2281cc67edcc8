package search

import (
	"context"
	"fmt"

	"github.com/codeqa/codeqa/internal/embed"
	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/index"
)

// VectorRetriever returns the top-K chunks most similar to a query by
// cosine similarity. It is the retrieval half of the answer loop,
// which wants a single well-ordered candidate list rather than a
// fused hybrid ranking.
type VectorRetriever struct {
	snap     *index.Snapshot
	embedder embed.Embedder
}

// NewVectorRetriever pairs a published snapshot with the embedder used
// to query it. The embedder must match the one the snapshot was built
// with.
func NewVectorRetriever(snap *index.Snapshot, embedder embed.Embedder) (*VectorRetriever, error) {
	if err := snap.ValidateEmbedder(embedder.ModelName(), embedder.Dimensions()); err != nil {
		return nil, err
	}
	return &VectorRetriever{snap: snap, embedder: embedder}, nil
}

// Retrieve embeds the query and returns up to k chunks ordered by
// descending similarity, ties broken by ascending chunk ID. k is
// clamped to the number of indexed chunks.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, k int) ([]*Result, error) {
	if k <= 0 {
		return nil, qaerrors.InvalidArg(fmt.Sprintf("k must be positive, got %d", k))
	}
	count := r.snap.Vectors.Count()
	if count == 0 {
		return nil, qaerrors.EmptyIndex("the index contains no chunks")
	}
	if k > count {
		k = count
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := r.snap.Vectors.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = float64(h.Score)
	}
	chunks, err := r.snap.Meta.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	results := make([]*Result, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, &Result{
			Chunk:       c,
			Score:       scores[c.ID],
			VectorScore: scores[c.ID],
		})
	}
	return results, nil
}
