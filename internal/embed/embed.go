// Package embed turns chunk text into vectors. Providers implement the
// Embedder interface; the factory picks one from configuration and wraps
// it with an LRU cache.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the number of texts sent per provider call.
	DefaultBatchSize = 32

	// MaxBatchSize caps configured batch sizes.
	MaxBatchSize = 256

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 60 * time.Second

	// DefaultDimensions is used when a provider cannot report its
	// dimensionality before the first call.
	DefaultDimensions = 768
)

// Embedder generates vector embeddings for text. All returned vectors
// are unit-normalized so cosine similarity reduces to a dot product.
type Embedder interface {
	// Embed embeds a single document chunk.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds multiple chunks, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a search query. Providers with asymmetric
	// retrieval models encode queries differently from documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// ModelName returns the provider-qualified model identifier that is
	// recorded with the index and checked on reopen.
	ModelName() string

	// Available reports whether the provider is reachable.
	Available(ctx context.Context) bool

	// Close releases provider resources.
	Close() error
}

// normalize scales a vector to unit length. Zero vectors pass through.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	mag := math.Sqrt(sum)
	if mag == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
