package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vecNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	// Given the same input twice
	e := NewStaticEmbedder()

	a, err := e.Embed(context.Background(), "func ParseConfig(path string) error")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "func ParseConfig(path string) error")
	require.NoError(t, err)

	// Then the vectors are identical and unit length
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, vecNorm(a), 1e-5)
	assert.Len(t, a, StaticDimensions)
}

func TestStaticEmbedder_SimilarTextCloser(t *testing.T) {
	// Given related and unrelated texts
	e := NewStaticEmbedder()
	ctx := context.Background()

	query, _ := e.EmbedQuery(ctx, "parse configuration file")
	related, _ := e.Embed(ctx, "func parseConfigFile(path string) (*Config, error)")
	unrelated, _ := e.Embed(ctx, "draw the sprite at screen coordinates")

	// Then the related chunk scores higher on cosine similarity
	assert.Greater(t, dot(query, related), dot(query, unrelated))
}

func TestStaticEmbedder_EmptyInput(t *testing.T) {
	e := NewStaticEmbedder()

	vec, err := e.Embed(context.Background(), "   \n")
	require.NoError(t, err)
	assert.Len(t, vec, StaticDimensions)
	assert.Zero(t, vecNorm(vec))
}

func TestStaticEmbedder_Batch(t *testing.T) {
	e := NewStaticEmbedder()

	vecs, err := e.EmbedBatch(context.Background(), []string{"first text", "second text"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.NotEqual(t, vecs[0], vecs[1])

	single, err := e.Embed(context.Background(), "first text")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[0])
}

func TestTokenizeIdentifiers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"camelCase", "parseConfigFile", []string{"parse", "config", "file"}},
		{"snake_case", "parse_config_file", []string{"parse", "config", "file"}},
		{"acronym", "parseHTTPResponse", []string{"parse", "http", "response"}},
		{"mixed", "HTTPServer_v2", []string{"http", "server", "v2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenizeIdentifiers(tt.input))
		})
	}
}

func TestStaticEmbedder_Metadata(t *testing.T) {
	e := NewStaticEmbedder()
	assert.Equal(t, StaticDimensions, e.Dimensions())
	assert.Equal(t, "static/fnv-256", e.ModelName())
	assert.True(t, e.Available(context.Background()))
	assert.NoError(t, e.Close())
}
