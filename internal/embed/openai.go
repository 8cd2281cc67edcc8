package embed

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

// DefaultOpenAIEmbedModel is the default OpenAI embedding model.
const DefaultOpenAIEmbedModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	// APIKey falls back to OPENAI_API_KEY when empty.
	APIKey string
	// Model is the embedding model name.
	Model string
	// Dimensions requests a truncated output dimensionality; 0 keeps
	// the model default.
	Dimensions int
	// BatchSize is the number of texts per request.
	BatchSize int
	// BaseURL overrides the API endpoint, for tests and proxies.
	BaseURL string
}

// OpenAIEmbedder generates embeddings through the OpenAI API.
type OpenAIEmbedder struct {
	client *openai.Client
	config OpenAIConfig
	dims   int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, qaerrors.New(qaerrors.ErrCodeProviderUnavailable,
			"openai API key not configured", nil).
			WithSuggestion("set OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIEmbedModel
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	dims := cfg.Dimensions
	if dims == 0 {
		dims = 1536 // text-embedding-3-small default
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		dims:   dims,
	}, nil
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedQuery embeds a query; OpenAI embeddings are symmetric.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.Embed(ctx, text)
}

// EmbedBatch embeds texts in batches, preserving order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.config.BatchSize, len(texts))

		batch := make([]string, end-start)
		for i, t := range texts[start:end] {
			if strings.TrimSpace(t) == "" {
				t = " "
			}
			batch[i] = t
		}

		req := openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(e.config.Model),
		}
		if e.config.Dimensions > 0 {
			req.Dimensions = e.config.Dimensions
		}

		resp, err := qaerrors.RetryWithResult(ctx, qaerrors.DefaultRetryConfig(),
			func() (openai.EmbeddingResponse, error) {
				r, err := e.client.CreateEmbeddings(ctx, req)
				if err != nil {
					return openai.EmbeddingResponse{}, classifyOpenAIError(err)
				}
				return r, nil
			})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) != len(batch) {
			return nil, qaerrors.Embedding(
				fmt.Sprintf("openai returned %d embeddings for %d texts", len(resp.Data), len(batch)), nil)
		}
		for _, d := range resp.Data {
			results = append(results, normalize(d.Embedding))
		}
	}
	return results, nil
}

// classifyOpenAIError maps API failures to taxonomy codes.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return qaerrors.New(qaerrors.ErrCodeProviderRateLimited, "openai rate limited", err)
		case apiErr.HTTPStatusCode >= 500:
			return qaerrors.New(qaerrors.ErrCodeProviderUnavailable, "openai unavailable", err)
		}
	}
	if strings.Contains(err.Error(), "deadline exceeded") {
		return qaerrors.New(qaerrors.ErrCodeProviderTimeout, "openai request timed out", err)
	}
	return qaerrors.Embedding("openai embedding failed", err)
}

// Dimensions returns the embedding dimensionality.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// ModelName returns the provider-qualified model identifier.
func (e *OpenAIEmbedder) ModelName() string { return "openai/" + e.config.Model }

// Available probes the API with a one-token embedding.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	_, err := e.Embed(ctx, "ping")
	return err == nil
}

// Close releases client resources; the SDK client is connectionless.
func (e *OpenAIEmbedder) Close() error { return nil }
