package embed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

// Gemini defaults. The embedding model encodes documents and queries
// asymmetrically via task types.
const (
	DefaultGeminiEmbedModel = "gemini-embedding-001"

	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// GeminiConfig configures the Gemini embedder.
type GeminiConfig struct {
	// APIKey falls back to GEMINI_API_KEY when empty.
	APIKey string
	// Model is the embedding model name.
	Model string
	// Dimensions requests a truncated output dimensionality; 0 keeps
	// the model default.
	Dimensions int
	// BatchSize is the number of texts per EmbedContent call.
	BatchSize int
}

// GeminiEmbedder generates embeddings through the Gemini API.
type GeminiEmbedder struct {
	client *genai.Client
	config GeminiConfig
	dims   int
}

var _ Embedder = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder creates a Gemini embedder.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, qaerrors.New(qaerrors.ErrCodeProviderUnavailable,
			"gemini API key not configured", nil).
			WithSuggestion("set GEMINI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiEmbedModel
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, qaerrors.New(qaerrors.ErrCodeProviderUnavailable, "create gemini client", err)
	}

	dims := cfg.Dimensions
	if dims == 0 {
		dims = DefaultDimensions
	}

	return &GeminiEmbedder{client: client, config: cfg, dims: dims}, nil
}

// Embed embeds a single document chunk.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, taskRetrievalDocument)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedQuery embeds a search query with the query task type, which the
// model optimizes for matching against document embeddings.
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds document chunks in batches, preserving order.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.config.BatchSize, len(texts))

		vecs, err := e.embed(ctx, texts[start:end], taskRetrievalDocument)
		if err != nil {
			return nil, err
		}
		results = append(results, vecs...)
	}
	return results, nil
}

func (e *GeminiEmbedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			t = " "
		}
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	embedCfg := &genai.EmbedContentConfig{TaskType: taskType}
	if e.config.Dimensions > 0 {
		embedCfg.OutputDimensionality = genai.Ptr(int32(e.config.Dimensions))
	}

	result, err := qaerrors.RetryWithResult(ctx, qaerrors.DefaultRetryConfig(),
		func() (*genai.EmbedContentResponse, error) {
			resp, err := e.client.Models.EmbedContent(ctx, e.config.Model, contents, embedCfg)
			if err != nil {
				return nil, classifyGeminiError(err)
			}
			return resp, nil
		})
	if err != nil {
		return nil, err
	}

	if len(result.Embeddings) != len(texts) {
		return nil, qaerrors.Embedding(
			fmt.Sprintf("gemini returned %d embeddings for %d texts", len(result.Embeddings), len(texts)), nil)
	}

	vecs := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, qaerrors.Embedding("gemini returned an empty embedding", nil)
		}
		vecs[i] = normalize(emb.Values)
	}
	return vecs, nil
}

// classifyGeminiError maps API failures to taxonomy codes so the retry
// loop can tell rate limits from permanent failures.
func classifyGeminiError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "RESOURCE_EXHAUSTED"), strings.Contains(msg, "quota"):
		return qaerrors.New(qaerrors.ErrCodeProviderRateLimited, "gemini rate limited", err)
	case strings.Contains(msg, "503"), strings.Contains(msg, "UNAVAILABLE"):
		return qaerrors.New(qaerrors.ErrCodeProviderUnavailable, "gemini unavailable", err)
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return qaerrors.New(qaerrors.ErrCodeProviderTimeout, "gemini request timed out", err)
	default:
		return qaerrors.Embedding("gemini embedding failed", err)
	}
}

// Dimensions returns the embedding dimensionality.
func (e *GeminiEmbedder) Dimensions() int { return e.dims }

// ModelName returns the provider-qualified model identifier.
func (e *GeminiEmbedder) ModelName() string { return "gemini/" + e.config.Model }

// Available probes the API with a one-token embedding.
func (e *GeminiEmbedder) Available(ctx context.Context) bool {
	_, err := e.embed(ctx, []string{"ping"}, taskRetrievalQuery)
	return err == nil
}

// Close releases client resources. The genai client holds no
// connections that need explicit shutdown.
func (e *GeminiEmbedder) Close() error { return nil }
