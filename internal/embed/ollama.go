package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

// Ollama defaults.
const (
	DefaultOllamaHost       = "http://localhost:11434"
	DefaultOllamaEmbedModel = "nomic-embed-text"
	ollamaConnectTimeout    = 5 * time.Second
	ollamaPoolSize          = 4
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string
	// Model is the embedding model name.
	Model string
	// Dimensions overrides auto-detection when non-zero.
	Dimensions int
	// BatchSize is the number of texts per /api/embed call.
	BatchSize int
	// Timeout bounds a single API request.
	Timeout time.Duration
	// SkipHealthCheck bypasses the startup probe, for tests.
	SkipHealthCheck bool
	// ProgressFunc, when set, receives (completed, total) after each batch.
	ProgressFunc func(completed, total int)
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaEmbedder generates embeddings through Ollama's HTTP API. It is
// safe for concurrent use.
type OllamaEmbedder struct {
	client *http.Client
	config OllamaConfig
	dims   int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an Ollama embedder and, unless skipped,
// verifies the host is reachable and the model present.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaEmbedModel
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	e := &OllamaEmbedder{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        ollamaPoolSize,
				MaxIdleConnsPerHost: ollamaPoolSize,
				IdleConnTimeout:     10 * time.Second,
			},
		},
		config: cfg,
		dims:   cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		if !e.hasModel(checkCtx) {
			return nil, qaerrors.New(qaerrors.ErrCodeProviderUnavailable,
				fmt.Sprintf("ollama model %q not available at %s", cfg.Model, cfg.Host), nil).
				WithSuggestion(fmt.Sprintf("run 'ollama pull %s'", cfg.Model))
		}
		if e.dims == 0 {
			dims, err := e.detectDimensions(checkCtx)
			if err != nil {
				return nil, qaerrors.Embedding("detect embedding dimensions", err)
			}
			e.dims = dims
		}
	}
	if e.dims == 0 {
		e.dims = DefaultDimensions
	}

	return e, nil
}

// Embed embeds a single text. Whitespace-only input maps to the zero
// vector without a provider call.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dims), nil
	}

	vecs, err := e.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, qaerrors.Embedding("ollama returned no embedding", nil)
	}
	return vecs[0], nil
}

// EmbedQuery embeds a query. Ollama has no asymmetric encoding, so this
// matches Embed.
func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.Embed(ctx, text)
}

// EmbedBatch embeds texts in provider-sized batches, preserving order.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var pending []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
		} else {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.config.BatchSize, len(pending))

		batch := make([]string, 0, end-start)
		for _, idx := range pending[start:end] {
			batch = append(batch, texts[idx])
		}

		vecs, err := e.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, qaerrors.Embedding(
				fmt.Sprintf("ollama returned %d embeddings for %d texts", len(vecs), len(batch)), nil)
		}
		for j, idx := range pending[start:end] {
			results[idx] = vecs[j]
		}

		if e.config.ProgressFunc != nil {
			e.config.ProgressFunc(end, len(pending))
		}
	}

	return results, nil
}

// embedWithRetry retries transient failures with backoff; coded
// permanent errors stop the loop immediately.
func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	return qaerrors.RetryWithResult(ctx, qaerrors.DefaultRetryConfig(), func() ([][]float32, error) {
		reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
		return e.doEmbed(reqCtx, texts)
	})
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, qaerrors.Embedding("marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, qaerrors.Embedding("build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, qaerrors.New(qaerrors.ErrCodeProviderTimeout, "ollama request timed out", err)
		}
		return nil, qaerrors.New(qaerrors.ErrCodeProviderUnavailable, "ollama unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, providerStatusError("ollama", resp.StatusCode, string(respBody))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, qaerrors.Embedding("decode embed response", err)
	}

	vecs := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vecs[i] = normalize(toFloat32(emb))
	}
	return vecs, nil
}

// providerStatusError maps an HTTP status to the error taxonomy.
// 429 and 5xx are retryable; everything else is permanent.
func providerStatusError(provider string, status int, body string) error {
	msg := fmt.Sprintf("%s returned status %d: %s", provider, status, strings.TrimSpace(body))
	switch {
	case status == http.StatusTooManyRequests:
		return qaerrors.New(qaerrors.ErrCodeProviderRateLimited, msg, nil)
	case status >= 500:
		return qaerrors.New(qaerrors.ErrCodeProviderUnavailable, msg, nil)
	default:
		return qaerrors.Embedding(msg, nil)
	}
}

func (e *OllamaEmbedder) detectDimensions(ctx context.Context) (int, error) {
	vecs, err := e.doEmbed(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, fmt.Errorf("empty embedding returned")
	}
	return len(vecs[0]), nil
}

func (e *OllamaEmbedder) hasModel(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}

	want := strings.ToLower(e.config.Model)
	wantBase, _, _ := strings.Cut(want, ":")
	for _, m := range tags.Models {
		name := strings.ToLower(m.Name)
		base, _, _ := strings.Cut(name, ":")
		if name == want || base == want || base == wantBase {
			return true
		}
	}
	return false
}

func (e *OllamaEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return qaerrors.Embedding("embedder is closed", nil)
	}
	return nil
}

// Dimensions returns the embedding dimensionality.
func (e *OllamaEmbedder) Dimensions() int { return e.dims }

// ModelName returns the provider-qualified model identifier.
func (e *OllamaEmbedder) ModelName() string { return "ollama/" + e.config.Model }

// Available reports whether the host responds and the model is present.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.checkOpen() != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, ollamaConnectTimeout)
	defer cancel()
	return e.hasModel(probeCtx)
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
