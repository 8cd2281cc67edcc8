package embed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/codeqa/codeqa/internal/config"
	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

// Provider names accepted in configuration.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderStatic = "static"
)

// NewEmbedder creates the configured embedding provider, wrapped with
// an LRU cache. An empty provider auto-detects: Gemini or OpenAI when
// an API key is present, otherwise Ollama.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = detectProvider()
	}

	var (
		embedder Embedder
		err      error
	)
	switch provider {
	case ProviderGemini:
		embedder, err = NewGeminiEmbedder(ctx, GeminiConfig{
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
	case ProviderOpenAI:
		embedder, err = NewOpenAIEmbedder(OpenAIConfig{
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
	case ProviderOllama:
		embedder, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	default:
		return nil, qaerrors.ConfigError(
			fmt.Sprintf("unknown embeddings provider %q", cfg.Provider), nil)
	}
	if err != nil {
		return nil, err
	}

	return NewCachedEmbedder(embedder, DefaultCacheSize), nil
}

// detectProvider picks a provider from the environment: hosted APIs
// with keys present win over a local Ollama.
func detectProvider() string {
	if os.Getenv("GEMINI_API_KEY") != "" {
		return ProviderGemini
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return ProviderOpenAI
	}
	return ProviderOllama
}
