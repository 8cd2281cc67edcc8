package llm

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
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderStatic = "static"
)

// NewCompleter creates the configured completion provider. An empty
// provider auto-detects from available API keys, falling back to a
// local Ollama.
func NewCompleter(ctx context.Context, cfg config.CompletionConfig) (Completer, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = detectProvider()
	}

	switch provider {
	case ProviderGemini:
		return NewGeminiCompleter(ctx, GeminiConfig{Model: cfg.Model})
	case ProviderClaude:
		return NewClaudeCompleter(ClaudeConfig{Model: cfg.Model})
	case ProviderOpenAI:
		return NewOpenAICompleter(OpenAIConfig{Model: cfg.Model})
	case ProviderOllama:
		return NewOllamaCompleter(OllamaConfig{Host: cfg.OllamaHost, Model: cfg.Model}), nil
	case ProviderStatic:
		return NewStaticCompleter(), nil
	default:
		return nil, qaerrors.ConfigError(
			fmt.Sprintf("unknown completion provider %q", cfg.Provider), nil)
	}
}

func detectProvider() string {
	if os.Getenv("GEMINI_API_KEY") != "" {
		return ProviderGemini
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return ProviderClaude
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return ProviderOpenAI
	}
	return ProviderOllama
}
