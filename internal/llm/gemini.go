package llm

import (
	"context"
	"os"
	"strings"

	"google.golang.org/genai"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

// DefaultGeminiModel is the default Gemini completion model.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig configures the Gemini completer.
type GeminiConfig struct {
	// APIKey falls back to GEMINI_API_KEY when empty.
	APIKey string
	// Model is the completion model name.
	Model string
}

// GeminiCompleter generates completions through the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

var _ Completer = (*GeminiCompleter)(nil)

// NewGeminiCompleter creates a Gemini completer.
func NewGeminiCompleter(ctx context.Context, cfg GeminiConfig) (*GeminiCompleter, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, qaerrors.New(qaerrors.ErrCodeProviderUnavailable,
			"gemini API key not configured", nil).
			WithSuggestion("set GEMINI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, qaerrors.New(qaerrors.ErrCodeProviderUnavailable, "create gemini client", err)
	}

	return &GeminiCompleter{client: client, model: cfg.Model}, nil
}

// Complete performs one GenerateContent call.
func (c *GeminiCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	req = req.withDefaults()

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	resp, err := qaerrors.RetryWithResult(ctx, qaerrors.DefaultRetryConfig(),
		func() (*genai.GenerateContentResponse, error) {
			callCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
			defer cancel()

			r, err := c.client.Models.GenerateContent(callCtx, c.model, contents, genCfg)
			if err != nil {
				return nil, classifyGeminiError(err)
			}
			return r, nil
		})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return nil, qaerrors.Completion("gemini returned no text", nil)
	}

	out := &Response{Text: text.String()}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// classifyGeminiError maps API failures to taxonomy codes so rate
// limits retry while permanent failures surface immediately.
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
		return qaerrors.Completion("gemini completion failed", err)
	}
}

// ModelName returns the provider-qualified model identifier.
func (c *GeminiCompleter) ModelName() string { return "gemini/" + c.model }

// Available probes the API with a trivial completion.
func (c *GeminiCompleter) Available(ctx context.Context) bool {
	_, err := c.Complete(ctx, Request{Prompt: "ping", MaxTokens: 1})
	return err == nil
}

// Close releases client resources.
func (c *GeminiCompleter) Close() error { return nil }
