package llm

import (
	"context"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

// DefaultClaudeModel is the default Claude completion model.
const DefaultClaudeModel = "claude-sonnet-4-5"

// ClaudeConfig configures the Claude completer.
type ClaudeConfig struct {
	// APIKey falls back to ANTHROPIC_API_KEY when empty.
	APIKey string
	// Model is the completion model name.
	Model string
	// BaseURL overrides the API endpoint, for tests.
	BaseURL string
}

// ClaudeCompleter generates completions through the Anthropic API.
type ClaudeCompleter struct {
	client *anthropic.Client
	model  string
}

var _ Completer = (*ClaudeCompleter)(nil)

// NewClaudeCompleter creates a Claude completer.
func NewClaudeCompleter(cfg ClaudeConfig) (*ClaudeCompleter, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, qaerrors.New(qaerrors.ErrCodeProviderUnavailable,
			"anthropic API key not configured", nil).
			WithSuggestion("set ANTHROPIC_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultClaudeModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(opts...)
	return &ClaudeCompleter{
		client: &client,
		model:  cfg.Model,
	}, nil
}

// Complete performs one Messages call.
func (c *ClaudeCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	req = req.withDefaults()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := qaerrors.RetryWithResult(ctx, qaerrors.DefaultRetryConfig(),
		func() (*anthropic.Message, error) {
			callCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
			defer cancel()

			m, err := c.client.Messages.New(callCtx, params)
			if err != nil {
				return nil, classifyClaudeError(err)
			}
			return m, nil
		})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, qaerrors.Completion("claude returned no text", nil)
	}

	return &Response{
		Text:         text.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

func classifyClaudeError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate_limit"):
		return qaerrors.New(qaerrors.ErrCodeProviderRateLimited, "claude rate limited", err)
	case strings.Contains(msg, "529"), strings.Contains(msg, "overloaded"), strings.Contains(msg, "503"):
		return qaerrors.New(qaerrors.ErrCodeProviderUnavailable, "claude unavailable", err)
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return qaerrors.New(qaerrors.ErrCodeProviderTimeout, "claude request timed out", err)
	default:
		return qaerrors.Completion("claude completion failed", err)
	}
}

// ModelName returns the provider-qualified model identifier.
func (c *ClaudeCompleter) ModelName() string { return "claude/" + c.model }

// Available probes the API with a trivial completion.
func (c *ClaudeCompleter) Available(ctx context.Context) bool {
	_, err := c.Complete(ctx, Request{Prompt: "ping", MaxTokens: 1})
	return err == nil
}

// Close releases client resources.
func (c *ClaudeCompleter) Close() error { return nil }
