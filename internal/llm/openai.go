package llm

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

// DefaultOpenAIModel is the default OpenAI completion model.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI completer.
type OpenAIConfig struct {
	// APIKey falls back to OPENAI_API_KEY when empty.
	APIKey string
	// Model is the completion model name.
	Model string
	// BaseURL overrides the API endpoint, for tests and proxies.
	BaseURL string
}

// OpenAICompleter generates completions through the OpenAI chat API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

var _ Completer = (*OpenAICompleter)(nil)

// NewOpenAICompleter creates an OpenAI completer.
func NewOpenAICompleter(cfg OpenAIConfig) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, qaerrors.New(qaerrors.ErrCodeProviderUnavailable,
			"openai API key not configured", nil).
			WithSuggestion("set OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAICompleter{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Complete performs one chat completion call.
func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	req = req.withDefaults()

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}

	resp, err := qaerrors.RetryWithResult(ctx, qaerrors.DefaultRetryConfig(),
		func() (openai.ChatCompletionResponse, error) {
			callCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
			defer cancel()

			r, err := c.client.CreateChatCompletion(callCtx, chatReq)
			if err != nil {
				return openai.ChatCompletionResponse{}, classifyOpenAIError(err)
			}
			return r, nil
		})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, qaerrors.Completion("openai returned no text", nil)
	}

	return &Response{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

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
	return qaerrors.Completion("openai completion failed", err)
}

// ModelName returns the provider-qualified model identifier.
func (c *OpenAICompleter) ModelName() string { return "openai/" + c.model }

// Available probes the API with a trivial completion.
func (c *OpenAICompleter) Available(ctx context.Context) bool {
	_, err := c.Complete(ctx, Request{Prompt: "ping", MaxTokens: 1})
	return err == nil
}

// Close releases client resources; the SDK client is connectionless.
func (c *OpenAICompleter) Close() error { return nil }
