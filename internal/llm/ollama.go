package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

// Ollama defaults.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2"
)

// OllamaConfig configures the Ollama completer.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string
	// Model is the completion model name.
	Model string
	// Timeout bounds a single generate call; local models can be slow.
	Timeout time.Duration
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// OllamaCompleter generates completions through Ollama's HTTP API.
type OllamaCompleter struct {
	client *http.Client
	config OllamaConfig
}

var _ Completer = (*OllamaCompleter)(nil)

// NewOllamaCompleter creates an Ollama completer.
func NewOllamaCompleter(cfg OllamaConfig) *OllamaCompleter {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OllamaCompleter{
		client: &http.Client{},
		config: cfg,
	}
}

// Complete performs one /api/generate call.
func (c *OllamaCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	req = req.withDefaults()

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  c.config.Model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
		Options: ollamaOptions{
			NumPredict:  req.MaxTokens,
			Temperature: req.Temperature,
		},
	})
	if err != nil {
		return nil, qaerrors.Completion("marshal generate request", err)
	}

	return qaerrors.RetryWithResult(ctx, qaerrors.DefaultRetryConfig(),
		func() (*Response, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
			defer cancel()
			return c.doGenerate(callCtx, body)
		})
}

func (c *OllamaCompleter) doGenerate(ctx context.Context, body []byte) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, qaerrors.Completion("build generate request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, qaerrors.New(qaerrors.ErrCodeProviderTimeout, "ollama request timed out", err)
		}
		return nil, qaerrors.New(qaerrors.ErrCodeProviderUnavailable, "ollama unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode >= 500 {
			return nil, qaerrors.New(qaerrors.ErrCodeProviderUnavailable, msg, nil)
		}
		return nil, qaerrors.Completion(msg, nil)
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, qaerrors.Completion("decode generate response", err)
	}
	if result.Response == "" {
		return nil, qaerrors.Completion("ollama returned no text", nil)
	}

	return &Response{
		Text:         result.Response,
		InputTokens:  result.PromptEvalCount,
		OutputTokens: result.EvalCount,
	}, nil
}

// ModelName returns the provider-qualified model identifier.
func (c *OllamaCompleter) ModelName() string { return "ollama/" + c.config.Model }

// Available reports whether the host answers /api/tags.
func (c *OllamaCompleter) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (c *OllamaCompleter) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
