// Package llm provides completion providers for the answer loop. Each
// provider makes exactly one model call per Complete invocation; retry
// of transient transport failures happens inside the adapter so callers
// see either a final answer or a final error.
package llm

import (
	"context"
	"time"
)

// Defaults shared by the providers.
const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.0
	DefaultTimeout     = 120 * time.Second
)

// Request is a single completion request. System carries the
// instructions, Prompt the assembled question plus retrieved context.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response is the model's reply with token usage when the provider
// reports it.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Completer generates a completion for a fully assembled prompt.
type Completer interface {
	// Complete performs one completion call.
	Complete(ctx context.Context, req Request) (*Response, error)

	// ModelName returns the provider-qualified model identifier.
	ModelName() string

	// Available reports whether the provider is reachable.
	Available(ctx context.Context) bool

	// Close releases provider resources.
	Close() error
}

func (r Request) withDefaults() Request {
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.Temperature < 0 {
		r.Temperature = DefaultTemperature
	}
	return r
}
