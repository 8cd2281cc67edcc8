package llm

import (
	"context"
	"strings"
)

// StaticCompleter answers without a model by quoting the retrieved
// context back. It keeps the full pipeline runnable offline and gives
// tests a deterministic provider.
type StaticCompleter struct{}

var _ Completer = (*StaticCompleter)(nil)

// NewStaticCompleter creates the offline completer.
func NewStaticCompleter() *StaticCompleter {
	return &StaticCompleter{}
}

// Complete returns a deterministic summary built from the prompt: the
// question line and the sources present in the context.
func (c *StaticCompleter) Complete(_ context.Context, req Request) (*Response, error) {
	var b strings.Builder
	b.WriteString("No completion model is configured; showing retrieved context instead.\n")

	for _, line := range strings.Split(req.Prompt, "\n") {
		trimmed := strings.TrimSpace(line)
		// Context section headers look like "### path (lines a-b) ###".
		if strings.HasPrefix(trimmed, "### ") && strings.HasSuffix(trimmed, " ###") {
			b.WriteString("- ")
			b.WriteString(strings.TrimSuffix(strings.TrimPrefix(trimmed, "### "), " ###"))
			b.WriteString("\n")
		}
	}

	return &Response{
		Text:         strings.TrimRight(b.String(), "\n"),
		InputTokens:  len(req.Prompt) / 4,
		OutputTokens: b.Len() / 4,
	}, nil
}

// ModelName returns the provider-qualified model identifier.
func (c *StaticCompleter) ModelName() string { return "static/context-echo" }

// Available always reports true.
func (c *StaticCompleter) Available(context.Context) bool { return true }

// Close is a no-op.
func (c *StaticCompleter) Close() error { return nil }
