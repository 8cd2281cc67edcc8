// Package answer implements the retrieval-answer loop: embed the
// question, retrieve the most similar chunks, assemble a bounded
// prompt and make exactly one completion call.
package answer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/embed"
	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/index"
	"github.com/codeqa/codeqa/internal/llm"
	"github.com/codeqa/codeqa/internal/search"
	"github.com/codeqa/codeqa/internal/telemetry"
)

// Loop answers questions against a published index snapshot.
type Loop struct {
	retriever *search.VectorRetriever
	completer llm.Completer
	budget    int
	maxTokens int
	temp      float64
	rec       *telemetry.Recorder
}

// Result is one answered question. Text carries the completion output
// verbatim; Context lists the chunks the prompt actually included, in
// decreasing similarity order.
type Result struct {
	Text         string
	Model        string
	Context      []ContextChunk
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// NewLoop wires a snapshot, the embedder that built it and a
// completion provider into an answer loop. The embedder must match
// the snapshot's recorded provider and dimensionality. rec may be nil.
func NewLoop(snap *index.Snapshot, embedder embed.Embedder, completer llm.Completer, cfg config.CompletionConfig, rec *telemetry.Recorder) (*Loop, error) {
	if completer == nil {
		return nil, qaerrors.InvalidArg("answer loop requires a completion provider")
	}
	retriever, err := search.NewVectorRetriever(snap, embedder)
	if err != nil {
		return nil, err
	}
	budget := cfg.PromptBudget
	if budget <= 0 {
		budget = DefaultPromptBudget
	}
	return &Loop{
		retriever: retriever,
		completer: completer,
		budget:    budget,
		maxTokens: cfg.MaxTokens,
		temp:      cfg.Temperature,
		rec:       rec,
	}, nil
}

// Answer retrieves the top-k chunks for the query and asks the
// completion provider once. k must be positive and is clamped to the
// number of indexed chunks.
func (l *Loop) Answer(ctx context.Context, query string, k int) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, qaerrors.InvalidArg("query must not be empty")
	}

	start := time.Now()
	l.rec.Record(ctx, telemetry.CounterQueries)

	retrieved, err := l.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, err
	}

	prompt, included := buildPrompt(query, retrieved, l.budget)

	l.rec.Record(ctx, telemetry.CounterCompletionCalls)
	resp, err := l.completer.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      prompt,
		MaxTokens:   l.maxTokens,
		Temperature: l.temp,
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("answered question",
		"model", l.completer.ModelName(),
		"retrieved", len(retrieved),
		"in_prompt", len(included),
		"duration", time.Since(start))

	return &Result{
		Text:         resp.Text,
		Model:        l.completer.ModelName(),
		Context:      included,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Duration:     time.Since(start),
	}, nil
}
