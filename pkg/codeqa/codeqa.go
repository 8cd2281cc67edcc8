// Package codeqa is the embeddable facade over the indexing and
// question-answering pipeline. It wires configuration, providers,
// stores, and the retrieval loop behind a single Client so host
// programs do not touch the internal packages.
//
// Usage:
//
//	client, err := codeqa.New("/path/to/project")
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	if _, err := client.BuildIndex(ctx); err != nil {
//		return err
//	}
//	res, err := client.Answer(ctx, "how is authentication handled?")
//
// A Client is safe for concurrent use once the index is built or
// opened. Rebuilds swap the published snapshot atomically; in-flight
// readers keep the snapshot they started with.
package codeqa

import (
	"context"
	"sync"
	"time"

	"github.com/codeqa/codeqa/internal/answer"
	"github.com/codeqa/codeqa/internal/chunk"
	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/embed"
	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/index"
	"github.com/codeqa/codeqa/internal/llm"
	"github.com/codeqa/codeqa/internal/scanner"
	"github.com/codeqa/codeqa/internal/search"
	"github.com/codeqa/codeqa/internal/store"
	"github.com/codeqa/codeqa/internal/telemetry"
)

// The static providers satisfy the capability interfaces the options
// accept; a build break here means the facade contract drifted.
var (
	_ embed.Embedder = (*embed.StaticEmbedder)(nil)
	_ llm.Completer  = (*llm.StaticCompleter)(nil)
)

// Client answers questions about one project tree.
type Client struct {
	root    string
	dataDir string
	cfg     *config.Config

	embedder  embed.Embedder
	completer llm.Completer

	publisher index.Publisher

	mu     sync.Mutex
	closed bool
}

// Option customizes a Client.
type Option func(*Client)

// WithConfig overrides the configuration loaded from the project tree.
func WithConfig(cfg *config.Config) Option {
	return func(c *Client) { c.cfg = cfg }
}

// WithEmbedder injects an embedding provider instead of the configured
// one. The Client takes ownership and closes it.
func WithEmbedder(e embed.Embedder) Option {
	return func(c *Client) { c.embedder = e }
}

// WithCompleter injects a completion provider instead of the
// configured one. The Client takes ownership and closes it.
func WithCompleter(cm llm.Completer) Option {
	return func(c *Client) { c.completer = cm }
}

// New creates a Client for the project at root. Providers are created
// lazily from the configuration unless injected via options.
func New(root string, opts ...Option) (*Client, error) {
	if root == "" {
		return nil, qaerrors.InvalidArg("project root is required")
	}

	c := &Client{
		root:    root,
		dataDir: config.DataDir(root),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cfg == nil {
		cfg, err := config.Load(root)
		if err != nil {
			return nil, err
		}
		c.cfg = cfg
	}
	return c, nil
}

// BuildStats summarizes a completed index build.
type BuildStats struct {
	Files    int
	Chunks   int
	Duration time.Duration
}

// BuildIndex scans, chunks, and embeds the project, then publishes the
// new index. A previously published snapshot is swapped out atomically
// and closed.
func (c *Client) BuildIndex(ctx context.Context) (*BuildStats, error) {
	embedder, err := c.getEmbedder(ctx)
	if err != nil {
		return nil, err
	}

	sc, err := scanner.New()
	if err != nil {
		return nil, err
	}

	builder, err := index.NewBuilder(index.BuilderConfig{
		Root:     c.root,
		DataDir:  c.dataDir,
		Scanner:  sc,
		Chunker:  c.newChunker(),
		Embedder: embedder,
		Include:  c.cfg.Paths.Include,
		Exclude:  c.cfg.Paths.Exclude,

		BM25Backend: c.cfg.Retrieval.BM25Backend,
		BatchSize:   c.cfg.Embeddings.BatchSize,
		Concurrency: c.cfg.Performance.IndexWorkers,
	})
	if err != nil {
		return nil, err
	}

	started := time.Now()
	snap, err := builder.Build(ctx)
	if err != nil {
		return nil, err
	}

	telemetry.NewRecorder(snap.Meta).Record(ctx, telemetry.CounterIndexBuilds)

	files, err := snap.Meta.FileCount(ctx)
	if err != nil {
		snap.Close()
		return nil, err
	}
	chunks, err := snap.ChunkCount(ctx)
	if err != nil {
		snap.Close()
		return nil, err
	}

	if old := c.publisher.Publish(snap); old != nil {
		_ = old.Close()
	}

	return &BuildStats{
		Files:    files,
		Chunks:   chunks,
		Duration: time.Since(started),
	}, nil
}

// Answer retrieves context for the question and calls the completion
// provider once. The number of context chunks comes from the retrieval
// configuration.
func (c *Client) Answer(ctx context.Context, question string) (*answer.Result, error) {
	snap, embedder, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	completer, err := c.getCompleter(ctx)
	if err != nil {
		return nil, err
	}

	loop, err := answer.NewLoop(snap, embedder, completer, c.cfg.Completion,
		telemetry.NewRecorder(snap.Meta))
	if err != nil {
		return nil, err
	}
	return loop.Answer(ctx, question, c.topK())
}

// Search runs hybrid retrieval without calling a completion model.
// A non-positive limit uses the configured top-K.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]*search.Result, error) {
	snap, embedder, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	engine, err := search.NewEngineFromSnapshot(snap, embedder, c.cfg.Retrieval)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = c.topK()
	}
	return engine.Search(ctx, query, &search.Options{Limit: limit})
}

// Close releases the published snapshot and any providers the Client
// created or took ownership of. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	if snap := c.publisher.Publish(nil); snap != nil {
		firstErr = snap.Close()
	}
	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.completer != nil {
		if err := c.completer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// snapshot returns the live snapshot, opening the on-disk index on
// first use, along with the embedder validated against it.
func (c *Client) snapshot(ctx context.Context) (*index.Snapshot, embed.Embedder, error) {
	embedder, err := c.getEmbedder(ctx)
	if err != nil {
		return nil, nil, err
	}

	if snap, err := c.publisher.Current(); err == nil {
		return snap, embedder, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if snap, err := c.publisher.Current(); err == nil {
		return snap, embedder, nil
	}

	snap, err := index.OpenSnapshot(ctx, c.dataDir, store.BM25Config{})
	if err != nil {
		return nil, nil, err
	}
	if err := snap.ValidateEmbedder(embedder.ModelName(), embedder.Dimensions()); err != nil {
		snap.Close()
		return nil, nil, err
	}
	c.publisher.Publish(snap)
	return snap, embedder, nil
}

func (c *Client) getEmbedder(ctx context.Context) (embed.Embedder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.embedder != nil {
		return c.embedder, nil
	}
	embedder, err := embed.NewEmbedder(ctx, c.cfg.Embeddings)
	if err != nil {
		return nil, err
	}
	c.embedder = embedder
	return embedder, nil
}

func (c *Client) getCompleter(ctx context.Context) (llm.Completer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completer != nil {
		return c.completer, nil
	}
	completer, err := llm.NewCompleter(ctx, c.cfg.Completion)
	if err != nil {
		return nil, err
	}
	c.completer = completer
	return completer, nil
}

func (c *Client) newChunker() chunk.Chunker {
	return chunk.NewFileChunker(c.cfg.Chunking.Strategy, chunk.Options{
		MaxChunkTokens: c.cfg.Chunking.MaxTokens,
		OverlapTokens:  c.cfg.Chunking.OverlapTokens,
	})
}

func (c *Client) topK() int {
	if c.cfg.Retrieval.TopK > 0 {
		return c.cfg.Retrieval.TopK
	}
	return search.DefaultLimit
}
