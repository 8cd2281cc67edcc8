package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/codeqa/codeqa/internal/answer"
	"github.com/codeqa/codeqa/internal/index"
	"github.com/codeqa/codeqa/internal/llm"
	"github.com/codeqa/codeqa/internal/logging"
	"github.com/codeqa/codeqa/internal/mcp"
	"github.com/codeqa/codeqa/internal/search"
	"github.com/codeqa/codeqa/internal/telemetry"
	"github.com/codeqa/codeqa/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Run the MCP server over stdio, exposing the index to MCP clients.

Tools: ask, search, list_files, read_file, index_status.

With --watch, file changes under the project root are applied to the
index incrementally while the server runs.

Stdout carries the MCP protocol exclusively; logs go to
.codeqa/logs/ under the project root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Apply file changes to the index while serving")

	return cmd
}

func runServe(ctx context.Context, watch bool) error {
	proj, err := loadProject(".")
	if err != nil {
		return err
	}

	// The stdio transport owns stdout and stderr; log to file only.
	cleanup, err := logging.SetupStdioSafe(
		logging.ProjectLogPath(proj.root), proj.cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, embedder, err := proj.openIndex(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()
	defer func() { _ = embedder.Close() }()

	completer, err := llm.NewCompleter(ctx, proj.cfg.Completion)
	if err != nil {
		return err
	}
	defer func() { _ = completer.Close() }()

	rec := telemetry.NewRecorder(snap.Meta)

	loop, err := answer.NewLoop(snap, embedder, completer, proj.cfg.Completion, rec)
	if err != nil {
		return err
	}
	engine, err := search.NewEngineFromSnapshot(snap, embedder, proj.cfg.Retrieval)
	if err != nil {
		return err
	}

	srv, err := mcp.NewServer(mcp.ServerConfig{
		Root:      proj.root,
		Snapshot:  snap,
		Engine:    engine,
		Loop:      loop,
		Telemetry: rec,
	})
	if err != nil {
		return err
	}

	if !watch {
		slog.Info("serving MCP over stdio", slog.String("root", proj.root))
		return srv.Run(ctx)
	}

	coord, err := index.NewCoordinator(index.CoordinatorConfig{
		Root:     proj.root,
		Snapshot: snap,
		Chunker:  newChunker(proj),
		Embedder: embedder,
	})
	if err != nil {
		return err
	}

	w, err := watcher.New(proj.root, watcher.Options{
		DebounceWindow: watchDebounce(proj.cfg.Performance.WatchDebounce),
	})
	if err != nil {
		return err
	}
	runner := watcher.NewRunner(w, coord)

	slog.Info("serving MCP over stdio with watch mode",
		slog.String("root", proj.root))

	// The server and the watch runner both stop on context
	// cancellation; either one failing brings the other down.
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return runner.Run(ctx) })
	return g.Wait()
}

// watchDebounce parses the configured debounce window, falling back to
// the watcher default on empty or malformed values.
func watchDebounce(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		slog.Warn("invalid watch_debounce, using default", slog.String("value", s))
		return 0
	}
	return d
}
