package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeqa/codeqa/internal/chunk"
	"github.com/codeqa/codeqa/internal/embed"
	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/index"
	"github.com/codeqa/codeqa/internal/logging"
	"github.com/codeqa/codeqa/internal/scanner"
	"github.com/codeqa/codeqa/internal/telemetry"
	"github.com/codeqa/codeqa/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		noTUI bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for question answering",
		Long: `Index a directory to enable questions and search over its contents.

This scans files, chunks code and documents, generates embeddings,
and builds both BM25 and vector indices. The new index is assembled
in a staging directory and swapped in atomically, so an interrupted
build leaves the previous index untouched.

Use --force to discard the existing index and rebuild from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl+C cancels the context so embedding calls stop
			// promptly instead of finishing the batch.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, noTUI, force)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&force, "force", false, "Discard the existing index and rebuild from scratch")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, noTUI, force bool) error {
	// Log to file only so slog output does not interleave with the
	// progress renderer.
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	proj, err := loadProject(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(proj.dataDir, 0o755); err != nil {
		return qaerrors.IO("create data directory", err)
	}
	if force {
		if err := clearIndexData(proj.dataDir); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Cleared existing index, starting fresh...")
	}

	embedder, err := embed.NewEmbedder(ctx, proj.cfg.Embeddings)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	sc, err := scanner.New()
	if err != nil {
		return err
	}

	renderer := ui.NewRenderer(ui.Config{
		Output:     cmd.OutOrStdout(),
		ForcePlain: noTUI,
		ProjectDir: proj.root,
	})
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	builder, err := index.NewBuilder(index.BuilderConfig{
		Root:     proj.root,
		DataDir:  proj.dataDir,
		Scanner:  sc,
		Chunker:  newChunker(proj),
		Embedder: embedder,
		Include:  proj.cfg.Paths.Include,
		Exclude:  proj.cfg.Paths.Exclude,

		BM25Backend: proj.cfg.Retrieval.BM25Backend,
		BatchSize:   proj.cfg.Embeddings.BatchSize,
		Concurrency: proj.cfg.Performance.IndexWorkers,

		Progress: func(stage string, done, total int) {
			renderer.UpdateProgress(ui.ProgressEvent{
				Stage:   ui.StageFromName(stage),
				Current: done,
				Total:   total,
			})
		},
	})
	if err != nil {
		return err
	}

	started := time.Now()
	snap, err := builder.Build(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	telemetry.NewRecorder(snap.Meta).Record(ctx, telemetry.CounterIndexBuilds)

	files, err := snap.Meta.FileCount(ctx)
	if err != nil {
		return err
	}
	chunks, err := snap.ChunkCount(ctx)
	if err != nil {
		return err
	}

	renderer.Complete(ui.CompletionStats{
		Files:         files,
		Chunks:        chunks,
		Duration:      time.Since(started),
		EmbedderModel: snap.EmbedderModel,
		Dimensions:    snap.Dimensions,
	})
	return nil
}

// newChunker builds the file chunker from the chunking config.
func newChunker(proj *project) chunk.Chunker {
	return chunk.NewFileChunker(proj.cfg.Chunking.Strategy, chunk.Options{
		MaxChunkTokens: proj.cfg.Chunking.MaxTokens,
		OverlapTokens:  proj.cfg.Chunking.OverlapTokens,
	})
}

// clearIndexData removes the published index and any leftover staging
// directory. The project config at the root is untouched.
func clearIndexData(dataDir string) error {
	for _, name := range []string{"index", "index.staging"} {
		if err := os.RemoveAll(filepath.Join(dataDir, name)); err != nil {
			return qaerrors.IO("clear index data", err)
		}
	}
	return nil
}
