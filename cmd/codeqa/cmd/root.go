// Package cmd provides the CLI commands for codeqa.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/embed"
	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/index"
	"github.com/codeqa/codeqa/internal/logging"
	"github.com/codeqa/codeqa/internal/profiling"
	"github.com/codeqa/codeqa/internal/store"
	"github.com/codeqa/codeqa/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()

	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.New()
	cpuCleanup   func()
	traceCleanup func()
)

// NewRootCmd creates the root command for the codeqa CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codeqa",
		Short: "Ask questions about a codebase from the command line",
		Long: `codeqa indexes a source tree and answers questions about it.

It chunks code and documents, embeds every chunk, and retrieves the
most relevant pieces as context for a completion model. Retrieval
combines BM25 keyword search with semantic vector search.

Run 'codeqa index' in a project directory, then 'codeqa ask'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("codeqa version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.codeqa/logs/")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")
	cmd.PersistentPreRunE = startDiagnostics
	cmd.PersistentPostRunE = stopDiagnostics

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startDiagnostics loads .env for provider API keys, sets up debug
// logging, and starts profiling when the flags ask for it.
func startDiagnostics(_ *cobra.Command, _ []string) error {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	if debugMode {
		cfg := logging.DefaultConfig()
		cfg.Level = "debug"
		logger, cleanup, err := logging.Setup(cfg)
		if err != nil {
			return fmt.Errorf("failed to set up debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Debug("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	}

	var err error
	if profileCPU != "" {
		if cpuCleanup, err = profiler.StartCPU(profileCPU); err != nil {
			return err
		}
	}
	if profileTrace != "" {
		if traceCleanup, err = profiler.StartTrace(profileTrace); err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
				cpuCleanup = nil
			}
			return err
		}
	}
	return nil
}

func stopDiagnostics(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return err
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and renders any error for the terminal.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, qaerrors.FormatForCLI(err))
	}
	return err
}

// project is the resolved working context shared by every command that
// operates on an indexed tree.
type project struct {
	root    string
	dataDir string
	cfg     *config.Config
}

// loadProject resolves the project root from path and loads its
// configuration. Falls back to the path itself when no config or .git
// marker is found above it.
func loadProject(path string) (*project, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, qaerrors.IO("resolve project path", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, qaerrors.IO("access project path", err)
	}
	if !info.IsDir() {
		return nil, qaerrors.InvalidArg(fmt.Sprintf("path is not a directory: %s", absPath))
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	return &project{
		root:    root,
		dataDir: config.DataDir(root),
		cfg:     cfg,
	}, nil
}

// openIndex opens the published snapshot and the embedder that matches
// it. The caller owns both and must close them.
func (p *project) openIndex(ctx context.Context) (*index.Snapshot, embed.Embedder, error) {
	snap, err := index.OpenSnapshot(ctx, p.dataDir, store.BM25Config{})
	if err != nil {
		return nil, nil, err
	}

	embedder, err := embed.NewEmbedder(ctx, p.cfg.Embeddings)
	if err != nil {
		snap.Close()
		return nil, nil, err
	}

	if err := snap.ValidateEmbedder(embedder.ModelName(), embedder.Dimensions()); err != nil {
		embedder.Close()
		snap.Close()
		return nil, nil, err
	}
	return snap, embedder, nil
}
