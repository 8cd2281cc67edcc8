package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeqa/codeqa/internal/index"
	"github.com/codeqa/codeqa/internal/store"
	"github.com/codeqa/codeqa/internal/telemetry"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and usage counters",
		Long: `Display information about the current index:
  - Number of indexed files and chunks
  - Embedder identity and build time
  - Store consistency (metadata vs vector vs BM25)
  - Usage counters (queries, searches, completion calls, builds)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// statusInfo is the collected index status, shaped for both the text
// and JSON renderings.
type statusInfo struct {
	Root          string           `json:"root"`
	Files         int              `json:"files"`
	Chunks        int              `json:"chunks"`
	EmbedderModel string           `json:"embedder_model"`
	Dimensions    int              `json:"dimensions"`
	BuiltAt       time.Time        `json:"built_at"`
	Consistent    bool             `json:"consistent"`
	MissingChunks int              `json:"missing_chunks,omitempty"`
	OrphanChunks  int              `json:"orphan_chunks,omitempty"`
	Counters      map[string]int64 `json:"counters"`
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	proj, err := loadProject(".")
	if err != nil {
		return err
	}

	snap, err := index.OpenSnapshot(ctx, proj.dataDir, store.BM25Config{})
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	info, err := collectStatus(ctx, proj, snap)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	printStatus(cmd.OutOrStdout(), info)
	return nil
}

func collectStatus(ctx context.Context, proj *project, snap *index.Snapshot) (*statusInfo, error) {
	files, err := snap.Meta.FileCount(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := snap.ChunkCount(ctx)
	if err != nil {
		return nil, err
	}

	report, err := index.CheckConsistency(ctx, snap)
	if err != nil {
		return nil, err
	}

	counters, err := telemetry.NewRecorder(snap.Meta).Counters(ctx)
	if err != nil {
		return nil, err
	}

	return &statusInfo{
		Root:          proj.root,
		Files:         files,
		Chunks:        chunks,
		EmbedderModel: snap.EmbedderModel,
		Dimensions:    snap.Dimensions,
		BuiltAt:       snap.BuiltAt,
		Consistent:    report.Consistent(),
		MissingChunks: len(report.MissingVectors) + len(report.MissingBM25),
		OrphanChunks:  len(report.OrphanVectors) + len(report.OrphanBM25),
		Counters:      counters,
	}, nil
}

func printStatus(w io.Writer, info *statusInfo) {
	_, _ = fmt.Fprintf(w, "Project:   %s\n", info.Root)
	_, _ = fmt.Fprintf(w, "Files:     %d\n", info.Files)
	_, _ = fmt.Fprintf(w, "Chunks:    %d\n", info.Chunks)
	_, _ = fmt.Fprintf(w, "Embedder:  %s (%d dims)\n", info.EmbedderModel, info.Dimensions)
	if !info.BuiltAt.IsZero() {
		_, _ = fmt.Fprintf(w, "Built:     %s\n", info.BuiltAt.Format(time.RFC3339))
	}

	if info.Consistent {
		_, _ = fmt.Fprintln(w, "Stores:    consistent")
	} else {
		_, _ = fmt.Fprintf(w, "Stores:    INCONSISTENT (%d missing, %d orphaned) - run 'codeqa index --force'\n",
			info.MissingChunks, info.OrphanChunks)
	}

	if len(info.Counters) > 0 {
		_, _ = fmt.Fprintln(w, "\nUsage:")
		names := make([]string, 0, len(info.Counters))
		for name := range info.Counters {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			_, _ = fmt.Fprintf(w, "  %-17s %d\n", name, info.Counters[name])
		}
	}
}
