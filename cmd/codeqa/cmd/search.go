package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeqa/codeqa/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search the indexed codebase without calling a completion model.

Combines BM25 keyword search and semantic vector search with
reciprocal rank fusion.

Examples:
  codeqa search "authentication middleware"
  codeqa search "handleRequest" -n 5
  codeqa search "retry backoff" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, limit int, jsonOutput bool) error {
	proj, err := loadProject(".")
	if err != nil {
		return err
	}

	snap, embedder, err := proj.openIndex(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()
	defer func() { _ = embedder.Close() }()

	engine, err := search.NewEngineFromSnapshot(snap, embedder, proj.cfg.Retrieval)
	if err != nil {
		return err
	}

	if limit <= 0 {
		limit = proj.cfg.Retrieval.TopK
	}
	results, err := engine.Search(ctx, query, &search.Options{Limit: limit})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printResultsJSON(cmd.OutOrStdout(), results)
	}
	printResultsText(cmd.OutOrStdout(), query, results)
	return nil
}

func printResultsText(w io.Writer, query string, results []*search.Result) {
	if len(results) == 0 {
		_, _ = fmt.Fprintf(w, "No results for %q\n", query)
		return
	}

	for i, r := range results {
		c := r.Chunk
		_, _ = fmt.Fprintf(w, "%2d. %s:%d-%d  (score %.3f)\n",
			i+1, c.FilePath, c.StartLine, c.EndLine, r.Score)
		if len(r.MatchedTerms) > 0 {
			_, _ = fmt.Fprintf(w, "    matched: %s\n", strings.Join(r.MatchedTerms, ", "))
		}
		if line := firstLine(c.RawContent); line != "" {
			_, _ = fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

// searchResultJSON is the machine-readable result shape.
type searchResultJSON struct {
	Path         string   `json:"path"`
	StartLine    int      `json:"start_line"`
	EndLine      int      `json:"end_line"`
	Language     string   `json:"language,omitempty"`
	Score        float64  `json:"score"`
	BM25Score    float64  `json:"bm25_score,omitempty"`
	VectorScore  float64  `json:"vector_score,omitempty"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

func printResultsJSON(w io.Writer, results []*search.Result) error {
	out := make([]searchResultJSON, 0, len(results))
	for _, r := range results {
		out = append(out, searchResultJSON{
			Path:         r.Chunk.FilePath,
			StartLine:    r.Chunk.StartLine,
			EndLine:      r.Chunk.EndLine,
			Language:     r.Chunk.Language,
			Score:        r.Score,
			BM25Score:    r.BM25Score,
			VectorScore:  r.VectorScore,
			MatchedTerms: r.MatchedTerms,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 100 {
		s = s[:100] + "..."
	}
	return s
}
