package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/scanner"
	"github.com/codeqa/codeqa/internal/search"
	"github.com/codeqa/codeqa/internal/telemetry"
)

// Tool limits. Clients can ask for fewer results but never more.
const (
	defaultToolLimit = 10
	maxToolLimit     = 50
	maxReadBytes     = 1 << 20
)

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the natural-language question to answer"`
	K        int    `json:"k,omitempty" jsonschema:"number of chunks to retrieve, default 5"`
}

// SourceRef cites one chunk an answer drew on.
type SourceRef struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float64 `json:"score"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer  string      `json:"answer"`
	Model   string      `json:"model"`
	Sources []SourceRef `json:"sources"`
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query to execute"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
}

// SearchResultOutput is one ranked hit.
type SearchResultOutput struct {
	Path         string   `json:"path"`
	StartLine    int      `json:"start_line"`
	EndLine      int      `json:"end_line"`
	Language     string   `json:"language,omitempty"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
	Snippet      string   `json:"snippet"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
}

// ListFilesInput is the input schema for the list_files tool.
type ListFilesInput struct {
	Include []string `json:"include,omitempty" jsonschema:"glob patterns to include, e.g. **/*.go"`
	Exclude []string `json:"exclude,omitempty" jsonschema:"glob patterns to exclude"`
}

// FileEntry is one listed file.
type FileEntry struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Language string `json:"language,omitempty"`
}

// ListFilesOutput is the output schema for the list_files tool.
type ListFilesOutput struct {
	Files []FileEntry `json:"files"`
	Count int         `json:"count"`
}

// ReadFileInput is the input schema for the read_file tool.
type ReadFileInput struct {
	Path      string `json:"path" jsonschema:"file path relative to the project root"`
	StartLine int    `json:"start_line,omitempty" jsonschema:"first line to return, 1-based"`
	EndLine   int    `json:"end_line,omitempty" jsonschema:"last line to return, inclusive"`
}

// ReadFileOutput is the output schema for the read_file tool.
type ReadFileOutput struct {
	Path      string `json:"path"`
	Language  string `json:"language,omitempty"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`
}

// IndexStatusInput is the input schema for the index_status tool.
type IndexStatusInput struct{}

// IndexStatusOutput reports index health.
type IndexStatusOutput struct {
	Ready         bool             `json:"ready"`
	FileCount     int              `json:"file_count"`
	ChunkCount    int              `json:"chunk_count"`
	EmbedderModel string           `json:"embedder_model"`
	Dimensions    int              `json:"dimensions"`
	BuiltAt       string           `json:"built_at"`
	Counters      map[string]int64 `json:"counters,omitempty"`
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, AskOutput{}, qaerrors.InvalidArg("question is required")
	}
	k := input.K
	if k <= 0 {
		k = search.DefaultLimit
	}

	result, err := s.cfg.Loop.Answer(ctx, input.Question, k)
	if err != nil {
		s.logger.Warn("ask tool failed", "error", err)
		return nil, AskOutput{}, toolError(err)
	}

	out := AskOutput{Answer: result.Text, Model: result.Model}
	for _, c := range result.Context {
		out.Sources = append(out.Sources, SourceRef{
			Path:      c.Path,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Score:     c.Score,
		})
	}
	return nil, out, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, qaerrors.InvalidArg("query is required")
	}
	limit := clampLimit(input.Limit)

	s.cfg.Telemetry.Record(ctx, telemetry.CounterSearches)
	results, err := s.cfg.Engine.Search(ctx, input.Query, &search.Options{Limit: limit})
	if err != nil {
		s.logger.Warn("search tool failed", "error", err)
		return nil, SearchOutput{}, toolError(err)
	}

	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, SearchResultOutput{
			Path:         r.Chunk.FilePath,
			StartLine:    r.Chunk.StartLine,
			EndLine:      r.Chunk.EndLine,
			Language:     r.Chunk.Language,
			Score:        r.Score,
			MatchedTerms: r.MatchedTerms,
			Snippet:      snippet(r.Chunk.Content),
		})
	}
	return nil, out, nil
}

func (s *Server) handleListFiles(ctx context.Context, _ *mcp.CallToolRequest, input ListFilesInput) (*mcp.CallToolResult, ListFilesOutput, error) {
	files, err := s.cfg.Scanner.List(ctx, &scanner.ScanOptions{
		RootDir:          s.cfg.Root,
		IncludePatterns:  input.Include,
		ExcludePatterns:  input.Exclude,
		RespectGitignore: true,
	})
	if err != nil {
		return nil, ListFilesOutput{}, toolError(err)
	}

	out := ListFilesOutput{Files: make([]FileEntry, 0, len(files)), Count: len(files)}
	for _, f := range files {
		out.Files = append(out.Files, FileEntry{
			Path:     f.Path,
			Size:     f.Size,
			Language: f.Language,
		})
	}
	return nil, out, nil
}

func (s *Server) handleReadFile(_ context.Context, _ *mcp.CallToolRequest, input ReadFileInput) (*mcp.CallToolResult, ReadFileOutput, error) {
	abs, err := s.resolvePath(input.Path)
	if err != nil {
		return nil, ReadFileOutput{}, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ReadFileOutput{}, qaerrors.New(qaerrors.ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", input.Path), err)
		}
		return nil, ReadFileOutput{}, qaerrors.IO(fmt.Sprintf("stat %s", input.Path), err)
	}
	if info.IsDir() {
		return nil, ReadFileOutput{}, qaerrors.InvalidArg(fmt.Sprintf("%s is a directory", input.Path))
	}
	if info.Size() > maxReadBytes {
		return nil, ReadFileOutput{}, qaerrors.InvalidArg(fmt.Sprintf("%s exceeds the %d byte read limit", input.Path, maxReadBytes))
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, ReadFileOutput{}, qaerrors.IO(fmt.Sprintf("read %s", input.Path), err)
	}

	lines := strings.Split(string(data), "\n")
	start, end := input.StartLine, input.EndLine
	if start <= 0 {
		start = 1
	}
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return nil, ReadFileOutput{}, qaerrors.InvalidArg(fmt.Sprintf("start_line %d is after end_line %d", start, end))
	}

	return nil, ReadFileOutput{
		Path:      input.Path,
		Language:  scanner.DetectLanguage(input.Path),
		StartLine: start,
		EndLine:   end,
		Content:   strings.Join(lines[start-1:end], "\n"),
	}, nil
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (*mcp.CallToolResult, IndexStatusOutput, error) {
	snap := s.cfg.Snapshot
	fileCount, err := snap.Meta.FileCount(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, toolError(err)
	}
	chunkCount, err := snap.Meta.ChunkCount(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, toolError(err)
	}
	counters, err := s.cfg.Telemetry.Counters(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, toolError(err)
	}

	return nil, IndexStatusOutput{
		Ready:         chunkCount > 0,
		FileCount:     fileCount,
		ChunkCount:    chunkCount,
		EmbedderModel: snap.EmbedderModel,
		Dimensions:    snap.Dimensions,
		BuiltAt:       snap.BuiltAt.Format(time.RFC3339),
		Counters:      counters,
	}, nil
}

// resolvePath confines a client-supplied path to the project root.
func (s *Server) resolvePath(relPath string) (string, error) {
	if relPath == "" {
		return "", qaerrors.InvalidArg("path is required")
	}
	if filepath.IsAbs(relPath) {
		return "", qaerrors.InvalidArg("path must be relative to the project root")
	}
	cleaned := filepath.Clean(relPath)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", qaerrors.InvalidArg("path escapes the project root")
	}
	return filepath.Join(s.cfg.Root, cleaned), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultToolLimit
	}
	if limit > maxToolLimit {
		return maxToolLimit
	}
	return limit
}

// snippet truncates chunk content for tool output; read_file serves
// the full text.
func snippet(content string) string {
	const maxSnippet = 1000
	if len(content) <= maxSnippet {
		return content
	}
	cut := content[:maxSnippet]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut + "\n..."
}

// toolError flattens a pipeline error into one message that carries
// the code and suggestion to the MCP client.
func toolError(err error) error {
	var qaErr *qaerrors.QAError
	if errors.As(err, &qaErr) {
		if qaErr.Suggestion != "" {
			return fmt.Errorf("%s: %s (%s)", qaErr.Code, qaErr.Message, qaErr.Suggestion)
		}
		return fmt.Errorf("%s: %s", qaErr.Code, qaErr.Message)
	}
	return err
}
