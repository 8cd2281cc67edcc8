package chunk

import (
	"context"
	"path/filepath"
	"strings"
)

// Chunking strategies.
const (
	StrategySyntax = "syntax" // declaration-aware, with fallbacks
	StrategyLines  = "lines"  // fixed line windows for everything
)

// FileChunker routes each file to the chunker that fits it: Markdown to
// the section chunker, parseable code to the syntax-aware chunker, and
// everything else to line windows. The lines strategy bypasses routing
// entirely.
type FileChunker struct {
	strategy string
	code     *CodeChunker
	markdown *MarkdownChunker
	lines    *LineChunker
}

// NewFileChunker creates the dispatching chunker used by the index
// builder. An empty strategy means syntax-aware.
func NewFileChunker(strategy string, opts Options) *FileChunker {
	if strategy == "" {
		strategy = StrategySyntax
	}
	return &FileChunker{
		strategy: strategy,
		code:     NewCodeChunker(opts),
		markdown: NewMarkdownChunker(opts),
		lines:    NewLineChunker(opts),
	}
}

// Close releases parser resources.
func (f *FileChunker) Close() {
	f.code.Close()
}

// Chunk splits one file using the strategy and content type.
func (f *FileChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if f.strategy == StrategyLines {
		return f.lines.Chunk(ctx, file)
	}

	ext := strings.ToLower(filepath.Ext(file.Path))
	switch ext {
	case ".md", ".mdx", ".markdown":
		return f.markdown.Chunk(ctx, file)
	}

	if file.Language == "" {
		file.Language = LanguageForExtension(ext)
	}
	if SupportsLanguage(file.Language) {
		return f.code.Chunk(ctx, file)
	}
	return f.lines.Chunk(ctx, file)
}
