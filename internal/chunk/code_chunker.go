package chunk

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Options bound chunk sizes for every chunker in this package.
type Options struct {
	MaxChunkTokens int
	OverlapTokens  int
}

func (o Options) withDefaults() Options {
	if o.MaxChunkTokens <= 0 {
		o.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if o.OverlapTokens <= 0 {
		o.OverlapTokens = DefaultOverlapTokens
	}
	return o
}

// CodeChunker produces one chunk per top-level declaration using
// tree-sitter, falling back to line windows for files that fail to
// parse or use an uncovered language.
type CodeChunker struct {
	parser  *parser
	options Options
}

// NewCodeChunker creates a syntax-aware code chunker.
func NewCodeChunker(opts Options) *CodeChunker {
	return &CodeChunker{
		parser:  newParser(),
		options: opts.withDefaults(),
	}
}

// Close releases the underlying parser.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.close()
	}
}

// Chunk splits a code file along declaration boundaries.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	spec, supported := specForLanguage(file.Language)
	if !supported {
		return NewLineChunker(c.options).Chunk(ctx, file)
	}

	tr, err := c.parser.parse(ctx, file.Content, file.Language)
	if err != nil {
		// Unparseable content still gets indexed, just without
		// symbol boundaries.
		return NewLineChunker(c.options).Chunk(ctx, file)
	}

	fileContext := fileContext(tr, file)
	decls := collectDeclarations(tr, spec)
	if len(decls) == 0 {
		return nil, nil
	}

	now := time.Now()
	chunks := make([]*Chunk, 0, len(decls))
	for _, d := range decls {
		chunks = append(chunks, c.chunksForDeclaration(d, tr, file, fileContext, now)...)
	}
	return chunks, nil
}

type declaration struct {
	node   *node
	symbol *Symbol
}

func collectDeclarations(tr *tree, spec *languageSpec) []*declaration {
	var decls []*declaration

	tr.root.walk(func(n *node) bool {
		// JS/TS const declarations may bind arrow functions; those
		// rank as functions, not constants.
		if n.kind == "lexical_declaration" || n.kind == "variable_declaration" {
			if sym := arrowFunctionSymbol(n, tr.source); sym != nil {
				decls = append(decls, &declaration{node: n, symbol: sym})
				return true
			}
		}

		kind, ok := spec.symbolNodes[n.kind]
		if !ok {
			return true
		}
		if sym := extractSymbol(n, tr.source, kind, tr.language); sym != nil {
			decls = append(decls, &declaration{node: n, symbol: sym})
		}
		return true
	})

	return decls
}

func (c *CodeChunker) chunksForDeclaration(d *declaration, tr *tree, file *FileInput, fileContext string, now time.Time) []*Chunk {
	raw := d.node.text(tr.source)
	startLine := d.symbol.StartLine
	if d.symbol.DocComment != "" {
		raw, startLine = widenToDocComment(d.node, tr.source, d.symbol.DocComment)
	}

	if EstimateTokens(raw) <= c.options.MaxChunkTokens {
		return []*Chunk{{
			ID:          ChunkID(file.Path, raw),
			FilePath:    file.Path,
			Content:     withContext(fileContext, raw),
			RawContent:  raw,
			Context:     fileContext,
			ContentType: ContentTypeCode,
			Language:    file.Language,
			StartLine:   startLine,
			EndLine:     d.symbol.EndLine,
			Symbols:     []*Symbol{d.symbol},
			Metadata:    make(map[string]string),
			CreatedAt:   now,
			UpdatedAt:   now,
		}}
	}

	return c.splitLargeDeclaration(d, raw, file, fileContext, startLine, now)
}

// widenToDocComment extends a declaration's raw text upward to include
// its doc comment lines.
func widenToDocComment(n *node, source []byte, doc string) (string, int) {
	lineStart := int(n.startByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	docLines := strings.Count(doc, "\n") + 1
	for i := 0; i < docLines && lineStart > 0; i++ {
		lineStart--
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
	}

	startLine := int(n.startRow) + 1 - docLines
	if startLine < 1 {
		startLine = 1
	}
	return string(source[lineStart:n.endByte]), startLine
}

// splitLargeDeclaration windows an oversized declaration into
// overlapping line ranges. The first window also carries the parent
// symbol so symbol search still finds the declaration by name.
func (c *CodeChunker) splitLargeDeclaration(d *declaration, content string, file *FileInput, fileContext string, startLine int, now time.Time) []*Chunk {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return []*Chunk{}
	}

	windowLines, overlapLines := lineWindow(c.options)

	var chunks []*Chunk
	for i := 0; i < len(lines); {
		end := min(i+windowLines, len(lines))
		body := strings.Join(lines[i:end], "\n")

		part := &Symbol{
			Name:      fmt.Sprintf("%s_part%d", d.symbol.Name, len(chunks)+1),
			Type:      d.symbol.Type,
			StartLine: startLine + i,
			EndLine:   startLine + end - 1,
		}
		symbols := []*Symbol{part}
		if len(chunks) == 0 {
			symbols = append(symbols, d.symbol)
		}

		chunks = append(chunks, &Chunk{
			ID:          ChunkID(file.Path, body),
			FilePath:    file.Path,
			Content:     withContext(fileContext, body),
			RawContent:  body,
			Context:     fileContext,
			ContentType: ContentTypeCode,
			Language:    file.Language,
			StartLine:   startLine + i,
			EndLine:     startLine + end - 1,
			Symbols:     symbols,
			Metadata:    make(map[string]string),
			CreatedAt:   now,
			UpdatedAt:   now,
		})

		if end >= len(lines) {
			break
		}
		i = end - overlapLines
	}
	return chunks
}

// lineWindow converts token budgets to line counts assuming an average
// 80-character line.
func lineWindow(opts Options) (window, overlap int) {
	window = opts.MaxChunkTokens * TokensPerChar / 80
	if window < 20 {
		window = 20
	}
	overlap = opts.OverlapTokens * TokensPerChar / 80
	if overlap < 2 {
		overlap = 2
	}
	return window, overlap
}

// fileContext gathers the declarations that give a chunk meaning on its
// own: package clause and imports for Go, import statements elsewhere.
// A file path marker is prepended so embeddings see where the chunk
// lives.
func fileContext(tr *tree, file *FileInput) string {
	var parts []string

	for _, n := range tr.root.children {
		switch tr.language {
		case "go":
			if n.kind == "package_clause" || n.kind == "import_declaration" {
				parts = append(parts, n.text(tr.source))
			}
		case "typescript", "tsx", "javascript", "jsx":
			if n.kind == "import_statement" {
				parts = append(parts, n.text(tr.source))
			}
		case "python":
			if n.kind == "import_statement" || n.kind == "import_from_statement" {
				parts = append(parts, n.text(tr.source))
			}
		}
	}

	marker := "// File: " + file.Path
	if tr.language == "python" {
		marker = "# File: " + file.Path
	}
	if len(parts) == 0 {
		return marker
	}
	return marker + "\n" + strings.Join(parts, "\n\n")
}
