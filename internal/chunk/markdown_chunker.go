package chunk

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	headerPattern      = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)
)

// MarkdownChunker splits Markdown into header-delimited sections. Each
// chunk records its header path ("Guide > Install > Linux") so results
// stay interpretable out of context.
type MarkdownChunker struct {
	options Options
}

// NewMarkdownChunker creates a header-based Markdown chunker.
func NewMarkdownChunker(opts Options) *MarkdownChunker {
	return &MarkdownChunker{options: opts.withDefaults()}
}

// Chunk splits a Markdown file into section chunks.
func (c *MarkdownChunker) Chunk(_ context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	now := time.Now()
	var chunks []*Chunk

	// Peel off YAML frontmatter into its own chunk.
	bodyOffset := 0
	if m := frontmatterPattern.FindStringIndex(content); m != nil {
		front := strings.TrimRight(content[:m[1]], "\n")
		chunks = append(chunks, c.newChunk(file, front, "", 0, 1, now,
			map[string]string{"type": "frontmatter"}))
		bodyOffset = strings.Count(content[:m[1]], "\n")
		content = content[m[1]:]
	}

	for _, sec := range parseSections(content) {
		chunks = append(chunks, c.sectionChunks(file, sec, bodyOffset, now)...)
	}
	return chunks, nil
}

// section is a run of content under one header, with the full path of
// enclosing headers.
type section struct {
	headerPath  string
	headerTitle string
	headerLevel int
	startLine   int // 0-indexed within the body
	content     string
}

func parseSections(content string) []*section {
	lines := strings.Split(content, "\n")

	var sections []*section
	var stack []string // header titles, index = level-1
	current := &section{startLine: 0}
	var body strings.Builder
	inCodeBlock := false

	flush := func() {
		current.content = body.String()
		if strings.TrimSpace(current.content) != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCodeBlock = !inCodeBlock
		}

		m := headerPattern.FindStringSubmatch(line)
		if m == nil || inCodeBlock {
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}

		flush()

		level := len(m[1])
		title := strings.TrimSpace(m[2])
		if level <= len(stack) {
			stack = stack[:level-1]
		}
		stack = append(stack, title)

		current = &section{
			headerPath:  strings.Join(stack, " > "),
			headerTitle: title,
			headerLevel: level,
			startLine:   i,
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return sections
}

func (c *MarkdownChunker) sectionChunks(file *FileInput, sec *section, bodyOffset int, now time.Time) []*Chunk {
	content := strings.TrimRight(sec.content, "\n")
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}
	// A bare header with no body is noise.
	if lines := strings.Split(trimmed, "\n"); len(lines) == 1 && headerPattern.MatchString(trimmed) {
		return nil
	}

	meta := map[string]string{
		"header_path":   sec.headerPath,
		"header_level":  strconv.Itoa(sec.headerLevel),
		"section_title": sec.headerTitle,
	}
	startLine := bodyOffset + sec.startLine + 1

	if EstimateTokens(content) <= c.options.MaxChunkTokens {
		return []*Chunk{c.newChunk(file, content, sec.headerPath, sec.headerLevel,
			startLine, now, meta)}
	}

	// Oversized section: pack paragraphs into token-bounded chunks,
	// keeping fenced code blocks whole. Continuation chunks restate the
	// header path so they embed with their context.
	var chunks []*Chunk
	var buf strings.Builder
	chunkStart := startLine
	lineCursor := 0

	emit := func() {
		if buf.Len() == 0 {
			return
		}
		body := strings.TrimRight(buf.String(), "\n ")
		chunks = append(chunks, c.newChunk(file, body, sec.headerPath, sec.headerLevel,
			chunkStart, now, meta))
		buf.Reset()
		chunkStart = startLine + lineCursor
	}

	for _, para := range splitParagraphs(content) {
		paraLines := strings.Count(para, "\n") + 1
		if buf.Len() > 0 && EstimateTokens(buf.String())+EstimateTokens(para) > c.options.MaxChunkTokens {
			emit()
			buf.WriteString("<!-- Section: " + sec.headerPath + " -->\n\n")
		}
		buf.WriteString(para)
		buf.WriteString("\n\n")
		lineCursor += paraLines + 1
	}
	emit()

	return chunks
}

// splitParagraphs splits on blank lines, re-joining paragraphs that
// fall inside an unclosed fenced code block.
func splitParagraphs(content string) []string {
	var paragraphs []string
	var block strings.Builder
	inCodeBlock := false

	for _, part := range strings.Split(content, "\n\n") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if inCodeBlock {
			block.WriteString("\n\n")
			block.WriteString(part)
			if strings.Contains(part, "```") {
				paragraphs = append(paragraphs, block.String())
				block.Reset()
				inCodeBlock = false
			}
			continue
		}

		if strings.Count(part, "```")%2 == 1 {
			inCodeBlock = true
			block.WriteString(part)
			continue
		}
		paragraphs = append(paragraphs, part)
	}
	if inCodeBlock {
		paragraphs = append(paragraphs, block.String())
	}
	return paragraphs
}

func (c *MarkdownChunker) newChunk(file *FileInput, content, headerPath string, headerLevel, startLine int, now time.Time, meta map[string]string) *Chunk {
	md := map[string]string{
		"header_path":  headerPath,
		"header_level": strconv.Itoa(headerLevel),
	}
	for k, v := range meta {
		md[k] = v
	}

	return &Chunk{
		ID:          ChunkID(file.Path, content),
		FilePath:    file.Path,
		Content:     content,
		RawContent:  content,
		ContentType: ContentTypeMarkdown,
		Language:    "markdown",
		StartLine:   startLine,
		EndLine:     startLine + strings.Count(content, "\n"),
		Metadata:    md,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
