package chunk

import (
	"context"
	"strings"
	"time"
)

// LineChunker splits files into fixed-size overlapping line windows.
// It serves plain text, languages without a grammar, and the explicit
// line-based chunking strategy.
type LineChunker struct {
	options Options
}

// NewLineChunker creates a line-window chunker.
func NewLineChunker(opts Options) *LineChunker {
	return &LineChunker{options: opts.withDefaults()}
}

// Chunk splits the file into overlapping line windows.
func (c *LineChunker) Chunk(_ context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	windowLines, overlapLines := lineWindow(c.options)
	lines := strings.Split(content, "\n")
	now := time.Now()

	var chunks []*Chunk
	for i := 0; i < len(lines); {
		end := min(i+windowLines, len(lines))
		body := strings.Join(lines[i:end], "\n")

		chunks = append(chunks, &Chunk{
			ID:          ChunkID(file.Path, body),
			FilePath:    file.Path,
			Content:     body,
			RawContent:  body,
			ContentType: ContentTypeText,
			Language:    file.Language,
			StartLine:   i + 1,
			EndLine:     end,
			Metadata:    make(map[string]string),
			CreatedAt:   now,
			UpdatedAt:   now,
		})

		if end >= len(lines) {
			break
		}
		i = end - overlapLines
	}

	return chunks, nil
}
