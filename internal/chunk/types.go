package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Token accounting defaults. Sizes are estimated at roughly four
// characters per token, which is close enough for budget decisions.
const (
	DefaultMaxChunkTokens = 512
	DefaultOverlapTokens  = 64
	TokensPerChar         = 4
)

// ContentType classifies what a chunk holds.
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
)

// Chunk is a single retrievable unit of a source file.
type Chunk struct {
	ID          string // content-addressable, stable across line shifts
	FilePath    string // relative to the project root
	Content     string // embedding input: context + raw content
	RawContent  string // the symbol or section itself
	Context     string // package clause and imports for code chunks
	ContentType ContentType
	Language    string
	StartLine   int // 1-indexed
	EndLine     int // inclusive
	Symbols     []*Symbol
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FileInput is the unit of work handed to a chunker.
type FileInput struct {
	Path     string
	Content  []byte
	Language string
}

// Chunker splits one file into retrievable chunks.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)
}

// SymbolType is the kind of declaration a symbol represents.
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeMethod    SymbolType = "method"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeType      SymbolType = "type"
	SymbolTypeConstant  SymbolType = "constant"
	SymbolTypeVariable  SymbolType = "variable"
)

// Symbol is a named declaration found while parsing a code file.
type Symbol struct {
	Name       string
	Type       SymbolType
	StartLine  int
	EndLine    int
	Signature  string
	DocComment string
}

// ChunkID derives a stable chunk identifier from the file path and the
// chunk content. Identical content in the same file always maps to the
// same ID, so unchanged chunks survive re-indexing without re-embedding,
// while the path component keeps duplicated content in different files
// distinct.
func ChunkID(filePath, content string) string {
	contentHash := sha256.Sum256([]byte(content))
	seed := fmt.Sprintf("%s:%s", filePath, hex.EncodeToString(contentHash[:])[:16])
	id := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(id[:])[:16]
}

// EstimateTokens approximates the token count of content.
func EstimateTokens(content string) int {
	return len(content) / TokensPerChar
}

func withContext(fileContext, rawContent string) string {
	if fileContext == "" {
		return rawContent
	}
	return fileContext + "\n\n" + rawContent
}
