// Package store is the persistence layer under .codeqa/: an HNSW vector
// store for embeddings, a SQLite database for file and chunk metadata, and
// a BM25 keyword index (SQLite FTS5 by default, Bleve as an alternate).
package store

import (
	"context"
	"time"

	"github.com/codeqa/codeqa/internal/chunk"
)

// State keys recorded in the metadata store when an index is built. The
// answer loop validates them against the active embedder before querying:
// vectors produced by one model are meaningless to another.
const (
	// StateKeyEmbedderModel is the "provider/model" identifier of the
	// embedder that produced the stored vectors.
	StateKeyEmbedderModel = "embedder_model"

	// StateKeyEmbedderDimensions is the vector dimensionality of the index.
	StateKeyEmbedderDimensions = "embedder_dimensions"

	// StateKeyBuiltAt is the RFC 3339 timestamp of the last completed build.
	StateKeyBuiltAt = "built_at"
)

// File is a source file tracked by the index. Paths are relative to the
// project root and serve as the primary key; the data directory belongs to
// exactly one project.
type File struct {
	Path        string
	Size        int64
	ModTime     time.Time
	ContentHash string // SHA-256 of file content
	Language    string
	ContentType string
	IndexedAt   time.Time
}

// MetadataStore persists files, chunks, index state, and telemetry counters.
type MetadataStore interface {
	// File rows.
	SaveFiles(ctx context.Context, files []*File) error
	GetFileByPath(ctx context.Context, path string) (*File, error)
	ListFilePaths(ctx context.Context) ([]string, error)
	FileCount(ctx context.Context) (int, error)
	// DeleteFileByPath removes a file row and cascades to its chunks.
	DeleteFileByPath(ctx context.Context, path string) error

	// Chunk rows.
	SaveChunks(ctx context.Context, chunks []*chunk.Chunk) error
	GetChunk(ctx context.Context, id string) (*chunk.Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*chunk.Chunk, error)
	GetChunksByFile(ctx context.Context, path string) ([]*chunk.Chunk, error)
	DeleteChunksByFile(ctx context.Context, path string) error
	AllChunkIDs(ctx context.Context) ([]string, error)
	ChunkCount(ctx context.Context) (int, error)

	// Index state key-value pairs. GetState returns "" for a missing key.
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// Telemetry counters, surfaced by the status command.
	IncrCounter(ctx context.Context, name string) error
	Counters(ctx context.Context) (map[string]int64, error)

	Close() error
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ID    string  // chunk ID
	Score float32 // cosine similarity mapped to [0, 1], higher is closer
}

// VectorStore provides approximate nearest-neighbor search over chunk
// embeddings. Search results are deterministic: descending score, ties
// broken by ascending chunk ID.
type VectorStore interface {
	// Add inserts vectors keyed by chunk ID, replacing existing entries.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search returns up to k nearest neighbors of the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	Delete(ctx context.Context, ids []string) error
	Contains(id string) bool
	Count() int
	AllIDs() []string

	// Save and Load persist the store to/from the given path atomically.
	Save(path string) error
	Load(path string) error
	Close() error
}

// Document is the unit of BM25 indexing.
type Document struct {
	ID      string // chunk ID
	Content string
}

// BM25Result is a single keyword search hit.
type BM25Result struct {
	DocID        string
	Score        float64 // higher is better across both backends
	MatchedTerms []string
}

// BM25Index provides keyword search over chunk content. Implementations
// persist at the path given to their constructor; there is no separate
// save step.
type BM25Index interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs(ctx context.Context) ([]string, error)
	DocCount(ctx context.Context) (int, error)
	Close() error
}

// BM25Config tunes tokenization for the keyword index.
type BM25Config struct {
	// StopWords are dropped during tokenization. Defaults to
	// DefaultStopWords when nil.
	StopWords []string
}

func (c BM25Config) stopSet() StopSet {
	words := c.StopWords
	if words == nil {
		words = DefaultStopWords
	}
	return NewStopSet(words)
}

// DefaultStopWords are language keywords and throwaway identifiers that
// carry no retrieval signal in source code.
var DefaultStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while", "import", "package",
	"err", "ctx", "tmp", "val", "nil", "true", "false",
}
