package store

import (
	"fmt"
	"os"
	"path/filepath"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

// BM25Backend selects the keyword index implementation.
type BM25Backend string

const (
	// BM25BackendSQLite is the default: FTS5 with WAL mode, safe for
	// concurrent multi-process access.
	BM25BackendSQLite BM25Backend = "sqlite"

	// BM25BackendBleve uses Bleve v2. BoltDB's exclusive file lock limits
	// it to a single process.
	BM25BackendBleve BM25Backend = "bleve"
)

// NewBM25IndexWithBackend creates a BM25Index in dataDir using the given
// backend ("sqlite" by default). An empty dataDir creates an in-memory
// index for tests.
func NewBM25IndexWithBackend(dataDir string, cfg BM25Config, backend string) (BM25Index, error) {
	switch BM25Backend(backend) {
	case BM25BackendSQLite, "":
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "bm25.db")
		}
		return NewSQLiteBM25(path, cfg)

	case BM25BackendBleve:
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "bm25.bleve")
		}
		return NewBleveBM25(path)

	default:
		return nil, qaerrors.ConfigError(
			fmt.Sprintf("unknown BM25 backend %q (valid: sqlite, bleve)", backend), nil)
	}
}

// DetectBM25Backend reports which backend built the index in dataDir, or ""
// when none exists. Used to open an existing index with the backend that
// wrote it regardless of current configuration.
func DetectBM25Backend(dataDir string) BM25Backend {
	if info, err := os.Stat(filepath.Join(dataDir, "bm25.db")); err == nil && !info.IsDir() {
		return BM25BackendSQLite
	}
	if info, err := os.Stat(filepath.Join(dataDir, "bm25.bleve")); err == nil && info.IsDir() {
		return BM25BackendBleve
	}
	return ""
}
