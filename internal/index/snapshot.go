// Package index builds and publishes the searchable view of a codebase:
// chunk rows and index state in SQLite, embeddings in an HNSW graph, and
// chunk text in a BM25 keyword index, all under the project's .codeqa/
// directory. A build constructs everything in a staging directory and
// swaps it into place only on success, so a failed build never disturbs
// the previously published index.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/store"
)

const (
	// indexDirName is the published index directory under the data dir.
	indexDirName = "index"

	// stagingDirName is where a build assembles the next index.
	stagingDirName = "index.staging"

	vectorFileName   = "vectors.hnsw"
	metadataFileName = "metadata.db"
)

// Snapshot is a published, queryable index. Readers treat it as immutable;
// rebuilds produce a new Snapshot and swap it in via a Publisher. The
// incremental Coordinator is the single writer allowed to mutate a live
// snapshot's stores.
type Snapshot struct {
	Vectors store.VectorStore
	Meta    store.MetadataStore
	BM25    store.BM25Index

	// EmbedderModel and Dimensions identify the embedder that produced
	// the stored vectors.
	EmbedderModel string
	Dimensions    int

	BuiltAt time.Time

	dir string
}

// Dir returns the on-disk directory backing this snapshot.
func (s *Snapshot) Dir() string {
	return s.dir
}

// ChunkCount returns the number of indexed chunks.
func (s *Snapshot) ChunkCount(ctx context.Context) (int, error) {
	return s.Meta.ChunkCount(ctx)
}

// ValidateEmbedder fails when the given embedder does not match the one
// the index was built with. Vectors from different models or
// dimensionalities are not comparable, so queries must not proceed.
func (s *Snapshot) ValidateEmbedder(model string, dimensions int) error {
	if s.EmbedderModel != "" && model != s.EmbedderModel {
		return qaerrors.New(qaerrors.ErrCodeProviderMismatch,
			fmt.Sprintf("index was built with embedder %q but %q is active", s.EmbedderModel, model), nil).
			WithSuggestion("run 'codeqa index' to rebuild with the active embedder")
	}
	if s.Dimensions != 0 && dimensions != s.Dimensions {
		return qaerrors.New(qaerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("index has %d-dimensional vectors but the active embedder produces %d", s.Dimensions, dimensions), nil).
			WithSuggestion("run 'codeqa index' to rebuild with the active embedder")
	}
	return nil
}

// SaveVectors persists the vector store back to the snapshot directory.
// Called by the coordinator after incremental updates; the SQLite-backed
// stores persist on write and need no explicit save.
func (s *Snapshot) SaveVectors() error {
	if s.dir == "" {
		// In-memory snapshot, nothing to persist.
		return nil
	}
	return s.Vectors.Save(filepath.Join(s.dir, vectorFileName))
}

// Close releases all three stores.
func (s *Snapshot) Close() error {
	var firstErr error
	if err := s.Vectors.Close(); err != nil {
		firstErr = err
	}
	if err := s.BM25.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.Meta.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// OpenSnapshot loads the published index under dataDir. Returns an
// index-not-built error when no index exists yet.
func OpenSnapshot(ctx context.Context, dataDir string, bm25Cfg store.BM25Config) (*Snapshot, error) {
	dir := filepath.Join(dataDir, indexDirName)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, qaerrors.New(qaerrors.ErrCodeIndexNotBuilt,
			"no index found under "+dataDir, nil).
			WithSuggestion("run 'codeqa index' first")
	}

	meta, err := store.NewSQLiteStore(filepath.Join(dir, metadataFileName))
	if err != nil {
		return nil, err
	}

	snap, err := openStores(ctx, dir, meta, bm25Cfg)
	if err != nil {
		meta.Close()
		return nil, err
	}
	return snap, nil
}

func openStores(ctx context.Context, dir string, meta store.MetadataStore, bm25Cfg store.BM25Config) (*Snapshot, error) {
	model, err := meta.GetState(ctx, store.StateKeyEmbedderModel)
	if err != nil {
		return nil, err
	}
	dimsStr, err := meta.GetState(ctx, store.StateKeyEmbedderDimensions)
	if err != nil {
		return nil, err
	}
	dims, _ := strconv.Atoi(dimsStr)
	if dims <= 0 {
		return nil, qaerrors.New(qaerrors.ErrCodeCorruptIndex,
			"index state is missing the embedder dimensionality", nil).
			WithSuggestion("run 'codeqa index' to rebuild")
	}

	var builtAt time.Time
	if ts, err := meta.GetState(ctx, store.StateKeyBuiltAt); err == nil && ts != "" {
		builtAt, _ = time.Parse(time.RFC3339, ts)
	}

	vectors, err := store.NewHNSWStore(store.VectorStoreConfig{Dimensions: dims})
	if err != nil {
		return nil, err
	}
	if err := vectors.Load(filepath.Join(dir, vectorFileName)); err != nil {
		vectors.Close()
		return nil, err
	}

	// Open with whichever backend wrote the index, regardless of the
	// currently configured one.
	backend := store.DetectBM25Backend(dir)
	bm25, err := store.NewBM25IndexWithBackend(dir, bm25Cfg, string(backend))
	if err != nil {
		vectors.Close()
		return nil, err
	}

	return &Snapshot{
		Vectors:       vectors,
		Meta:          meta,
		BM25:          bm25,
		EmbedderModel: model,
		Dimensions:    dims,
		BuiltAt:       builtAt,
		dir:           dir,
	}, nil
}

// Publisher holds the live snapshot behind an atomic pointer. Readers call
// Current and may keep using the returned snapshot even while a newer one
// is published; Publish returns the previous snapshot so the caller can
// close it once its readers are done.
type Publisher struct {
	current atomic.Pointer[Snapshot]
}

// Publish swaps in a new snapshot and returns the previous one (nil on the
// first publish).
func (p *Publisher) Publish(s *Snapshot) *Snapshot {
	return p.current.Swap(s)
}

// Current returns the live snapshot, or an index-not-built error when
// nothing has been published.
func (p *Publisher) Current() (*Snapshot, error) {
	s := p.current.Load()
	if s == nil {
		return nil, qaerrors.New(qaerrors.ErrCodeIndexNotBuilt,
			"no index has been published", nil).
			WithSuggestion("run 'codeqa index' first")
	}
	return s, nil
}
