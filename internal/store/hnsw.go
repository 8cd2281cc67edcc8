package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

// VectorStoreConfig tunes the HNSW graph. Distance is always cosine;
// vectors are normalized on insert so the stored graph is insensitive to
// input magnitude.
type VectorStoreConfig struct {
	// Dimensions is the fixed vector dimensionality.
	Dimensions int

	// M is the maximum number of graph connections per node (default 16).
	M int

	// EfSearch is the query-time search width (default 40).
	EfSearch int
}

func (c VectorStoreConfig) withDefaults() VectorStoreConfig {
	if c.M == 0 {
		c.M = 16
	}
	if c.EfSearch == 0 {
		c.EfSearch = 40
	}
	return c
}

// HNSWStore implements VectorStore on coder/hnsw, a pure Go HNSW graph.
// Chunk IDs are strings; the graph keys on uint64, so the store maintains
// a bidirectional mapping and persists it in a gob sidecar next to the
// graph file.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idToKey map[string]uint64
	keyToID map[uint64]string
	nextKey uint64

	closed bool
}

var _ VectorStore = (*HNSWStore)(nil)

// hnswSidecar is the persisted companion of the graph file.
type hnswSidecar struct {
	IDToKey map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
}

// NewHNSWStore creates an empty vector store.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	cfg = cfg.withDefaults()
	if cfg.Dimensions <= 0 {
		return nil, qaerrors.InvalidArg(fmt.Sprintf("vector store dimensions must be positive, got %d", cfg.Dimensions))
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWStore{
		graph:   graph,
		config:  cfg,
		idToKey: make(map[string]uint64),
		keyToID: make(map[uint64]string),
	}, nil
}

// Add inserts vectors keyed by chunk ID. Re-adding an existing ID assigns a
// fresh graph key and orphans the old node: coder/hnsw's Delete can corrupt
// the graph when the last node is removed, so replacement and deletion are
// both lazy — orphaned nodes stay in the graph but never appear in results.
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return qaerrors.InvalidArg(fmt.Sprintf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed("vector store")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return dimensionMismatch(s.config.Dimensions, len(v))
		}
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if oldKey, ok := s.idToKey[id]; ok {
			delete(s.keyToID, oldKey)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalize(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idToKey[id] = key
		s.keyToID[key] = id
	}
	return nil
}

// Search returns up to k nearest neighbors by cosine similarity, ordered by
// descending score with ties broken by ascending chunk ID.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed("vector store")
	}
	if len(query) != s.config.Dimensions {
		return nil, dimensionMismatch(s.config.Dimensions, len(query))
	}
	if k <= 0 {
		return nil, qaerrors.InvalidArg(fmt.Sprintf("search k must be positive, got %d", k))
	}
	if len(s.idToKey) == 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalize(q)

	// Oversample by the orphan count so lazily deleted nodes cannot crowd
	// live ones out of the result set.
	orphans := s.graph.Len() - len(s.idToKey)
	nodes := s.graph.Search(q, k+orphans)

	results := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		id, live := s.keyToID[node.Key]
		if !live {
			continue
		}
		dist := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{
			ID:    id,
			Score: cosineScore(dist),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes vectors by chunk ID (lazily, see Add).
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed("vector store")
	}
	for _, id := range ids {
		if key, ok := s.idToKey[id]; ok {
			delete(s.keyToID, key)
			delete(s.idToKey, id)
		}
	}
	return nil
}

// Contains reports whether a chunk ID has a live vector.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, ok := s.idToKey[id]
	return ok
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idToKey)
}

// AllIDs returns the chunk IDs of all live vectors, unordered.
func (s *HNSWStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	ids := make([]string, 0, len(s.idToKey))
	for id := range s.idToKey {
		ids = append(ids, id)
	}
	return ids
}

// Dimensions returns the configured vector dimensionality.
func (s *HNSWStore) Dimensions() int {
	return s.config.Dimensions
}

// Save writes the graph and its ID sidecar, both via tmp file + rename so a
// crash mid-write never leaves a torn index on disk.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errStoreClosed("vector store")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return qaerrors.IO("create vector store directory", err)
	}

	if err := atomicWrite(path, func(f *os.File) error {
		return s.graph.Export(f)
	}); err != nil {
		return qaerrors.IO("save vector graph", err)
	}

	sidecar := hnswSidecar{
		IDToKey: s.idToKey,
		NextKey: s.nextKey,
		Config:  s.config,
	}
	if err := atomicWrite(path+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(sidecar)
	}); err != nil {
		return qaerrors.IO("save vector sidecar", err)
	}
	return nil
}

// Load restores the graph and ID mappings from disk, replacing any
// in-memory state.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed("vector store")
	}

	sidecarFile, err := os.Open(path + ".meta")
	if err != nil {
		return qaerrors.IO("open vector sidecar", err)
	}
	defer sidecarFile.Close()

	var sidecar hnswSidecar
	if err := gob.NewDecoder(sidecarFile).Decode(&sidecar); err != nil {
		return qaerrors.New(qaerrors.ErrCodeCorruptIndex, "decode vector sidecar", err).
			WithSuggestion("run 'codeqa index' to rebuild")
	}

	f, err := os.Open(path)
	if err != nil {
		return qaerrors.IO("open vector graph", err)
	}
	defer f.Close()

	// coder/hnsw Import needs an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return qaerrors.New(qaerrors.ErrCodeCorruptIndex, "import vector graph", err).
			WithSuggestion("run 'codeqa index' to rebuild")
	}

	s.config = sidecar.Config.withDefaults()
	s.idToKey = sidecar.IDToKey
	s.nextKey = sidecar.NextKey
	s.keyToID = make(map[uint64]string, len(sidecar.IDToKey))
	for id, key := range sidecar.IDToKey {
		s.keyToID[key] = id
	}
	return nil
}

// Close releases the store. Further calls fail.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// ReadStoredDimensions reads the dimensionality of a persisted vector store
// without loading the graph. Returns 0 if no store exists at the path.
func ReadStoredDimensions(path string) (int, error) {
	f, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, qaerrors.IO("open vector sidecar", err)
	}
	defer f.Close()

	var sidecar hnswSidecar
	if err := gob.NewDecoder(f).Decode(&sidecar); err != nil {
		return 0, qaerrors.New(qaerrors.ErrCodeCorruptIndex, "decode vector sidecar", err)
	}
	return sidecar.Config.Dimensions, nil
}

// atomicWrite writes via a temp file in the same directory and renames it
// over the target.
func atomicWrite(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func dimensionMismatch(want, got int) error {
	return qaerrors.New(qaerrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("vector dimension mismatch: index has %d, got %d", want, got), nil).
		WithSuggestion("run 'codeqa index' to rebuild with the current embedder")
}

func errStoreClosed(name string) error {
	return qaerrors.InternalError(name+" is closed", nil)
}

// normalize scales v to unit length in place. Zero vectors are left as-is.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// cosineScore maps cosine distance (0..2) to a similarity in [0, 1].
func cosineScore(dist float32) float32 {
	return 1 - dist/2
}
