package index

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeqa/codeqa/internal/chunk"
	"github.com/codeqa/codeqa/internal/embed"
	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/scanner"
	"github.com/codeqa/codeqa/internal/store"
)

// DefaultEmbedConcurrency bounds parallel embedding batches during a build.
const DefaultEmbedConcurrency = 4

// ProgressFunc receives build progress. stage is one of "scan", "chunk",
// "embed", "write"; done/total count units within the stage.
type ProgressFunc func(stage string, done, total int)

// BuilderConfig configures a full index build.
type BuilderConfig struct {
	// Root is the absolute project root to index.
	Root string

	// DataDir is the absolute .codeqa directory.
	DataDir string

	Scanner  *scanner.Scanner
	Chunker  chunk.Chunker
	Embedder embed.Embedder

	// Include and Exclude are path patterns applied during the scan.
	Include []string
	Exclude []string

	// MaxFileSize caps indexed files (scanner default when zero).
	MaxFileSize int64

	// BM25Backend selects the keyword index backend ("sqlite" default).
	BM25Backend string
	BM25Config  store.BM25Config

	// BatchSize is the number of chunks per embedding call.
	BatchSize int

	// Concurrency bounds parallel embedding batches.
	Concurrency int

	// Progress is optional.
	Progress ProgressFunc
}

// Builder performs full index builds.
type Builder struct {
	config BuilderConfig
}

// NewBuilder creates a Builder. Root, DataDir, Scanner, Chunker, and
// Embedder are required.
func NewBuilder(config BuilderConfig) (*Builder, error) {
	if config.Root == "" || config.DataDir == "" {
		return nil, qaerrors.InvalidArg("builder requires a project root and data directory")
	}
	if config.Scanner == nil || config.Chunker == nil || config.Embedder == nil {
		return nil, qaerrors.InvalidArg("builder requires a scanner, chunker, and embedder")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = embed.DefaultBatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultEmbedConcurrency
	}
	return &Builder{config: config}, nil
}

// Build scans the project, chunks and embeds every file, and publishes the
// result as a new snapshot. The whole build aborts on the first unreadable
// file or exhausted embedding failure: everything is assembled in a staging
// directory that is swapped over the published index only on success, so an
// aborted build leaves the previous index untouched.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	lock, err := AcquireBuildLock(b.config.DataDir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	started := time.Now()

	files, err := b.scan(ctx)
	if err != nil {
		return nil, err
	}
	b.progress("scan", len(files), len(files))

	fileRows, chunks, err := b.chunkFiles(ctx, files)
	if err != nil {
		return nil, err
	}

	vectors, err := b.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	staging := filepath.Join(b.config.DataDir, stagingDirName)
	if err := os.RemoveAll(staging); err != nil {
		return nil, qaerrors.IO("clear staging directory", err)
	}
	if err := b.writeStaging(ctx, staging, fileRows, chunks, vectors); err != nil {
		_ = os.RemoveAll(staging)
		return nil, err
	}

	if err := swapIndexDir(b.config.DataDir); err != nil {
		_ = os.RemoveAll(staging)
		return nil, err
	}

	snap, err := OpenSnapshot(ctx, b.config.DataDir, b.config.BM25Config)
	if err != nil {
		return nil, err
	}

	slog.Info("index build complete",
		slog.Int("files", len(fileRows)),
		slog.Int("chunks", len(chunks)),
		slog.String("embedder", b.config.Embedder.ModelName()),
		slog.Duration("elapsed", time.Since(started)))
	return snap, nil
}

func (b *Builder) scan(ctx context.Context) ([]*scanner.FileInfo, error) {
	files, err := b.config.Scanner.List(ctx, &scanner.ScanOptions{
		RootDir:          b.config.Root,
		IncludePatterns:  b.config.Include,
		ExcludePatterns:  b.config.Exclude,
		RespectGitignore: true,
		MaxFileSize:      b.config.MaxFileSize,
	})
	if err != nil {
		return nil, err
	}

	// Generated artifacts and config files add noise, not signal.
	indexable := files[:0]
	for _, f := range files {
		if f.IsGenerated || f.ContentType == scanner.ContentTypeConfig {
			continue
		}
		indexable = append(indexable, f)
	}
	return indexable, nil
}

func (b *Builder) chunkFiles(ctx context.Context, files []*scanner.FileInfo) ([]*store.File, []*chunk.Chunk, error) {
	var fileRows []*store.File
	var chunks []*chunk.Chunk

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			return nil, nil, qaerrors.IO("read "+f.Path, err)
		}
		if isBinaryContent(content) {
			continue
		}

		fileChunks, err := b.config.Chunker.Chunk(ctx, &chunk.FileInput{
			Path:     f.Path,
			Content:  content,
			Language: f.Language,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("chunk %s: %w", f.Path, err)
		}
		if len(fileChunks) == 0 {
			continue
		}

		fileRows = append(fileRows, &store.File{
			Path:        f.Path,
			Size:        f.Size,
			ModTime:     f.ModTime,
			ContentHash: hashContent(content),
			Language:    f.Language,
			ContentType: string(f.ContentType),
			IndexedAt:   time.Now(),
		})
		chunks = append(chunks, fileChunks...)
		b.progress("chunk", i+1, len(files))
	}
	return fileRows, chunks, nil
}

// embedChunks embeds all chunk contents with bounded-concurrency batches,
// preserving chunk order. Any batch failure aborts the build; the provider
// adapters already retried transient errors.
func (b *Builder) embedChunks(ctx context.Context, chunks []*chunk.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(chunks))
	var mu sync.Mutex
	var done int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.Concurrency)

	for start := 0; start < len(chunks); start += b.config.BatchSize {
		end := start + b.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		g.Go(func() error {
			texts := make([]string, end-start)
			for i, c := range chunks[start:end] {
				texts[i] = c.Content
			}
			batch, err := b.config.Embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			copy(vectors[start:end], batch)

			mu.Lock()
			done += end - start
			b.progress("embed", done, len(chunks))
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// writeStaging populates all three stores under the staging directory and
// closes them so the directory can be renamed into place.
func (b *Builder) writeStaging(ctx context.Context, staging string, fileRows []*store.File, chunks []*chunk.Chunk, vectors [][]float32) (err error) {
	meta, err := store.NewSQLiteStore(filepath.Join(staging, metadataFileName))
	if err != nil {
		return err
	}
	defer meta.Close()

	bm25, err := store.NewBM25IndexWithBackend(staging, b.config.BM25Config, b.config.BM25Backend)
	if err != nil {
		return err
	}
	defer bm25.Close()

	vstore, err := store.NewHNSWStore(store.VectorStoreConfig{
		Dimensions: b.config.Embedder.Dimensions(),
	})
	if err != nil {
		return err
	}
	defer vstore.Close()

	ids := make([]string, len(chunks))
	docs := make([]*store.Document, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		docs[i] = &store.Document{ID: c.ID, Content: c.Content}
	}

	if err := vstore.Add(ctx, ids, vectors); err != nil {
		return err
	}
	if err := bm25.Index(ctx, docs); err != nil {
		return err
	}
	if err := meta.SaveFiles(ctx, fileRows); err != nil {
		return err
	}
	if err := meta.SaveChunks(ctx, chunks); err != nil {
		return err
	}

	states := map[string]string{
		store.StateKeyEmbedderModel:      b.config.Embedder.ModelName(),
		store.StateKeyEmbedderDimensions: strconv.Itoa(b.config.Embedder.Dimensions()),
		store.StateKeyBuiltAt:            time.Now().UTC().Format(time.RFC3339),
	}
	for key, value := range states {
		if err := meta.SetState(ctx, key, value); err != nil {
			return err
		}
	}

	if err := vstore.Save(filepath.Join(staging, vectorFileName)); err != nil {
		return err
	}
	b.progress("write", len(chunks), len(chunks))
	return nil
}

func (b *Builder) progress(stage string, done, total int) {
	if b.config.Progress != nil {
		b.config.Progress(stage, done, total)
	}
}

// swapIndexDir atomically replaces the published index directory with the
// staging directory. The old index is kept beside it until the rename of
// staging succeeds, then removed.
func swapIndexDir(dataDir string) error {
	current := filepath.Join(dataDir, indexDirName)
	staging := filepath.Join(dataDir, stagingDirName)
	old := current + ".old"

	if err := os.RemoveAll(old); err != nil {
		return qaerrors.IO("clear previous index backup", err)
	}
	hadCurrent := false
	if _, err := os.Stat(current); err == nil {
		hadCurrent = true
		if err := os.Rename(current, old); err != nil {
			return qaerrors.IO("stash current index", err)
		}
	}
	if err := os.Rename(staging, current); err != nil {
		if hadCurrent {
			_ = os.Rename(old, current)
		}
		return qaerrors.IO("publish staged index", err)
	}
	_ = os.RemoveAll(old)
	return nil
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// isBinaryContent reports whether content looks binary (NUL byte within
// the first 8KB).
func isBinaryContent(content []byte) bool {
	probe := content
	if len(probe) > 8192 {
		probe = probe[:8192]
	}
	return bytes.IndexByte(probe, 0) >= 0
}
