package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeqa/codeqa/internal/chunk"
	"github.com/codeqa/codeqa/internal/embed"
	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/scanner"
	"github.com/codeqa/codeqa/internal/store"
)

// CoordinatorConfig configures incremental index maintenance.
type CoordinatorConfig struct {
	// Root is the absolute project root.
	Root string

	// Snapshot is the live index the coordinator maintains. The
	// coordinator is its single writer; concurrent readers are safe
	// because all three stores take their own locks.
	Snapshot *Snapshot

	Chunker  chunk.Chunker
	Embedder embed.Embedder

	// MaxFileSize caps indexed files (scanner default when zero).
	MaxFileSize int64
}

// Coordinator applies single-file updates to a live snapshot in response
// to watcher events. A full Build remains the rebuild primitive; the
// coordinator only keeps an already-published index current.
type Coordinator struct {
	config CoordinatorConfig
	mu     sync.Mutex
}

// NewCoordinator creates a Coordinator for a published snapshot.
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	if config.Snapshot == nil || config.Chunker == nil || config.Embedder == nil {
		return nil, qaerrors.InvalidArg("coordinator requires a snapshot, chunker, and embedder")
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = scanner.DefaultMaxFileSize
	}
	return &Coordinator{config: config}, nil
}

// UpdateFile re-indexes a single file identified by its root-relative
// path. Files that should not be indexed (symlinks, binaries, oversized,
// config) are removed from the index if present and otherwise ignored.
func (c *Coordinator) UpdateFile(ctx context.Context, relPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	absPath := filepath.Join(c.config.Root, relPath)

	// Lstat so symlinks are detected rather than followed.
	info, err := os.Lstat(absPath)
	if os.IsNotExist(err) {
		return c.removeLocked(ctx, relPath)
	}
	if err != nil {
		return qaerrors.IO("stat "+relPath, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil
	}
	if info.Size() > c.config.MaxFileSize {
		slog.Warn("skipping oversized file",
			slog.String("path", relPath),
			slog.Int64("size", info.Size()))
		return c.removeLocked(ctx, relPath)
	}

	language := scanner.DetectLanguage(relPath)
	contentType := scanner.DetectContentType(language)
	if contentType == scanner.ContentTypeConfig {
		return nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return qaerrors.IO("read "+relPath, err)
	}
	if isBinaryContent(content) {
		return nil
	}

	chunks, err := c.config.Chunker.Chunk(ctx, &chunk.FileInput{
		Path:     relPath,
		Content:  content,
		Language: language,
	})
	if err != nil {
		return err
	}

	// Replace wholesale: old chunks out first so renamed or shrunk
	// declarations cannot linger.
	if err := c.removeLocked(ctx, relPath); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	docs := make([]*store.Document, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
		ids[i] = ch.ID
		docs[i] = &store.Document{ID: ch.ID, Content: ch.Content}
	}

	vectors, err := c.config.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	snap := c.config.Snapshot
	if err := snap.Vectors.Add(ctx, ids, vectors); err != nil {
		return err
	}
	if err := snap.BM25.Index(ctx, docs); err != nil {
		return err
	}
	if err := snap.Meta.SaveFiles(ctx, []*store.File{{
		Path:        relPath,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentHash: hashContent(content),
		Language:    language,
		ContentType: string(contentType),
		IndexedAt:   time.Now(),
	}}); err != nil {
		return err
	}
	if err := snap.Meta.SaveChunks(ctx, chunks); err != nil {
		return err
	}

	slog.Debug("file reindexed",
		slog.String("path", relPath),
		slog.Int("chunks", len(chunks)))
	return nil
}

// RemoveFile drops a file and all of its chunks from the index.
func (c *Coordinator) RemoveFile(ctx context.Context, relPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(ctx, relPath)
}

func (c *Coordinator) removeLocked(ctx context.Context, relPath string) error {
	snap := c.config.Snapshot

	chunks, err := snap.Meta.GetChunksByFile(ctx, relPath)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	if err := snap.Vectors.Delete(ctx, ids); err != nil {
		return err
	}
	if err := snap.BM25.Delete(ctx, ids); err != nil {
		return err
	}
	return snap.Meta.DeleteFileByPath(ctx, relPath)
}

// Flush persists the vector store. SQLite-backed stores persist on write;
// the HNSW graph lives in memory between explicit saves, so the watcher
// calls Flush after applying a debounced batch of events.
func (c *Coordinator) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.Snapshot.SaveVectors()
}
