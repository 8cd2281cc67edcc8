package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/codeqa/codeqa/internal/chunk"
	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

// metadataSchemaVersion bumps when the table layout changes.
const metadataSchemaVersion = 1

// SQLiteStore implements MetadataStore on modernc.org/sqlite. WAL mode
// allows a serve process to read while an index build writes.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the metadata database at path. An empty
// path opens an in-memory database for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := ensureParentDir(path); err != nil {
			return nil, qaerrors.IO("create metadata directory", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, qaerrors.IO("open metadata database", err)
	}

	// modernc.org/sqlite ignores DSN pragma parameters; set them explicitly.
	// Single connection avoids writer lock contention within the process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, qaerrors.IO("configure metadata database", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS files (
		path         TEXT PRIMARY KEY,
		size         INTEGER NOT NULL,
		mod_time     INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		language     TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		indexed_at   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id           TEXT PRIMARY KEY,
		file_path    TEXT NOT NULL,
		content      TEXT NOT NULL,
		raw_content  TEXT NOT NULL DEFAULT '',
		context      TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		language     TEXT NOT NULL DEFAULT '',
		start_line   INTEGER NOT NULL,
		end_line     INTEGER NOT NULL,
		symbols      TEXT NOT NULL DEFAULT '[]',
		metadata     TEXT NOT NULL DEFAULT '{}',
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS counters (
		name  TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return qaerrors.IO("initialize metadata schema", err)
	}
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`,
		metadataSchemaVersion,
	); err != nil {
		return qaerrors.IO("record schema version", err)
	}
	return nil
}

// SaveFiles upserts file rows in a single transaction.
func (s *SQLiteStore) SaveFiles(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed("metadata store")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return qaerrors.IO("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO files
			(path, size, mod_time, content_hash, language, content_type, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return qaerrors.IO("prepare file insert", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx,
			f.Path, f.Size, f.ModTime.UnixNano(), f.ContentHash,
			f.Language, f.ContentType, f.IndexedAt.UnixNano(),
		); err != nil {
			return qaerrors.IO(fmt.Sprintf("save file %s", f.Path), err)
		}
	}
	return tx.Commit()
}

// GetFileByPath returns the tracked file at path, or a not-found error.
func (s *SQLiteStore) GetFileByPath(ctx context.Context, path string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed("metadata store")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE path = ?`, path)

	var f File
	var modTime, indexedAt int64
	err := row.Scan(&f.Path, &f.Size, &modTime, &f.ContentHash,
		&f.Language, &f.ContentType, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, qaerrors.New(qaerrors.ErrCodeFileNotFound,
			fmt.Sprintf("file not indexed: %s", path), nil)
	}
	if err != nil {
		return nil, qaerrors.IO("query file", err)
	}
	f.ModTime = time.Unix(0, modTime)
	f.IndexedAt = time.Unix(0, indexedAt)
	return &f, nil
}

// ListFilePaths returns all tracked paths in lexical order.
func (s *SQLiteStore) ListFilePaths(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed("metadata store")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files ORDER BY path`)
	if err != nil {
		return nil, qaerrors.IO("list files", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, qaerrors.IO("scan file path", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// FileCount returns the number of tracked files.
func (s *SQLiteStore) FileCount(ctx context.Context) (int, error) {
	return s.countRows(ctx, "files")
}

// DeleteFileByPath removes a file row and all of its chunks.
func (s *SQLiteStore) DeleteFileByPath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed("metadata store")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return qaerrors.IO("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, path); err != nil {
		return qaerrors.IO("delete chunks for file", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return qaerrors.IO("delete file", err)
	}
	return tx.Commit()
}

// SaveChunks upserts chunk rows in a single transaction.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed("metadata store")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return qaerrors.IO("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
			(id, file_path, content, raw_content, context, content_type,
			 language, start_line, end_line, symbols, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return qaerrors.IO("prepare chunk insert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		symbols, err := json.Marshal(c.Symbols)
		if err != nil {
			return qaerrors.InternalError("marshal chunk symbols", err)
		}
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return qaerrors.InternalError("marshal chunk metadata", err)
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.FilePath, c.Content, c.RawContent, c.Context,
			string(c.ContentType), c.Language, c.StartLine, c.EndLine,
			string(symbols), string(metadata),
			c.CreatedAt.UnixNano(), c.UpdatedAt.UnixNano(),
		); err != nil {
			return qaerrors.IO(fmt.Sprintf("save chunk %s", c.ID), err)
		}
	}
	return tx.Commit()
}

// GetChunk returns a single chunk by ID, or a not-found error.
func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*chunk.Chunk, error) {
	chunks, err := s.GetChunks(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, qaerrors.New(qaerrors.ErrCodeFileNotFound,
			fmt.Sprintf("chunk not found: %s", id), nil)
	}
	return chunks[0], nil
}

// GetChunks returns the chunks for the given IDs, preserving input order.
// Missing IDs are silently skipped.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*chunk.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed("metadata store")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		chunkSelect+` WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, qaerrors.IO("query chunks", err)
	}
	defer rows.Close()

	byID := make(map[string]*chunk.Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, qaerrors.IO("scan chunks", err)
	}

	out := make([]*chunk.Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetChunksByFile returns a file's chunks ordered by start line.
func (s *SQLiteStore) GetChunksByFile(ctx context.Context, path string) ([]*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed("metadata store")
	}

	rows, err := s.db.QueryContext(ctx,
		chunkSelect+` WHERE file_path = ? ORDER BY start_line`, path)
	if err != nil {
		return nil, qaerrors.IO("query chunks by file", err)
	}
	defer rows.Close()

	var chunks []*chunk.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeleteChunksByFile removes all chunk rows for a file path.
func (s *SQLiteStore) DeleteChunksByFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed("metadata store")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, path); err != nil {
		return qaerrors.IO("delete chunks by file", err)
	}
	return nil
}

// AllChunkIDs returns every chunk ID in lexical order.
func (s *SQLiteStore) AllChunkIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed("metadata store")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks ORDER BY id`)
	if err != nil {
		return nil, qaerrors.IO("list chunk IDs", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, qaerrors.IO("scan chunk ID", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ChunkCount returns the number of stored chunks.
func (s *SQLiteStore) ChunkCount(ctx context.Context) (int, error) {
	return s.countRows(ctx, "chunks")
}

// GetState returns the value for key, or "" if the key is unset.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", errStoreClosed("metadata store")
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", qaerrors.IO("query state", err)
	}
	return value, nil
}

// SetState upserts a state key-value pair.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed("metadata store")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`, key, value); err != nil {
		return qaerrors.IO("set state", err)
	}
	return nil
}

// IncrCounter adds one to the named telemetry counter.
func (s *SQLiteStore) IncrCounter(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed("metadata store")
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1`, name); err != nil {
		return qaerrors.IO("increment counter", err)
	}
	return nil
}

// Counters returns all telemetry counters.
func (s *SQLiteStore) Counters(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed("metadata store")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM counters`)
	if err != nil {
		return nil, qaerrors.IO("query counters", err)
	}
	defer rows.Close()

	counters := make(map[string]int64)
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, qaerrors.IO("scan counter", err)
		}
		counters[name] = value
	}
	return counters, rows.Err()
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func (s *SQLiteStore) countRows(ctx context.Context, table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errStoreClosed("metadata store")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, qaerrors.IO("count "+table, err)
	}
	return n, nil
}

func ensureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

const chunkSelect = `
	SELECT id, file_path, content, raw_content, context, content_type,
	       language, start_line, end_line, symbols, metadata, created_at, updated_at
	FROM chunks`

func scanChunk(rows *sql.Rows) (*chunk.Chunk, error) {
	var c chunk.Chunk
	var contentType, symbols, metadata string
	var createdAt, updatedAt int64
	if err := rows.Scan(&c.ID, &c.FilePath, &c.Content, &c.RawContent, &c.Context,
		&contentType, &c.Language, &c.StartLine, &c.EndLine,
		&symbols, &metadata, &createdAt, &updatedAt); err != nil {
		return nil, qaerrors.IO("scan chunk", err)
	}
	c.ContentType = chunk.ContentType(contentType)
	if err := json.Unmarshal([]byte(symbols), &c.Symbols); err != nil {
		return nil, qaerrors.InternalError("unmarshal chunk symbols", err)
	}
	if err := json.Unmarshal([]byte(metadata), &c.Metadata); err != nil {
		return nil, qaerrors.InternalError("unmarshal chunk metadata", err)
	}
	c.CreatedAt = time.Unix(0, createdAt)
	c.UpdatedAt = time.Unix(0, updatedAt)
	return &c, nil
}
