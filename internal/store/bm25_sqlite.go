package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

// SQLiteBM25 implements BM25Index on SQLite FTS5. Content is pre-tokenized
// with the code-aware tokenizer before indexing so camelCase and snake_case
// identifiers match their parts; queries go through the same tokenizer.
// WAL mode allows concurrent readers across processes.
type SQLiteBM25 struct {
	mu     sync.RWMutex
	db     *sql.DB
	stop   StopSet
	closed bool
}

var _ BM25Index = (*SQLiteBM25)(nil)

// NewSQLiteBM25 opens (or creates) an FTS5 index at path. An empty path
// opens an in-memory index for tests. A corrupted database is cleared and
// recreated; a reindex restores its content.
func NewSQLiteBM25(path string, cfg BM25Config) (*SQLiteBM25, error) {
	dsn := ":memory:"
	if path != "" {
		if err := ensureParentDir(path); err != nil {
			return nil, qaerrors.IO("create keyword index directory", err)
		}
		if err := checkSQLiteBM25Integrity(path); err != nil {
			slog.Warn("keyword index corrupted, clearing",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, qaerrors.New(qaerrors.ErrCodeCorruptIndex,
					"keyword index corrupted and cannot be removed", rmErr).
					WithSuggestion("delete " + path + " manually and reindex")
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, qaerrors.IO("open keyword index", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, qaerrors.IO("configure keyword index", err)
		}
	}

	idx := &SQLiteBM25{db: db, stop: cfg.stopSet()}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// checkSQLiteBM25Integrity validates an existing database before opening it
// for real. Returns nil when the file is absent (fresh index).
func checkSQLiteBM25Integrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check reported: %s", result)
	}

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name = 'fts_chunks'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("query schema: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("fts_chunks table missing")
	}
	return nil
}

func (s *SQLiteBM25) initSchema() error {
	// doc_id is stored but not searchable. A plain doc_ids table backs
	// AllIDs and DocCount; FTS5 virtual tables don't expose rowids reliably.
	const schema = `
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_chunks USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='unicode61'
	);

	CREATE TABLE IF NOT EXISTS doc_ids (
		doc_id TEXT PRIMARY KEY
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return qaerrors.IO("initialize keyword index schema", err)
	}
	return nil
}

// Index upserts documents. FTS5 has no REPLACE, so existing rows are
// deleted first.
func (s *SQLiteBM25) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed("keyword index")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return qaerrors.IO("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	del, err := tx.PrepareContext(ctx, `DELETE FROM fts_chunks WHERE doc_id = ?`)
	if err != nil {
		return qaerrors.IO("prepare delete", err)
	}
	defer del.Close()

	ins, err := tx.PrepareContext(ctx, `INSERT INTO fts_chunks (doc_id, content) VALUES (?, ?)`)
	if err != nil {
		return qaerrors.IO("prepare insert", err)
	}
	defer ins.Close()

	track, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO doc_ids (doc_id) VALUES (?)`)
	if err != nil {
		return qaerrors.IO("prepare ID tracking", err)
	}
	defer track.Close()

	for _, doc := range docs {
		tokens := s.stop.Filter(Tokenize(doc.Content))
		if _, err := del.ExecContext(ctx, doc.ID); err != nil {
			return qaerrors.IO(fmt.Sprintf("replace document %s", doc.ID), err)
		}
		if _, err := ins.ExecContext(ctx, doc.ID, strings.Join(tokens, " ")); err != nil {
			return qaerrors.IO(fmt.Sprintf("index document %s", doc.ID), err)
		}
		if _, err := track.ExecContext(ctx, doc.ID); err != nil {
			return qaerrors.IO(fmt.Sprintf("track document %s", doc.ID), err)
		}
	}
	return tx.Commit()
}

// Search returns up to limit documents scored by BM25, best first. An empty
// or all-stop-word query returns no results.
func (s *SQLiteBM25) Search(ctx context.Context, query string, limit int) ([]*BM25Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed("keyword index")
	}

	tokens := s.stop.Filter(Tokenize(query))
	if len(tokens) == 0 {
		return []*BM25Result{}, nil
	}

	// bm25() returns negative values, lower is better: ORDER BY ascending
	// puts the best match first, and negating restores higher-is-better.
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_chunks) AS score
		FROM fts_chunks
		WHERE content MATCH ?
		ORDER BY score, doc_id
		LIMIT ?`, strings.Join(tokens, " OR "), limit)
	if err != nil {
		// FTS5 rejects queries containing bare operators; treat as no match.
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return []*BM25Result{}, nil
		}
		return nil, qaerrors.IO("keyword search", err)
	}
	defer rows.Close()

	var results []*BM25Result
	for rows.Next() {
		var docID string
		var score float64
		if err := rows.Scan(&docID, &score); err != nil {
			return nil, qaerrors.IO("scan search result", err)
		}
		results = append(results, &BM25Result{
			DocID:        docID,
			Score:        -score,
			MatchedTerms: tokens,
		})
	}
	return results, rows.Err()
}

// Delete removes documents by ID.
func (s *SQLiteBM25) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed("keyword index")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return qaerrors.IO("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(docIDs)), ",")
	args := make([]any, len(docIDs))
	for i, id := range docIDs {
		args[i] = id
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fts_chunks WHERE doc_id IN (`+placeholders+`)`, args...); err != nil {
		return qaerrors.IO("delete from keyword index", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM doc_ids WHERE doc_id IN (`+placeholders+`)`, args...); err != nil {
		return qaerrors.IO("delete tracked IDs", err)
	}
	return tx.Commit()
}

// AllIDs returns every indexed document ID in lexical order.
func (s *SQLiteBM25) AllIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed("keyword index")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT doc_id FROM doc_ids ORDER BY doc_id`)
	if err != nil {
		return nil, qaerrors.IO("list document IDs", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, qaerrors.IO("scan document ID", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DocCount returns the number of indexed documents.
func (s *SQLiteBM25) DocCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errStoreClosed("keyword index")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doc_ids`).Scan(&n); err != nil {
		return 0, qaerrors.IO("count documents", err)
	}
	return n, nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteBM25) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
