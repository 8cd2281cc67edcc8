package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

const (
	codeTokenizerName  = "codeqa_tokenizer"
	codeStopFilterName = "codeqa_stop"
	codeAnalyzerName   = "codeqa_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(codeTokenizerName, newBleveCodeTokenizer)
	_ = registry.RegisterTokenFilter(codeStopFilterName, newBleveStopFilter)
}

// BleveBM25 implements BM25Index on Bleve v2 with a code-aware analyzer.
// Bleve holds an exclusive BoltDB lock, so this backend is single-process;
// SQLite FTS5 is the default.
type BleveBM25 struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

var _ BM25Index = (*BleveBM25)(nil)

type bleveChunkDoc struct {
	Content string `json:"content"`
}

// NewBleveBM25 opens (or creates) a Bleve index at path. An empty path
// creates an in-memory index for tests. A corrupted index directory is
// cleared and recreated.
func NewBleveBM25(path string) (*BleveBM25, error) {
	mapping := bleve.NewIndexMapping()
	if err := mapping.AddCustomAnalyzer(codeAnalyzerName, map[string]any{
		"type":          custom.Name,
		"tokenizer":     codeTokenizerName,
		"token_filters": []string{lowercase.Name, codeStopFilterName},
	}); err != nil {
		return nil, qaerrors.InternalError("register code analyzer", err)
	}
	mapping.DefaultAnalyzer = codeAnalyzerName

	if path == "" {
		idx, err := bleve.NewMemOnly(mapping)
		if err != nil {
			return nil, qaerrors.IO("create in-memory keyword index", err)
		}
		return &BleveBM25{index: idx}, nil
	}

	if err := checkBleveIntegrity(path); err != nil {
		slog.Warn("keyword index corrupted, clearing",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, qaerrors.New(qaerrors.ErrCodeCorruptIndex,
				"keyword index corrupted and cannot be removed", rmErr).
				WithSuggestion("delete " + path + " manually and reindex")
		}
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, mapping)
	} else if err != nil && isBleveCorruption(err) {
		slog.Warn("keyword index open failed, recreating",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, qaerrors.New(qaerrors.ErrCodeCorruptIndex,
				"keyword index corrupted and cannot be removed", rmErr)
		}
		idx, err = bleve.New(path, mapping)
	}
	if err != nil {
		return nil, qaerrors.IO("open keyword index", err)
	}
	return &BleveBM25{index: idx}, nil
}

// checkBleveIntegrity validates the index metadata file before opening.
// Returns nil when the directory is absent (fresh index).
func checkBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(path + "/index_meta.json")
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("read index_meta.json: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isBleveCorruption(err error) bool {
	if err == nil {
		return false
	}
	if err == bleve.ErrorIndexMetaCorrupt {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

// Index upserts documents in a single batch.
func (b *BleveBM25) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errStoreClosed("keyword index")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveChunkDoc{Content: doc.Content}); err != nil {
			return qaerrors.IO(fmt.Sprintf("index document %s", doc.ID), err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return qaerrors.IO("execute index batch", err)
	}
	return nil
}

// Search returns up to limit documents, best first.
func (b *BleveBM25) Search(ctx context.Context, query string, limit int) ([]*BM25Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errStoreClosed("keyword index")
	}

	if strings.TrimSpace(query) == "" {
		return []*BM25Result{}, nil
	}

	match := bleve.NewMatchQuery(query)
	match.SetField("content")

	req := bleve.NewSearchRequest(match)
	req.Size = limit
	req.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, qaerrors.IO("keyword search", err)
	}

	results := make([]*BM25Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &BM25Result{
			DocID:        hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}
	return results, nil
}

// Delete removes documents by ID in a single batch.
func (b *BleveBM25) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errStoreClosed("keyword index")
	}

	batch := b.index.NewBatch()
	for _, id := range docIDs {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return qaerrors.IO("execute delete batch", err)
	}
	return nil
}

// AllIDs returns every indexed document ID in lexical order.
func (b *BleveBM25) AllIDs(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errStoreClosed("keyword index")
	}

	count, err := b.index.DocCount()
	if err != nil {
		return nil, qaerrors.IO("count documents", err)
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, qaerrors.IO("list document IDs", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	sort.Strings(ids)
	return ids, nil
}

// DocCount returns the number of indexed documents.
func (b *BleveBM25) DocCount(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, errStoreClosed("keyword index")
	}
	count, err := b.index.DocCount()
	if err != nil {
		return 0, qaerrors.IO("count documents", err)
	}
	return int(count), nil
}

// Close closes the index. Idempotent.
func (b *BleveBM25) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field != "content" {
			continue
		}
		for term := range locations {
			seen[term] = struct{}{}
		}
	}
	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// bleveCodeTokenizer adapts the package tokenizer to Bleve's analysis API.
type bleveCodeTokenizer struct{}

func newBleveCodeTokenizer(config map[string]any, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveCodeTokenizer{}, nil
}

func (t *bleveCodeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := Tokenize(text)

	stream := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for pos, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start < 0 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)
		stream = append(stream, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos + 1,
			Type:     analysis.AlphaNumeric,
		})
		if end <= len(text) {
			offset = end
		}
	}
	return stream
}

// bleveStopFilter drops code stop words from the token stream.
type bleveStopFilter struct {
	stop StopSet
}

func newBleveStopFilter(config map[string]any, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveStopFilter{stop: NewStopSet(DefaultStopWords)}, nil
}

func (f *bleveStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stop[strings.ToLower(string(token.Term))]; !isStop {
			out = append(out, token)
		}
	}
	return out
}
