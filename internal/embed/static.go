package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"
)

// StaticDimensions is the dimensionality of hash-based embeddings.
const StaticDimensions = 256

const (
	staticTokenWeight = 0.7
	staticNgramWeight = 0.3
	staticNgramSize   = 3
)

var identRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// Keywords carry no retrieval signal in code.
var codeStopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

// StaticEmbedder produces deterministic hash-based embeddings with no
// network or model dependency. Quality is well below a real model; it
// exists for offline operation and for tests.
type StaticEmbedder struct{}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a hash-based embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed hashes identifier tokens and character trigrams into a fixed
// vector.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}

	vec := make([]float32, StaticDimensions)
	for _, token := range tokenizeIdentifiers(trimmed) {
		if codeStopWords[token] {
			continue
		}
		vec[hashToIndex(token)] += staticTokenWeight
	}
	for _, ngram := range charNgrams(trimmed, staticNgramSize) {
		vec[hashToIndex(ngram)] += staticNgramWeight
	}
	return normalize(vec), nil
}

// EmbedQuery matches Embed; the hash space is symmetric.
func (e *StaticEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.Embed(ctx, text)
}

// EmbedBatch embeds each text in order.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// tokenizeIdentifiers splits text into lowercase tokens, breaking
// camelCase and snake_case identifiers apart.
func tokenizeIdentifiers(text string) []string {
	var tokens []string
	for _, word := range identRegex.FindAllString(text, -1) {
		for _, part := range strings.Split(word, "_") {
			for _, sub := range splitCamelCase(part) {
				if sub != "" {
					tokens = append(tokens, strings.ToLower(sub))
				}
			}
		}
	}
	return tokens
}

func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			// Boundary before the upper rune, also handles trailing
			// acronyms like parseHTTPResponse.
			if (prevLower || nextLower) && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func charNgrams(text string, n int) []string {
	var normalized strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			normalized.WriteRune(r)
		}
	}
	s := normalized.String()
	if len(s) < n {
		return nil
	}
	ngrams := make([]string, 0, len(s)-n+1)
	for i := 0; i <= len(s)-n; i++ {
		ngrams = append(ngrams, s[i:i+n])
	}
	return ngrams
}

func hashToIndex(s string) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(StaticDimensions))
}

// Dimensions returns the embedding dimensionality.
func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelName returns the provider-qualified model identifier.
func (e *StaticEmbedder) ModelName() string { return "static/fnv-256" }

// Available always reports true; nothing external is involved.
func (e *StaticEmbedder) Available(context.Context) bool { return true }

// Close is a no-op.
func (e *StaticEmbedder) Close() error { return nil }
