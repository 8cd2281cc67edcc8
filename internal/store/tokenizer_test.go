package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "camelCase identifier",
			input: "getUserById",
			want:  []string{"get", "user", "by", "id"},
		},
		{
			name:  "snake_case identifier",
			input: "parse_http_request",
			want:  []string{"parse", "http", "request"},
		},
		{
			name:  "acronym run stays together",
			input: "parseHTTPRequest",
			want:  []string{"parse", "http", "request"},
		},
		{
			name:  "PascalCase",
			input: "VectorStore",
			want:  []string{"vector", "store"},
		},
		{
			name:  "mixed code line",
			input: "func NewHNSWStore(cfg VectorStoreConfig)",
			want:  []string{"func", "new", "hnsw", "store", "cfg", "vector", "store", "config"},
		},
		{
			name:  "single characters dropped",
			input: "a b x1y",
			want:  []string{"x1y"},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.input))
		})
	}
}

func TestStopSet_Filter(t *testing.T) {
	// Given: a stop set built from the default word list
	stop := NewStopSet(DefaultStopWords)

	// When: filtering tokens that mix keywords and identifiers
	got := stop.Filter([]string{"func", "normalize", "return", "vector"})

	// Then: only the identifiers survive
	assert.Equal(t, []string{"normalize", "vector"}, got)
}

func TestBM25Config_StopSetDefaults(t *testing.T) {
	// Given: a zero-value config
	var cfg BM25Config

	// Then: the default stop words apply
	set := cfg.stopSet()
	_, hasFunc := set["func"]
	assert.True(t, hasFunc)

	// And: an explicit empty list disables filtering entirely
	cfg.StopWords = []string{}
	assert.Empty(t, cfg.stopSet())
}
