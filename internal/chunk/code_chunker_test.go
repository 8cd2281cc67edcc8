package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSample = `package demo

import "fmt"

// Greet prints a greeting.
func Greet(name string) {
	fmt.Println("hello", name)
}

type Server struct {
	addr string
}

func (s *Server) Addr() string {
	return s.addr
}
`

func TestCodeChunker_Go(t *testing.T) {
	// Given a Go file with a function, a type, and a method
	chunker := NewCodeChunker(Options{})
	defer chunker.Close()

	file := &FileInput{Path: "internal/demo/server.go", Content: []byte(goSample), Language: "go"}

	// When chunking it
	chunks, err := chunker.Chunk(context.Background(), file)

	// Then one chunk per declaration comes back
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	var names []string
	for _, c := range chunks {
		require.NotEmpty(t, c.Symbols)
		names = append(names, c.Symbols[0].Name)
		assert.Equal(t, ContentTypeCode, c.ContentType)
		assert.Equal(t, "go", c.Language)
		assert.Equal(t, "internal/demo/server.go", c.FilePath)
		assert.Contains(t, c.Context, "package demo")
		assert.Contains(t, c.Context, "// File: internal/demo/server.go")
	}
	assert.ElementsMatch(t, []string{"Greet", "Server", "Addr"}, names)
}

func TestCodeChunker_DocCommentIncluded(t *testing.T) {
	// Given a declaration with a doc comment
	chunker := NewCodeChunker(Options{})
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "a.go",
		Content:  []byte(goSample),
		Language: "go",
	})
	require.NoError(t, err)

	// Then the comment is part of the chunk body and symbol
	var greet *Chunk
	for _, c := range chunks {
		if c.Symbols[0].Name == "Greet" {
			greet = c
		}
	}
	require.NotNil(t, greet)
	assert.Contains(t, greet.RawContent, "// Greet prints a greeting.")
	assert.Equal(t, "Greet prints a greeting.", greet.Symbols[0].DocComment)
	assert.Equal(t, "func Greet(name string)", greet.Symbols[0].Signature)
}

func TestCodeChunker_SymbolKinds(t *testing.T) {
	tests := []struct {
		name     string
		language string
		source   string
		symbol   string
		kind     SymbolType
	}{
		{
			name:     "go method",
			language: "go",
			source:   "package p\n\ntype T struct{}\n\nfunc (t T) Run() {}\n",
			symbol:   "Run",
			kind:     SymbolTypeMethod,
		},
		{
			name:     "python class",
			language: "python",
			source:   "class Widget:\n    def render(self):\n        return None\n",
			symbol:   "Widget",
			kind:     SymbolTypeClass,
		},
		{
			name:     "typescript interface",
			language: "typescript",
			source:   "interface Shape {\n  area(): number;\n}\n",
			symbol:   "Shape",
			kind:     SymbolTypeInterface,
		},
		{
			name:     "javascript arrow function",
			language: "javascript",
			source:   "const add = (a, b) => a + b;\n",
			symbol:   "add",
			kind:     SymbolTypeFunction,
		},
	}

	chunker := NewCodeChunker(Options{})
	defer chunker.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := chunker.Chunk(context.Background(), &FileInput{
				Path:     "x",
				Content:  []byte(tt.source),
				Language: tt.language,
			})
			require.NoError(t, err)

			found := false
			for _, c := range chunks {
				for _, s := range c.Symbols {
					if s.Name == tt.symbol {
						found = true
						assert.Equal(t, tt.kind, s.Type)
					}
				}
			}
			assert.True(t, found, "symbol %q not found", tt.symbol)
		})
	}
}

func TestCodeChunker_UnsupportedLanguageFallsBack(t *testing.T) {
	// Given a file in a language without a grammar
	chunker := NewCodeChunker(Options{})
	defer chunker.Close()

	content := strings.Repeat("some line of text\n", 30)
	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "notes.txt",
		Content:  []byte(content),
		Language: "plaintext",
	})

	// Then line-window chunks come back instead of an error
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, ContentTypeText, chunks[0].ContentType)
	assert.Equal(t, 1, chunks[0].StartLine)
}

func TestCodeChunker_EmptyFile(t *testing.T) {
	chunker := NewCodeChunker(Options{})
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{Path: "empty.go", Language: "go"})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestCodeChunker_LargeDeclarationSplits(t *testing.T) {
	// Given a function far over the token budget
	var b strings.Builder
	b.WriteString("package big\n\nfunc Huge() {\n")
	for i := 0; i < 400; i++ {
		b.WriteString("\tprintln(\"this line pads the function body out considerably\")\n")
	}
	b.WriteString("}\n")

	chunker := NewCodeChunker(Options{MaxChunkTokens: 128, OverlapTokens: 16})
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "big.go",
		Content:  []byte(b.String()),
		Language: "go",
	})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// Then parts are named and the parent symbol rides on the first part
	assert.Equal(t, "Huge_part1", chunks[0].Symbols[0].Name)
	require.Len(t, chunks[0].Symbols, 2)
	assert.Equal(t, "Huge", chunks[0].Symbols[1].Name)
	assert.Len(t, chunks[1].Symbols, 1)

	// And consecutive windows overlap
	assert.Less(t, chunks[1].StartLine, chunks[0].EndLine)
}

func TestChunkID(t *testing.T) {
	// Same file and content: stable ID
	assert.Equal(t, ChunkID("a.go", "func X() {}"), ChunkID("a.go", "func X() {}"))

	// Different content or different file: different ID
	assert.NotEqual(t, ChunkID("a.go", "func X() {}"), ChunkID("a.go", "func Y() {}"))
	assert.NotEqual(t, ChunkID("a.go", "func X() {}"), ChunkID("b.go", "func X() {}"))

	assert.Len(t, ChunkID("a.go", "x"), 16)
}
