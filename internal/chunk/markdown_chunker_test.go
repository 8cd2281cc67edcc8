package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const markdownSample = `---
title: Guide
---

# Guide

Intro paragraph for the guide.

## Install

Run the installer.

## Usage

### Flags

Describes the flags.
`

func TestMarkdownChunker_Sections(t *testing.T) {
	// Given a document with frontmatter and nested headers
	chunker := NewMarkdownChunker(Options{})

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:    "docs/guide.md",
		Content: []byte(markdownSample),
	})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// Then the frontmatter is its own chunk
	assert.Equal(t, "frontmatter", chunks[0].Metadata["type"])
	assert.Contains(t, chunks[0].Content, "title: Guide")

	// And section chunks carry their full header path
	paths := make(map[string]bool)
	for _, c := range chunks[1:] {
		paths[c.Metadata["header_path"]] = true
		assert.Equal(t, ContentTypeMarkdown, c.ContentType)
		assert.Equal(t, "markdown", c.Language)
	}
	assert.True(t, paths["Guide"])
	assert.True(t, paths["Guide > Install"])
	assert.True(t, paths["Guide > Usage > Flags"])
}

func TestMarkdownChunker_BareHeaderSkipped(t *testing.T) {
	// Given a header with no body before the next header
	chunker := NewMarkdownChunker(Options{})

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:    "a.md",
		Content: []byte("# Empty\n\n# Full\n\nReal content here.\n"),
	})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Full", chunks[0].Metadata["section_title"])
}

func TestMarkdownChunker_HeaderInsideCodeBlock(t *testing.T) {
	// Given a # line inside a fenced code block
	src := "# Real\n\nText.\n\n```sh\n# not a header\necho hi\n```\n\nMore text.\n"
	chunker := NewMarkdownChunker(Options{})

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:    "a.md",
		Content: []byte(src),
	})
	require.NoError(t, err)

	// Then the comment does not start a new section
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "# not a header")
}

func TestMarkdownChunker_OversizedSectionSplits(t *testing.T) {
	// Given a section well over the token budget
	var b strings.Builder
	b.WriteString("# Big Section\n\n")
	for i := 0; i < 40; i++ {
		b.WriteString("A paragraph with enough words in it to add up across repeats.\n\n")
	}

	chunker := NewMarkdownChunker(Options{MaxChunkTokens: 128})
	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:    "big.md",
		Content: []byte(b.String()),
	})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// Then every piece keeps the header path, and continuations carry a
	// section marker for embedding context
	for _, c := range chunks {
		assert.Equal(t, "Big Section", c.Metadata["header_path"])
	}
	assert.Contains(t, chunks[1].Content, "<!-- Section: Big Section -->")
}

func TestMarkdownChunker_CodeBlockKeptWhole(t *testing.T) {
	paragraphs := splitParagraphs("Before.\n\n```go\nfunc a() {}\n\nfunc b() {}\n```\n\nAfter.")
	require.Len(t, paragraphs, 3)
	assert.Contains(t, paragraphs[1], "func a() {}")
	assert.Contains(t, paragraphs[1], "func b() {}")
}

func TestMarkdownChunker_Empty(t *testing.T) {
	chunker := NewMarkdownChunker(Options{})
	chunks, err := chunker.Chunk(context.Background(), &FileInput{Path: "e.md", Content: []byte("  \n")})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
