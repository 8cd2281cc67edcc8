package answer

import (
	"fmt"
	"strings"

	"github.com/codeqa/codeqa/internal/search"
)

// DefaultPromptBudget is the approximate token budget for the
// assembled prompt when the config does not set one.
const DefaultPromptBudget = 8000

// systemPrompt instructs the model to stay inside the retrieved
// context and cite where an answer came from.
const systemPrompt = `You are a code assistant answering questions about a codebase.
Answer using only the provided context. Cite the file paths and line
ranges you drew on. If the context does not contain the answer, say so
instead of guessing.`

// ContextChunk is one retrieved chunk as it appears in the prompt.
type ContextChunk struct {
	Path      string
	StartLine int
	EndLine   int
	Text      string
	Score     float64
}

// estimateTokens approximates the token count of a string. Four
// characters per token is close enough for budget enforcement across
// the supported providers.
func estimateTokens(s string) int {
	return len(s)/4 + 1
}

// formatChunk renders one context section with its source header.
func formatChunk(c ContextChunk) string {
	return fmt.Sprintf("### %s (lines %d-%d) ###\n%s\n", c.Path, c.StartLine, c.EndLine, c.Text)
}

// buildPrompt assembles the completion prompt from the query and the
// retrieved chunks, which must arrive in decreasing similarity order.
// Chunks are added until the token budget is exhausted, so the
// lowest-similarity chunks are the ones dropped. The query and the
// system prompt are never dropped; if even the best chunk does not
// fit, its text is truncated rather than losing all context.
func buildPrompt(query string, results []*search.Result, budget int) (string, []ContextChunk) {
	if budget <= 0 {
		budget = DefaultPromptBudget
	}

	var b strings.Builder
	b.WriteString("Context:\n\n")
	tail := "Question: " + query + "\n"
	used := estimateTokens(systemPrompt) + estimateTokens(b.String()) + estimateTokens(tail)

	var included []ContextChunk
	for _, r := range results {
		c := ContextChunk{
			Path:      r.Chunk.FilePath,
			StartLine: r.Chunk.StartLine,
			EndLine:   r.Chunk.EndLine,
			Text:      r.Chunk.Content,
			Score:     r.Score,
		}
		section := formatChunk(c)
		cost := estimateTokens(section) + 1
		if used+cost > budget {
			if len(included) == 0 {
				header := estimateTokens(formatChunk(ContextChunk{Path: c.Path}))
				c.Text = truncateToTokens(c.Text, budget-used-header-1)
				b.WriteString(formatChunk(c))
				b.WriteString("\n")
				included = append(included, c)
			}
			// Kept chunks form a prefix of the similarity ranking.
			break
		}
		b.WriteString(section)
		b.WriteString("\n")
		used += cost
		included = append(included, c)
	}

	b.WriteString(tail)
	return b.String(), included
}

// truncateToTokens cuts s to roughly the given token allowance,
// breaking on a line boundary when one is close.
func truncateToTokens(s string, tokens int) string {
	if tokens < 1 {
		tokens = 1
	}
	limit := tokens * 4
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if i := strings.LastIndexByte(cut, '\n'); i > limit/2 {
		cut = cut[:i]
	}
	return cut
}
