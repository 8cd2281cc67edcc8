package store

import (
	"regexp"
	"strings"
	"unicode"
)

// minTokenLength drops one-character fragments left over after splitting.
const minTokenLength = 2

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// Tokenize splits text into lowercase search terms with code-aware rules:
// identifiers are broken at camelCase, PascalCase, and snake_case
// boundaries, acronym runs stay together ("parseHTTPRequest" yields
// "parse", "http", "request").
func Tokenize(text string) []string {
	var tokens []string
	for _, word := range wordPattern.FindAllString(text, -1) {
		for _, part := range splitIdentifier(word) {
			part = strings.ToLower(part)
			if len(part) >= minTokenLength {
				tokens = append(tokens, part)
			}
		}
	}
	return tokens
}

func splitIdentifier(word string) []string {
	if !strings.Contains(word, "_") {
		return splitCamel(word)
	}
	var parts []string
	for _, seg := range strings.Split(word, "_") {
		if seg != "" {
			parts = append(parts, splitCamel(seg)...)
		}
	}
	return parts
}

// splitCamel breaks at a lower-to-upper transition and at the end of an
// uppercase run that is followed by a lowercase letter.
func splitCamel(s string) []string {
	runes := []rune(s)
	var parts []string
	var current strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevLower || nextLower) && current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// StopSet is a lowercase stop-word lookup.
type StopSet map[string]struct{}

// NewStopSet builds a StopSet from a word list.
func NewStopSet(words []string) StopSet {
	s := make(StopSet, len(words))
	for _, w := range words {
		s[strings.ToLower(w)] = struct{}{}
	}
	return s
}

// Filter returns tokens with stop words removed.
func (s StopSet) Filter(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := s[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}
