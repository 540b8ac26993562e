package search

import (
	"strings"
)

// Search modes.
const (
	// ModeFuzzy matches prefix-expanded tokens, any of them.
	ModeFuzzy = "fuzzy"
	// ModeExact matches the query as a phrase.
	ModeExact = "exact"
)

// buildMatch renders the user query as FTS5 MATCH syntax.
//
// Exact mode quotes the whole query as a phrase, doubling embedded
// quotes. Fuzzy mode strips FTS5 operator characters, then ORs the
// remaining tokens as prefix terms so partial words still match.
func buildMatch(query, mode string) string {
	if mode == ModeExact {
		return `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
	}

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '"', '*', '(', ')':
			return -1
		}
		return r
	}, query)

	tokens := strings.Fields(cleaned)
	if len(tokens) == 0 {
		return `""`
	}

	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = `"` + tok + `"*`
	}
	return strings.Join(terms, " OR ")
}
