// Package token normalizes text into keyword tokens for novelty and
// relevance scoring.
package token

import (
	"strings"
	"unicode"
)

// Tokenize lowercases the input, replaces non-word runes with spaces,
// splits on whitespace, and drops short tokens and stopwords.
// Multiplicities and order of first occurrence are preserved.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, text)
	fields := strings.Fields(mapped)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Set folds a token list into a membership set.
func Set(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// EstimateTokens is the ceil(len/4) context-budget heuristic. It is
// used only for prompt packing, never for admission.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// stopwords is a fixed English stopword set: articles, pronouns,
// auxiliaries, prepositions, conjunctions and common fillers.
var stopwords = func() map[string]struct{} {
	words := []string{
		"the", "be", "to", "of", "and", "in", "that", "have", "it",
		"for", "not", "on", "with", "he", "as", "you", "do", "at",
		"this", "but", "his", "by", "from", "they", "we", "say", "her",
		"she", "or", "an", "will", "my", "one", "all", "would", "there",
		"their", "what", "so", "up", "out", "if", "about", "who", "get",
		"which", "go", "me", "when", "make", "can", "like", "time", "no",
		"just", "him", "know", "take", "people", "into", "year", "your",
		"good", "some", "could", "them", "see", "other", "than", "then",
		"now", "look", "only", "come", "its", "over", "think", "also",
		"back", "after", "use", "two", "how", "our", "work", "first",
		"well", "way", "even", "new", "want", "because", "any", "these",
		"give", "day", "most", "us", "is", "was", "are", "been", "has",
		"had", "were", "said", "did", "having", "may", "am", "being",
		"shall", "should", "must", "might", "does", "done", "each",
		"very", "too", "such", "both", "more", "much", "own", "same",
		"under", "while", "where", "why", "again", "once", "during",
		"before", "between", "against", "through",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()
