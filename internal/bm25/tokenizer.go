// Package bm25 implements the lexical half of hybrid retrieval: a
// tokenizer shared between index time and query time, a BM25-Okapi
// index over the tokenized corpus, and a file-name boost applied on
// top of the raw BM25 score.
package bm25

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	fileNameTokenRegex = regexp.MustCompile(`[A-Za-z0-9_-]+\.[A-Za-z0-9]+`)
	generalTokenRegex  = regexp.MustCompile(`[A-Za-z0-9_-]+|[\x{4e00}-\x{9fff}]+`)
)

// Tokenize runs the shared pipeline: lowercase, extract file-name
// tokens and general/CJK tokens, emit each file-name token's base
// name (without extension), deduplicate, and drop single-character
// tokens. The same function runs at index time and query time.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)

	seen := make(map[string]bool)
	var out []string
	add := func(tok string) {
		if utf8.RuneCountInString(tok) <= 1 {
			return
		}
		if seen[tok] {
			return
		}
		seen[tok] = true
		out = append(out, tok)
	}

	for _, tok := range fileNameTokenRegex.FindAllString(lower, -1) {
		add(tok)
		base := strings.TrimSuffix(tok, filepath.Ext(tok))
		add(base)
	}
	for _, tok := range generalTokenRegex.FindAllString(lower, -1) {
		add(tok)
	}

	return out
}
