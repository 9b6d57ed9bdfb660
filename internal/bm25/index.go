package bm25

import (
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Doc is one document indexed into BM25: its id, the chunk content,
// and its file path (tokenized together with the content, and also
// used for the file-name boost).
type Doc struct {
	ID       string
	Content  string
	FilePath string
}

// Result is one ranked BM25 hit.
type Result struct {
	ID    string
	Score float64
}

const (
	k1 = 1.2
	b  = 0.75

	// File-name boost bonuses, added to the raw BM25 score before
	// ranking: exact basename match, substring-in-basename
	// match, substring-anywhere-in-path match.
	boostExactBasename  = 10.0
	boostSubstrBasename = 5.0
	boostSubstrPath     = 2.0
)

// Index is a BM25-Okapi index over a fixed corpus, tokenized with
// Tokenize at both build and query time.
type Index struct {
	mu        sync.RWMutex
	docs      []Doc
	docTokens [][]string
	docFreq   map[string]int // token -> number of docs containing it
	avgDocLen float64
}

// NewIndex builds a BM25 index over docs.
func NewIndex(docs []Doc) *Index {
	idx := &Index{
		docs:    docs,
		docFreq: map[string]int{},
	}
	idx.docTokens = make([][]string, len(docs))

	totalLen := 0
	for i, d := range docs {
		// The tokenizer is fed the chunk text concatenated
		// with its file_path, so path components and file names are
		// searchable by the same tokens the file-name boost matches.
		tokens := Tokenize(d.Content + " " + d.FilePath)
		idx.docTokens[i] = tokens
		totalLen += len(tokens)

		seen := map[string]bool{}
		for _, t := range tokens {
			if !seen[t] {
				idx.docFreq[t]++
				seen[t] = true
			}
		}
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(docs))
	}
	return idx
}

// Search scores every document against query and returns the top k by
// descending score, applying the file-name boost before ranking so a
// query naming a file pulls that file's chunks up the list.
func (idx *Index) Search(query string, k int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 || len(idx.docs) == 0 {
		return nil
	}

	filePatterns := fileNamePatterns(queryTokens)

	results := make([]Result, 0, len(idx.docs))
	for i, d := range idx.docs {
		score := idx.score(queryTokens, idx.docTokens[i])
		boost := fileNameBoost(filePatterns, d.FilePath)
		if score <= 0 && boost <= 0 {
			continue
		}
		results = append(results, Result{ID: d.ID, Score: score + boost})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

func (idx *Index) score(queryTokens, docTokens []string) float64 {
	if len(docTokens) == 0 {
		return 0
	}
	termFreq := map[string]int{}
	for _, t := range docTokens {
		termFreq[t]++
	}

	docLen := float64(len(docTokens))
	n := float64(len(idx.docs))

	var score float64
	seenQuery := map[string]bool{}
	for _, qt := range queryTokens {
		if seenQuery[qt] {
			continue
		}
		seenQuery[qt] = true

		tf := float64(termFreq[qt])
		if tf == 0 {
			continue
		}
		df := float64(idx.docFreq[qt])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		numerator := tf * (k1 + 1)
		denominator := tf + k1*(1-b+b*(docLen/idx.avgDocLen))
		score += idf * (numerator / denominator)
	}
	return score
}

// fileNamePatterns extracts every query token shaped like "name.ext"
// and pairs it with its base name (without extension) — both are
// candidate file-name patterns for the boost.
func fileNamePatterns(queryTokens []string) []string {
	seen := map[string]bool{}
	var patterns []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		patterns = append(patterns, p)
	}
	for _, qt := range queryTokens {
		if !fileNameTokenRegex.MatchString(qt) {
			continue
		}
		add(qt)
		add(strings.TrimSuffix(qt, filepath.Ext(qt)))
	}
	return patterns
}

// fileNameBoost computes the additive bonus: +10 per pattern the
// document's basename matches exactly (with or without extension),
// +5 per pattern appearing as a substring of the basename, and
// independently +2 per pattern appearing anywhere in the path. The
// bonuses accumulate across patterns, so a basename match stacks
// with its own path match.
func fileNameBoost(patterns []string, filePath string) float64 {
	if filePath == "" || len(patterns) == 0 {
		return 0
	}
	base := strings.ToLower(filepath.Base(filePath))
	baseNoExt := strings.TrimSuffix(base, filepath.Ext(base))
	path := strings.ToLower(filePath)

	var bonus float64
	for _, p := range patterns {
		if base == p || baseNoExt == p {
			bonus += boostExactBasename
		} else if strings.Contains(base, p) {
			bonus += boostSubstrBasename
		}
	}
	for _, p := range patterns {
		if strings.Contains(path, p) {
			bonus += boostSubstrPath
		}
	}
	return bonus
}
