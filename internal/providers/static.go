// Package providers holds the thin, optional embedder/chat adapters
// the ingestion and query paths can run against without a live cloud
// SDK: a deterministic hash-based embedder for tests and offline runs,
// and a generic HTTP-JSON chat adapter. Per-provider SDK glue (OpenAI,
// Anthropic, Cohere, …) belongs to the deployment, not this module; this
// package exists only to give the embedder/chatter capability
// interfaces a concrete, runnable implementation.
package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"

	"github.com/Aman-CERP/repoinsight/internal/embed"
)

// StaticEmbedder is a deterministic, hash-based DocumentEmbedder.
// Grounded on internal/embed/static768.go's hash-then-normalize
// approach, reimplemented here to avoid depending on that package's
// unexported tokenizer.
type StaticEmbedder struct {
	dims int
}

// NewStaticEmbedder builds a StaticEmbedder producing vectors of the
// given dimensionality.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = 768
	}
	return &StaticEmbedder{dims: dims}
}

var _ embed.DocumentEmbedder = (*StaticEmbedder)(nil)

func (s *StaticEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.vector(t)
	}
	return out, nil
}

func (s *StaticEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.vector(text), nil
}

// vector hashes each lowercased, whitespace-separated token of text
// into four signed positions of a fixed-size vector, then
// L2-normalizes it, so identical text always yields the identical
// embedding (useful for tests and for
// exact BM25/hybrid-fusion fixtures).
func (s *StaticEmbedder) vector(text string) []float32 {
	v := make([]float32, s.dims)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return v
	}

	tokens := strings.Fields(strings.ToLower(trimmed))
	for _, tok := range tokens {
		sum := sha256.Sum256([]byte(tok))
		for w := 0; w < 4; w++ {
			bits := binary.BigEndian.Uint64(sum[w*8 : w*8+8])
			idx := int(bits % uint64(s.dims))
			sign := float32(1)
			if bits&1 == 1 {
				sign = -1
			}
			v[idx] += sign * float32(1.0/float64(len(tokens)))
		}
	}
	return normalize(v)
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
