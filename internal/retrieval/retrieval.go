// Package retrieval implements the hybrid retriever: it runs vector
// search and BM25 search independently, then fuses the two ranked
// lists with Reciprocal Rank Fusion plus a file-name boost already
// folded into the BM25 scores by internal/bm25.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/Aman-CERP/repoinsight/internal/bm25"
	"github.com/Aman-CERP/repoinsight/internal/embed"
	"github.com/Aman-CERP/repoinsight/internal/store"
)

// DefaultRRFK is k_rrf in the RRF formula.
const DefaultRRFK = 60

// RetrievedChunk is one fused hit returned to the query service.
type RetrievedChunk struct {
	ID        string
	Content   string
	FilePath  string
	StartLine int
	Score     float64
	Metadata  map[string]string
}

// Params configures one retrieval call (the VECTOR_SEARCH_TOP_K,
// BM25_SEARCH_TOP_K, and FINAL_CONTEXT_TOP_K knobs).
type Params struct {
	VectorTopK int
	BM25TopK   int
	FinalTopK  int
	RRFK       int
}

// DefaultParams returns the stock top-k settings.
func DefaultParams() Params {
	return Params{VectorTopK: 20, BM25TopK: 20, FinalTopK: 10, RRFK: DefaultRRFK}
}

// Retriever performs hybrid retrieval against one repository's
// collection: dense vector search via store.Store, lexical BM25 via
// the cached per-repository index, fused by RRF. The query embedder
// is supplied per call, since the query vector must live in the same
// space as the vectors the repository was ingested with.
type Retriever struct {
	vectorStore store.Store
	bm25Cache   *bm25.Cache
}

func NewRetriever(vectorStore store.Store, bm25Cache *bm25.Cache) *Retriever {
	return &Retriever{vectorStore: vectorStore, bm25Cache: bm25Cache}
}

// EnsureBM25Index returns the cached BM25 index for repositoryIdentifier,
// building it from the vector store's current document dump if it is
// not already cached.
func (r *Retriever) EnsureBM25Index(ctx context.Context, repositoryIdentifier string) (*bm25.Index, error) {
	if idx, ok := r.bm25Cache.Get(repositoryIdentifier); ok {
		return idx, nil
	}

	docs, err := r.vectorStore.GetAllDocuments(ctx, repositoryIdentifier)
	if err != nil {
		return nil, fmt.Errorf("retrieval: dump documents for bm25 build: %w", err)
	}

	bm25Docs := make([]bm25.Doc, len(docs))
	for i, d := range docs {
		bm25Docs[i] = bm25.Doc{ID: d.ID, Content: d.Content, FilePath: d.Metadata["file_path"]}
	}
	idx := bm25.NewIndex(bm25Docs)
	r.bm25Cache.Put(repositoryIdentifier, idx)
	return idx, nil
}

// Search runs vector search + BM25 search independently and fuses
// them by RRF. embedder must be the same provider the repository was
// ingested with.
func (r *Retriever) Search(ctx context.Context, repositoryIdentifier, query string, embedder embed.DocumentEmbedder, p Params) ([]RetrievedChunk, error) {
	if p.RRFK <= 0 {
		p.RRFK = DefaultRRFK
	}
	if p.VectorTopK <= 0 {
		p.VectorTopK = DefaultParams().VectorTopK
	}
	if p.BM25TopK <= 0 {
		p.BM25TopK = DefaultParams().BM25TopK
	}
	if p.FinalTopK <= 0 {
		p.FinalTopK = DefaultParams().FinalTopK
	}

	queryVec, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	vectorHits, err := r.vectorStore.Query(ctx, repositoryIdentifier, queryVec, p.VectorTopK, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieval: vector search: %w", err)
	}

	bm25Index, err := r.EnsureBM25Index(ctx, repositoryIdentifier)
	if err != nil {
		return nil, err
	}
	bm25Hits := bm25Index.Search(query, p.BM25TopK)

	docs := map[string]docInfo{}
	vectorRank := map[string]int{}
	for i, h := range vectorHits {
		vectorRank[h.Doc.ID] = i + 1 // ranks are 1-based in the RRF sum
		docs[h.Doc.ID] = docInfo{
			Content:  h.Doc.Content,
			Metadata: h.Doc.Metadata,
			// Vector distances convert to scores via 1 / (1 + distance).
			VectorScore: 1.0 / (1.0 + float64(h.Distance)),
		}
	}
	bm25Rank := map[string]int{}
	for i, h := range bm25Hits {
		bm25Rank[h.ID] = i + 1
		if d, ok := docs[h.ID]; ok {
			d.BM25Score = h.Score
			docs[h.ID] = d
		} else {
			docs[h.ID] = docInfo{BM25Score: h.Score}
		}
	}

	fused := fuse(docs, vectorRank, bm25Rank, p.RRFK)
	if len(fused) > p.FinalTopK {
		fused = fused[:p.FinalTopK]
	}

	out := make([]RetrievedChunk, len(fused))
	for i, f := range fused {
		d := docs[f.id]
		meta := d.Metadata
		out[i] = RetrievedChunk{
			ID:        f.id,
			Content:   d.Content,
			FilePath:  meta["file_path"],
			StartLine: atoiSafe(meta["start_line"]),
			Score:     f.rrf,
			Metadata:  meta,
		}
	}
	return out, nil
}

type docInfo struct {
	Content     string
	Metadata    map[string]string
	VectorScore float64
	BM25Score   float64
}

type fusedDoc struct {
	id         string
	rrf        float64
	vectorRank int // 0 means "absent from vector list"
	bm25Rank   int
}

// fuse implements RRF: rrf(d) = Σ_lists 1/(k+rank) —
// summed only over the lists d actually appears in, no contribution
// for a missing list, no post-fusion normalization. Sort order:
// descending rrf, then ascending vector rank, then ascending BM25
// rank, then ascending id.
func fuse(docs map[string]docInfo, vectorRank, bm25Rank map[string]int, k int) []fusedDoc {
	out := make([]fusedDoc, 0, len(docs))
	for id := range docs {
		var rrf float64
		vr, vok := vectorRank[id]
		br, bok := bm25Rank[id]
		if vok {
			rrf += 1.0 / float64(k+vr)
		}
		if bok {
			rrf += 1.0 / float64(k+br)
		}
		fd := fusedDoc{id: id, rrf: rrf}
		if vok {
			fd.vectorRank = vr
		} else {
			fd.vectorRank = int(^uint(0) >> 1) // sentinel: "never" sorts last
		}
		if bok {
			fd.bm25Rank = br
		} else {
			fd.bm25Rank = int(^uint(0) >> 1)
		}
		out = append(out, fd)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.rrf != b.rrf {
			return a.rrf > b.rrf
		}
		if a.vectorRank != b.vectorRank {
			return a.vectorRank < b.vectorRank
		}
		if a.bm25Rank != b.bm25Rank {
			return a.bm25Rank < b.bm25Rank
		}
		return a.id < b.id
	})
	return out
}

func atoiSafe(s string) int {
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		return -n
	}
	return n
}
