package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
)

// CollectionDoc is one stored chunk: its content plus sanitized
// metadata, keyed by the id the store assigned it.
type CollectionDoc struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// QueryResult is one ranked hit from Store.Query.
type QueryResult struct {
	Doc      CollectionDoc
	Distance float32
	Score    float32
}

// Store is the vector store adapter's interface: every operation is
// keyed by collection name, and storage is treated as opaque —
// HNSWStore is the only code that knows about the underlying ANN
// graph.
type Store interface {
	CreateCollection(ctx context.Context, name string) error
	DeleteCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	AddDocuments(ctx context.Context, name string, docs []CollectionDoc, embeddings [][]float32) ([]string, error)
	Query(ctx context.Context, name string, queryVector []float32, k int, where map[string]string) ([]QueryResult, error)
	GetAllDocuments(ctx context.Context, name string) ([]CollectionDoc, error)
	Count(ctx context.Context, name string) (int, error)
	ListCollections(ctx context.Context) ([]string, error)
	HealthCheck(ctx context.Context) error
}

type collectionEntry struct {
	vectors *HNSWStore
	mu      sync.RWMutex
	docs    map[string]CollectionDoc
}

// CollectionStore is a Store backed by one HNSWStore per collection
// plus an in-memory document sidecar (HNSWStore itself only carries
// ids and vectors). With a root directory set (see
// OpenCollectionStore) every append is flushed to disk so collections
// survive process restarts.
type CollectionStore struct {
	mu          sync.RWMutex
	dimensions  int
	rootDir     string
	collections map[string]*collectionEntry
}

// NewCollectionStore builds a memory-only store.
func NewCollectionStore(dimensions int) *CollectionStore {
	return &CollectionStore{
		dimensions:  dimensions,
		collections: map[string]*collectionEntry{},
	}
}

func (c *CollectionStore) CreateCollection(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.collections[name]; ok {
		return nil
	}
	vs, err := NewHNSWStore(DefaultVectorStoreConfig(c.dimensions))
	if err != nil {
		return fmt.Errorf("store: create collection %q: %w", name, err)
	}
	c.collections[name] = &collectionEntry{vectors: vs, docs: map[string]CollectionDoc{}}
	if c.rootDir != "" {
		if err := os.MkdirAll(c.collectionDir(name), 0o755); err != nil {
			return fmt.Errorf("store: create collection dir %q: %w", name, err)
		}
	}
	return nil
}

func (c *CollectionStore) DeleteCollection(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.collections[name]
	if !ok {
		return nil
	}
	delete(c.collections, name)
	if c.rootDir != "" {
		if err := os.RemoveAll(c.collectionDir(name)); err != nil {
			return fmt.Errorf("store: remove collection dir %q: %w", name, err)
		}
	}
	return entry.vectors.Close()
}

func (c *CollectionStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.collections[name]
	return ok, nil
}

func (c *CollectionStore) get(name string) (*collectionEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.collections[name]
	if !ok {
		return nil, fmt.Errorf("store: collection %q does not exist", name)
	}
	return entry, nil
}

// AddDocuments allocates ids starting at the collection's current
// count, so repeated ingests never reuse ids; it stores vectors in the HNSW
// graph, and keeps content/metadata in the sidecar map. Returns the
// assigned ids in input order.
func (c *CollectionStore) AddDocuments(ctx context.Context, name string, docs []CollectionDoc, embeddings [][]float32) ([]string, error) {
	if len(docs) != len(embeddings) {
		return nil, fmt.Errorf("store: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	entry, err := c.get(name)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	startOrdinal := entry.vectors.Count()
	ids := NextIDs(name, startOrdinal, len(docs))

	if err := entry.vectors.Add(ctx, ids, embeddings); err != nil {
		return nil, fmt.Errorf("store: add vectors to %q: %w", name, err)
	}
	for i, id := range ids {
		d := docs[i]
		d.ID = id
		entry.docs[id] = d
	}
	if c.rootDir != "" {
		if err := c.saveCollectionLocked(name, entry); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (c *CollectionStore) Query(ctx context.Context, name string, queryVector []float32, k int, where map[string]string) ([]QueryResult, error) {
	entry, err := c.get(name)
	if err != nil {
		return nil, err
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()

	// Over-fetch when a metadata filter is present since HNSW has no
	// native predicate pushdown; filter after the ANN search.
	fetchK := k
	if len(where) > 0 {
		fetchK = k * 4
		if fetchK < 50 {
			fetchK = 50
		}
	}

	hits, err := entry.vectors.Search(ctx, queryVector, fetchK)
	if err != nil {
		return nil, fmt.Errorf("store: query %q: %w", name, err)
	}

	results := make([]QueryResult, 0, k)
	for _, h := range hits {
		doc, ok := entry.docs[h.ID]
		if !ok {
			continue
		}
		if !matchesWhere(doc.Metadata, where) {
			continue
		}
		results = append(results, QueryResult{Doc: doc, Distance: h.Distance, Score: h.Score})
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

func matchesWhere(metadata, where map[string]string) bool {
	for k, v := range where {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func (c *CollectionStore) GetAllDocuments(ctx context.Context, name string) ([]CollectionDoc, error) {
	entry, err := c.get(name)
	if err != nil {
		return nil, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()

	docs := make([]CollectionDoc, 0, len(entry.docs))
	for _, d := range entry.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (c *CollectionStore) Count(ctx context.Context, name string) (int, error) {
	entry, err := c.get(name)
	if err != nil {
		return 0, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.vectors.Count(), nil
}

func (c *CollectionStore) ListCollections(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.collections))
	for name := range c.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *CollectionStore) HealthCheck(ctx context.Context) error {
	return nil
}

var _ Store = (*CollectionStore)(nil)
