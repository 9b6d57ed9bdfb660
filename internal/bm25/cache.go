package bm25

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache holds one built Index per repository identifier, so repeat
// queries against an already-ingested repository skip rebuilding the
// index from scratch. Entries are replaced wholesale, never mutated
// in place, and may be evicted at any time (pure cache).
type Cache struct {
	inner *lru.Cache[string, *Index]
}

// NewCache builds a Cache with room for size repositories' indexes.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = 32
	}
	inner, err := lru.New[string, *Index](size)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

func (c *Cache) Get(repositoryIdentifier string) (*Index, bool) {
	return c.inner.Get(repositoryIdentifier)
}

func (c *Cache) Put(repositoryIdentifier string, idx *Index) {
	c.inner.Add(repositoryIdentifier, idx)
}

func (c *Cache) Invalidate(repositoryIdentifier string) {
	c.inner.Remove(repositoryIdentifier)
}
