package store

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

const (
	vectorsFileName = "vectors.hnsw"
	docsFileName    = "documents.gob"
)

// OpenCollectionStore opens a disk-backed store rooted at dir: every
// subdirectory holding a vector index is loaded as a collection, and
// subsequent appends are flushed back so collections persist across
// sessions until an explicit admin delete.
func OpenCollectionStore(dir string, dimensions int) (*CollectionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create root dir: %w", err)
	}
	c := NewCollectionStore(dimensions)
	c.rootDir = dir

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("store: read root dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		entry, err := c.loadCollection(name)
		if err != nil {
			return nil, fmt.Errorf("store: load collection %q: %w", name, err)
		}
		c.collections[name] = entry
	}
	return c, nil
}

func (c *CollectionStore) collectionDir(name string) string {
	return filepath.Join(c.rootDir, name)
}

func (c *CollectionStore) loadCollection(name string) (*collectionEntry, error) {
	dir := c.collectionDir(name)
	vectorPath := filepath.Join(dir, vectorsFileName)

	vs, err := NewHNSWStore(DefaultVectorStoreConfig(c.dimensions))
	if err != nil {
		return nil, err
	}
	entry := &collectionEntry{vectors: vs, docs: map[string]CollectionDoc{}}

	if _, err := os.Stat(vectorPath); err != nil {
		// Collection directory exists but holds no index yet: it was
		// created and never appended to. That is a valid empty
		// collection.
		return entry, nil
	}
	if err := vs.Load(vectorPath); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, docsFileName))
	if err != nil {
		return nil, fmt.Errorf("open documents file: %w", err)
	}
	defer f.Close()

	var docs []CollectionDoc
	if err := gob.NewDecoder(f).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	for _, d := range docs {
		entry.docs[d.ID] = d
	}
	return entry, nil
}

// saveCollectionLocked flushes one collection's vectors and document
// sidecar. Callers must hold entry.mu.
func (c *CollectionStore) saveCollectionLocked(name string, entry *collectionEntry) error {
	dir := c.collectionDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create collection dir %q: %w", name, err)
	}
	if err := entry.vectors.Save(filepath.Join(dir, vectorsFileName)); err != nil {
		return fmt.Errorf("store: save vectors for %q: %w", name, err)
	}

	docs := make([]CollectionDoc, 0, len(entry.docs))
	for _, d := range entry.docs {
		docs = append(docs, d)
	}

	tmp := filepath.Join(dir, docsFileName+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("store: create documents file for %q: %w", name, err)
	}
	if err := gob.NewEncoder(f).Encode(docs); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("store: encode documents for %q: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: close documents file for %q: %w", name, err)
	}
	return os.Rename(tmp, filepath.Join(dir, docsFileName))
}
