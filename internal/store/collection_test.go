package store

import (
	"context"
	"testing"
)

func unitVec(dims, hot int) []float32 {
	v := make([]float32, dims)
	v[hot%dims] = 1
	return v
}

func TestCollectionStore_AddAndQuery(t *testing.T) {
	ctx := context.Background()
	s := NewCollectionStore(8)
	if err := s.CreateCollection(ctx, "repo1"); err != nil {
		t.Fatal(err)
	}

	docs := []CollectionDoc{
		{Content: "alpha", Metadata: map[string]string{"file_path": "a.py"}},
		{Content: "beta", Metadata: map[string]string{"file_path": "b.py"}},
	}
	embeds := [][]float32{unitVec(8, 0), unitVec(8, 1)}

	ids, err := s.AddDocuments(ctx, "repo1", docs, embeds)
	if err != nil {
		t.Fatal(err)
	}
	if ids[0] != "chunk_repo1_0" || ids[1] != "chunk_repo1_1" {
		t.Fatalf("unexpected ids: %v", ids)
	}

	count, err := s.Count(ctx, "repo1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}

	results, err := s.Query(ctx, "repo1", unitVec(8, 0), 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
}

func TestCollectionStore_IdDisjointnessAcrossIngests(t *testing.T) {
	ctx := context.Background()
	s := NewCollectionStore(4)
	s.CreateCollection(ctx, "repo1")

	firstIDs, err := s.AddDocuments(ctx, "repo1",
		[]CollectionDoc{{Content: "a"}, {Content: "b"}},
		[][]float32{unitVec(4, 0), unitVec(4, 1)})
	if err != nil {
		t.Fatal(err)
	}

	secondIDs, err := s.AddDocuments(ctx, "repo1",
		[]CollectionDoc{{Content: "c"}},
		[][]float32{unitVec(4, 2)})
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	for _, id := range firstIDs {
		seen[id] = true
	}
	for _, id := range secondIDs {
		if seen[id] {
			t.Fatalf("id %q reused across ingests", id)
		}
	}
}

func TestCollectionStore_QueryMissingCollection(t *testing.T) {
	s := NewCollectionStore(4)
	_, err := s.Query(context.Background(), "nope", unitVec(4, 0), 5, nil)
	if err == nil {
		t.Fatal("expected error for missing collection")
	}
}

func TestSanitizeMetadata(t *testing.T) {
	in := map[string]any{
		"a": nil,
		"b": "text",
		"c": 42,
		"d": true,
	}
	out := SanitizeMetadata(in)
	if out["a"] != "" || out["b"] != "text" || out["c"] != "42" || out["d"] != "true" {
		t.Fatalf("unexpected sanitized metadata: %+v", out)
	}
}
