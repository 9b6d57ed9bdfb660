package providers

import (
	"context"
	"math"
	"testing"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder(64)
	a, err := e.EmbedQuery(context.Background(), "hello world")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.EmbedQuery(context.Background(), "hello world")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestStaticEmbedder_Normalized(t *testing.T) {
	e := NewStaticEmbedder(64)
	v, err := e.EmbedQuery(context.Background(), "some repository content")
	if err != nil {
		t.Fatal(err)
	}
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1.0) > 1e-4 {
		t.Errorf("expected unit-norm vector, got norm %f", norm)
	}
}

func TestStaticEmbedder_EmptyText(t *testing.T) {
	e := NewStaticEmbedder(32)
	v, err := e.EmbedQuery(context.Background(), "   ")
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatal("expected all-zero vector for empty input")
		}
	}
}

func TestRegistry_DefaultProviders(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Embedder("static"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ChatterFor("static"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Embedder("missing"); err == nil {
		t.Fatal("expected error for unregistered provider")
	}
}
