package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Aman-CERP/repoinsight/internal/apperr"
)

type fakeEmbedder struct {
	calls   int
	failN   int
	failErr error
	dim     int
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failN {
		return nil, f.failErr
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, f.dim), nil
}

func TestBatchProcessor_SucceedsAfterTransientRetry(t *testing.T) {
	e := &fakeEmbedder{failN: 1, failErr: errors.New("connection reset by peer"), dim: 4}
	bp := NewBatchProcessor(e, BatchConfig{BatchSize: 10, MaxRetries: 3, RetryDelay: time.Millisecond})

	vecs, err := bp.EmbedAll(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
}

func TestBatchProcessor_AuthErrorFailsImmediately(t *testing.T) {
	e := &fakeEmbedder{failN: 100, failErr: errors.New("401 unauthorized"), dim: 4}
	bp := NewBatchProcessor(e, BatchConfig{BatchSize: 10, MaxRetries: 5, RetryDelay: time.Millisecond})

	_, err := bp.EmbedAll(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if apperr.GetCode(err) != apperr.CodeEmbeddingAuthError {
		t.Errorf("expected auth error code, got %v", apperr.GetCode(err))
	}
	if e.calls != 1 {
		t.Errorf("expected exactly one call for an auth failure, got %d", e.calls)
	}
}

func TestBatchProcessor_VectorCountMismatch(t *testing.T) {
	e := &mismatchEmbedder{}
	bp := NewBatchProcessor(e, DefaultBatchConfig())

	_, err := bp.EmbedAll(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected a vector-count mismatch error")
	}
}

type mismatchEmbedder struct{}

func (m *mismatchEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{1}}, nil
}
func (m *mismatchEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}

func TestClassifyFailure(t *testing.T) {
	cases := map[string]FailureClass{
		"429 Too Many Requests":       FailureRateLimit,
		"401 Unauthorized":            FailureAuth,
		"connection reset by peer":    FailureTransient,
		"unexpected null byte in buf": FailureFatal,
	}
	for msg, want := range cases {
		got := ClassifyFailure(errors.New(msg))
		if got != want {
			t.Errorf("ClassifyFailure(%q) = %v, want %v", msg, got, want)
		}
	}
}
