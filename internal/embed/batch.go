package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/Aman-CERP/repoinsight/internal/apperr"
)

// BatchConfig configures the batch processor.
type BatchConfig struct {
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultBatchConfig returns the stock batch/retry settings.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{BatchSize: 32, MaxRetries: 3, RetryDelay: 2 * time.Second}
}

// BatchProcessor wraps a DocumentEmbedder with fixed-size batching,
// bounded exponential-backoff retry, failure classification, and
// strict vector-count validation.
type BatchProcessor struct {
	embedder DocumentEmbedder
	cfg      BatchConfig
}

func NewBatchProcessor(embedder DocumentEmbedder, cfg BatchConfig) *BatchProcessor {
	return &BatchProcessor{embedder: embedder, cfg: cfg}
}

// EmbedAll embeds texts in fixed-size batches, returning one vector
// per input text in order.
func (b *BatchProcessor) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.cfg.BatchSize {
		end := start + b.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batchVecs, err := b.embedBatchWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch [%d:%d): %w", start, end, err)
		}
		vectors = append(vectors, batchVecs...)
	}
	return vectors, nil
}

// embedBatchWithRetry retries a single batch with exponential backoff
// (retry_delay * 2^attempt), failing immediately on an auth error and
// lengthening the wait (not the retry budget) on a rate-limit error.
func (b *BatchProcessor) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		vectors, err := b.embedder.EmbedDocuments(ctx, batch)
		if err == nil {
			if len(vectors) != len(batch) {
				return nil, apperr.New(apperr.CodeInternal,
					fmt.Sprintf("embedder returned %d vectors for %d texts", len(vectors), len(batch)), nil)
			}
			return vectors, nil
		}
		lastErr = err

		switch ClassifyFailure(err) {
		case FailureAuth:
			return nil, apperr.Wrap(apperr.CodeEmbeddingAuthError, err)
		case FailureFatal:
			return nil, apperr.Wrap(apperr.CodeEmbeddingTransient, err)
		}

		if attempt >= b.cfg.MaxRetries {
			break
		}

		wait := b.cfg.RetryDelay * (1 << attempt)
		if ClassifyFailure(err) == FailureRateLimit {
			wait *= 2
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	code := apperr.CodeEmbeddingTransient
	if ClassifyFailure(lastErr) == FailureRateLimit {
		code = apperr.CodeEmbeddingRateLimited
	}
	return nil, apperr.Wrap(code, fmt.Errorf("failed after %d retries: %w", b.cfg.MaxRetries, lastErr))
}
