package embed

import "context"

// DocumentEmbedder is the capability pair the ingestion and query
// paths depend on: batch-embed chunk texts, and embed a single query
// string. Provider adapters implement it; nothing else about a
// provider (model management, credentials, transport) leaks past it.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
