package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOllamaHost is the default Ollama API endpoint.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaConfig configures the local-model embedder variant.
type OllamaConfig struct {
	Host string
	// Model is the embedding model; an empty value picks the first
	// installed model from FallbackModels.
	Model          string
	FallbackModels []string
	Timeout        time.Duration
}

// OllamaEmbedder is the local-model DocumentEmbedder: it talks to an
// Ollama daemon's /api/embed endpoint, so ingest and query can run
// fully offline against an on-device model.
type OllamaEmbedder struct {
	client *http.Client
	host   string
	model  string
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaEmbedder probes the daemon for an installed embedding
// model and returns an embedder bound to it.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	e := &OllamaEmbedder{
		client: &http.Client{Timeout: cfg.Timeout},
		host:   strings.TrimSuffix(cfg.Host, "/"),
	}

	model, err := e.pickModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e.model = model
	return e, nil
}

func (e *OllamaEmbedder) pickModel(ctx context.Context, cfg OllamaConfig) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/api/tags", nil)
	if err != nil {
		return "", fmt.Errorf("providers: build tags request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("providers: ollama unreachable at %s: %w", e.host, err)
	}
	defer resp.Body.Close()

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return "", fmt.Errorf("providers: decode tags response: %w", err)
	}
	installed := make(map[string]bool, len(tags.Models))
	for _, m := range tags.Models {
		installed[m.Name] = true
		// "model:latest" also answers to the bare name.
		installed[strings.TrimSuffix(m.Name, ":latest")] = true
	}

	candidates := cfg.FallbackModels
	if cfg.Model != "" {
		candidates = append([]string{cfg.Model}, candidates...)
	}
	for _, c := range candidates {
		if installed[c] {
			return c, nil
		}
	}
	return "", fmt.Errorf("providers: none of %v installed in ollama", candidates)
}

// EmbedDocuments embeds texts in one /api/embed call.
func (e *OllamaEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts)
}

// EmbedQuery embeds a single query string.
func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("providers: ollama returned %d vectors for one query", len(vecs))
	}
	return vecs[0], nil
}

func (e *OllamaEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("providers: marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("providers: build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("providers: ollama embed request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("providers: read embed response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("providers: ollama returned %d: %s", resp.StatusCode, string(data))
	}

	var out ollamaEmbedResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("providers: decode embed response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("providers: ollama returned %d vectors for %d texts", len(out.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(out.Embeddings))
	for i, emb := range out.Embeddings {
		v := make([]float32, len(emb))
		for j, f := range emb {
			v[j] = float32(f)
		}
		vecs[i] = v
	}
	return vecs, nil
}
