// Package query resolves a query request to a repository collection,
// runs hybrid retrieval, optionally calls the LLM to synthesize an
// answer, and records a query-log row.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/repoinsight/internal/apperr"
	"github.com/Aman-CERP/repoinsight/internal/config"
	"github.com/Aman-CERP/repoinsight/internal/embed"
	"github.com/Aman-CERP/repoinsight/internal/providers"
	"github.com/Aman-CERP/repoinsight/internal/repoident"
	"github.com/Aman-CERP/repoinsight/internal/retrieval"
	"github.com/Aman-CERP/repoinsight/internal/sessionstore"
)

// GenerationMode selects whether the service synthesizes an answer or
// returns retrieval results only.
const (
	ModeService = "service"
	ModePlugin  = "plugin"
)

// Request is one question against an analyzed repository. SessionID
// may also be a GitHub URL, in which case the latest SUCCESS session
// for that repository is used. A nil LLMConfig is treated exactly
// like an empty one.
type Request struct {
	SessionID      string
	Question       string
	GenerationMode string
	LLMConfig      map[string]string
}

// ContextChunk is one retrieved evidence chunk in the response.
type ContextChunk struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	FilePath  string            `json:"file_path"`
	StartLine int               `json:"start_line,omitempty"`
	Score     float64           `json:"score"`
	Metadata  map[string]string `json:"metadata"`
}

// Response is the final query payload. All times are milliseconds.
type Response struct {
	SessionID        string         `json:"session_id"`
	Answer           string         `json:"answer,omitempty"`
	RetrievedContext []ContextChunk `json:"retrieved_context"`
	GenerationMode   string         `json:"generation_mode"`
	RetrievalTime    int64          `json:"retrieval_time"`
	GenerationTime   int64          `json:"generation_time,omitempty"`
	TotalTime        int64          `json:"total_time"`
}

// Service executes query requests.
type Service struct {
	sessions  *sessionstore.Store
	retriever *retrieval.Retriever
	registry  *providers.Registry
	params    retrieval.Params
	log       *slog.Logger
}

func NewService(sessions *sessionstore.Store, retriever *retrieval.Retriever, registry *providers.Registry, params retrieval.Params, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		sessions:  sessions,
		retriever: retriever,
		registry:  registry,
		params:    params,
		log:       log,
	}
}

// Execute answers req. The session is resolved first (by id, then by
// GitHub-URL fallback); retrieval always runs; generation runs only
// in service mode. A query-log row is recorded regardless of mode.
func (s *Service) Execute(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	mode := req.GenerationMode
	if mode == "" {
		mode = ModeService
	}

	sess, err := s.resolveSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	sessionID, repoID := sess.SessionID, sess.RepositoryIdentifier

	// The query vector must live in the same embedding space as the
	// stored chunks, so the embedder comes from the session's own
	// embedding_config, not a process-wide default.
	embedder, err := s.queryEmbedder(sess)
	if err != nil {
		return nil, err
	}

	retrievalStart := time.Now()
	hits, err := s.retriever.Search(ctx, repoID, req.Question, embedder, s.params)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, fmt.Errorf("retrieval for %s: %w", repoID, err))
	}
	retrievalTime := time.Since(retrievalStart).Milliseconds()

	resp := &Response{
		SessionID:        sessionID,
		RetrievedContext: make([]ContextChunk, len(hits)),
		GenerationMode:   mode,
		RetrievalTime:    retrievalTime,
	}
	for i, h := range hits {
		resp.RetrievedContext[i] = ContextChunk{
			ID:        h.ID,
			Content:   h.Content,
			FilePath:  h.FilePath,
			StartLine: h.StartLine,
			Score:     h.Score,
			Metadata:  h.Metadata,
		}
	}

	if mode == ModeService {
		generationStart := time.Now()
		answer, err := s.generate(ctx, req, hits)
		if err != nil {
			return nil, err
		}
		resp.Answer = answer
		resp.GenerationTime = time.Since(generationStart).Milliseconds()
	}

	resp.TotalTime = time.Since(start).Milliseconds()

	logRow := sessionstore.QueryLog{
		SessionID:            sessionID,
		Question:             req.Question,
		Answer:               resp.Answer,
		RetrievedChunksCount: len(hits),
		GenerationMode:       mode,
		RetrievalTimeMillis:  resp.RetrievalTime,
		GenerationTimeMillis: resp.GenerationTime,
		TotalTimeMillis:      resp.TotalTime,
	}
	if err := s.sessions.RecordQueryLog(ctx, logRow); err != nil {
		s.log.Warn("query log insert failed", "session_id", sessionID, "error", err)
	}
	return resp, nil
}

// resolveSession maps the caller-supplied id to the session whose
// collection should be queried: a SUCCESS session matching the id;
// otherwise, if the string looks like a GitHub URL, the latest
// SUCCESS session for its computed identifier.
func (s *Service) resolveSession(ctx context.Context, id string) (*sessionstore.AnalysisSession, error) {
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err)
	}
	if sess != nil {
		if sess.Status != sessionstore.StatusSuccess {
			return nil, apperr.New(apperr.CodeSessionNotReady,
				fmt.Sprintf("session %s has status %s", id, sess.Status), nil)
		}
		return sess, nil
	}

	if repoident.LooksLikeGitHubURL(id) {
		computed, idErr := repoident.Identifier(id)
		if idErr == nil {
			found, findErr := s.sessions.FindLatestSuccessByRepository(ctx, computed)
			if findErr != nil {
				return nil, apperr.Wrap(apperr.CodeInternal, findErr)
			}
			if found != nil {
				return found, nil
			}
		}
	}
	return nil, apperr.New(apperr.CodeSessionNotFound,
		fmt.Sprintf("no completed analysis session for %q", id), nil)
}

// queryEmbedder resolves the embedder variant named by the session's
// embedding_config blob.
func (s *Service) queryEmbedder(sess *sessionstore.AnalysisSession) (embed.DocumentEmbedder, error) {
	embCfg, err := config.ParseEmbeddingConfig(sess.EmbeddingConfig)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err)
	}
	embedder, err := s.registry.Embedder(embCfg.Provider)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal,
			fmt.Errorf("embedder for session %s: %w", sess.SessionID, err))
	}
	return embedder, nil
}

// generate builds the context prompt and calls the configured LLM.
func (s *Service) generate(ctx context.Context, req Request, hits []retrieval.RetrievedChunk) (string, error) {
	provider := req.LLMConfig["provider"]
	if provider == "" {
		provider = "static"
	}
	chatter, err := s.registry.ChatterFor(provider)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, err)
	}

	answer, err := chatter.Complete(ctx, BuildPrompt(req.Question, hits))
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, fmt.Errorf("llm call: %w", err))
	}
	return answer, nil
}

// BuildPrompt assembles the answer-synthesis prompt: a fixed preamble,
// the numbered evidence chunks with their file locations, then the
// question.
func BuildPrompt(question string, hits []retrieval.RetrievedChunk) string {
	var sb strings.Builder
	sb.WriteString("You are a code analysis assistant. Answer the question using only the provided context from the repository. Cite file paths when relevant.\n")
	sb.WriteString("Context:\n")
	for i, h := range hits {
		fmt.Fprintf(&sb, "[doc %d] file: %s (line %d)\n", i+1, h.FilePath, h.StartLine)
		sb.WriteString(h.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\nAnswer:")
	return sb.String()
}
