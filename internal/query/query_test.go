package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/repoinsight/internal/apperr"
	"github.com/Aman-CERP/repoinsight/internal/bm25"
	"github.com/Aman-CERP/repoinsight/internal/providers"
	"github.com/Aman-CERP/repoinsight/internal/repoident"
	"github.com/Aman-CERP/repoinsight/internal/retrieval"
	"github.com/Aman-CERP/repoinsight/internal/sessionstore"
	"github.com/Aman-CERP/repoinsight/internal/store"
)

const repoURL = "https://github.com/pallets/flask"

type fixture struct {
	service  *Service
	sessions *sessionstore.Store
	repoID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	sessions, err := sessionstore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })

	repoID, err := repoident.Identifier(repoURL)
	require.NoError(t, err)

	vectors := store.NewCollectionStore(768)
	require.NoError(t, vectors.CreateCollection(ctx, repoID))

	embedder := providers.NewStaticEmbedder(768)
	seed := []struct {
		content  string
		filePath string
	}{
		{"def dispatch_request(self):\n    rule = self.url_map.match()", "src/flask/routing.py"},
		{"class Flask:\n    def run(self):\n        pass", "src/flask/app.py"},
		{"# Configuration handling for the application", "docs/config.md"},
	}
	docs := make([]store.CollectionDoc, len(seed))
	texts := make([]string, len(seed))
	for i, sd := range seed {
		texts[i] = sd.content
		docs[i] = store.CollectionDoc{
			Content: sd.content,
			Metadata: map[string]string{
				"file_path":  sd.filePath,
				"content":    sd.content,
				"start_line": "1",
			},
		}
	}
	vecs, err := embedder.EmbedDocuments(ctx, texts)
	require.NoError(t, err)
	_, err = vectors.AddDocuments(ctx, repoID, docs, vecs)
	require.NoError(t, err)

	cache, err := bm25.NewCache(4)
	require.NoError(t, err)
	retriever := retrieval.NewRetriever(vectors, cache)

	svc := NewService(sessions, retriever, providers.NewRegistry(), retrieval.DefaultParams(), nil)
	return &fixture{service: svc, sessions: sessions, repoID: repoID}
}

func (f *fixture) addSession(t *testing.T, id string, status sessionstore.Status) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.sessions.CreateSession(ctx, &sessionstore.AnalysisSession{
		SessionID:            id,
		RepositoryURL:        repoURL,
		RepositoryIdentifier: f.repoID,
		Status:               sessionstore.StatusPending,
		CreatedAt:            time.Now().UTC(),
	}))
	if status != sessionstore.StatusPending {
		require.NoError(t, f.sessions.MarkTerminal(ctx, id, status, time.Now().UTC(), ""))
	}
}

func TestExecuteServiceMode(t *testing.T) {
	f := newFixture(t)
	f.addSession(t, "s-1", sessionstore.StatusSuccess)

	resp, err := f.service.Execute(context.Background(), Request{
		SessionID:      "s-1",
		Question:       "where is the request routing defined",
		GenerationMode: ModeService,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Answer)
	assert.NotEmpty(t, resp.RetrievedContext)
	assert.Equal(t, ModeService, resp.GenerationMode)
	assert.GreaterOrEqual(t, resp.TotalTime, resp.RetrievalTime)
}

func TestExecutePluginModeOmitsAnswer(t *testing.T) {
	f := newFixture(t)
	f.addSession(t, "s-1", sessionstore.StatusSuccess)

	resp, err := f.service.Execute(context.Background(), Request{
		SessionID:      "s-1",
		Question:       "how does the app run",
		GenerationMode: ModePlugin,
	})
	require.NoError(t, err)

	assert.Empty(t, resp.Answer)
	assert.Zero(t, resp.GenerationTime)
	assert.NotEmpty(t, resp.RetrievedContext)
}

func TestExecuteFileNameQueryFindsPath(t *testing.T) {
	f := newFixture(t)
	f.addSession(t, "s-1", sessionstore.StatusSuccess)

	resp, err := f.service.Execute(context.Background(), Request{
		SessionID:      "s-1",
		Question:       "what does routing.py do",
		GenerationMode: ModePlugin,
	})
	require.NoError(t, err)

	require.NotEmpty(t, resp.RetrievedContext)
	var found bool
	for _, c := range resp.RetrievedContext {
		if strings.Contains(c.FilePath, "routing") {
			found = true
		}
	}
	assert.True(t, found, "expected a retrieved chunk from routing.py")
}

func TestQueryEmbedderFollowsSessionConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A session ingested with an unregistered provider cannot be
	// queried with some other embedder: the vector spaces would not
	// match, so resolution fails instead of silently substituting.
	require.NoError(t, f.sessions.CreateSession(ctx, &sessionstore.AnalysisSession{
		SessionID:            "s-qwen",
		RepositoryURL:        repoURL,
		RepositoryIdentifier: f.repoID,
		Status:               sessionstore.StatusPending,
		EmbeddingConfig:      `{"provider":"qwen"}`,
		CreatedAt:            time.Now().UTC(),
	}))
	require.NoError(t, f.sessions.MarkTerminal(ctx, "s-qwen", sessionstore.StatusSuccess, time.Now().UTC(), ""))

	_, err := f.service.Execute(ctx, Request{SessionID: "s-qwen", Question: "q", GenerationMode: ModePlugin})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qwen")
}

func TestSessionNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Execute(context.Background(), Request{
		SessionID: "does-not-exist",
		Question:  "anything",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrSessionNotFound))
}

func TestSessionNotReady(t *testing.T) {
	f := newFixture(t)
	f.addSession(t, "s-pending", sessionstore.StatusPending)

	_, err := f.service.Execute(context.Background(), Request{
		SessionID: "s-pending",
		Question:  "anything",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrSessionNotReady))
}

func TestGitHubURLFallbackResolvesSameCollection(t *testing.T) {
	f := newFixture(t)
	f.addSession(t, "s-1", sessionstore.StatusSuccess)

	byID, err := f.service.Execute(context.Background(), Request{
		SessionID:      "s-1",
		Question:       "where is the request routing defined",
		GenerationMode: ModePlugin,
	})
	require.NoError(t, err)

	byURL, err := f.service.Execute(context.Background(), Request{
		SessionID:      repoURL,
		Question:       "where is the request routing defined",
		GenerationMode: ModePlugin,
	})
	require.NoError(t, err)

	assert.Equal(t, byID.SessionID, byURL.SessionID)
	require.Equal(t, len(byID.RetrievedContext), len(byURL.RetrievedContext))
	for i := range byID.RetrievedContext {
		assert.Equal(t, byID.RetrievedContext[i].ID, byURL.RetrievedContext[i].ID)
	}
}

func TestQueryLogRecordedRegardlessOfMode(t *testing.T) {
	f := newFixture(t)
	f.addSession(t, "s-1", sessionstore.StatusSuccess)
	ctx := context.Background()

	_, err := f.service.Execute(ctx, Request{SessionID: "s-1", Question: "q1", GenerationMode: ModePlugin})
	require.NoError(t, err)
	_, err = f.service.Execute(ctx, Request{SessionID: "s-1", Question: "q2", GenerationMode: ModeService})
	require.NoError(t, err)

	logs, err := f.sessions.ListQueryLogs(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "plugin", logs[0].GenerationMode)
	assert.Empty(t, logs[0].Answer)
	assert.Equal(t, "service", logs[1].GenerationMode)
	assert.NotEmpty(t, logs[1].Answer)
}

func TestNilLLMConfigEqualsEmpty(t *testing.T) {
	f := newFixture(t)
	f.addSession(t, "s-1", sessionstore.StatusSuccess)
	ctx := context.Background()

	withNil, err := f.service.Execute(ctx, Request{SessionID: "s-1", Question: "q", GenerationMode: ModeService, LLMConfig: nil})
	require.NoError(t, err)
	withEmpty, err := f.service.Execute(ctx, Request{SessionID: "s-1", Question: "q", GenerationMode: ModeService, LLMConfig: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, withNil.Answer, withEmpty.Answer)
}

func TestBuildPrompt(t *testing.T) {
	hits := []retrieval.RetrievedChunk{
		{FilePath: "src/app.py", StartLine: 10, Content: "def run(): pass"},
		{FilePath: "src/routing.py", StartLine: 1, Content: "rule = match()"},
	}
	prompt := BuildPrompt("how does routing work", hits)

	assert.Contains(t, prompt, "You are a code analysis assistant.")
	assert.Contains(t, prompt, "[doc 1] file: src/app.py (line 10)")
	assert.Contains(t, prompt, "[doc 2] file: src/routing.py (line 1)")
	assert.Contains(t, prompt, "Question: how does routing work")
	assert.True(t, len(prompt) > 0 && prompt[len(prompt)-len("Answer:"):] == "Answer:",
		fmt.Sprintf("prompt must end with Answer:, got %q", prompt[len(prompt)-20:]))
}
