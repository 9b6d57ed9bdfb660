package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/repoinsight/internal/apperr"
	"github.com/Aman-CERP/repoinsight/internal/config"
	"github.com/Aman-CERP/repoinsight/internal/embed"
	"github.com/Aman-CERP/repoinsight/internal/gitclone"
	"github.com/Aman-CERP/repoinsight/internal/providers"
	"github.com/Aman-CERP/repoinsight/internal/repoident"
	"github.com/Aman-CERP/repoinsight/internal/sessionstore"
	"github.com/Aman-CERP/repoinsight/internal/store"
)

type stubCloner struct {
	dir   string
	err   error
	calls int
}

func (s *stubCloner) Clone(ctx context.Context, opts gitclone.CloneOptions) (string, error) {
	s.calls++
	return s.dir, s.err
}

// countingEmbedder wraps the static embedder and counts document
// calls, for asserting the reuse short-circuit skips embedding.
type countingEmbedder struct {
	inner embed.DocumentEmbedder
	calls atomic.Int64
}

func (c *countingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	return c.inner.EmbedDocuments(ctx, texts)
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.inner.EmbedQuery(ctx, text)
}

func writeRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"app.py": "import os\n\n\ndef create_app():\n    \"\"\"Build the application object.\"\"\"\n    return object()\n\n\ndef run():\n    app = create_app()\n    return app\n",
		"src/routing.py": "class Router:\n    def __init__(self):\n        self.rules = []\n\n    def add_rule(self, rule):\n        self.rules.append(rule)\n",
		"README.md": "# demo\n\nA tiny repository used by the pipeline tests.\n",
	}
	for path, content := range files {
		full := filepath.Join(dir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		GitCloneDir:         t.TempDir(),
		ChunkSize:           1500,
		ChunkOverlap:        150,
		EmbeddingBatchSize:  32,
		ExcludedDirectories: config.DefaultExcludedDirectories,
	}
}

func newHarness(t *testing.T) (*Orchestrator, *sessionstore.Store, store.Store, *countingEmbedder) {
	t.Helper()
	sessions, err := sessionstore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })

	vectors := store.NewCollectionStore(768)
	registry := providers.NewRegistry()
	counting := &countingEmbedder{inner: providers.NewStaticEmbedder(768)}
	registry.RegisterEmbedder("counting", counting)

	o := New(sessions, vectors, &stubCloner{dir: writeRepo(t)}, registry, testConfig(t), nil)
	return o, sessions, vectors, counting
}

func createSession(t *testing.T, sessions *sessionstore.Store, id, url string) {
	t.Helper()
	repoID, err := repoident.Identifier(url)
	require.NoError(t, err)
	require.NoError(t, sessions.CreateSession(context.Background(), &sessionstore.AnalysisSession{
		SessionID:            id,
		RepositoryURL:        url,
		RepositoryIdentifier: repoID,
		Status:               sessionstore.StatusPending,
		CreatedAt:            time.Now().UTC(),
	}))
}

const testRepoURL = "https://github.com/pallets/flask"

func TestRunFullPipeline(t *testing.T) {
	o, sessions, vectors, counting := newHarness(t)
	ctx := context.Background()
	createSession(t, sessions, "s-1", testRepoURL)

	out, err := o.Run(ctx, Request{
		RepoURL:         testRepoURL,
		SessionID:       "s-1",
		EmbeddingConfig: `{"provider":"counting","batch_size":32}`,
	}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, string(sessionstore.StatusSuccess), out.Status)
	assert.Equal(t, 3, out.TotalFiles)
	assert.Equal(t, 3, out.ProcessedFiles)
	assert.Greater(t, out.TotalChunks, 0)
	assert.Equal(t, out.TotalChunks, out.IndexedChunks)
	assert.Greater(t, counting.calls.Load(), int64(0))

	sess, err := sessions.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, sessionstore.StatusSuccess, sess.Status)
	assert.NotNil(t, sess.StartedAt)
	assert.NotNil(t, sess.CompletedAt)
	assert.Equal(t, out.IndexedChunks, sess.IndexedChunks)

	count, err := vectors.Count(ctx, out.RepositoryIdentifier)
	require.NoError(t, err)
	assert.Equal(t, out.IndexedChunks, count)

	docs, err := vectors.GetAllDocuments(ctx, out.RepositoryIdentifier)
	require.NoError(t, err)
	for _, d := range docs {
		assert.NotEmpty(t, d.Metadata["file_path"])
		assert.Equal(t, d.Content, d.Metadata["content"])
	}
}

func TestRunReuseShortCircuit(t *testing.T) {
	o, sessions, _, counting := newHarness(t)
	ctx := context.Background()

	createSession(t, sessions, "s-1", testRepoURL)
	_, err := o.Run(ctx, Request{
		RepoURL:         testRepoURL,
		SessionID:       "s-1",
		EmbeddingConfig: `{"provider":"counting"}`,
	}, nil, nil)
	require.NoError(t, err)
	callsAfterFirst := counting.calls.Load()

	createSession(t, sessions, "s-2", testRepoURL)
	out, err := o.Run(ctx, Request{
		RepoURL:         testRepoURL,
		SessionID:       "s-2",
		EmbeddingConfig: `{"provider":"counting"}`,
	}, nil, nil)
	require.NoError(t, err)

	assert.True(t, out.Reused)
	assert.Equal(t, string(sessionstore.StatusSuccess), out.Status)
	assert.Equal(t, callsAfterFirst, counting.calls.Load(), "reuse must not call the embedder")
}

func TestRunIDDisjointnessAcrossIngests(t *testing.T) {
	o, sessions, vectors, _ := newHarness(t)
	ctx := context.Background()

	createSession(t, sessions, "s-1", testRepoURL)
	out, err := o.Run(ctx, Request{RepoURL: testRepoURL, SessionID: "s-1", EmbeddingConfig: `{"provider":"counting"}`}, nil, nil)
	require.NoError(t, err)

	firstIDs := map[string]bool{}
	docs, err := vectors.GetAllDocuments(ctx, out.RepositoryIdentifier)
	require.NoError(t, err)
	for _, d := range docs {
		firstIDs[d.ID] = true
	}

	// Force a second physical ingest by deleting and re-running is the
	// admin path; here we append a second batch directly and assert the
	// ordinal allocator never reuses ids.
	more := []store.CollectionDoc{{Content: "x", Metadata: map[string]string{}}}
	vecs := [][]float32{make([]float32, 768)}
	vecs[0][0] = 1
	ids, err := vectors.AddDocuments(ctx, out.RepositoryIdentifier, more, vecs)
	require.NoError(t, err)
	for _, id := range ids {
		assert.False(t, firstIDs[id], "id %s reused across appends", id)
	}
}

func TestRunCancelledMidway(t *testing.T) {
	o, sessions, vectors, _ := newHarness(t)
	ctx := context.Background()
	createSession(t, sessions, "s-1", testRepoURL)

	repoID, err := repoident.Identifier(testRepoURL)
	require.NoError(t, err)

	// Cancel as soon as the first embedding batch has landed: the
	// in-flight batch completes, then the next checkpoint observes the
	// flag.
	cancelled := func() bool {
		n, cerr := vectors.Count(ctx, repoID)
		return cerr == nil && n > 0
	}

	_, err = o.Run(ctx, Request{
		RepoURL:         testRepoURL,
		SessionID:       "s-1",
		EmbeddingConfig: `{"provider":"counting","batch_size":1}`,
	}, nil, cancelled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrTaskCancelled))

	sess, err := sessions.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, sessionstore.StatusCancelled, sess.Status)

	count, err := vectors.Count(ctx, repoID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "exactly the completed batch is kept")
	assert.Less(t, sess.IndexedChunks, sess.TotalChunks)
}

func TestRunCancelledBeforeFirstFile(t *testing.T) {
	o, sessions, _, _ := newHarness(t)
	ctx := context.Background()
	createSession(t, sessions, "s-1", testRepoURL)

	_, err := o.Run(ctx, Request{
		RepoURL:         testRepoURL,
		SessionID:       "s-1",
		EmbeddingConfig: `{"provider":"counting"}`,
	}, nil, func() bool { return true })
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrTaskCancelled))

	sess, err := sessions.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, sessionstore.StatusCancelled, sess.Status)
	assert.Equal(t, 0, sess.IndexedChunks)
}

func TestRunInvalidRepositoryURL(t *testing.T) {
	o, sessions, _, _ := newHarness(t)
	ctx := context.Background()
	require.NoError(t, sessions.CreateSession(ctx, &sessionstore.AnalysisSession{
		SessionID:     "s-bad",
		RepositoryURL: "not-a-url",
		Status:        sessionstore.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}))

	_, err := o.Run(ctx, Request{RepoURL: "not-a-url", SessionID: "s-bad"}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidRepositoryURL, apperr.GetCode(err))

	sess, err := sessions.GetSession(ctx, "s-bad")
	require.NoError(t, err)
	assert.Equal(t, sessionstore.StatusFailed, sess.Status)
	assert.NotEmpty(t, sess.ErrorMessage)
}

func TestRunCloneFailureIsFatal(t *testing.T) {
	sessions, err := sessionstore.Open("")
	require.NoError(t, err)
	defer sessions.Close()
	vectors := store.NewCollectionStore(768)
	registry := providers.NewRegistry()

	o := New(sessions, vectors, &stubCloner{err: apperr.New(apperr.CodeCloneFailed, "network down", nil)}, registry, testConfig(t), nil)

	ctx := context.Background()
	createSession(t, sessions, "s-1", testRepoURL)
	_, err = o.Run(ctx, Request{RepoURL: testRepoURL, SessionID: "s-1"}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeCloneFailed, apperr.GetCode(err))

	sess, err := sessions.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, sessionstore.StatusFailed, sess.Status)
}

func TestProgressMarksAdvance(t *testing.T) {
	o, sessions, _, _ := newHarness(t)
	ctx := context.Background()
	createSession(t, sessions, "s-1", testRepoURL)

	var marks []int
	report := func(current, total int, msg string) { marks = append(marks, current) }

	_, err := o.Run(ctx, Request{
		RepoURL:         testRepoURL,
		SessionID:       "s-1",
		EmbeddingConfig: `{"provider":"counting"}`,
	}, report, nil)
	require.NoError(t, err)

	require.NotEmpty(t, marks)
	assert.Equal(t, 5, marks[0])
	assert.Equal(t, 100, marks[len(marks)-1])
	for i := 1; i < len(marks); i++ {
		assert.GreaterOrEqual(t, marks[i], marks[i-1])
	}
}
