package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVectors(n, dims int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dims)
		v[i%dims] = 1
		v[(i+1)%dims] = 0.5
		out[i] = v
	}
	return out
}

func TestCollectionsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenCollectionStore(dir, 8)
	require.NoError(t, err)
	require.NoError(t, s.CreateCollection(ctx, "github_pallets_flask_abcd1234"))

	docs := []CollectionDoc{
		{Content: "def run(): pass", Metadata: map[string]string{"file_path": "app.py"}},
		{Content: "class Router: pass", Metadata: map[string]string{"file_path": "routing.py"}},
	}
	ids, err := s.AddDocuments(ctx, "github_pallets_flask_abcd1234", docs, testVectors(2, 8))
	require.NoError(t, err)
	require.Len(t, ids, 2)

	reopened, err := OpenCollectionStore(dir, 8)
	require.NoError(t, err)

	exists, err := reopened.CollectionExists(ctx, "github_pallets_flask_abcd1234")
	require.NoError(t, err)
	assert.True(t, exists)

	count, err := reopened.Count(ctx, "github_pallets_flask_abcd1234")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	all, err := reopened.GetAllDocuments(ctx, "github_pallets_flask_abcd1234")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "app.py", all[0].Metadata["file_path"])
}

func TestReopenedStoreContinuesOrdinals(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenCollectionStore(dir, 8)
	require.NoError(t, err)
	require.NoError(t, s.CreateCollection(ctx, "repo"))
	first, err := s.AddDocuments(ctx, "repo", []CollectionDoc{{Content: "a"}}, testVectors(1, 8))
	require.NoError(t, err)

	reopened, err := OpenCollectionStore(dir, 8)
	require.NoError(t, err)
	second, err := reopened.AddDocuments(ctx, "repo", []CollectionDoc{{Content: "b"}}, testVectors(1, 8))
	require.NoError(t, err)

	assert.NotEqual(t, first[0], second[0])
	assert.Equal(t, "chunk_repo_0", first[0])
	assert.Equal(t, "chunk_repo_1", second[0])
}

func TestEmptyCollectionSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenCollectionStore(dir, 8)
	require.NoError(t, err)
	require.NoError(t, s.CreateCollection(ctx, "empty"))

	reopened, err := OpenCollectionStore(dir, 8)
	require.NoError(t, err)
	exists, err := reopened.CollectionExists(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, exists)
	count, err := reopened.Count(ctx, "empty")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteCollectionRemovesDirectory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenCollectionStore(dir, 8)
	require.NoError(t, err)
	require.NoError(t, s.CreateCollection(ctx, "doomed"))
	_, err = s.AddDocuments(ctx, "doomed", []CollectionDoc{{Content: "x"}}, testVectors(1, 8))
	require.NoError(t, err)
	require.NoError(t, s.DeleteCollection(ctx, "doomed"))

	reopened, err := OpenCollectionStore(dir, 8)
	require.NoError(t, err)
	exists, err := reopened.CollectionExists(ctx, "doomed")
	require.NoError(t, err)
	assert.False(t, exists)
}
