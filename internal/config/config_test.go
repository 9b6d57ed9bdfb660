package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.APIPort)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 1500, cfg.ChunkSize)
	assert.Equal(t, 150, cfg.ChunkOverlap)
	assert.Equal(t, 32, cfg.EmbeddingBatchSize)
	assert.Equal(t, 20, cfg.VectorSearchTopK)
	assert.Equal(t, 10, cfg.FinalContextTopK)
	assert.Equal(t, DefaultExcludedDirectories, cfg.ExcludedDirectories)
	assert.Equal(t, "./data/sessions.db", cfg.DatabaseURL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "900")
	t.Setenv("CHUNK_OVERLAP", "90")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("EXCLUDED_DIRECTORIES", ".git,node_modules,tmp")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 900, cfg.ChunkSize)
	assert.Equal(t, 90, cfg.ChunkOverlap)
	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr)
	assert.Equal(t, []string{".git", "node_modules", "tmp"}, cfg.ExcludedDirectories)
}

func TestLoadRejectsBadChunking(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "100")
	t.Setenv("CHUNK_OVERLAP", "100")

	_, err := Load()
	require.Error(t, err)
}

func TestDatabaseURLMapping(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgresql://user:pass@db:5432/repoinsight")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "./data/repoinsight.db", cfg.DatabaseURL)
}

func TestDatabaseURLFromPostgresParts(t *testing.T) {
	t.Setenv("POSTGRES_DB", "analysis")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "./data/analysis.db", cfg.DatabaseURL)
}

func TestParseListValue(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"comma", ".py,.go, .rs", []string{".py", ".go", ".rs"}},
		{"json", `[".py", ".go"]`, []string{".py", ".go"}},
		{"json unquoted", "[.py, .go]", []string{".py", ".go"}},
		{"trailing comma", ".py,", []string{".py"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseListValue(tt.in))
		})
	}
}

func TestParseEmbeddingConfig(t *testing.T) {
	cfg, err := ParseEmbeddingConfig(`{"provider":"qwen","model":"text-embedding-v4","batch_size":32}`)
	require.NoError(t, err)
	assert.Equal(t, "qwen", cfg.Provider)
	assert.Equal(t, "text-embedding-v4", cfg.Model)
	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, 768, cfg.Dimensions)
}

func TestParseEmbeddingConfigEmpty(t *testing.T) {
	cfg, err := ParseEmbeddingConfig("")
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Provider)
	assert.Equal(t, 32, cfg.BatchSize)
}

func TestParseEmbeddingConfigInvalid(t *testing.T) {
	_, err := ParseEmbeddingConfig("{not json")
	require.Error(t, err)
}
