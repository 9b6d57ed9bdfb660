// Package config loads the environment-driven configuration surface:
// connection settings for the session database, Redis broker, and
// vector store, clone and chunking knobs, and retrieval top-k limits.
// Everything is read from the process environment via viper; there is
// no config file.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	APIHost string
	APIPort int

	// DatabaseURL is the session-store DSN. DATABASE_URL wins when
	// set; otherwise POSTGRES_DB names the database file (the other
	// POSTGRES_* parts are not read). Both map onto the embedded
	// SQLite database file.
	DatabaseURL string

	RedisAddr     string
	RedisDB       int
	RedisPassword string

	// VectorStorePath is where collections persist between runs.
	VectorStorePath    string
	VectorStoreRetries int
	VectorStoreDelay   time.Duration
	VectorDimensions   int

	GitCloneDir  string
	CloneTimeout time.Duration

	EmbeddingBatchSize int
	ChunkSize          int
	ChunkOverlap       int

	AllowedFileExtensions []string
	ExcludedDirectories   []string

	VectorSearchTopK int
	BM25SearchTopK   int
	FinalContextTopK int
	BM25CacheSize    int

	// ResultExpires is how long completed task results stay readable.
	ResultExpires time.Duration

	// APIKeys maps provider name to credential (OPENAI_API_KEY,
	// QWEN_API_KEY, ...). The core never reads these itself; they are
	// handed to whichever provider adapter gets instantiated.
	APIKeys map[string]string

	// EmbeddingAPIURL + EmbeddingModel back the generic HTTP embedder
	// registered for each API-keyed provider. OllamaHost, when set,
	// enables the local-model variant.
	EmbeddingAPIURL string
	EmbeddingModel  string
	OllamaHost      string

	LogLevel string
}

// DefaultExcludedDirectories is the directory exclusion list applied
// when EXCLUDED_DIRECTORIES is unset.
var DefaultExcludedDirectories = []string{
	".git", "node_modules", "dist", "build", "target", "vendor",
	"venv", ".venv", "env", "__pycache__", ".idea", ".vscode",
	"coverage", ".pytest_cache", ".mypy_cache", "egg-info",
}

// Load reads the full configuration surface from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	keys := []string{
		"API_HOST", "API_PORT",
		"DATABASE_URL",
		"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
		"REDIS_HOST", "REDIS_PORT", "REDIS_DB", "REDIS_PASSWORD",
		"CHROMADB_HOST", "CHROMADB_PORT", "CHROMADB_PERSISTENT_PATH",
		"CHROMADB_MAX_RETRIES", "CHROMADB_RETRY_DELAY",
		"EMBEDDING_DIMENSIONS",
		"GIT_CLONE_DIR", "CLONE_TIMEOUT",
		"EMBEDDING_BATCH_SIZE", "CHUNK_SIZE", "CHUNK_OVERLAP",
		"ALLOWED_FILE_EXTENSIONS", "EXCLUDED_DIRECTORIES",
		"VECTOR_SEARCH_TOP_K", "BM25_SEARCH_TOP_K", "FINAL_CONTEXT_TOP_K",
		"BM25_CACHE_SIZE", "RESULT_EXPIRES",
		"OPENAI_API_KEY", "QWEN_API_KEY", "GIT_CLONE_TOKEN",
		"EMBEDDING_API_URL", "EMBEDDING_MODEL", "OLLAMA_HOST",
		"LOG_LEVEL",
	}
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", k, err)
		}
	}

	v.SetDefault("API_HOST", "0.0.0.0")
	v.SetDefault("API_PORT", 8000)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CHROMADB_PERSISTENT_PATH", "./data/vectors")
	v.SetDefault("CHROMADB_MAX_RETRIES", 3)
	v.SetDefault("CHROMADB_RETRY_DELAY", 2)
	v.SetDefault("EMBEDDING_DIMENSIONS", 768)
	v.SetDefault("GIT_CLONE_DIR", "./data/repos")
	v.SetDefault("CLONE_TIMEOUT", 300)
	v.SetDefault("EMBEDDING_BATCH_SIZE", 32)
	v.SetDefault("CHUNK_SIZE", 1500)
	v.SetDefault("CHUNK_OVERLAP", 150)
	v.SetDefault("VECTOR_SEARCH_TOP_K", 20)
	v.SetDefault("BM25_SEARCH_TOP_K", 20)
	v.SetDefault("FINAL_CONTEXT_TOP_K", 10)
	v.SetDefault("BM25_CACHE_SIZE", 32)
	v.SetDefault("RESULT_EXPIRES", 3600)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		APIHost:            v.GetString("API_HOST"),
		APIPort:            v.GetInt("API_PORT"),
		DatabaseURL:        resolveDatabaseURL(v),
		RedisAddr:          fmt.Sprintf("%s:%d", v.GetString("REDIS_HOST"), v.GetInt("REDIS_PORT")),
		RedisDB:            v.GetInt("REDIS_DB"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		VectorStorePath:    v.GetString("CHROMADB_PERSISTENT_PATH"),
		VectorStoreRetries: v.GetInt("CHROMADB_MAX_RETRIES"),
		VectorStoreDelay:   time.Duration(v.GetInt("CHROMADB_RETRY_DELAY")) * time.Second,
		VectorDimensions:   v.GetInt("EMBEDDING_DIMENSIONS"),
		GitCloneDir:        v.GetString("GIT_CLONE_DIR"),
		CloneTimeout:       time.Duration(v.GetInt("CLONE_TIMEOUT")) * time.Second,
		EmbeddingBatchSize: v.GetInt("EMBEDDING_BATCH_SIZE"),
		ChunkSize:          v.GetInt("CHUNK_SIZE"),
		ChunkOverlap:       v.GetInt("CHUNK_OVERLAP"),
		VectorSearchTopK:   v.GetInt("VECTOR_SEARCH_TOP_K"),
		BM25SearchTopK:     v.GetInt("BM25_SEARCH_TOP_K"),
		FinalContextTopK:   v.GetInt("FINAL_CONTEXT_TOP_K"),
		BM25CacheSize:      v.GetInt("BM25_CACHE_SIZE"),
		ResultExpires:      time.Duration(v.GetInt("RESULT_EXPIRES")) * time.Second,
		LogLevel:           v.GetString("LOG_LEVEL"),
		APIKeys:            map[string]string{},
	}

	cfg.AllowedFileExtensions = ParseListValue(v.GetString("ALLOWED_FILE_EXTENSIONS"))
	if dirs := ParseListValue(v.GetString("EXCLUDED_DIRECTORIES")); len(dirs) > 0 {
		cfg.ExcludedDirectories = dirs
	} else {
		cfg.ExcludedDirectories = DefaultExcludedDirectories
	}

	if key := v.GetString("OPENAI_API_KEY"); key != "" {
		cfg.APIKeys["openai"] = key
	}
	if key := v.GetString("QWEN_API_KEY"); key != "" {
		cfg.APIKeys["qwen"] = key
	}
	cfg.EmbeddingAPIURL = v.GetString("EMBEDDING_API_URL")
	cfg.EmbeddingModel = v.GetString("EMBEDDING_MODEL")
	cfg.OllamaHost = v.GetString("OLLAMA_HOST")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("config: CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("config: CHUNK_OVERLAP %d must be in [0, CHUNK_SIZE)", c.ChunkOverlap)
	}
	if c.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("config: EMBEDDING_BATCH_SIZE must be positive, got %d", c.EmbeddingBatchSize)
	}
	return nil
}

// resolveDatabaseURL prefers DATABASE_URL, falling back to a file
// named after POSTGRES_DB, falling back to a local file.
// Either way the result is mapped onto the embedded SQLite store's
// path: a URL-shaped value keeps only its database name.
func resolveDatabaseURL(v *viper.Viper) string {
	if u := v.GetString("DATABASE_URL"); u != "" {
		return sqlitePathFromURL(u)
	}
	if db := v.GetString("POSTGRES_DB"); db != "" {
		return "./data/" + db + ".db"
	}
	return "./data/sessions.db"
}

func sqlitePathFromURL(u string) string {
	if !strings.Contains(u, "://") {
		return u
	}
	rest := u[strings.Index(u, "://")+3:]
	if i := strings.LastIndexByte(rest, '/'); i >= 0 && i+1 < len(rest) {
		name := rest[i+1:]
		if j := strings.IndexByte(name, '?'); j >= 0 {
			name = name[:j]
		}
		if name != "" {
			return "./data/" + name + ".db"
		}
	}
	return "./data/sessions.db"
}

// ParseListValue parses a list-valued environment variable that may be
// either a JSON array ([".py", ".go"]) or a comma-separated string.
func ParseListValue(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var items []string
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			return cleanList(items)
		}
		// Unquoted JSON-ish input like [.py, .go] shows up in env
		// files often enough to tolerate.
		raw = strings.Trim(raw, "[]")
	}
	return cleanList(strings.Split(raw, ","))
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.Trim(strings.TrimSpace(it), `"'`)
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}

// EmbeddingConfig is the opaque embedding_config blob callers submit
// with an ingest request: provider selection plus whatever options the
// selected adapter understands.
type EmbeddingConfig struct {
	Provider   string            `json:"provider" yaml:"provider"`
	Model      string            `json:"model" yaml:"model"`
	BatchSize  int               `json:"batch_size" yaml:"batch_size"`
	Dimensions int               `json:"dimensions" yaml:"dimensions"`
	Extra      map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// ParseEmbeddingConfig decodes an embedding_config JSON blob, applying
// defaults for absent fields.
func ParseEmbeddingConfig(raw string) (EmbeddingConfig, error) {
	cfg := EmbeddingConfig{Provider: "static", BatchSize: 32, Dimensions: 768}
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse embedding_config: %w", err)
	}
	if cfg.Provider == "" {
		cfg.Provider = "static"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 768
	}
	return cfg, nil
}

// FormatAddr joins host and port for display and listener binding.
func FormatAddr(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
