// Package cmd provides the CLI commands for repoinsight: the queue
// worker plus synchronous one-shot ingest/query invocations for local
// use without a broker.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/repoinsight/internal/bm25"
	"github.com/Aman-CERP/repoinsight/internal/config"
	"github.com/Aman-CERP/repoinsight/internal/gitclone"
	"github.com/Aman-CERP/repoinsight/internal/ingest"
	"github.com/Aman-CERP/repoinsight/internal/logging"
	"github.com/Aman-CERP/repoinsight/internal/providers"
	"github.com/Aman-CERP/repoinsight/internal/query"
	"github.com/Aman-CERP/repoinsight/internal/retrieval"
	"github.com/Aman-CERP/repoinsight/internal/sessionstore"
	"github.com/Aman-CERP/repoinsight/internal/store"
	"github.com/Aman-CERP/repoinsight/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the repoinsight CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repoinsight",
		Short: "Index repositories and answer questions about them",
		Long: `repoinsight clones a repository, chunks its files with
syntax-aware parsing, embeds the chunks into a per-repository vector
collection, and answers natural-language questions over them with
hybrid (vector + BM25) retrieval.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("repoinsight version {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newCollectionsCmd())
	return cmd
}

func setupLogging(*cobra.Command, []string) error {
	lcfg := logging.DefaultConfig()
	if debugMode {
		lcfg = logging.DebugConfig()
	}
	lcfg.WriteToStderr = isatty.IsTerminal(os.Stderr.Fd()) || debugMode

	logger, cleanup, err := logging.Setup(lcfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	slog.SetDefault(logger)
	loggingCleanup = cleanup
	return nil
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// app bundles the wired pipeline collaborators every subcommand needs.
type app struct {
	cfg       *config.Config
	sessions  *sessionstore.Store
	vectors   store.Store
	registry  *providers.Registry
	orch      *ingest.Orchestrator
	querySvc  *query.Service
	bm25Cache *bm25.Cache
}

func buildApp() (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	sessions, err := sessionstore.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	vectors, err := openVectorStore(cfg)
	if err != nil {
		sessions.Close()
		return nil, nil, err
	}

	registry := providers.NewRegistry()
	registerProviders(registry, cfg)
	cloner := gitclone.NewCloner(cfg.GitCloneDir, cfg.CloneTimeout)
	orch := ingest.New(sessions, vectors, cloner, registry, cfg, slog.Default())

	cache, err := bm25.NewCache(cfg.BM25CacheSize)
	if err != nil {
		sessions.Close()
		return nil, nil, err
	}
	// The query service picks the embedder per session from its
	// embedding_config, so the retriever carries no default.
	retriever := retrieval.NewRetriever(vectors, cache)
	querySvc := query.NewService(sessions, retriever, registry, retrieval.Params{
		VectorTopK: cfg.VectorSearchTopK,
		BM25TopK:   cfg.BM25SearchTopK,
		FinalTopK:  cfg.FinalContextTopK,
	}, slog.Default())

	cleanup := func() { sessions.Close() }
	return &app{
		cfg:       cfg,
		sessions:  sessions,
		vectors:   vectors,
		registry:  registry,
		orch:      orch,
		querySvc:  querySvc,
		bm25Cache: cache,
	}, cleanup, nil
}

// registerProviders adds the configured embedder variants on top of
// the registry's built-in "static" pair: a generic HTTP adapter per
// API-keyed provider, and the Ollama local-model variant when a
// daemon host is configured.
func registerProviders(registry *providers.Registry, cfg *config.Config) {
	if cfg.EmbeddingAPIURL != "" {
		for name, key := range cfg.APIKeys {
			registry.RegisterEmbedder(name,
				providers.NewHTTPEmbedder(cfg.EmbeddingAPIURL, cfg.EmbeddingModel, key))
			registry.RegisterChatter(name,
				providers.NewHTTPChatter(cfg.EmbeddingAPIURL, key))
		}
	}
	if cfg.OllamaHost != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ollama, err := providers.NewOllamaEmbedder(ctx, providers.OllamaConfig{
			Host:  cfg.OllamaHost,
			Model: cfg.EmbeddingModel,
		})
		if err != nil {
			slog.Warn("ollama embedder unavailable", "host", cfg.OllamaHost, "error", err)
		} else {
			registry.RegisterEmbedder("ollama", ollama)
		}
	}
}

// openVectorStore retries connection establishment with the
// configured fixed delay before giving up.
func openVectorStore(cfg *config.Config) (store.Store, error) {
	var lastErr error
	attempts := cfg.VectorStoreRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		s, err := store.OpenCollectionStore(cfg.VectorStorePath, cfg.VectorDimensions)
		if err == nil {
			return s, nil
		}
		lastErr = err
		if i < attempts-1 {
			slog.Warn("vector store open failed, retrying",
				"attempt", i+1, "error", err)
			time.Sleep(cfg.VectorStoreDelay)
		}
	}
	return nil, fmt.Errorf("open vector store after %d attempts: %w", attempts, lastErr)
}
