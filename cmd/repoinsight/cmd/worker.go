package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/repoinsight/internal/ingest"
	"github.com/Aman-CERP/repoinsight/internal/query"
	"github.com/Aman-CERP/repoinsight/internal/queue"
	"github.com/Aman-CERP/repoinsight/internal/repoident"
	"github.com/Aman-CERP/repoinsight/internal/sessionstore"
)

func newWorkerCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume ingest and query tasks from the Redis broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), concurrency)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Tasks to execute at once in this process")
	return cmd
}

func runWorker(ctx context.Context, concurrency int) error {
	a, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	q, err := queue.New(ctx, queue.Options{
		Addr:          a.cfg.RedisAddr,
		DB:            a.cfg.RedisDB,
		Password:      a.cfg.RedisPassword,
		ResultExpires: a.cfg.ResultExpires,
	})
	if err != nil {
		return err
	}
	defer q.Close()

	w := queue.NewWorker(q, queue.WorkerOptions{
		Concurrency: concurrency,
		Logger:      slog.Default(),
	})
	w.Register(queue.KindIngest, ingestHandler(a))
	w.Register(queue.KindQuery, queryHandler(a))

	slog.Info("worker started",
		"redis", a.cfg.RedisAddr,
		"concurrency", concurrency,
		"clone_dir", a.cfg.GitCloneDir)
	return w.Run(ctx)
}

// ingestHandler adapts the orchestrator to the queue's handler
// contract, ensuring a session row exists for requests that arrived
// on the broker without one.
func ingestHandler(a *app) queue.Handler {
	return func(ctx context.Context, task *queue.Task, report func(queue.Progress), cancelled func() bool) (any, error) {
		var p queue.IngestPayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode ingest payload: %w", err)
		}
		if p.SessionID == "" {
			p.SessionID = task.SessionID
		}

		if err := ensureSession(ctx, a.sessions, p); err != nil {
			return nil, err
		}

		progress := func(current, total int, msg string) {
			report(queue.Progress{Current: current, Total: total, StatusMsg: msg})
		}
		out, err := a.orch.Run(ctx, ingest.Request{
			RepoURL:         p.RepoURL,
			SessionID:       p.SessionID,
			EmbeddingConfig: p.EmbeddingConfig,
			ForceUpdate:     p.ForceUpdate,
		}, progress, cancelled)
		if err != nil {
			return nil, err
		}
		// A fresh ingest invalidates any cached lexical index built
		// from the collection's previous contents.
		a.bm25Cache.Invalidate(out.RepositoryIdentifier)
		return out, nil
	}
}

func ensureSession(ctx context.Context, sessions *sessionstore.Store, p queue.IngestPayload) error {
	existing, err := sessions.GetSession(ctx, p.SessionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	repoID, _ := repoident.Identifier(p.RepoURL)
	return sessions.CreateSession(ctx, &sessionstore.AnalysisSession{
		SessionID:            p.SessionID,
		RepositoryURL:        p.RepoURL,
		RepositoryIdentifier: repoID,
		Status:               sessionstore.StatusPending,
		EmbeddingConfig:      p.EmbeddingConfig,
		CreatedAt:            time.Now().UTC(),
	})
}

func queryHandler(a *app) queue.Handler {
	return func(ctx context.Context, task *queue.Task, report func(queue.Progress), cancelled func() bool) (any, error) {
		var p queue.QueryPayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode query payload: %w", err)
		}
		return a.querySvc.Execute(ctx, query.Request{
			SessionID:      p.SessionID,
			Question:       p.Question,
			GenerationMode: p.GenerationMode,
			LLMConfig:      p.LLMConfig,
		})
	}
}
