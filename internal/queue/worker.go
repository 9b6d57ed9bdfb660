package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/repoinsight/internal/apperr"
)

// Handler executes one claimed task. report publishes PROGRESS
// updates; cancelled is the cooperative cancel flag the pipeline
// checks between files and between embedding batches. The returned
// value becomes the Result data payload.
type Handler func(ctx context.Context, task *Task, report func(Progress), cancelled func() bool) (any, error)

// Worker consumes tasks from the shared broker. Each claimed task
// runs on a single goroutine; Concurrency controls how many tasks one
// worker process executes at once.
type Worker struct {
	queue       *Queue
	handlers    map[Kind]Handler
	concurrency int
	claimWait   time.Duration
	log         *slog.Logger
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Concurrency int
	ClaimWait   time.Duration
	Logger      *slog.Logger
}

func NewWorker(q *Queue, opts WorkerOptions) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.ClaimWait <= 0 {
		opts.ClaimWait = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Worker{
		queue:       q,
		handlers:    map[Kind]Handler{},
		concurrency: opts.Concurrency,
		claimWait:   opts.ClaimWait,
		log:         opts.Logger,
	}
}

// Register installs the handler for one task kind.
func (w *Worker) Register(kind Kind, h Handler) {
	w.handlers[kind] = h
}

// Run consumes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				sessionID, err := w.queue.claim(gctx, w.claimWait)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return err
					}
					w.log.Error("claim failed", "error", err)
					select {
					case <-gctx.Done():
						return gctx.Err()
					case <-time.After(w.claimWait):
					}
					continue
				}
				if sessionID == "" {
					continue
				}
				w.execute(gctx, sessionID)
			}
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) execute(ctx context.Context, sessionID string) {
	task, err := w.queue.Get(ctx, sessionID)
	if err != nil || task == nil {
		w.log.Error("claimed task not found", "session_id", sessionID, "error", err)
		return
	}
	// A revoke can land between enqueue and claim.
	if task.State.IsTerminal() || task.Cancelled {
		return
	}

	handler, ok := w.handlers[task.Kind]
	if !ok {
		w.finish(ctx, task, StateFailure, Result{
			Success:   false,
			Error:     fmt.Sprintf("no handler for task kind %q", task.Kind),
			SessionID: task.SessionID,
		})
		return
	}

	if err := w.queue.markStarted(ctx, sessionID); err != nil {
		w.log.Error("mark started failed", "session_id", sessionID, "error", err)
	}

	report := func(p Progress) {
		if err := w.queue.ReportProgress(ctx, sessionID, p); err != nil {
			w.log.Warn("progress update failed", "session_id", sessionID, "error", err)
		}
	}
	cancelled := func() bool { return w.queue.Cancelled(ctx, sessionID) }

	start := time.Now()
	data, err := handler(ctx, task, report, cancelled)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, apperr.ErrTaskCancelled):
		w.log.Info("task cancelled", "session_id", sessionID, "kind", task.Kind, "elapsed", elapsed)
		w.finish(ctx, task, StateRevoked, Result{
			Success:   false,
			Error:     string(apperr.CodeTaskCancelled),
			SessionID: task.SessionID,
		})
	case err != nil:
		w.log.Error("task failed", "session_id", sessionID, "kind", task.Kind, "error", err, "elapsed", elapsed)
		w.finish(ctx, task, StateFailure, Result{
			Success:   false,
			Error:     errorString(err),
			SessionID: task.SessionID,
		})
	default:
		raw, merr := json.Marshal(data)
		if merr != nil {
			w.finish(ctx, task, StateFailure, Result{
				Success:   false,
				Error:     fmt.Sprintf("marshal result: %v", merr),
				SessionID: task.SessionID,
			})
			return
		}
		w.log.Info("task succeeded", "session_id", sessionID, "kind", task.Kind, "elapsed", elapsed)
		w.finish(ctx, task, StateSuccess, Result{
			Success:   true,
			Data:      raw,
			SessionID: task.SessionID,
		})
	}
}

func (w *Worker) finish(ctx context.Context, task *Task, state State, res Result) {
	if err := w.queue.complete(ctx, task.SessionID, state, res); err != nil {
		w.log.Error("finalize task failed", "session_id", task.SessionID, "error", err)
	}
}

// errorString prefers the taxonomy code so callers polling the task
// result can match on a stable string like "SessionNotFound".
func errorString(err error) string {
	if code := apperr.GetCode(err); code != "" {
		return string(code)
	}
	return err.Error()
}
