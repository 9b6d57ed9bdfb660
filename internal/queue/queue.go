package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	pendingList   = "repoinsight:queue:pending"
	taskKeyPrefix = "repoinsight:task:"
	idKeyPrefix   = "repoinsight:taskid:"
)

// Queue enqueues tasks onto the shared Redis broker and reads their
// durable state back.
type Queue struct {
	rdb       *redis.Client
	resultTTL time.Duration
}

// Options configures a Queue.
type Options struct {
	Addr     string
	DB       int
	Password string
	// ResultExpires is how long terminal task hashes stay readable.
	ResultExpires time.Duration
}

// New connects to Redis and returns a Queue. The connection is
// verified with a ping so a misconfigured broker fails at startup,
// not on first enqueue.
func New(ctx context.Context, opts Options) (*Queue, error) {
	if opts.ResultExpires <= 0 {
		opts.ResultExpires = time.Hour
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		DB:       opts.DB,
		Password: opts.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("queue: connect to redis at %s: %w", opts.Addr, err)
	}
	return &Queue{rdb: rdb, resultTTL: opts.ResultExpires}, nil
}

// NewWithClient wraps an existing client; used by tests.
func NewWithClient(rdb *redis.Client, resultTTL time.Duration) *Queue {
	if resultTTL <= 0 {
		resultTTL = time.Hour
	}
	return &Queue{rdb: rdb, resultTTL: resultTTL}
}

func (q *Queue) Close() error { return q.rdb.Close() }

func taskKey(sessionID string) string { return taskKeyPrefix + sessionID }
func idKey(taskID string) string      { return idKeyPrefix + taskID }

// Enqueue submits a task keyed by session id. Enqueue is idempotent
// on that id: the HSetNX on the state field is the guard, so a second
// submission for a live session returns the existing task id with
// alreadyQueued=true instead of spawning a second execution.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, sessionID string, payload any) (taskID string, alreadyQueued bool, err error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", false, fmt.Errorf("queue: marshal payload: %w", err)
	}

	key := taskKey(sessionID)
	created, err := q.rdb.HSetNX(ctx, key, "state", string(StatePending)).Result()
	if err != nil {
		return "", false, fmt.Errorf("queue: enqueue %s: %w", sessionID, err)
	}
	if !created {
		existingID, err := q.rdb.HGet(ctx, key, "id").Result()
		if err != nil {
			return "", false, fmt.Errorf("queue: read existing task id: %w", err)
		}
		return existingID, true, nil
	}

	t := &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		SessionID: sessionID,
		Payload:   raw,
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
	}
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, key, t.fields())
	pipe.Set(ctx, idKey(t.ID), sessionID, 0)
	pipe.LPush(ctx, pendingList, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", false, fmt.Errorf("queue: enqueue %s: %w", sessionID, err)
	}
	return t.ID, false, nil
}

// Get returns the task for sessionID, or nil if none exists (it may
// have expired after RESULT_EXPIRES).
func (q *Queue) Get(ctx context.Context, sessionID string) (*Task, error) {
	fields, err := q.rdb.HGetAll(ctx, taskKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: get task %s: %w", sessionID, err)
	}
	return taskFromFields(fields)
}

// GetByTaskID resolves a task id to its session and returns the task.
func (q *Queue) GetByTaskID(ctx context.Context, taskID string) (*Task, error) {
	sessionID, err := q.rdb.Get(ctx, idKey(taskID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: resolve task id %s: %w", taskID, err)
	}
	return q.Get(ctx, sessionID)
}

// Revoke cancels a task by task id. A still-PENDING task transitions
// straight to REVOKED; a running one gets its cancelled flag set, and
// the worker observes that flag at the pipeline's checkpoints.
func (q *Queue) Revoke(ctx context.Context, taskID string) error {
	sessionID, err := q.rdb.Get(ctx, idKey(taskID)).Result()
	if err == redis.Nil {
		return fmt.Errorf("queue: no task with id %s", taskID)
	}
	if err != nil {
		return fmt.Errorf("queue: resolve task id %s: %w", taskID, err)
	}

	key := taskKey(sessionID)
	state, err := q.rdb.HGet(ctx, key, "state").Result()
	if err != nil {
		return fmt.Errorf("queue: read state for %s: %w", sessionID, err)
	}

	if State(state) == StatePending {
		pipe := q.rdb.TxPipeline()
		pipe.HSet(ctx, key, "state", string(StateRevoked), "cancelled", "1")
		pipe.Expire(ctx, key, q.resultTTL)
		pipe.LRem(ctx, pendingList, 0, sessionID)
		_, err := pipe.Exec(ctx)
		return err
	}
	return q.rdb.HSet(ctx, key, "cancelled", "1").Err()
}

// Cancelled reports the task's cancel flag; workers poll this at each
// cooperative checkpoint.
func (q *Queue) Cancelled(ctx context.Context, sessionID string) bool {
	v, err := q.rdb.HGet(ctx, taskKey(sessionID), "cancelled").Result()
	return err == nil && v == "1"
}

// claim pops the next pending session id, blocking up to timeout.
// Returns "" when the wait times out with nothing queued.
func (q *Queue) claim(ctx context.Context, timeout time.Duration) (string, error) {
	vals, err := q.rdb.BRPop(ctx, timeout, pendingList).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// BRPop returns [list, value].
	return vals[1], nil
}

func (q *Queue) markStarted(ctx context.Context, sessionID string) error {
	return q.rdb.HSet(ctx, taskKey(sessionID), "state", string(StateStarted)).Err()
}

// ReportProgress publishes a PROGRESS update for a running task.
func (q *Queue) ReportProgress(ctx context.Context, sessionID string, p Progress) error {
	return q.rdb.HSet(ctx, taskKey(sessionID),
		"state", string(StateProgress),
		"progress_current", p.Current,
		"progress_total", p.Total,
		"status_msg", p.StatusMsg,
	).Err()
}

// complete writes the terminal state plus the Result envelope and
// starts the retention clock.
func (q *Queue) complete(ctx context.Context, sessionID string, state State, res Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("queue: marshal result: %w", err)
	}
	key := taskKey(sessionID)
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, key, "state", string(state), "result", string(raw), "error", res.Error)
	pipe.Expire(ctx, key, q.resultTTL)
	_, err = pipe.Exec(ctx)
	return err
}
