// Package queue is the durable task queue and worker loop: ingest and
// query tasks are Redis hashes keyed by session id, so a second
// enqueue for the same session finds the first one's hash instead of
// spawning a duplicate execution, and any worker process on the same
// broker can claim, progress, and cancel them.
package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind discriminates the two task kinds.
type Kind string

const (
	KindIngest Kind = "ingest"
	KindQuery  Kind = "query"
)

// State is a task's lifecycle state as surfaced to callers.
type State string

const (
	StatePending  State = "PENDING"
	StateStarted  State = "STARTED"
	StateProgress State = "PROGRESS"
	StateSuccess  State = "SUCCESS"
	StateFailure  State = "FAILURE"
	StateRevoked  State = "REVOKED"
)

// IsTerminal reports whether no further transition can happen.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFailure || s == StateRevoked
}

// Progress is the payload carried by a PROGRESS state.
type Progress struct {
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	StatusMsg string `json:"status_msg"`
}

// Task is one queued unit of work.
type Task struct {
	ID        string
	Kind      Kind
	SessionID string
	Payload   json.RawMessage
	State     State
	Progress  Progress
	Result    json.RawMessage
	Error     string
	Cancelled bool
	CreatedAt time.Time
}

// Result is the envelope every completed task stores: success carries
// a data payload, failure carries an error string; both echo the
// session id.
type Result struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	SessionID string          `json:"session_id"`
}

// IngestPayload is the payload of a KindIngest task.
type IngestPayload struct {
	RepoURL         string `json:"repo_url"`
	SessionID       string `json:"session_id"`
	EmbeddingConfig string `json:"embedding_config"`
	ForceUpdate     bool   `json:"force_update,omitempty"`
}

// QueryPayload is the payload of a KindQuery task.
type QueryPayload struct {
	SessionID      string            `json:"session_id"`
	Question       string            `json:"question"`
	GenerationMode string            `json:"generation_mode"`
	LLMConfig      map[string]string `json:"llm_config,omitempty"`
}

const timeLayout = time.RFC3339Nano

// fields flattens a Task into the Redis hash representation. Every
// value is a string; the hash is the single durable record of the
// task.
func (t *Task) fields() map[string]any {
	return map[string]any{
		"id":               t.ID,
		"kind":             string(t.Kind),
		"session_id":       t.SessionID,
		"payload":          string(t.Payload),
		"state":            string(t.State),
		"progress_current": strconv.Itoa(t.Progress.Current),
		"progress_total":   strconv.Itoa(t.Progress.Total),
		"status_msg":       t.Progress.StatusMsg,
		"result":           string(t.Result),
		"error":            t.Error,
		"cancelled":        boolField(t.Cancelled),
		"created_at":       t.CreatedAt.Format(timeLayout),
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// taskFromFields rebuilds a Task from a Redis hash dump. An empty map
// means the key does not exist.
func taskFromFields(fields map[string]string) (*Task, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	t := &Task{
		ID:        fields["id"],
		Kind:      Kind(fields["kind"]),
		SessionID: fields["session_id"],
		Payload:   json.RawMessage(fields["payload"]),
		State:     State(fields["state"]),
		Error:     fields["error"],
		Cancelled: fields["cancelled"] == "1",
	}
	if fields["result"] != "" {
		t.Result = json.RawMessage(fields["result"])
	}
	var err error
	if t.Progress.Current, err = atoiField(fields["progress_current"]); err != nil {
		return nil, fmt.Errorf("queue: bad progress_current: %w", err)
	}
	if t.Progress.Total, err = atoiField(fields["progress_total"]); err != nil {
		return nil, fmt.Errorf("queue: bad progress_total: %w", err)
	}
	t.Progress.StatusMsg = fields["status_msg"]
	if raw := fields["created_at"]; raw != "" {
		t.CreatedAt, _ = time.Parse(timeLayout, raw)
	}
	return t, nil
}

func atoiField(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
