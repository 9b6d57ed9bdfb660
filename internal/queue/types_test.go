package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/repoinsight/internal/apperr"
)

func TestTaskFieldsRoundTrip(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	in := &Task{
		ID:        "t-1",
		Kind:      KindIngest,
		SessionID: "s-1",
		Payload:   json.RawMessage(`{"repo_url":"https://github.com/pallets/flask"}`),
		State:     StateProgress,
		Progress:  Progress{Current: 3, Total: 10, StatusMsg: "embedding batches"},
		Error:     "",
		Cancelled: true,
		CreatedAt: created,
	}

	fields := in.fields()
	strFields := make(map[string]string, len(fields))
	for k, v := range fields {
		strFields[k] = fmt.Sprint(v)
	}

	out, err := taskFromFields(strFields)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Kind, out.Kind)
	assert.Equal(t, in.SessionID, out.SessionID)
	assert.JSONEq(t, string(in.Payload), string(out.Payload))
	assert.Equal(t, in.State, out.State)
	assert.Equal(t, in.Progress, out.Progress)
	assert.True(t, out.Cancelled)
	assert.True(t, created.Equal(out.CreatedAt))
}

func TestTaskFromFieldsMissingKey(t *testing.T) {
	out, err := taskFromFields(map[string]string{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestTaskFromFieldsBadProgress(t *testing.T) {
	_, err := taskFromFields(map[string]string{"id": "x", "progress_current": "three"})
	require.Error(t, err)
}

func TestStateIsTerminal(t *testing.T) {
	assert.False(t, StatePending.IsTerminal())
	assert.False(t, StateStarted.IsTerminal())
	assert.False(t, StateProgress.IsTerminal())
	assert.True(t, StateSuccess.IsTerminal())
	assert.True(t, StateFailure.IsTerminal())
	assert.True(t, StateRevoked.IsTerminal())
}

func TestResultEnvelopeShape(t *testing.T) {
	res := Result{Success: false, Error: "SessionNotFound", SessionID: "s-9"}
	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"SessionNotFound","session_id":"s-9"}`, string(raw))

	res = Result{Success: true, Data: json.RawMessage(`{"n":1}`), SessionID: "s-9"}
	raw, err = json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":{"n":1},"session_id":"s-9"}`, string(raw))
}

func TestErrorStringPrefersTaxonomyCode(t *testing.T) {
	err := apperr.New(apperr.CodeSessionNotFound, "no session abc", nil)
	assert.Equal(t, "SessionNotFound", errorString(fmt.Errorf("query: %w", err)))

	assert.Equal(t, "plain failure", errorString(errors.New("plain failure")))
}

func TestPayloadMarshalling(t *testing.T) {
	p := IngestPayload{
		RepoURL:         "https://github.com/pallets/flask",
		SessionID:       "s-1",
		EmbeddingConfig: `{"provider":"qwen","model":"text-embedding-v4","batch_size":32}`,
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var back IngestPayload
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, p, back)

	q := QueryPayload{SessionID: "s-1", Question: "where is routing defined", GenerationMode: "plugin"}
	raw, err = json.Marshal(q)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "llm_config")
}
