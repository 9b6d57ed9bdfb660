package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	assert.Equal(t, "SessionNotFound", New(CodeSessionNotFound, "", nil).Error())
	assert.Equal(t, "CloneFailed: network down", New(CodeCloneFailed, "network down", nil).Error())
}

func TestIsMatchesByCode(t *testing.T) {
	err := New(CodeTaskCancelled, "cancelled at batch 3", nil)
	assert.True(t, errors.Is(err, ErrTaskCancelled))
	assert.False(t, errors.Is(err, ErrCloneFailed))

	wrapped := fmt.Errorf("worker: %w", err)
	assert.True(t, errors.Is(wrapped, ErrTaskCancelled))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(CodeVectorStoreUnavailable, cause)
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, CodeVectorStoreUnavailable, GetCode(err))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(CodeInternal, nil))
}

func TestGetCodeWalksChain(t *testing.T) {
	inner := New(CodeEmbeddingRateLimited, "429 from provider", nil)
	outer := fmt.Errorf("batch [0:32): %w", inner)
	assert.Equal(t, CodeEmbeddingRateLimited, GetCode(outer))
	assert.Equal(t, Code(""), GetCode(errors.New("plain")))
}
