// Package apperr declares the error taxonomy shared across the
// ingestion, retrieval, and query-service packages.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies one entry of the error taxonomy.
type Code string

const (
	CodeInvalidRepositoryURL  Code = "InvalidRepositoryURL"
	CodeCloneFailed           Code = "CloneFailed"
	CodeEmbeddingAuthError    Code = "EmbeddingAuthError"
	CodeEmbeddingRateLimited  Code = "EmbeddingRateLimited"
	CodeEmbeddingTransient    Code = "EmbeddingTransient"
	CodeVectorStoreUnavailable Code = "VectorStoreUnavailable"
	CodeSessionNotFound       Code = "SessionNotFound"
	CodeSessionNotReady       Code = "SessionNotReady"
	CodeTaskCancelled         Code = "TaskCancelled"
	CodeInternal              Code = "InternalError"
)

// Error is the tagged-sum error type. Every taxonomy entry is carried
// as a Code plus a human-readable message, and wraps an optional cause
// so errors.Is/errors.As still resolve through fmt.Errorf("%w", ...).
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches by Code, so errors.Is(err, apperr.New(CodeSessionNotFound, "", nil))
// succeeds regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds a tagged error.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Wrap tags an existing error with a taxonomy code, preserving it as
// the Cause so errors.As still reaches the original.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// GetCode extracts the taxonomy code from err, walking the Unwrap
// chain. Returns "" if no *Error is found.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// sentinels for errors.Is comparisons against a bare code, e.g.
// errors.Is(err, apperr.ErrSessionNotFound).
var (
	ErrInvalidRepositoryURL   = &Error{Code: CodeInvalidRepositoryURL}
	ErrCloneFailed            = &Error{Code: CodeCloneFailed}
	ErrEmbeddingAuthError     = &Error{Code: CodeEmbeddingAuthError}
	ErrEmbeddingRateLimited   = &Error{Code: CodeEmbeddingRateLimited}
	ErrEmbeddingTransient     = &Error{Code: CodeEmbeddingTransient}
	ErrVectorStoreUnavailable = &Error{Code: CodeVectorStoreUnavailable}
	ErrSessionNotFound        = &Error{Code: CodeSessionNotFound}
	ErrSessionNotReady        = &Error{Code: CodeSessionNotReady}
	ErrTaskCancelled          = &Error{Code: CodeTaskCancelled}
	ErrInternal               = &Error{Code: CodeInternal}
)
