// Package sessionstore persists the durable per-request state:
// AnalysisSession rows with their progress counters, one FileMetadata
// row per file an ingest encountered, and the query log.
package sessionstore

import "time"

// Status is an AnalysisSession's lifecycle state.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusProcessing     Status = "PROCESSING"
	StatusSuccess        Status = "SUCCESS"
	StatusPartialSuccess Status = "PARTIAL_SUCCESS"
	StatusFailed         Status = "FAILED"
	StatusCancelled      Status = "CANCELLED"
)

// IsTerminal reports whether s is one of the four terminal statuses.
// A terminal session also has completed_at set.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusPartialSuccess, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// AnalysisSession is the per-request record.
type AnalysisSession struct {
	SessionID            string
	RepositoryURL        string
	RepositoryIdentifier string
	Status               Status
	TaskID               string
	EmbeddingConfig      string // opaque JSON
	TotalFiles           int
	ProcessedFiles       int
	TotalChunks          int
	IndexedChunks        int
	CreatedAt            time.Time
	StartedAt            *time.Time
	CompletedAt          *time.Time
	ErrorMessage         string
}

// FileType is FileMetadata's file_type enum.
type FileType string

const (
	FileTypeCode    FileType = "code"
	FileTypeDoc     FileType = "document"
	FileTypeConfig  FileType = "config"
	FileTypeData    FileType = "data"
	FileTypeBinary  FileType = "binary"
	FileTypeUnknown FileType = "unknown"
)

// ProcessState is FileMetadata.is_processed.
type ProcessState string

const (
	ProcessPending ProcessState = "pending"
	ProcessSuccess ProcessState = "success"
	ProcessSkipped ProcessState = "skipped"
	ProcessFailed  ProcessState = "failed"
)

// FileMetadata is one row per file encountered during ingest.
type FileMetadata struct {
	SessionID    string
	FilePath     string
	FileType     FileType
	FileExtension string
	FileSize     int64
	LineCount    int
	ChunkCount   int
	IsProcessed  ProcessState
	ErrorMessage string
}

// QueryLog records one executed query with its timings.
type QueryLog struct {
	SessionID             string
	Question              string
	Answer                string
	RetrievedChunksCount  int
	GenerationMode        string
	RetrievalTimeMillis   int64
	GenerationTimeMillis  int64
	TotalTimeMillis       int64
	CreatedAt             time.Time
}
