// Package ingest drives the end-to-end ingestion pipeline: clone,
// scan, chunk, embed, store, with durable per-phase progress and
// cooperative cancellation at file and batch boundaries.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/repoinsight/internal/apperr"
	"github.com/Aman-CERP/repoinsight/internal/config"
	"github.com/Aman-CERP/repoinsight/internal/embed"
	"github.com/Aman-CERP/repoinsight/internal/gitclone"
	"github.com/Aman-CERP/repoinsight/internal/providers"
	"github.com/Aman-CERP/repoinsight/internal/repoident"
	"github.com/Aman-CERP/repoinsight/internal/scanner"
	"github.com/Aman-CERP/repoinsight/internal/sessionstore"
	"github.com/Aman-CERP/repoinsight/internal/store"
	"github.com/Aman-CERP/repoinsight/internal/syntaxchunk"
)

// MaxFileSize is the per-file ceiling: larger files are recorded as
// skipped rather than chunked.
const MaxFileSize = 1 << 20

// metadataBatchSize is how many FileMetadata rows are persisted per
// insert before falling back to one-at-a-time salvage.
const metadataBatchSize = 50

// Cloner is the slice of gitclone the orchestrator needs; tests
// substitute a stub pointing at a prepared directory.
type Cloner interface {
	Clone(ctx context.Context, opts gitclone.CloneOptions) (string, error)
}

// Request identifies one ingest run.
type Request struct {
	RepoURL         string
	SessionID       string
	EmbeddingConfig string
	ForceUpdate     bool
}

// Outcome is the ingest result surfaced through the task queue.
type Outcome struct {
	SessionID            string `json:"session_id"`
	RepositoryIdentifier string `json:"repository_identifier"`
	Status               string `json:"status"`
	TotalFiles           int    `json:"total_files"`
	ProcessedFiles       int    `json:"processed_files"`
	TotalChunks          int    `json:"total_chunks"`
	IndexedChunks        int    `json:"indexed_chunks"`
	Reused               bool   `json:"reused,omitempty"`
	Note                 string `json:"note,omitempty"`
}

// ProgressFunc receives advisory progress marks (percent out of 100).
type ProgressFunc func(current, total int, statusMsg string)

// CancelFunc is the cooperative cancel flag, polled between files and
// between embedding batches.
type CancelFunc func() bool

// Orchestrator wires the pipeline's collaborators together.
type Orchestrator struct {
	sessions *sessionstore.Store
	vectors  store.Store
	cloner   Cloner
	registry *providers.Registry
	cfg      *config.Config
	log      *slog.Logger
}

func New(sessions *sessionstore.Store, vectors store.Store, cloner Cloner, registry *providers.Registry, cfg *config.Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		sessions: sessions,
		vectors:  vectors,
		cloner:   cloner,
		registry: registry,
		cfg:      cfg,
		log:      log,
	}
}

type pendingChunk struct {
	chunk    syntaxchunk.RawChunk
	filePath string
	language string
}

// Run executes the pipeline for req. Failures in the setup phases
// (status, embedder, collection, clone) are fatal and mark the session
// FAILED; a failed embedding batch is recorded and yields
// PARTIAL_SUCCESS. A file that cannot be read is recorded as failed in
// its FileMetadata row and does not change the final status.
// Cancellation observed at a checkpoint marks the
// session CANCELLED and returns apperr.ErrTaskCancelled.
func (o *Orchestrator) Run(ctx context.Context, req Request, report ProgressFunc, cancelled CancelFunc) (*Outcome, error) {
	if report == nil {
		report = func(int, int, string) {}
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	// Phase 1: session goes PROCESSING.
	if err := o.sessions.MarkProcessing(ctx, req.SessionID, time.Now().UTC()); err != nil {
		return nil, o.fail(ctx, req.SessionID, apperr.Wrap(apperr.CodeInternal, err))
	}
	report(5, 100, "session accepted")

	// Phase 2: embedder from the opaque embedding_config blob.
	embCfg, err := config.ParseEmbeddingConfig(req.EmbeddingConfig)
	if err != nil {
		return nil, o.fail(ctx, req.SessionID, apperr.Wrap(apperr.CodeInternal, err))
	}
	embedder, err := o.registry.Embedder(embCfg.Provider)
	if err != nil {
		return nil, o.fail(ctx, req.SessionID, apperr.Wrap(apperr.CodeInternal, err))
	}
	processor := embed.NewBatchProcessor(embedder, embed.BatchConfig{
		BatchSize:  embCfg.BatchSize,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	})
	report(15, 100, "embedder ready")

	// Phase 3: collection keyed by repository identifier, with the
	// reuse short-circuit for an already-populated collection.
	repoID, err := repoident.Identifier(req.RepoURL)
	if err != nil {
		return nil, o.fail(ctx, req.SessionID, apperr.Wrap(apperr.CodeInvalidRepositoryURL, err))
	}
	exists, err := o.vectors.CollectionExists(ctx, repoID)
	if err != nil {
		return nil, o.fail(ctx, req.SessionID, apperr.Wrap(apperr.CodeVectorStoreUnavailable, err))
	}
	if exists {
		count, err := o.vectors.Count(ctx, repoID)
		if err != nil {
			return nil, o.fail(ctx, req.SessionID, apperr.Wrap(apperr.CodeVectorStoreUnavailable, err))
		}
		if count > 0 {
			o.log.Info("collection already populated, reusing",
				"repository_identifier", repoID, "chunks", count)
			now := time.Now().UTC()
			if err := o.sessions.MarkTerminal(ctx, req.SessionID, sessionstore.StatusSuccess, now, ""); err != nil {
				return nil, apperr.Wrap(apperr.CodeInternal, err)
			}
			report(100, 100, "repository already analyzed")
			return &Outcome{
				SessionID:            req.SessionID,
				RepositoryIdentifier: repoID,
				Status:               string(sessionstore.StatusSuccess),
				Reused:               true,
				Note:                 fmt.Sprintf("collection %s already holds %d chunks", repoID, count),
			}, nil
		}
	}
	if err := o.vectors.CreateCollection(ctx, repoID); err != nil {
		return nil, o.fail(ctx, req.SessionID, apperr.Wrap(apperr.CodeVectorStoreUnavailable, err))
	}
	report(20, 100, "collection ready")

	// Phase 4: shallow clone, guarded by an advisory lock so two
	// concurrent ingests of the same repository don't race git into
	// the same path.
	owner, name, err := repoident.ExtractOwnerRepo(req.RepoURL)
	if err != nil {
		return nil, o.fail(ctx, req.SessionID, apperr.Wrap(apperr.CodeInvalidRepositoryURL, err))
	}
	clonePath, err := o.cloneLocked(ctx, gitclone.CloneOptions{
		RepoURL:     req.RepoURL,
		Owner:       strings.ToLower(owner),
		Name:        strings.ToLower(name),
		ForceUpdate: req.ForceUpdate,
	})
	if err != nil {
		return nil, o.fail(ctx, req.SessionID, err)
	}
	report(30, 100, "repository cloned")

	// Phase 5: scan and chunk.
	chunks, outcome, err := o.scanAndChunk(ctx, req, repoID, clonePath, report, cancelled)
	if err != nil {
		return nil, err
	}

	// Phase 6: embed and store.
	if err := o.embedAndStore(ctx, req, repoID, chunks, processor, outcome, report, cancelled); err != nil {
		return nil, err
	}

	// Phase 7: terminal status.
	final := sessionstore.StatusSuccess
	if outcome.IndexedChunks < outcome.TotalChunks {
		final = sessionstore.StatusPartialSuccess
	}
	outcome.Status = string(final)
	if err := o.sessions.MarkTerminal(ctx, req.SessionID, final, time.Now().UTC(), ""); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err)
	}
	report(100, 100, "ingest complete")
	o.log.Info("ingest finished",
		"session_id", req.SessionID,
		"repository_identifier", repoID,
		"status", final,
		"files", outcome.TotalFiles,
		"chunks", outcome.IndexedChunks)
	return outcome, nil
}

func (o *Orchestrator) cloneLocked(ctx context.Context, opts gitclone.CloneOptions) (string, error) {
	lockPath := fmt.Sprintf("%s/.%s_%s.lock", o.cfg.GitCloneDir, opts.Owner, opts.Name)
	if err := os.MkdirAll(o.cfg.GitCloneDir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.CodeCloneFailed, err)
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeCloneFailed, fmt.Errorf("acquire clone lock: %w", err))
	}
	if !locked {
		return "", apperr.Wrap(apperr.CodeCloneFailed, fmt.Errorf("clone lock for %s/%s is held", opts.Owner, opts.Name))
	}
	defer lock.Unlock()
	return o.cloner.Clone(ctx, opts)
}

func (o *Orchestrator) scanAndChunk(ctx context.Context, req Request, repoID, clonePath string, report ProgressFunc, cancelled CancelFunc) ([]pendingChunk, *Outcome, error) {
	files, err := scanner.RepoScan(ctx, clonePath, scanner.RepoScanOptions{
		ExcludedDirs: o.cfg.ExcludedDirectories,
		AllowedExts:  o.cfg.AllowedFileExtensions,
	})
	if err != nil {
		return nil, nil, o.fail(ctx, req.SessionID, apperr.Wrap(apperr.CodeInternal, err))
	}

	outcome := &Outcome{
		SessionID:            req.SessionID,
		RepositoryIdentifier: repoID,
		TotalFiles:           len(files),
	}

	chunker := syntaxchunk.NewChunker(syntaxchunk.Params{
		ChunkSize:               o.cfg.ChunkSize,
		ChunkOverlap:            o.cfg.ChunkOverlap,
		MinChunkSize:            syntaxchunk.DefaultParams().MinChunkSize,
		MaxChunkSize:            syntaxchunk.DefaultParams().MaxChunkSize,
		ClassDecomposeThreshold: syntaxchunk.DefaultParams().ClassDecomposeThreshold,
	})
	defer chunker.Close()

	var chunks []pendingChunk
	var metaRows []sessionstore.FileMetadata

	for i, f := range files {
		if cancelled() {
			return nil, nil, o.cancel(ctx, req.SessionID)
		}

		row := sessionstore.FileMetadata{
			SessionID:     req.SessionID,
			FilePath:      f.Path,
			FileType:      sessionstore.FileType(f.FileType),
			FileExtension: f.Extension,
			FileSize:      f.Size,
		}

		switch {
		case f.Size > MaxFileSize:
			row.IsProcessed = sessionstore.ProcessSkipped
			row.ErrorMessage = "file exceeds 1 MiB limit"
		default:
			data, readErr := os.ReadFile(f.AbsPath)
			if readErr != nil {
				row.IsProcessed = sessionstore.ProcessFailed
				row.ErrorMessage = readErr.Error()
				break
			}
			content := DecodeFileContent(data)
			row.LineCount = countLines(content)

			fileChunks, chunkErr := chunker.ChunkFile(ctx, []byte(content), f.Language)
			if chunkErr != nil {
				// Parse failure degrades to a single whole-file chunk.
				o.log.Warn("chunking failed, storing whole file",
					"file", f.Path, "error", chunkErr)
				fileChunks = []syntaxchunk.RawChunk{{
					Content:     content,
					StartLine:   1,
					EndLine:     row.LineCount,
					ElementType: "ast_parsing_failed",
				}}
			}
			for _, c := range fileChunks {
				chunks = append(chunks, pendingChunk{chunk: c, filePath: f.Path, language: f.Language})
			}
			row.ChunkCount = len(fileChunks)
			row.IsProcessed = sessionstore.ProcessSuccess
		}

		metaRows = append(metaRows, row)
		if row.IsProcessed == sessionstore.ProcessSuccess {
			outcome.ProcessedFiles++
			if err := o.sessions.IncrementProcessedFiles(ctx, req.SessionID, 1); err != nil {
				o.log.Warn("processed_files update failed", "error", err)
			}
		}

		// 35% -> 70% across the file walk.
		report(35+(35*(i+1))/len(files), 100, fmt.Sprintf("processed %d/%d files", i+1, len(files)))
	}

	o.persistFileMetadata(ctx, metaRows)

	outcome.TotalChunks = len(chunks)
	if err := o.sessions.SetTotals(ctx, req.SessionID, outcome.TotalFiles, outcome.TotalChunks); err != nil {
		o.log.Warn("totals update failed", "error", err)
	}
	return chunks, outcome, nil
}

// persistFileMetadata writes rows in batches, salvaging each failed
// batch with one-at-a-time inserts.
func (o *Orchestrator) persistFileMetadata(ctx context.Context, rows []sessionstore.FileMetadata) {
	for start := 0; start < len(rows); start += metadataBatchSize {
		end := start + metadataBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		if err := o.sessions.InsertFileMetadataBatch(ctx, batch); err == nil {
			continue
		}
		for _, r := range batch {
			if err := o.sessions.InsertFileMetadataOne(ctx, r); err != nil {
				o.log.Warn("file metadata insert failed", "file", r.FilePath, "error", err)
			}
		}
	}
}

func (o *Orchestrator) embedAndStore(ctx context.Context, req Request, repoID string, chunks []pendingChunk, processor *embed.BatchProcessor, outcome *Outcome, report ProgressFunc, cancelled CancelFunc) error {
	embCfg, _ := config.ParseEmbeddingConfig(req.EmbeddingConfig)
	batchSize := embCfg.BatchSize

	numBatches := (len(chunks) + batchSize - 1) / batchSize
	failedBatches := 0

	for b := 0; b < numBatches; b++ {
		if cancelled() {
			return o.cancel(ctx, req.SessionID)
		}

		start := b * batchSize
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		docs := make([]store.CollectionDoc, len(batch))
		for i, pc := range batch {
			texts[i] = pc.chunk.Content
			docs[i] = store.CollectionDoc{
				Content:  pc.chunk.Content,
				Metadata: chunkMetadata(pc),
			}
		}

		vectors, err := processor.EmbedAll(ctx, texts)
		if err != nil {
			failedBatches++
			o.log.Error("embedding batch failed", "batch", b, "error", err)
			continue
		}
		if _, err := o.vectors.AddDocuments(ctx, repoID, docs, vectors); err != nil {
			failedBatches++
			o.log.Error("vector store append failed", "batch", b, "error", err)
			continue
		}

		outcome.IndexedChunks += len(batch)
		if err := o.sessions.IncrementIndexedChunks(ctx, req.SessionID, len(batch)); err != nil {
			o.log.Warn("indexed_chunks update failed", "error", err)
		}
		// 70% -> 95% across embedding batches.
		report(70+(25*(b+1))/numBatches, 100, fmt.Sprintf("embedded %d/%d batches", b+1, numBatches))
	}

	if failedBatches > 0 {
		o.log.Warn("ingest completed with failed batches",
			"session_id", req.SessionID, "failed_batches", failedBatches)
	}
	return nil
}

// chunkMetadata builds the stored metadata map. Content is duplicated
// into metadata so BM25 rebuilds can read it straight from the
// document dump. Complex values (the merged-name list) are
// JSON-encoded to strings before sanitization.
func chunkMetadata(pc pendingChunk) map[string]string {
	meta := map[string]any{
		"file_path":    pc.filePath,
		"element_type": pc.chunk.ElementType,
		"element_name": pc.chunk.ElementName,
		"start_line":   pc.chunk.StartLine,
		"end_line":     pc.chunk.EndLine,
		"language":     pc.language,
		"chunk_index":  pc.chunk.ChunkIndex,
		"content":      pc.chunk.Content,
	}
	if len(pc.chunk.MergedNames) > 0 {
		meta["is_merged"] = true
		if names, err := json.Marshal(pc.chunk.MergedNames); err == nil {
			meta["merged_names"] = string(names)
		}
	} else {
		meta["is_chunk"] = true
	}
	return store.SanitizeMetadata(meta)
}

// fail marks the session FAILED with err's message and returns err.
func (o *Orchestrator) fail(ctx context.Context, sessionID string, err error) error {
	if terr := o.sessions.MarkTerminal(ctx, sessionID, sessionstore.StatusFailed, time.Now().UTC(), err.Error()); terr != nil {
		o.log.Error("marking session failed itself failed", "session_id", sessionID, "error", terr)
	}
	return err
}

// cancel marks the session CANCELLED and returns the taxonomy error
// the worker maps to REVOKED.
func (o *Orchestrator) cancel(ctx context.Context, sessionID string) error {
	err := apperr.New(apperr.CodeTaskCancelled, "ingest cancelled at checkpoint", nil)
	if terr := o.sessions.MarkTerminal(ctx, sessionID, sessionstore.StatusCancelled, time.Now().UTC(), err.Error()); terr != nil {
		o.log.Error("marking session cancelled failed", "session_id", sessionID, "error", terr)
	}
	return err
}
