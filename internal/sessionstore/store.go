package sessionstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists AnalysisSession/FileMetadata/QueryLog rows in a
// SQLite database (modernc.org/sqlite, pure Go, no CGO).
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the session store at path. An empty path
// opens an in-memory database, useful for tests.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sessionstore: create dir: %w", err)
			}
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY without needing
	// WAL-mode tuning for this module's modest write volume.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS analysis_sessions (
	session_id             TEXT PRIMARY KEY,
	repository_url         TEXT NOT NULL,
	repository_identifier  TEXT NOT NULL,
	status                 TEXT NOT NULL,
	task_id                TEXT,
	embedding_config       TEXT,
	total_files            INTEGER NOT NULL DEFAULT 0,
	processed_files        INTEGER NOT NULL DEFAULT 0,
	total_chunks           INTEGER NOT NULL DEFAULT 0,
	indexed_chunks         INTEGER NOT NULL DEFAULT 0,
	created_at             TEXT NOT NULL,
	started_at             TEXT,
	completed_at           TEXT,
	error_message          TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_repo_identifier ON analysis_sessions(repository_identifier);

CREATE TABLE IF NOT EXISTS file_metadata (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id     TEXT NOT NULL,
	file_path      TEXT NOT NULL,
	file_type      TEXT NOT NULL,
	file_extension TEXT,
	file_size      INTEGER NOT NULL,
	line_count     INTEGER,
	chunk_count    INTEGER NOT NULL DEFAULT 0,
	is_processed   TEXT NOT NULL DEFAULT 'pending',
	error_message  TEXT
);
CREATE INDEX IF NOT EXISTS idx_file_metadata_session ON file_metadata(session_id);

CREATE TABLE IF NOT EXISTS query_logs (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id              TEXT NOT NULL,
	question                TEXT NOT NULL,
	answer                  TEXT,
	retrieved_chunks_count  INTEGER NOT NULL DEFAULT 0,
	generation_mode         TEXT NOT NULL DEFAULT 'service',
	retrieval_time_millis   INTEGER,
	generation_time_millis  INTEGER,
	total_time_millis       INTEGER,
	created_at              TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_logs_session ON query_logs(session_id);
`)
	if err != nil {
		return fmt.Errorf("sessionstore: migrate: %w", err)
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// CreateSession inserts a new PENDING session row.
func (s *Store) CreateSession(ctx context.Context, sess *AnalysisSession) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO analysis_sessions
	(session_id, repository_url, repository_identifier, status, task_id,
	 embedding_config, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.RepositoryURL, sess.RepositoryIdentifier, string(sess.Status),
		sess.TaskID, sess.EmbeddingConfig, sess.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sessionstore: create session: %w", err)
	}
	return nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*AnalysisSession, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, repository_url, repository_identifier, status, task_id,
       embedding_config, total_files, processed_files, total_chunks, indexed_chunks,
       created_at, started_at, completed_at, error_message
FROM analysis_sessions WHERE session_id = ?`, sessionID)
	return scanSession(row)
}

// FindLatestSuccessByRepository returns the most recently created
// SUCCESS session for repositoryIdentifier, used by the query
// service's GitHub-URL fallback.
func (s *Store) FindLatestSuccessByRepository(ctx context.Context, repositoryIdentifier string) (*AnalysisSession, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, repository_url, repository_identifier, status, task_id,
       embedding_config, total_files, processed_files, total_chunks, indexed_chunks,
       created_at, started_at, completed_at, error_message
FROM analysis_sessions
WHERE repository_identifier = ? AND status = ?
ORDER BY created_at DESC LIMIT 1`, repositoryIdentifier, string(StatusSuccess))
	return scanSession(row)
}

func scanSession(row *sql.Row) (*AnalysisSession, error) {
	var sess AnalysisSession
	var status string
	var createdAt string
	var startedAt, completedAt sql.NullString

	err := row.Scan(&sess.SessionID, &sess.RepositoryURL, &sess.RepositoryIdentifier, &status,
		&sess.TaskID, &sess.EmbeddingConfig, &sess.TotalFiles, &sess.ProcessedFiles,
		&sess.TotalChunks, &sess.IndexedChunks, &createdAt, &startedAt, &completedAt, &sess.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: scan session: %w", err)
	}
	sess.Status = Status(status)
	sess.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	sess.StartedAt = parseTime(startedAt)
	sess.CompletedAt = parseTime(completedAt)
	return &sess, nil
}

// MarkProcessing sets status=PROCESSING and stamps started_at.
func (s *Store) MarkProcessing(ctx context.Context, sessionID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE analysis_sessions SET status = ?, started_at = ? WHERE session_id = ?`,
		string(StatusProcessing), startedAt.Format(timeLayout), sessionID)
	return err
}

// MarkTerminal transitions a session to a terminal status, stamping
// completed_at and optionally an error message.
func (s *Store) MarkTerminal(ctx context.Context, sessionID string, status Status, completedAt time.Time, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE analysis_sessions SET status = ?, completed_at = ?, error_message = ? WHERE session_id = ?`,
		string(status), completedAt.Format(timeLayout), errMsg, sessionID)
	return err
}

// SetTotals records total_files/total_chunks once scanning/chunking
// completes.
func (s *Store) SetTotals(ctx context.Context, sessionID string, totalFiles, totalChunks int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE analysis_sessions SET total_files = ?, total_chunks = ? WHERE session_id = ?`,
		totalFiles, totalChunks, sessionID)
	return err
}

// IncrementProcessedFiles does a transactional read-modify-write of
// processed_files: modernc.org/sqlite has no row locks, so the
// increment is a single UPDATE in a transaction, and the store's one
// open connection serializes it against concurrent writers.
func (s *Store) IncrementProcessedFiles(ctx context.Context, sessionID string, delta int) error {
	return s.withImmediateTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE analysis_sessions SET processed_files = processed_files + ? WHERE session_id = ?`,
			delta, sessionID)
		return err
	})
}

// IncrementIndexedChunks does the same read-modify-write for
// indexed_chunks, called after each successful embedding batch.
func (s *Store) IncrementIndexedChunks(ctx context.Context, sessionID string, delta int) error {
	return s.withImmediateTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE analysis_sessions SET indexed_chunks = indexed_chunks + ? WHERE session_id = ?`,
			delta, sessionID)
		return err
	})
}

// withImmediateTx runs fn in a transaction begun in the driver's
// default (deferred) mode; the store's single connection keeps writers
// from interleaving.
func (s *Store) withImmediateTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sessionstore: begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// InsertFileMetadataBatch persists one batch of rows; the caller is
// responsible for chunking its slice to that size. On any statement
// failure within the batch, the whole batch is rolled back so the
// caller can fall back to one-at-a-time inserts to salvage.
func (s *Store) InsertFileMetadataBatch(ctx context.Context, rows []FileMetadata) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sessionstore: begin file metadata batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO file_metadata
	(session_id, file_path, file_type, file_extension, file_size, line_count, chunk_count, is_processed, error_message)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sessionstore: prepare file metadata insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.SessionID, r.FilePath, string(r.FileType),
			r.FileExtension, r.FileSize, r.LineCount, r.ChunkCount, string(r.IsProcessed), r.ErrorMessage); err != nil {
			tx.Rollback()
			return fmt.Errorf("sessionstore: insert file metadata: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sessionstore: commit file metadata batch: %w", err)
	}
	return nil
}

// InsertFileMetadataOne inserts a single row — the one-at-a-time
// fallback used when a batch insert fails.
func (s *Store) InsertFileMetadataOne(ctx context.Context, r FileMetadata) error {
	return s.InsertFileMetadataBatch(ctx, []FileMetadata{r})
}

// ListQueryLogs returns the query-log rows for sessionID, oldest
// first.
func (s *Store) ListQueryLogs(ctx context.Context, sessionID string) ([]QueryLog, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, question, answer, retrieved_chunks_count, generation_mode,
       retrieval_time_millis, generation_time_millis, total_time_millis, created_at
FROM query_logs WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: list query logs: %w", err)
	}
	defer rows.Close()

	var logs []QueryLog
	for rows.Next() {
		var l QueryLog
		var createdAt string
		if err := rows.Scan(&l.SessionID, &l.Question, &l.Answer, &l.RetrievedChunksCount,
			&l.GenerationMode, &l.RetrievalTimeMillis, &l.GenerationTimeMillis,
			&l.TotalTimeMillis, &createdAt); err != nil {
			return nil, fmt.Errorf("sessionstore: scan query log: %w", err)
		}
		l.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// RecordQueryLog appends a query-log row. One row is written per
// executed query, whatever the generation mode.
func (s *Store) RecordQueryLog(ctx context.Context, log QueryLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO query_logs
	(session_id, question, answer, retrieved_chunks_count, generation_mode,
	 retrieval_time_millis, generation_time_millis, total_time_millis, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.SessionID, log.Question, log.Answer, log.RetrievedChunksCount, log.GenerationMode,
		log.RetrievalTimeMillis, log.GenerationTimeMillis, log.TotalTimeMillis, log.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sessionstore: record query log: %w", err)
	}
	return nil
}
