/**
 * PostgreSQL Client for the Notes Worker
 *
 * Persists the lifecycle of composition jobs (processing -> completed |
 * failed) with page counts, repaired pages, output size and error details.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"
)

// Job statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update. Zero values leave the stored
// column unchanged.
type JobUpdate struct {
	JobID            string
	Status           string
	UserID           string
	Filename         string
	Progress         int
	PageCount        int
	RepairedPages    []int64
	ProcessingTimeMs int64
	OutputSize       int64
	ArtifactID       string
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// JobRecord is a stored job.
type JobRecord struct {
	ID               string                 `json:"id"`
	UserID           string                 `json:"userId"`
	Filename         string                 `json:"filename"`
	Status           string                 `json:"status"`
	Progress         int                    `json:"progress"`
	PageCount        int                    `json:"pageCount,omitempty"`
	RepairedPages    []int64                `json:"repairedPages,omitempty"`
	ProcessingTimeMs int64                  `json:"processingTimeMs,omitempty"`
	OutputSize       int64                  `json:"outputSize,omitempty"`
	ArtifactID       string                 `json:"artifactId,omitempty"`
	ErrorCode        string                 `json:"errorCode,omitempty"`
	ErrorMessage     string                 `json:"errorMessage,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS notes;
	CREATE TABLE IF NOT EXISTS notes.processing_jobs (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL DEFAULT 'anonymous',
		filename           TEXT NOT NULL DEFAULT 'document.pdf',
		status             TEXT NOT NULL,
		progress           INTEGER NOT NULL DEFAULT 0,
		page_count         INTEGER,
		repaired_pages     INTEGER[],
		processing_time_ms BIGINT,
		output_size        BIGINT,
		artifact_id        TEXT,
		error_code         TEXT,
		error_message      TEXT,
		metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS processing_jobs_status_idx ON notes.processing_jobs (status);
`

// sanitizeProgress clamps progress to a percentage.
func sanitizeProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the jobs table if it does not exist.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpdateJobStatus upserts the job record, so the worker can create it if
// the producer did not.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metadataJSON = sanitizeJSONForPostgres(metadataJSON)

	var repaired interface{}
	if update.RepairedPages != nil {
		repaired = pq.Array(update.RepairedPages)
	}

	query := `
		INSERT INTO notes.processing_jobs (
			id, user_id, filename, status, progress,
			page_count, repaired_pages, processing_time_ms, output_size,
			artifact_id, error_code, error_message, metadata,
			created_at, updated_at
		) VALUES (
			$1, COALESCE(NULLIF($2, ''), 'anonymous'), COALESCE(NULLIF($3, ''), 'document.pdf'),
			$4, $5,
			NULLIF($6, 0), $7::INTEGER[], NULLIF($8, 0), NULLIF($9, 0),
			NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''),
			COALESCE($13::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = GREATEST(EXCLUDED.progress, notes.processing_jobs.progress),
			page_count = COALESCE(EXCLUDED.page_count, notes.processing_jobs.page_count),
			repaired_pages = COALESCE(EXCLUDED.repaired_pages, notes.processing_jobs.repaired_pages),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, notes.processing_jobs.processing_time_ms),
			output_size = COALESCE(EXCLUDED.output_size, notes.processing_jobs.output_size),
			artifact_id = COALESCE(EXCLUDED.artifact_id, notes.processing_jobs.artifact_id),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = notes.processing_jobs.metadata || EXCLUDED.metadata,
			filename = CASE WHEN $3 = '' THEN notes.processing_jobs.filename ELSE EXCLUDED.filename END,
			user_id = CASE WHEN $2 = '' THEN notes.processing_jobs.user_id ELSE EXCLUDED.user_id END,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,                       // $1
		update.UserID,                      // $2
		update.Filename,                    // $3
		update.Status,                      // $4
		sanitizeProgress(update.Progress),  // $5
		update.PageCount,                   // $6
		repaired,                           // $7
		update.ProcessingTimeMs,            // $8
		update.OutputSize,                  // $9
		update.ArtifactID,                  // $10
		update.ErrorCode,                   // $11
		update.ErrorMessage,                // $12
		metadataJSON,                       // $13
	).Scan(&returnedID)

	if err == sql.ErrNoRows {
		return fmt.Errorf("job not found: %s", update.JobID)
	}

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, user_id, filename, status, progress,
			page_count, repaired_pages, processing_time_ms, output_size,
			artifact_id, error_code, error_message, metadata,
			created_at, updated_at
		FROM notes.processing_jobs
		WHERE id = $1
	`

	var (
		rec                                 JobRecord
		pageCount                           sql.NullInt64
		repaired                            pq.Int64Array
		processingTimeMs, outputSize        sql.NullInt64
		artifactID, errorCode, errorMessage sql.NullString
		metadataJSON                        []byte
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&rec.ID, &rec.UserID, &rec.Filename, &rec.Status, &rec.Progress,
		&pageCount, &repaired, &processingTimeMs, &outputSize,
		&artifactID, &errorCode, &errorMessage, &metadataJSON,
		&rec.CreatedAt, &rec.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	rec.PageCount = int(pageCount.Int64)
	rec.RepairedPages = []int64(repaired)
	rec.ProcessingTimeMs = processingTimeMs.Int64
	rec.OutputSize = outputSize.Int64
	rec.ArtifactID = artifactID.String
	rec.ErrorCode = errorCode.String
	rec.ErrorMessage = errorMessage.String

	return &rec, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres strips escapes JSONB rejects (\u0000) and
// replaces other control-character escapes with a space. Titles and
// filenames come straight from users.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}
