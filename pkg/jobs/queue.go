// Package jobs is the persistent conversion queue. Uploads enqueue one job
// per file; a small worker pool claims jobs, runs the conversion collaborator
// and feeds the result back into the file registry and memory document.
package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Job statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// MaxAttempts is how many times a job is tried before it is parked as failed.
const MaxAttempts = 3

// ConversionJob is one file-conversion unit of work.
type ConversionJob struct {
	ID            string
	ProjectID     string
	ExperimentID  string
	ExperimentDir string
	OriginalName  string
	OriginalPath  string
	Status        string
	Attempts      int
	Error         string
	WorkerID      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Queue manages persistent job storage using SQLite with WAL journaling.
type Queue struct {
	db *sql.DB
}

// NewQueue opens the queue database and initializes its schema.
func NewQueue(dbPath string) (*Queue, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open job queue database: %w", err)
	}

	q := &Queue{db: db}
	if err := q.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize job queue schema: %w", err)
	}
	return q, nil
}

func (q *Queue) initSchema() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS conversion_jobs (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		experiment_id TEXT NOT NULL,
		experiment_dir TEXT NOT NULL,
		original_name TEXT NOT NULL,
		original_path TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER DEFAULT 0,
		error TEXT,
		worker_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_conversion_jobs_status ON conversion_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_conversion_jobs_created_at ON conversion_jobs(created_at);
	`
	_, err := q.db.Exec(createTableSQL)
	return err
}

// Enqueue adds a new pending job.
func (q *Queue) Enqueue(ctx context.Context, job ConversionJob) (ConversionJob, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = StatusPending

	query := `
	INSERT INTO conversion_jobs (id, project_id, experiment_id, experiment_dir, original_name, original_path, status)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.db.ExecContext(ctx, query,
		job.ID, job.ProjectID, job.ExperimentID, job.ExperimentDir, job.OriginalName, job.OriginalPath, job.Status,
	)
	if err != nil {
		return ConversionJob{}, fmt.Errorf("failed to enqueue conversion of %q: %w", job.OriginalName, err)
	}
	return job, nil
}

// Claim atomically takes the oldest pending job for a worker, or returns nil
// when nothing is ready.
func (q *Queue) Claim(ctx context.Context, workerID string) (*ConversionJob, error) {
	query := `
	UPDATE conversion_jobs
	SET status = 'processing', worker_id = ?, attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
	WHERE id = (
		SELECT id FROM conversion_jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT 1
	)
	RETURNING id, project_id, experiment_id, experiment_dir, original_name, original_path, status, attempts, COALESCE(error, ''), COALESCE(worker_id, ''), created_at, updated_at
	`
	job := &ConversionJob{}
	err := q.db.QueryRowContext(ctx, query, workerID).Scan(
		&job.ID, &job.ProjectID, &job.ExperimentID, &job.ExperimentDir, &job.OriginalName, &job.OriginalPath,
		&job.Status, &job.Attempts, &job.Error, &job.WorkerID, &job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim conversion job: %w", err)
	}
	return job, nil
}

// Complete marks a job done.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE conversion_jobs SET status = 'completed', error = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job %q: %w", jobID, err)
	}
	return nil
}

// Fail records a failure. Jobs below the attempt budget go back to pending
// for a retry; exhausted jobs are parked as failed with the error kept.
func (q *Queue) Fail(ctx context.Context, jobID string, jobErr error) error {
	query := `
	UPDATE conversion_jobs
	SET status = CASE WHEN attempts >= ? THEN 'failed' ELSE 'pending' END,
	    error = ?,
	    updated_at = CURRENT_TIMESTAMP
	WHERE id = ?
	`
	_, err := q.db.ExecContext(ctx, query, MaxAttempts, jobErr.Error(), jobID)
	if err != nil {
		return fmt.Errorf("failed to record failure of job %q: %w", jobID, err)
	}
	return nil
}

// ResetStuck returns jobs left in processing (by a crashed worker) to
// pending. Called once on startup.
func (q *Queue) ResetStuck(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE conversion_jobs SET status = 'pending', worker_id = NULL, updated_at = CURRENT_TIMESTAMP WHERE status = 'processing'`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// Get returns one job by id.
func (q *Queue) Get(ctx context.Context, jobID string) (*ConversionJob, error) {
	query := `
	SELECT id, project_id, experiment_id, experiment_dir, original_name, original_path, status, attempts, COALESCE(error, ''), COALESCE(worker_id, ''), created_at, updated_at
	FROM conversion_jobs WHERE id = ?
	`
	job := &ConversionJob{}
	err := q.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID, &job.ProjectID, &job.ExperimentID, &job.ExperimentDir, &job.OriginalName, &job.OriginalPath,
		&job.Status, &job.Attempts, &job.Error, &job.WorkerID, &job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %q: %w", jobID, err)
	}
	return job, nil
}

// Close closes the queue database.
func (q *Queue) Close() error {
	return q.db.Close()
}
