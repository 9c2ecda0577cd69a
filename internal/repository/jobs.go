package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job mirrors the jobs table.
type Job struct {
	ID           uuid.UUID
	JobType      string
	Payload      json.RawMessage
	Status       string
	Priority     int32
	Attempts     int32
	MaxAttempts  int32
	ScheduledAt  time.Time
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
	ErrorMessage sql.NullString
	CreatedAt    sql.NullTime
	UpdatedAt    sql.NullTime
}

const jobColumns = `id, job_type, payload, status, priority, attempts, max_attempts,
	scheduled_at, started_at, completed_at, error_message, created_at, updated_at`

// EnqueueJobParams names the columns for EnqueueJob.
type EnqueueJobParams struct {
	JobType     string
	Payload     json.RawMessage
	Priority    int32
	MaxAttempts int32
	ScheduledAt time.Time
}

// EnqueueJob inserts a new pending job.
func (q *Queries) EnqueueJob(ctx context.Context, arg EnqueueJobParams) (Job, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO jobs (job_type, payload, priority, max_attempts, scheduled_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+jobColumns,
		arg.JobType, arg.Payload, arg.Priority, arg.MaxAttempts, arg.ScheduledAt,
	)
	return scanJob(row)
}

// DequeueJob claims the next due pending job. SKIP LOCKED lets multiple
// workers poll the same table without blocking each other.
func (q *Queries) DequeueJob(ctx context.Context) (Job, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'processing', updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending' AND scheduled_at <= now()
			ORDER BY priority DESC, scheduled_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns)
	return scanJob(row)
}

// UpdateJobStarted records the claim time and bumps the attempt count.
func (q *Queries) UpdateJobStarted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs
		SET started_at = now(), attempts = attempts + 1, updated_at = now()
		WHERE id = $1`, id)
	return err
}

// UpdateJobCompleted marks a job finished.
func (q *Queries) UpdateJobCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed', completed_at = now(), updated_at = now()
		WHERE id = $1`, id)
	return err
}

// UpdateJobFailedParams names the columns for UpdateJobFailed.
type UpdateJobFailedParams struct {
	ID           uuid.UUID
	ErrorMessage sql.NullString
}

// UpdateJobFailed records a failure. Jobs with attempts remaining go
// back to pending with a backoff delay; exhausted jobs become failed.
func (q *Queries) UpdateJobFailed(ctx context.Context, arg UpdateJobFailedParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
		    scheduled_at = CASE WHEN attempts >= max_attempts THEN scheduled_at
		                        ELSE now() + (interval '30 seconds' * attempts) END,
		    error_message = $2,
		    updated_at = now()
		WHERE id = $1`,
		arg.ID, arg.ErrorMessage)
	return err
}

// MarkJobFailedPermanently fails a job regardless of remaining attempts.
type MarkJobFailedPermanentlyParams struct {
	ID           uuid.UUID
	ErrorMessage sql.NullString
}

func (q *Queries) MarkJobFailedPermanently(ctx context.Context, arg MarkJobFailedPermanentlyParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1`,
		arg.ID, arg.ErrorMessage)
	return err
}

// RecoverStaleJobs returns to pending any processing job that has been
// running longer than the threshold. Covers worker crashes.
func (q *Queries) RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending', updated_at = now()
		WHERE status = 'processing'
		  AND started_at < now() - ($1 * interval '1 second')`,
		thresholdSeconds)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanJob(row *sql.Row) (Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.JobType, &j.Payload, &j.Status, &j.Priority, &j.Attempts,
		&j.MaxAttempts, &j.ScheduledAt, &j.StartedAt, &j.CompletedAt,
		&j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	return j, err
}
