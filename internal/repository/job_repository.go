package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lealta/internal/models"
)

type jobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a Postgres-backed job store
func NewJobRepository(db *sql.DB) JobStore {
	return &jobRepository{db: db}
}

const jobColumns = `id, campaign_id, target, name, position, status, attempts,
	last_error, available_at, claimed_at, completed_at, failed_at, created_at, updated_at`

// CreateBatch inserts the campaign's jobs in one transaction
func (r *jobRepository) CreateBatch(ctx context.Context, jobs []*models.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO jobs (id, campaign_id, target, name, position, status, available_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at, updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, job := range jobs {
		err := stmt.QueryRowContext(
			ctx,
			job.ID,
			job.CampaignID,
			job.Target,
			job.Name,
			job.Position,
			job.Status,
		).Scan(&job.CreatedAt, &job.UpdatedAt)

		if err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a job by ID
func (r *jobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// ClaimNextPending atomically claims the next eligible pending job.
// SKIP LOCKED makes concurrent claimers lose without blocking, so exactly
// one worker wins each job even across process instances.
func (r *jobRepository) ClaimNextPending(ctx context.Context, campaignID string) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = 'processing', attempts = attempts + 1, claimed_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE campaign_id = $1 AND status = 'pending' AND available_at <= NOW()
			ORDER BY position
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	job, err := scanJob(r.db.QueryRowContext(ctx, query, campaignID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return job, nil
}

// MarkCompleted moves a processing job to completed and clears last_error
func (r *jobRepository) MarkCompleted(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = 'completed', last_error = NULL, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	return r.execProcessingUpdate(ctx, query, jobID)
}

// MarkFailed moves a processing job to failed and records the error
func (r *jobRepository) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	query := `
		UPDATE jobs
		SET status = 'failed', last_error = $2, failed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.db.ExecContext(ctx, query, jobID, errMsg)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	return checkOneRow(result)
}

// MarkCancelled cancels a single claimed job, used when cancellation
// interrupts the pacer wait before the send started.
func (r *jobRepository) MarkCancelled(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	return r.execProcessingUpdate(ctx, query, jobID)
}

// RequeueWithBackoff returns a processing job to pending, eligible again
// at availableAt
func (r *jobRepository) RequeueWithBackoff(ctx context.Context, jobID string, availableAt time.Time) error {
	query := `
		UPDATE jobs
		SET status = 'pending', available_at = $2, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.db.ExecContext(ctx, query, jobID, availableAt)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	return checkOneRow(result)
}

// CancelPending marks all still-pending jobs of the campaign cancelled
func (r *jobRepository) CancelPending(ctx context.Context, campaignID string) (int64, error) {
	query := `
		UPDATE jobs
		SET status = 'cancelled', updated_at = NOW()
		WHERE campaign_id = $1 AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending jobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// CountsByStatus returns per-status totals for the campaign
func (r *jobRepository) CountsByStatus(ctx context.Context, campaignID string) (models.JobCounts, error) {
	query := `
		SELECT status, COUNT(*)
		FROM jobs
		WHERE campaign_id = $1
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return models.JobCounts{}, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := models.JobCounts{}
	for rows.Next() {
		var status models.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return models.JobCounts{}, fmt.Errorf("failed to scan job counts: %w", err)
		}

		counts.Total += n
		switch status {
		case models.JobStatusPending:
			counts.Pending = n
		case models.JobStatusProcessing:
			counts.Processing = n
		case models.JobStatusCompleted:
			counts.Completed = n
		case models.JobStatusFailed:
			counts.Failed = n
		case models.JobStatusCancelled:
			counts.Cancelled = n
		}
	}

	return counts, nil
}

// RecentFailures returns the most recently failed jobs, newest first
func (r *jobRepository) RecentFailures(ctx context.Context, campaignID string, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE campaign_id = $1 AND status = 'failed'
		ORDER BY failed_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// ReconcileStaleProcessing returns crash-orphaned processing jobs to pending
func (r *jobRepository) ReconcileStaleProcessing(ctx context.Context, campaignID string, staleness time.Duration) (int64, error) {
	query := `
		UPDATE jobs
		SET status = 'pending', available_at = NOW(), claimed_at = NULL, updated_at = NOW()
		WHERE campaign_id = $1 AND status = 'processing'
			AND claimed_at < NOW() - ($2 * interval '1 millisecond')
	`

	result, err := r.db.ExecContext(ctx, query, campaignID, staleness.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile stale jobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

func (r *jobRepository) execProcessingUpdate(ctx context.Context, query, jobID string) error {
	result, err := r.db.ExecContext(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	return checkOneRow(result)
}

// checkOneRow enforces the processing-only precondition of the terminal
// job updates: zero rows means the job was not in the expected state.
func checkOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job not in expected state")
	}
	return nil
}

// scanJob reads one job row
func scanJob(s scanner) (*models.Job, error) {
	job := &models.Job{}

	err := s.Scan(
		&job.ID,
		&job.CampaignID,
		&job.Target,
		&job.Name,
		&job.Position,
		&job.Status,
		&job.Attempts,
		&job.LastError,
		&job.AvailableAt,
		&job.ClaimedAt,
		&job.CompletedAt,
		&job.FailedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return job, nil
}
