package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"lealta/internal/models"
)

// SQLite-backed stores for local development and integration tests. Same
// contracts as the Postgres stores; SQLite serializes writers, which is
// what makes the single-row claim update atomic here.

type sqliteCampaignStore struct {
	db *sql.DB
}

type sqliteJobStore struct {
	db *sql.DB
}

// NewSQLiteCampaignStore creates a SQLite-backed campaign store
func NewSQLiteCampaignStore(db *sql.DB) CampaignStore {
	return &sqliteCampaignStore{db: db}
}

// NewSQLiteJobStore creates a SQLite-backed job store
func NewSQLiteJobStore(db *sql.DB) JobStore {
	return &sqliteJobStore{db: db}
}

// SQLiteSchema creates the campaign and job tables. Exposed so the dev
// server and integration tests can bootstrap an empty database file.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS campaigns (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	name TEXT NOT NULL,
	message TEXT NOT NULL,
	status TEXT NOT NULL,
	batch_size INTEGER NOT NULL,
	message_delay_ms INTEGER NOT NULL,
	max_attempts INTEGER NOT NULL,
	backoff_base_ms INTEGER NOT NULL,
	backoff_cap_ms INTEGER NOT NULL,
	scheduled_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	started_at TIMESTAMP,
	completed_at TIMESTAMP,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	target TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	available_at TIMESTAMP NOT NULL,
	claimed_at TIMESTAMP,
	completed_at TIMESTAMP,
	failed_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (campaign_id, position)
);

CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs (campaign_id, status, available_at, position);
`

func (r *sqliteCampaignStore) Create(ctx context.Context, campaign *models.Campaign) error {
	now := time.Now().UTC()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now

	query := `
		INSERT INTO campaigns (id, tenant_id, name, message, status,
			batch_size, message_delay_ms, max_attempts, backoff_base_ms, backoff_cap_ms,
			scheduled_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		campaign.ID,
		campaign.TenantID,
		campaign.Name,
		campaign.Message,
		campaign.Status,
		campaign.Pacing.BatchSize,
		campaign.Pacing.MessageDelay.Milliseconds(),
		campaign.Pacing.MaxAttempts,
		campaign.Pacing.BackoffBase.Milliseconds(),
		campaign.Pacing.BackoffCap.Milliseconds(),
		campaign.ScheduledAt,
		campaign.CreatedAt,
		campaign.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

func (r *sqliteCampaignStore) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = ?`

	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return campaign, nil
}

func (r *sqliteCampaignStore) List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}

	if filters.TenantID != "" {
		where += " AND tenant_id = ?"
		args = append(args, filters.TenantID)
	}
	if filters.Status != nil {
		where += " AND status = ?"
		args = append(args, *filters.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM campaigns "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	page := filters.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := "SELECT " + campaignColumns + " FROM campaigns " + where +
		" ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*models.Campaign{}
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}

	return campaigns, total, nil
}

func (r *sqliteCampaignStore) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("campaign not found")
	}

	return nil
}

func (r *sqliteCampaignStore) UpdateStatus(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus) (bool, error) {
	query := fmt.Sprintf(
		"UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ? AND status IN (%s)",
		sqlitePlaceholders(len(from)),
	)

	args := []interface{}{to, time.Now().UTC(), id}
	for _, s := range from {
		args = append(args, s)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update campaign status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

func (r *sqliteCampaignStore) MarkFinished(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus) (bool, error) {
	query := fmt.Sprintf(
		"UPDATE campaigns SET status = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status IN (%s)",
		sqlitePlaceholders(len(from)),
	)

	now := time.Now().UTC()
	args := []interface{}{to, now, now, id}
	for _, s := range from {
		args = append(args, s)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to finish campaign: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

func (r *sqliteCampaignStore) MarkStarted(ctx context.Context, id string) error {
	now := time.Now().UTC()
	query := `UPDATE campaigns SET started_at = ?, updated_at = ? WHERE id = ? AND started_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, now, now, id); err != nil {
		return fmt.Errorf("failed to mark campaign started: %w", err)
	}

	return nil
}

func (r *sqliteCampaignStore) ListDueScheduled(ctx context.Context, now time.Time) ([]*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status = 'created' AND scheduled_at IS NOT NULL AND scheduled_at <= ?
		ORDER BY scheduled_at ASC`

	rows, err := r.db.QueryContext(ctx, query, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list due campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*models.Campaign{}
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}

	return campaigns, nil
}

func (r *sqliteJobStore) CreateBatch(ctx context.Context, jobs []*models.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO jobs (id, campaign_id, target, name, position, status, available_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, job := range jobs {
		job.AvailableAt = now
		job.CreatedAt = now
		job.UpdatedAt = now

		_, err := stmt.ExecContext(ctx,
			job.ID, job.CampaignID, job.Target, job.Name, job.Position, job.Status,
			job.AvailableAt, job.CreatedAt, job.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *sqliteJobStore) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

func (r *sqliteJobStore) ClaimNextPending(ctx context.Context, campaignID string) (*models.Job, error) {
	now := time.Now().UTC()
	query := `
		UPDATE jobs
		SET status = 'processing', attempts = attempts + 1, claimed_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE campaign_id = ? AND status = 'pending' AND available_at <= ?
			ORDER BY position
			LIMIT 1
		)
		RETURNING ` + jobColumns

	job, err := scanJob(r.db.QueryRowContext(ctx, query, now, now, campaignID, now))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return job, nil
}

func (r *sqliteJobStore) MarkCompleted(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	query := `
		UPDATE jobs
		SET status = 'completed', last_error = NULL, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`

	result, err := r.db.ExecContext(ctx, query, now, now, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	return checkOneRow(result)
}

func (r *sqliteJobStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	now := time.Now().UTC()
	query := `
		UPDATE jobs
		SET status = 'failed', last_error = ?, failed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`

	result, err := r.db.ExecContext(ctx, query, errMsg, now, now, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	return checkOneRow(result)
}

func (r *sqliteJobStore) MarkCancelled(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = 'cancelled', updated_at = ?
		WHERE id = ? AND status = 'processing'
	`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	return checkOneRow(result)
}

func (r *sqliteJobStore) RequeueWithBackoff(ctx context.Context, jobID string, availableAt time.Time) error {
	query := `
		UPDATE jobs
		SET status = 'pending', available_at = ?, claimed_at = NULL, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`

	result, err := r.db.ExecContext(ctx, query, availableAt.UTC(), time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	return checkOneRow(result)
}

func (r *sqliteJobStore) CancelPending(ctx context.Context, campaignID string) (int64, error) {
	query := `
		UPDATE jobs
		SET status = 'cancelled', updated_at = ?
		WHERE campaign_id = ? AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending jobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

func (r *sqliteJobStore) CountsByStatus(ctx context.Context, campaignID string) (models.JobCounts, error) {
	query := `SELECT status, COUNT(*) FROM jobs WHERE campaign_id = ? GROUP BY status`

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

func (r *sqliteJobStore) RecentFailures(ctx context.Context, campaignID string, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE campaign_id = ? AND status = 'failed'
		ORDER BY failed_at DESC
		LIMIT ?`

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

func (r *sqliteJobStore) ReconcileStaleProcessing(ctx context.Context, campaignID string, staleness time.Duration) (int64, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-staleness)

	query := `
		UPDATE jobs
		SET status = 'pending', available_at = ?, claimed_at = NULL, updated_at = ?
		WHERE campaign_id = ? AND status = 'processing' AND claimed_at < ?
	`

	result, err := r.db.ExecContext(ctx, query, now, now, campaignID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile stale jobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

func sqlitePlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
