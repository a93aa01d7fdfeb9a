package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"lealta/internal/models"
)

type campaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository creates a Postgres-backed campaign store
func NewCampaignRepository(db *sql.DB) CampaignStore {
	return &campaignRepository{db: db}
}

const campaignColumns = `id, tenant_id, name, message, status,
	batch_size, message_delay_ms, max_attempts, backoff_base_ms, backoff_cap_ms,
	scheduled_at, created_at, started_at, completed_at, updated_at`

// Create inserts a new campaign row
func (r *campaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	query := `
		INSERT INTO campaigns (id, tenant_id, name, message, status,
			batch_size, message_delay_ms, max_attempts, backoff_base_ms, backoff_cap_ms, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
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
	).Scan(&campaign.CreatedAt, &campaign.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by ID
func (r *campaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return campaign, nil
}

// List retrieves campaigns matching the filters, newest first
func (r *campaignRepository) List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if filters.TenantID != "" {
		where += fmt.Sprintf(" AND tenant_id = $%d", argPos)
		args = append(args, filters.TenantID)
		argPos++
	}
	if filters.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, *filters.Status)
		argPos++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM campaigns " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
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

	query := fmt.Sprintf(
		"SELECT %s FROM campaigns %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		campaignColumns, where, argPos, argPos+1,
	)
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

// Delete removes a campaign and its jobs (jobs cascade via FK)
func (r *campaignRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
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

// UpdateStatus performs a compare-and-swap status transition
func (r *campaignRepository) UpdateStatus(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus) (bool, error) {
	query := `
		UPDATE campaigns
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`

	result, err := r.db.ExecContext(ctx, query, id, to, pq.Array(statusStrings(from)))
	if err != nil {
		return false, fmt.Errorf("failed to update campaign status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// MarkFinished moves the campaign to a terminal status and stamps completed_at
func (r *campaignRepository) MarkFinished(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus) (bool, error) {
	query := `
		UPDATE campaigns
		SET status = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`

	result, err := r.db.ExecContext(ctx, query, id, to, pq.Array(statusStrings(from)))
	if err != nil {
		return false, fmt.Errorf("failed to finish campaign: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// MarkStarted stamps started_at on the first transition to processing
func (r *campaignRepository) MarkStarted(ctx context.Context, id string) error {
	query := `
		UPDATE campaigns
		SET started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND started_at IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark campaign started: %w", err)
	}

	return nil
}

// ListDueScheduled returns created campaigns whose scheduled_at has passed
func (r *campaignRepository) ListDueScheduled(ctx context.Context, now time.Time) ([]*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status = 'created' AND scheduled_at IS NOT NULL AND scheduled_at <= $1
		ORDER BY scheduled_at ASC`

	rows, err := r.db.QueryContext(ctx, query, now)
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

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanCampaign reads one campaign row, converting the pacing millisecond
// columns back into durations.
func scanCampaign(s scanner) (*models.Campaign, error) {
	campaign := &models.Campaign{}
	var delayMs, baseMs, capMs int64

	err := s.Scan(
		&campaign.ID,
		&campaign.TenantID,
		&campaign.Name,
		&campaign.Message,
		&campaign.Status,
		&campaign.Pacing.BatchSize,
		&delayMs,
		&campaign.Pacing.MaxAttempts,
		&baseMs,
		&capMs,
		&campaign.ScheduledAt,
		&campaign.CreatedAt,
		&campaign.StartedAt,
		&campaign.CompletedAt,
		&campaign.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	campaign.Pacing.MessageDelay = time.Duration(delayMs) * time.Millisecond
	campaign.Pacing.BackoffBase = time.Duration(baseMs) * time.Millisecond
	campaign.Pacing.BackoffCap = time.Duration(capMs) * time.Millisecond

	return campaign, nil
}

func statusStrings(statuses []models.CampaignStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
