package repository

import (
	"context"
	"time"

	"lealta/internal/models"
)

// CampaignStore defines campaign data access operations
type CampaignStore interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error)
	Delete(ctx context.Context, id string) error

	// UpdateStatus moves the campaign to the target status only if its
	// current status is one of from. It reports whether a row changed,
	// which is how transition races between instances are lost safely.
	UpdateStatus(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus) (bool, error)

	// MarkFinished is UpdateStatus plus the once-only completed_at stamp.
	MarkFinished(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus) (bool, error)

	// MarkStarted stamps started_at if it has not been set yet.
	MarkStarted(ctx context.Context, id string) error

	// ListDueScheduled returns created campaigns whose scheduled start
	// time has passed.
	ListDueScheduled(ctx context.Context, now time.Time) ([]*models.Campaign, error)
}

// CampaignFilters defines filters for listing campaigns
type CampaignFilters struct {
	Page     int
	PageSize int
	TenantID string
	Status   *models.CampaignStatus
}

// JobStore defines per-recipient job data access operations. The claim and
// mark operations are conditional updates; they are the only mutual
// exclusion mechanism between worker processes.
type JobStore interface {
	CreateBatch(ctx context.Context, jobs []*models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)

	// ClaimNextPending atomically claims the lowest-position pending job
	// whose available_at has passed, moving it to processing and
	// incrementing its attempt count. It returns (nil, nil) when no job
	// is claimable.
	ClaimNextPending(ctx context.Context, campaignID string) (*models.Job, error)

	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
	MarkCancelled(ctx context.Context, jobID string) error

	// RequeueWithBackoff returns a processing job to pending, invisible
	// to claims until availableAt.
	RequeueWithBackoff(ctx context.Context, jobID string, availableAt time.Time) error

	// CancelPending marks every still-pending job of the campaign as
	// cancelled and returns how many were affected.
	CancelPending(ctx context.Context, campaignID string) (int64, error)

	CountsByStatus(ctx context.Context, campaignID string) (models.JobCounts, error)
	RecentFailures(ctx context.Context, campaignID string, limit int) ([]*models.Job, error)

	// ReconcileStaleProcessing returns jobs stuck in processing longer
	// than the staleness window to pending so a new worker can re-claim
	// them after a crash.
	ReconcileStaleProcessing(ctx context.Context, campaignID string, staleness time.Duration) (int64, error)
}
