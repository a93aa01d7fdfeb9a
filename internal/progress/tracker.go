package progress

import (
	"context"
	"time"

	"lealta/internal/models"
	"lealta/internal/repository"
	"lealta/internal/service"
)

// Tracker derives campaign progress from the job store on demand. It
// holds no state of its own, so a snapshot is correct even right after a
// restart.
type Tracker struct {
	campaigns  repository.CampaignStore
	jobs       repository.JobStore
	sampleSize int
	now        func() time.Time
}

func NewTracker(campaigns repository.CampaignStore, jobs repository.JobStore, sampleSize int) *Tracker {
	if sampleSize <= 0 {
		sampleSize = 20
	}
	return &Tracker{
		campaigns:  campaigns,
		jobs:       jobs,
		sampleSize: sampleSize,
		now:        time.Now,
	}
}

// Status assembles a full progress snapshot for the campaign.
func (t *Tracker) Status(ctx context.Context, id string) (*models.ProgressSnapshot, error) {
	campaign, err := t.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, &service.InfrastructureError{Op: "load campaign", Err: err}
	}
	if campaign == nil {
		return nil, &service.NotFoundError{Resource: "campaign", ID: id}
	}

	counts, err := t.jobs.CountsByStatus(ctx, id)
	if err != nil {
		return nil, &service.InfrastructureError{Op: "count jobs", Err: err}
	}

	failures, err := t.jobs.RecentFailures(ctx, id, t.sampleSize)
	if err != nil {
		return nil, &service.InfrastructureError{Op: "list recent failures", Err: err}
	}

	now := t.now().UTC()
	snap := &models.ProgressSnapshot{
		CampaignID:      campaign.ID,
		Name:            campaign.Name,
		Status:          campaign.Status,
		CreatedAt:       campaign.CreatedAt,
		StartedAt:       campaign.StartedAt,
		CompletedAt:     campaign.CompletedAt,
		TotalRecipients: counts.Total,
		Sent:            counts.Completed,
		Failed:          counts.Failed,
		Pending:         counts.Pending,
		Processing:      counts.Processing,
		Cancelled:       counts.Cancelled,
		RecentFailures:  make([]models.FailedJobInfo, 0, len(failures)),
		LastUpdated:     now,
	}

	for _, job := range failures {
		info := models.FailedJobInfo{Target: job.Target}
		if job.LastError != nil {
			info.Error = *job.LastError
		}
		if job.FailedAt != nil {
			info.FailedAt = *job.FailedAt
		}
		snap.RecentFailures = append(snap.RecentFailures, info)
	}

	t.fillDerived(snap, campaign, counts, now)
	return snap, nil
}

func (t *Tracker) fillDerived(snap *models.ProgressSnapshot, campaign *models.Campaign, counts models.JobCounts, now time.Time) {
	done := counts.Done()
	total := counts.Total
	batchSize := campaign.Pacing.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	if total > 0 {
		snap.PercentComplete = int(float64(done)/float64(total)*100 + 0.5)
		snap.TotalBatches = (total + batchSize - 1) / batchSize

		// Batch numbering is 1-based; a fully drained campaign sits on
		// its last batch rather than a phantom next one.
		if done >= total {
			snap.CurrentBatch = snap.TotalBatches
			snap.CurrentBatchProgress = 100
		} else {
			snap.CurrentBatch = done/batchSize + 1
			inBatch := done % batchSize
			size := batchSize
			if snap.CurrentBatch == snap.TotalBatches {
				if rem := total - (snap.TotalBatches-1)*batchSize; rem < size {
					size = rem
				}
			}
			snap.CurrentBatchProgress = float64(inBatch) / float64(size) * 100
		}
	}

	if done > 0 {
		snap.SuccessRate = float64(counts.Completed) / float64(done) * 100
	}

	snap.EstimatedTimeRemaining = "Unknown"
	if campaign.StartedAt == nil || counts.Completed == 0 {
		return
	}
	elapsed := now.Sub(*campaign.StartedAt)
	if elapsed <= 0 {
		return
	}

	snap.MessagesPerMinute = float64(counts.Completed) / elapsed.Minutes()

	remaining := counts.Remaining()
	if remaining == 0 {
		snap.EstimatedTimeRemaining = "0s"
		return
	}
	perMessage := elapsed / time.Duration(counts.Completed)
	snap.EstimatedTimeRemaining = FormatDuration(perMessage * time.Duration(remaining))
}
