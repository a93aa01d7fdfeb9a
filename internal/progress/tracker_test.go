package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lealta/internal/models"
	"lealta/internal/repository"
	"lealta/internal/service"
)

type stubCampaigns struct {
	campaign *models.Campaign
}

func (s *stubCampaigns) Create(context.Context, *models.Campaign) error { return nil }
func (s *stubCampaigns) GetByID(context.Context, string) (*models.Campaign, error) {
	return s.campaign, nil
}
func (s *stubCampaigns) List(context.Context, repository.CampaignFilters) ([]*models.Campaign, int, error) {
	return nil, 0, nil
}
func (s *stubCampaigns) Delete(context.Context, string) error { return nil }
func (s *stubCampaigns) UpdateStatus(context.Context, string, []models.CampaignStatus, models.CampaignStatus) (bool, error) {
	return false, nil
}
func (s *stubCampaigns) MarkFinished(context.Context, string, []models.CampaignStatus, models.CampaignStatus) (bool, error) {
	return false, nil
}
func (s *stubCampaigns) MarkStarted(context.Context, string) error { return nil }
func (s *stubCampaigns) ListDueScheduled(context.Context, time.Time) ([]*models.Campaign, error) {
	return nil, nil
}

type stubJobs struct {
	counts   models.JobCounts
	failures []*models.Job
}

func (s *stubJobs) CreateBatch(context.Context, []*models.Job) error          { return nil }
func (s *stubJobs) GetByID(context.Context, string) (*models.Job, error)      { return nil, nil }
func (s *stubJobs) ClaimNextPending(context.Context, string) (*models.Job, error) {
	return nil, nil
}
func (s *stubJobs) MarkCompleted(context.Context, string) error               { return nil }
func (s *stubJobs) MarkFailed(context.Context, string, string) error          { return nil }
func (s *stubJobs) MarkCancelled(context.Context, string) error               { return nil }
func (s *stubJobs) RequeueWithBackoff(context.Context, string, time.Time) error {
	return nil
}
func (s *stubJobs) CancelPending(context.Context, string) (int64, error) { return 0, nil }
func (s *stubJobs) CountsByStatus(context.Context, string) (models.JobCounts, error) {
	return s.counts, nil
}
func (s *stubJobs) RecentFailures(context.Context, string, int) ([]*models.Job, error) {
	return s.failures, nil
}
func (s *stubJobs) ReconcileStaleProcessing(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
}

func fixedTracker(campaign *models.Campaign, counts models.JobCounts, failures []*models.Job, now time.Time) *Tracker {
	tr := NewTracker(&stubCampaigns{campaign: campaign}, &stubJobs{counts: counts, failures: failures}, 20)
	tr.now = func() time.Time { return now }
	return tr
}

func baseCampaign(status models.CampaignStatus, batchSize int) *models.Campaign {
	return &models.Campaign{
		ID:       "c1",
		TenantID: "t1",
		Name:     "promo",
		Status:   status,
		Pacing:   models.PacingConfig{BatchSize: batchSize, MessageDelay: time.Second, MaxAttempts: 3},
	}
}

func TestStatusUnknownETABeforeFirstSend(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(-30 * time.Second)
	campaign := baseCampaign(models.CampaignStatusProcessing, 10)
	campaign.StartedAt = &started

	counts := models.JobCounts{Total: 25, Pending: 24, Failed: 1}
	snap, err := fixedTracker(campaign, counts, nil, now).Status(context.Background(), "c1")
	require.NoError(t, err)

	// Failures alone say nothing about send duration.
	assert.Equal(t, "Unknown", snap.EstimatedTimeRemaining)
	assert.Equal(t, float64(0), snap.MessagesPerMinute)
}

func TestStatusComputesETA(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(-100 * time.Second)
	campaign := baseCampaign(models.CampaignStatusProcessing, 10)
	campaign.StartedAt = &started

	// 10 sent in 100s: 10s per message, 15 remaining -> 150s = 2m 30s.
	counts := models.JobCounts{Total: 25, Pending: 15, Completed: 10}
	snap, err := fixedTracker(campaign, counts, nil, now).Status(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, "2m 30s", snap.EstimatedTimeRemaining)
	assert.InDelta(t, 6.0, snap.MessagesPerMinute, 0.01)
	assert.Equal(t, float64(100), snap.SuccessRate)
}

func TestStatusBatchMath(t *testing.T) {
	now := time.Now().UTC()
	campaign := baseCampaign(models.CampaignStatusProcessing, 10)

	// 24 of 25 done: third batch holds 5 jobs, 4 of them finished.
	counts := models.JobCounts{Total: 25, Pending: 1, Completed: 23, Failed: 1}
	snap, err := fixedTracker(campaign, counts, nil, now).Status(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, 3, snap.TotalBatches)
	assert.Equal(t, 3, snap.CurrentBatch)
	assert.Equal(t, 96, snap.PercentComplete)
	assert.InDelta(t, 80.0, snap.CurrentBatchProgress, 0.01)
}

func TestStatusDrainedCampaign(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(-time.Minute)
	campaign := baseCampaign(models.CampaignStatusCompleted, 10)
	campaign.StartedAt = &started

	counts := models.JobCounts{Total: 25, Completed: 24, Failed: 1}
	snap, err := fixedTracker(campaign, counts, nil, now).Status(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, 100, snap.PercentComplete)
	assert.Equal(t, 3, snap.CurrentBatch)
	assert.Equal(t, float64(100), snap.CurrentBatchProgress)
	assert.Equal(t, "0s", snap.EstimatedTimeRemaining)
	assert.InDelta(t, 96.0, snap.SuccessRate, 0.01)
}

func TestStatusIncludesRecentFailures(t *testing.T) {
	now := time.Now().UTC()
	failedAt := now.Add(-time.Second)
	errMsg := "invalid destination"
	failures := []*models.Job{
		{Target: "target-13", LastError: &errMsg, FailedAt: &failedAt, Status: models.JobStatusFailed},
	}

	campaign := baseCampaign(models.CampaignStatusProcessing, 10)
	counts := models.JobCounts{Total: 25, Pending: 24, Failed: 1}
	snap, err := fixedTracker(campaign, counts, failures, now).Status(context.Background(), "c1")
	require.NoError(t, err)

	require.Len(t, snap.RecentFailures, 1)
	assert.Equal(t, "target-13", snap.RecentFailures[0].Target)
	assert.Equal(t, "invalid destination", snap.RecentFailures[0].Error)
}

func TestStatusUnknownCampaign(t *testing.T) {
	tr := NewTracker(&stubCampaigns{}, &stubJobs{}, 20)
	_, err := tr.Status(context.Background(), "missing")
	var notFound *service.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{0, "0s"},
		{12*time.Minute + 30*time.Second, "12m 30s"},
		{5 * time.Minute, "5m"},
		{time.Hour + 5*time.Minute, "1h 5m"},
		{2 * time.Hour, "2h"},
		{-time.Second, "0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.d), "%v", tt.d)
	}
}
