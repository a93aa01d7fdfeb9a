package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"lealta/internal/models"
	"lealta/internal/queue"
	"lealta/internal/repository"
)

// memStore is an in-memory implementation of both store interfaces with
// the same conditional-update semantics as the SQL repositories.
type memStore struct {
	mu        sync.Mutex
	campaigns map[string]*models.Campaign
	jobs      []*models.Job
}

func newMemStore() *memStore {
	return &memStore{campaigns: make(map[string]*models.Campaign)}
}

// memJobStore overlays the job-flavored GetByID; everything else is
// promoted from memStore.
type memJobStore struct{ *memStore }

func (s memJobStore) GetByID(ctx context.Context, id string) (*models.Job, error) {
	return s.memStore.GetByIDJob(ctx, id)
}

var _ repository.CampaignStore = (*memStore)(nil)
var _ repository.JobStore = memJobStore{}

func (s *memStore) Create(_ context.Context, campaign *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now
	cp := *campaign
	s.campaigns[campaign.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaign, ok := s.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *campaign
	return &cp, nil
}

func (s *memStore) List(_ context.Context, _ repository.CampaignFilters) ([]*models.Campaign, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.campaigns, id)
	return nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaign, ok := s.campaigns[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if campaign.Status == f {
			campaign.Status = to
			campaign.UpdatedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) MarkFinished(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus) (bool, error) {
	ok, err := s.UpdateStatus(ctx, id, from, to)
	if ok {
		s.mu.Lock()
		now := time.Now().UTC()
		s.campaigns[id].CompletedAt = &now
		s.mu.Unlock()
	}
	return ok, err
}

func (s *memStore) MarkStarted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaign, ok := s.campaigns[id]
	if !ok {
		return fmt.Errorf("campaign %s not found", id)
	}
	if campaign.StartedAt == nil {
		now := time.Now().UTC()
		campaign.StartedAt = &now
	}
	return nil
}

func (s *memStore) ListDueScheduled(_ context.Context, now time.Time) ([]*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.Campaign
	for _, c := range s.campaigns {
		if c.Status == models.CampaignStatusCreated && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			cp := *c
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (s *memStore) CreateBatch(_ context.Context, jobs []*models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, job := range jobs {
		cp := *job
		cp.CreatedAt = now
		cp.UpdatedAt = now
		if cp.AvailableAt.IsZero() {
			cp.AvailableAt = now
		}
		s.jobs = append(s.jobs, &cp)
	}
	return nil
}

func (s *memStore) GetByIDJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ID == id {
			cp := *job
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) find(id string) *models.Job {
	for _, job := range s.jobs {
		if job.ID == id {
			return job
		}
	}
	return nil
}

func (s *memStore) ClaimNextPending(_ context.Context, campaignID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()

	var candidates []*models.Job
	for _, job := range s.jobs {
		if job.CampaignID == campaignID && job.Status == models.JobStatusPending && !job.AvailableAt.After(now) {
			candidates = append(candidates, job)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Position < candidates[j].Position })

	job := candidates[0]
	job.Status = models.JobStatusProcessing
	job.Attempts++
	job.ClaimedAt = &now
	job.UpdatedAt = now

	cp := *job
	return &cp, nil
}

func (s *memStore) markFromProcessing(id string, to models.JobStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.find(id)
	if job == nil || job.Status != models.JobStatusProcessing {
		return fmt.Errorf("job %s is not processing", id)
	}
	now := time.Now().UTC()
	job.Status = to
	job.UpdatedAt = now
	switch to {
	case models.JobStatusCompleted:
		job.CompletedAt = &now
	case models.JobStatusFailed:
		job.FailedAt = &now
		job.LastError = errMsg
	}
	return nil
}

func (s *memStore) MarkCompleted(_ context.Context, jobID string) error {
	return s.markFromProcessing(jobID, models.JobStatusCompleted, nil)
}

func (s *memStore) MarkFailed(_ context.Context, jobID string, errMsg string) error {
	return s.markFromProcessing(jobID, models.JobStatusFailed, &errMsg)
}

func (s *memStore) MarkCancelled(_ context.Context, jobID string) error {
	return s.markFromProcessing(jobID, models.JobStatusCancelled, nil)
}

func (s *memStore) RequeueWithBackoff(_ context.Context, jobID string, availableAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.find(jobID)
	if job == nil || job.Status != models.JobStatusProcessing {
		return fmt.Errorf("job %s is not processing", jobID)
	}
	job.Status = models.JobStatusPending
	job.AvailableAt = availableAt
	job.ClaimedAt = nil
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) CancelPending(_ context.Context, campaignID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, job := range s.jobs {
		if job.CampaignID == campaignID && job.Status == models.JobStatusPending {
			job.Status = models.JobStatusCancelled
			n++
		}
	}
	return n, nil
}

func (s *memStore) CountsByStatus(_ context.Context, campaignID string) (models.JobCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts models.JobCounts
	for _, job := range s.jobs {
		if job.CampaignID != campaignID {
			continue
		}
		counts.Total++
		switch job.Status {
		case models.JobStatusPending:
			counts.Pending++
		case models.JobStatusProcessing:
			counts.Processing++
		case models.JobStatusCompleted:
			counts.Completed++
		case models.JobStatusFailed:
			counts.Failed++
		case models.JobStatusCancelled:
			counts.Cancelled++
		}
	}
	return counts, nil
}

func (s *memStore) RecentFailures(_ context.Context, campaignID string, limit int) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var failed []*models.Job
	for _, job := range s.jobs {
		if job.CampaignID == campaignID && job.Status == models.JobStatusFailed {
			cp := *job
			failed = append(failed, &cp)
		}
	}
	sort.Slice(failed, func(i, j int) bool {
		return failed[i].FailedAt != nil && failed[j].FailedAt != nil && failed[i].FailedAt.After(*failed[j].FailedAt)
	})
	if len(failed) > limit {
		failed = failed[:limit]
	}
	return failed, nil
}

func (s *memStore) ReconcileStaleProcessing(_ context.Context, campaignID string, staleness time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-staleness)
	var n int64
	for _, job := range s.jobs {
		if job.CampaignID == campaignID && job.Status == models.JobStatusProcessing &&
			job.ClaimedAt != nil && job.ClaimedAt.Before(cutoff) {
			job.Status = models.JobStatusPending
			job.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

// scriptedProvider fails specific targets in a scripted order and records
// every successful send.
type scriptedProvider struct {
	mu      sync.Mutex
	failing map[string][]error
	sent    []string
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{failing: make(map[string][]error)}
}

func (p *scriptedProvider) failOnce(target string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing[target] = append(p.failing[target], err)
}

func (p *scriptedProvider) Send(_ context.Context, target, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if q := p.failing[target]; len(q) > 0 {
		err := q[0]
		p.failing[target] = q[1:]
		return err
	}
	p.sent = append(p.sent, target)
	return nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) sentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

// captureSink records every published lifecycle event.
type captureSink struct {
	mu     sync.Mutex
	events []queue.CampaignEvent
}

func (c *captureSink) Publish(_ context.Context, event queue.CampaignEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) statuses() []models.CampaignStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.CampaignStatus, len(c.events))
	for i, e := range c.events {
		out[i] = e.Status
	}
	return out
}

func seedCampaign(t *testing.T, store *memStore, recipients int, pacing models.PacingConfig) *models.Campaign {
	t.Helper()
	pacing.Normalize()

	campaign := &models.Campaign{
		ID:       uuid.NewString(),
		TenantID: "t1",
		Name:     "test campaign",
		Message:  "Hi {name}",
		Status:   models.CampaignStatusCreated,
		Pacing:   pacing,
	}
	if err := store.Create(context.Background(), campaign); err != nil {
		t.Fatalf("create campaign: %v", err)
	}

	jobs := make([]*models.Job, 0, recipients)
	for i := 0; i < recipients; i++ {
		jobs = append(jobs, &models.Job{
			ID:         uuid.NewString(),
			CampaignID: campaign.ID,
			Target:     fmt.Sprintf("target-%02d", i+1),
			Name:       fmt.Sprintf("user%d", i+1),
			Position:   i,
			Status:     models.JobStatusPending,
		})
	}
	if err := store.CreateBatch(context.Background(), jobs); err != nil {
		t.Fatalf("create jobs: %v", err)
	}
	return campaign
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
