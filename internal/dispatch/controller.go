package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lealta/internal/metrics"
	"lealta/internal/models"
	"lealta/internal/provider"
	"lealta/internal/queue"
	"lealta/internal/repository"
	"lealta/internal/service"
)

// EventSink receives campaign lifecycle events. Publishing is best-effort:
// the controller logs failures and moves on.
type EventSink interface {
	Publish(ctx context.Context, event queue.CampaignEvent) error
}

// Config tunes the dispatcher. Zero values are replaced with defaults.
type Config struct {
	// WorkerCap bounds concurrently running campaign workers process-wide.
	WorkerCap int
	// ProviderTimeout bounds a single send attempt.
	ProviderTimeout time.Duration
	// RequeuePoll is how often a worker re-checks for jobs whose backoff
	// window has elapsed.
	RequeuePoll time.Duration
	// StalenessFactor multiplies the campaign message delay to decide when
	// a processing job counts as abandoned.
	StalenessFactor int
	// StalenessFloor is the minimum staleness threshold.
	StalenessFloor time.Duration
}

func (c *Config) normalize() {
	if c.WorkerCap <= 0 {
		c.WorkerCap = 4
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 15 * time.Second
	}
	if c.RequeuePoll <= 0 {
		c.RequeuePoll = 500 * time.Millisecond
	}
	if c.StalenessFactor <= 0 {
		c.StalenessFactor = 5
	}
	if c.StalenessFloor <= 0 {
		c.StalenessFloor = time.Minute
	}
}

type handle struct {
	gate   *gate
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller owns the campaign lifecycle: it validates and applies status
// transitions, spawns one worker per running campaign, and relays
// pause/resume/cancel signals to it. Status transitions go through the
// store with compare-and-swap semantics so two instances never both win.
type Controller struct {
	campaigns repository.CampaignStore
	jobs      repository.JobStore
	provider  provider.Client
	events    EventSink
	metrics   *metrics.Metrics
	log       zerolog.Logger
	cfg       Config

	mu      sync.Mutex
	handles map[string]*handle

	slots   chan struct{}
	wg      sync.WaitGroup
	runCtx  context.Context
	runStop context.CancelFunc
}

func NewController(campaigns repository.CampaignStore, jobs repository.JobStore, client provider.Client, events EventSink, m *metrics.Metrics, cfg Config, log zerolog.Logger) *Controller {
	cfg.normalize()
	ctx, stop := context.WithCancel(context.Background())
	return &Controller{
		campaigns: campaigns,
		jobs:      jobs,
		provider:  client,
		events:    events,
		metrics:   m,
		log:       log.With().Str("component", "dispatcher").Logger(),
		cfg:       cfg,
		handles:   make(map[string]*handle),
		slots:     make(chan struct{}, cfg.WorkerCap),
		runCtx:    ctx,
		runStop:   stop,
	}
}

// Start begins or resumes dispatch for a campaign. On a paused campaign
// it behaves exactly like Resume; on a campaign already running on this
// instance it returns the campaign unchanged.
func (c *Controller) Start(ctx context.Context, id string) (*models.Campaign, error) {
	campaign, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch campaign.Status {
	case models.CampaignStatusProcessing:
		c.mu.Lock()
		_, running := c.handles[id]
		c.mu.Unlock()
		if running {
			return campaign, nil
		}
		// Processing in the store but no worker here: a previous instance
		// died mid-run. The new worker reconciles stale jobs on startup.
	case models.CampaignStatusPaused:
		// Starting a paused campaign resumes it. If the worker is still
		// resident it is woken in place rather than respawned.
		c.mu.Lock()
		h := c.handles[id]
		c.mu.Unlock()
		if h != nil {
			return c.wake(ctx, campaign, h, "start")
		}
	case models.CampaignStatusCreated, models.CampaignStatusPending:
	default:
		return nil, &service.InvalidStateError{CampaignID: id, Status: campaign.Status, Action: "start"}
	}

	if campaign.Status == models.CampaignStatusCreated {
		ok, err := c.campaigns.UpdateStatus(ctx, id,
			[]models.CampaignStatus{models.CampaignStatusCreated},
			models.CampaignStatusPending)
		if err != nil {
			return nil, c.failCampaign(ctx, id, err)
		}
		if ok {
			campaign.Status = models.CampaignStatusPending
		}
	}

	if err := c.spawn(ctx, campaign, "start"); err != nil {
		return nil, err
	}
	campaign.Status = models.CampaignStatusProcessing
	return campaign, nil
}

// Pause suspends a running campaign after its in-flight send finishes.
// Pausing an already paused campaign is a no-op.
func (c *Controller) Pause(ctx context.Context, id string) (*models.Campaign, error) {
	campaign, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch campaign.Status {
	case models.CampaignStatusPaused:
		return campaign, nil
	case models.CampaignStatusProcessing:
	default:
		return nil, &service.InvalidStateError{CampaignID: id, Status: campaign.Status, Action: "pause"}
	}

	ok, err := c.campaigns.UpdateStatus(ctx, id,
		[]models.CampaignStatus{models.CampaignStatusProcessing},
		models.CampaignStatusPaused)
	if err != nil {
		return nil, &service.InfrastructureError{Op: "pause campaign", Err: err}
	}
	if !ok {
		return nil, &service.InvalidStateError{CampaignID: id, Status: campaign.Status, Action: "pause"}
	}
	campaign.Status = models.CampaignStatusPaused

	c.mu.Lock()
	h := c.handles[id]
	c.mu.Unlock()
	if h != nil {
		h.gate.Pause()
	}

	c.emit(ctx, campaign)
	c.log.Info().Str("campaign_id", id).Msg("campaign paused")
	return campaign, nil
}

// Resume continues a paused campaign from where it left off. If the
// worker is still resident it is woken in place; otherwise a fresh one is
// spawned, which re-reconciles any jobs stranded by a crash.
func (c *Controller) Resume(ctx context.Context, id string) (*models.Campaign, error) {
	campaign, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch campaign.Status {
	case models.CampaignStatusProcessing:
		return campaign, nil
	case models.CampaignStatusPaused:
	default:
		return nil, &service.InvalidStateError{CampaignID: id, Status: campaign.Status, Action: "resume"}
	}

	c.mu.Lock()
	h := c.handles[id]
	c.mu.Unlock()

	if h != nil {
		return c.wake(ctx, campaign, h, "resume")
	}

	if err := c.spawn(ctx, campaign, "resume"); err != nil {
		return nil, err
	}
	campaign.Status = models.CampaignStatusProcessing
	return campaign, nil
}

// wake moves a paused campaign back to processing and opens the resident
// worker's gate. Both resume and start on a paused campaign land here.
func (c *Controller) wake(ctx context.Context, campaign *models.Campaign, h *handle, action string) (*models.Campaign, error) {
	ok, err := c.campaigns.UpdateStatus(ctx, campaign.ID,
		[]models.CampaignStatus{models.CampaignStatusPaused},
		models.CampaignStatusProcessing)
	if err != nil {
		return nil, &service.InfrastructureError{Op: action + " campaign", Err: err}
	}
	if !ok {
		return nil, &service.InvalidStateError{CampaignID: campaign.ID, Status: campaign.Status, Action: action}
	}
	campaign.Status = models.CampaignStatusProcessing
	h.gate.Resume()
	c.emit(ctx, campaign)
	c.log.Info().Str("campaign_id", campaign.ID).Msg("campaign resumed")
	return campaign, nil
}

// Cancel terminates a campaign permanently. Remaining pending jobs are
// marked cancelled; a send already in flight is allowed to finish and is
// recorded normally.
func (c *Controller) Cancel(ctx context.Context, id string) (*models.Campaign, error) {
	campaign, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status.IsTerminal() {
		return nil, &service.InvalidStateError{CampaignID: id, Status: campaign.Status, Action: "cancel"}
	}

	ok, err := c.campaigns.MarkFinished(ctx, id,
		[]models.CampaignStatus{
			models.CampaignStatusCreated,
			models.CampaignStatusPending,
			models.CampaignStatusProcessing,
			models.CampaignStatusPaused,
		},
		models.CampaignStatusCancelled)
	if err != nil {
		return nil, &service.InfrastructureError{Op: "cancel campaign", Err: err}
	}
	if !ok {
		return nil, &service.InvalidStateError{CampaignID: id, Status: campaign.Status, Action: "cancel"}
	}
	campaign.Status = models.CampaignStatusCancelled

	c.mu.Lock()
	h := c.handles[id]
	c.mu.Unlock()
	if h != nil {
		h.cancel()
		h.gate.Resume() // wake a paused worker so it can observe the cancel
	}

	if n, err := c.jobs.CancelPending(ctx, id); err != nil {
		c.log.Error().Err(err).Str("campaign_id", id).Msg("failed to cancel pending jobs")
	} else if n > 0 {
		c.log.Info().Str("campaign_id", id).Int64("jobs", n).Msg("pending jobs cancelled")
	}

	if c.metrics != nil {
		c.metrics.CampaignsEnded.WithLabelValues(string(models.CampaignStatusCancelled)).Inc()
	}
	c.emit(ctx, campaign)
	c.log.Info().Str("campaign_id", id).Msg("campaign cancelled")
	return campaign, nil
}

// Running reports whether this instance currently hosts a worker for the
// campaign.
func (c *Controller) Running(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handles[id]
	return ok
}

// Shutdown stops all workers and waits for them to drain, up to the
// context deadline. Campaigns left processing are picked up again by the
// reconciliation sweep on the next start.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.runStop()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown timed out: %w", ctx.Err())
	}
}

func (c *Controller) load(ctx context.Context, id string) (*models.Campaign, error) {
	campaign, err := c.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, &service.InfrastructureError{Op: "load campaign", Err: err}
	}
	if campaign == nil {
		return nil, &service.NotFoundError{Resource: "campaign", ID: id}
	}
	return campaign, nil
}

// spawn registers a handle and launches the worker goroutine. The store
// transition to processing happens before the goroutine starts so a
// status read immediately after Start never sees the old state.
func (c *Controller) spawn(ctx context.Context, campaign *models.Campaign, action string) error {
	c.mu.Lock()
	if _, ok := c.handles[campaign.ID]; ok {
		c.mu.Unlock()
		return &service.AlreadyRunningError{CampaignID: campaign.ID}
	}
	workerCtx, cancel := context.WithCancel(c.runCtx)
	h := &handle{
		gate:   newGate(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.handles[campaign.ID] = h
	c.mu.Unlock()

	ok, err := c.campaigns.UpdateStatus(ctx, campaign.ID,
		[]models.CampaignStatus{
			models.CampaignStatusPending,
			models.CampaignStatusPaused,
			models.CampaignStatusProcessing,
		},
		models.CampaignStatusProcessing)
	if err != nil {
		c.removeHandle(campaign.ID)
		cancel()
		return c.failCampaign(ctx, campaign.ID, err)
	}
	if !ok {
		c.removeHandle(campaign.ID)
		cancel()
		current, lerr := c.load(ctx, campaign.ID)
		if lerr != nil {
			return lerr
		}
		return &service.InvalidStateError{CampaignID: campaign.ID, Status: current.Status, Action: action}
	}

	started := *campaign
	started.Status = models.CampaignStatusProcessing

	c.wg.Add(1)
	w := &worker{
		ctrl:     c,
		campaign: &started,
		gate:     h.gate,
	}
	go func() {
		defer c.wg.Done()
		defer close(h.done)
		defer c.removeHandle(started.ID)
		w.run(workerCtx)
	}()

	c.emit(ctx, &started)
	c.log.Info().Str("campaign_id", started.ID).Str("action", action).Msg("campaign worker started")
	return nil
}

func (c *Controller) removeHandle(id string) {
	c.mu.Lock()
	delete(c.handles, id)
	c.mu.Unlock()
}

// failCampaign records an infrastructure fault at start time: the
// campaign is marked failed (best effort) and the fault is returned.
func (c *Controller) failCampaign(ctx context.Context, id string, cause error) error {
	_, err := c.campaigns.MarkFinished(ctx, id,
		[]models.CampaignStatus{
			models.CampaignStatusCreated,
			models.CampaignStatusPending,
			models.CampaignStatusProcessing,
			models.CampaignStatusPaused,
		},
		models.CampaignStatusFailed)
	if err != nil {
		c.log.Error().Err(err).Str("campaign_id", id).Msg("failed to mark campaign failed")
	}
	if c.metrics != nil {
		c.metrics.CampaignsEnded.WithLabelValues(string(models.CampaignStatusFailed)).Inc()
	}
	return &service.InfrastructureError{Op: "start campaign", Err: cause}
}

// emit publishes a lifecycle event with current job counts. Failures are
// logged, never surfaced to the caller.
func (c *Controller) emit(ctx context.Context, campaign *models.Campaign) {
	if c.events == nil {
		return
	}
	event := queue.CampaignEvent{
		CampaignID: campaign.ID,
		TenantID:   campaign.TenantID,
		Status:     campaign.Status,
		OccurredAt: time.Now().UTC(),
	}
	if counts, err := c.jobs.CountsByStatus(ctx, campaign.ID); err == nil {
		event.Sent = counts.Completed
		event.Failed = counts.Failed
	}
	if err := c.events.Publish(ctx, event); err != nil {
		c.log.Warn().Err(err).Str("campaign_id", campaign.ID).Msg("failed to publish campaign event")
	}
}
