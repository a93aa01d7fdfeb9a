package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"lealta/internal/models"
	"lealta/internal/pacer"
	"lealta/internal/provider"
	"lealta/internal/template"
)

type paceResult int

const (
	paceOK paceResult = iota
	pacePaused
	paceCancelled
)

// worker drives a single campaign: claim the next pending job, pace,
// send, record the outcome, repeat. It is the only writer of the
// campaign's started/completed transitions while it runs.
type worker struct {
	ctrl     *Controller
	campaign *models.Campaign
	gate     *gate
	slotHeld bool
}

// acquireSlot takes a global concurrency slot, blocking while the cap is
// reached.
func (w *worker) acquireSlot(ctx context.Context) bool {
	select {
	case w.ctrl.slots <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	w.slotHeld = true
	if w.ctrl.metrics != nil {
		w.ctrl.metrics.ActiveWorkers.Inc()
	}
	return true
}

func (w *worker) releaseSlot() {
	if !w.slotHeld {
		return
	}
	w.slotHeld = false
	<-w.ctrl.slots
	if w.ctrl.metrics != nil {
		w.ctrl.metrics.ActiveWorkers.Dec()
	}
}

func (w *worker) run(ctx context.Context) {
	c := w.ctrl
	log := c.log.With().Str("campaign_id", w.campaign.ID).Logger()

	// Global worker cap. Queued campaigns stay processing in the store
	// and begin as soon as a slot frees up.
	if !w.acquireSlot(ctx) {
		return
	}
	defer w.releaseSlot()

	// Sweep jobs stranded in processing by a crashed run back to pending
	// before claiming anything ourselves.
	if n, err := c.jobs.ReconcileStaleProcessing(ctx, w.campaign.ID, w.staleness()); err != nil {
		log.Error().Err(err).Msg("failed to reconcile stale jobs")
		return
	} else if n > 0 {
		log.Warn().Int64("jobs", n).Msg("requeued jobs stranded by a previous run")
	}

	if err := c.campaigns.MarkStarted(ctx, w.campaign.ID); err != nil {
		log.Error().Err(err).Msg("failed to record campaign start")
		return
	}

	pace := pacer.New(w.campaign.Pacing.MessageDelay)

	for {
		// A paused worker produces no provider traffic, so it gives its
		// slot back and competes for a fresh one on resume.
		if w.gate.Paused() {
			w.releaseSlot()
			if err := w.gate.Wait(ctx); err != nil {
				return
			}
			if !w.acquireSlot(ctx) {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		job, err := c.jobs.ClaimNextPending(ctx, w.campaign.ID)
		if err != nil {
			// Store fault: stop cleanly. The campaign stays processing
			// and a later start reconciles and resumes it.
			log.Error().Err(err).Msg("failed to claim next job")
			return
		}
		if job == nil {
			done, err := w.checkDrained(ctx, log)
			if err != nil || done {
				return
			}
			// Pending jobs exist but every one is inside its backoff
			// window. Wait a beat and re-check.
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.RequeuePoll):
			}
			continue
		}

		switch w.pace(ctx, pace) {
		case pacePaused:
			// Return the claimed job untouched so nothing is lost while
			// suspended.
			if err := c.jobs.RequeueWithBackoff(w.cleanupCtx(ctx), job.ID, time.Now().UTC()); err != nil {
				log.Error().Err(err).Str("job_id", job.ID).Msg("failed to release job on pause")
			}
			continue
		case paceCancelled:
			if err := c.jobs.MarkCancelled(w.cleanupCtx(ctx), job.ID); err != nil {
				log.Error().Err(err).Str("job_id", job.ID).Msg("failed to cancel claimed job")
			}
			return
		}

		w.dispatch(ctx, job, log)
	}
}

// pace waits out the inter-message delay. A pause or cancel arriving
// mid-wait interrupts it immediately.
func (w *worker) pace(ctx context.Context, pace *pacer.Pacer) paceResult {
	waitCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-w.gate.PauseSignal():
			stop()
		case <-waitCtx.Done():
		}
	}()

	if err := pace.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return paceCancelled
		}
		return pacePaused
	}
	return paceOK
}

// dispatch sends one job and records the outcome. A send already in
// flight is never abandoned: the provider call and the result write use a
// context that survives pause and cancel, bounded by the provider timeout.
func (w *worker) dispatch(ctx context.Context, job *models.Job, log zerolog.Logger) {
	c := w.ctrl

	body, err := template.Render(w.campaign.Message, map[string]string{
		"name":   job.Name,
		"target": job.Target,
	})
	if err != nil {
		// The message was validated at creation; fall back to the raw text.
		body = w.campaign.Message
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ProviderTimeout)
	err = c.provider.Send(sendCtx, job.Target, body)
	cancel()
	recordCtx := w.cleanupCtx(ctx)

	if err == nil {
		if merr := c.jobs.MarkCompleted(recordCtx, job.ID); merr != nil {
			log.Error().Err(merr).Str("job_id", job.ID).Msg("failed to record job completion")
			return
		}
		if c.metrics != nil {
			c.metrics.MessagesSent.WithLabelValues(w.campaign.ID).Inc()
		}
		w.maybeComplete(recordCtx, log)
		return
	}

	if provider.IsPermanent(err) {
		w.fail(recordCtx, job, err, "permanent", log)
		return
	}

	// Transient: retry with exponential backoff until the attempt budget
	// is spent. Attempts was already incremented by the claim.
	if job.Attempts >= w.campaign.Pacing.MaxAttempts {
		w.fail(recordCtx, job, err, "transient", log)
		return
	}

	delay := backoffDelay(w.campaign.Pacing.BackoffBase, w.campaign.Pacing.BackoffCap, job.Attempts)
	availableAt := time.Now().UTC().Add(delay)
	if rerr := c.jobs.RequeueWithBackoff(recordCtx, job.ID, availableAt); rerr != nil {
		log.Error().Err(rerr).Str("job_id", job.ID).Msg("failed to requeue job")
		return
	}
	if c.metrics != nil {
		c.metrics.MessagesRetried.WithLabelValues(w.campaign.ID).Inc()
	}
	log.Warn().
		Str("job_id", job.ID).
		Str("target", job.Target).
		Int("attempt", job.Attempts).
		Dur("backoff", delay).
		Err(err).
		Msg("send failed, will retry")
}

func (w *worker) fail(ctx context.Context, job *models.Job, cause error, class string, log zerolog.Logger) {
	c := w.ctrl
	if err := c.jobs.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to record job failure")
		return
	}
	if c.metrics != nil {
		c.metrics.MessagesFailed.WithLabelValues(w.campaign.ID, class).Inc()
	}
	log.Warn().
		Str("job_id", job.ID).
		Str("target", job.Target).
		Int("attempt", job.Attempts).
		Str("class", class).
		Err(cause).
		Msg("job failed")
	w.maybeComplete(ctx, log)
}

// checkDrained decides whether the campaign is finished. Only this worker
// performs the processing -> completed transition, guarded by the store
// CAS so a concurrent cancel always wins.
func (w *worker) checkDrained(ctx context.Context, log zerolog.Logger) (bool, error) {
	counts, err := w.ctrl.jobs.CountsByStatus(ctx, w.campaign.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to count jobs")
		return false, err
	}
	if counts.Remaining() > 0 {
		return false, nil
	}
	w.complete(ctx, counts, log)
	return true, nil
}

func (w *worker) maybeComplete(ctx context.Context, log zerolog.Logger) {
	counts, err := w.ctrl.jobs.CountsByStatus(ctx, w.campaign.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to count jobs")
		return
	}
	if counts.Remaining() == 0 {
		w.complete(ctx, counts, log)
	}
}

func (w *worker) complete(ctx context.Context, counts models.JobCounts, log zerolog.Logger) {
	c := w.ctrl
	ok, err := c.campaigns.MarkFinished(ctx, w.campaign.ID,
		[]models.CampaignStatus{models.CampaignStatusProcessing},
		models.CampaignStatusCompleted)
	if err != nil {
		log.Error().Err(err).Msg("failed to mark campaign completed")
		return
	}
	if !ok {
		// Lost the race to a cancel; nothing to do.
		return
	}
	w.campaign.Status = models.CampaignStatusCompleted
	if c.metrics != nil {
		c.metrics.CampaignsEnded.WithLabelValues(string(models.CampaignStatusCompleted)).Inc()
	}
	c.emit(ctx, w.campaign)
	log.Info().
		Int("sent", counts.Completed).
		Int("failed", counts.Failed).
		Msg("campaign completed")
}

// cleanupCtx returns a context for result writes that must land even when
// the worker context was just cancelled.
func (w *worker) cleanupCtx(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// staleness is the threshold after which a processing job from a dead run
// counts as abandoned.
func (w *worker) staleness() time.Duration {
	d := w.campaign.Pacing.MessageDelay * time.Duration(w.ctrl.cfg.StalenessFactor)
	if d < w.ctrl.cfg.StalenessFloor {
		return w.ctrl.cfg.StalenessFloor
	}
	return d
}
