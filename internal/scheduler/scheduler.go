package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"lealta/internal/models"
	"lealta/internal/repository"
)

// Starter launches a campaign. Satisfied by the dispatch controller.
type Starter interface {
	Start(ctx context.Context, id string) (*models.Campaign, error)
}

// Scheduler periodically sweeps for campaigns whose scheduled start time
// has arrived and hands them to the dispatcher. Campaigns already started
// by hand are skipped by the status check inside Start.
type Scheduler struct {
	campaigns repository.CampaignStore
	starter   Starter
	log       zerolog.Logger
	cron      *cron.Cron
	spec      string
}

func New(campaigns repository.CampaignStore, starter Starter, spec string, log zerolog.Logger) *Scheduler {
	if spec == "" {
		spec = "@every 30s"
	}
	return &Scheduler{
		campaigns: campaigns,
		starter:   starter,
		log:       log.With().Str("component", "scheduler").Logger(),
		cron:      cron.New(),
		spec:      spec,
	}
}

// Run starts the sweep schedule and blocks until the context is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.sweep(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("spec", s.spec).Msg("scheduler started")

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return nil
}

func (s *Scheduler) sweep(ctx context.Context) {
	due, err := s.campaigns.ListDueScheduled(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list due campaigns")
		return
	}
	for _, campaign := range due {
		if _, err := s.starter.Start(ctx, campaign.ID); err != nil {
			s.log.Error().Err(err).Str("campaign_id", campaign.ID).Msg("failed to start scheduled campaign")
			continue
		}
		s.log.Info().Str("campaign_id", campaign.ID).Str("name", campaign.Name).Msg("scheduled campaign started")
	}
}
