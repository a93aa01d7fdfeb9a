package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lealta/internal/config"
	"lealta/internal/models"
	"lealta/internal/repository"
	"lealta/internal/template"
)

// CampaignService handles campaign creation and lookup. Control actions
// (start/pause/resume/cancel) belong to the dispatch controller.
type CampaignService struct {
	campaigns repository.CampaignStore
	jobs      repository.JobStore
	presets   *config.PresetStore
	log       zerolog.Logger
}

// NewCampaignService creates a new campaign service
func NewCampaignService(
	campaigns repository.CampaignStore,
	jobs repository.JobStore,
	presets *config.PresetStore,
	log zerolog.Logger,
) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		jobs:      jobs,
		presets:   presets,
		log:       log,
	}
}

// Recipient is one destination in a create request
type Recipient struct {
	Target string            `json:"target"`
	Name   string            `json:"name"`
	Vars   map[string]string `json:"vars,omitempty"`
}

// CreateCampaignRequest represents a request to create a campaign
type CreateCampaignRequest struct {
	TenantID    string              `json:"tenant_id"`
	Name        string              `json:"name"`
	Message     string              `json:"message"`
	Recipients  []Recipient         `json:"recipients"`
	Preset      string              `json:"preset,omitempty"`
	Pacing      models.PacingConfig `json:"pacing,omitempty"`
	ScheduledAt *time.Time          `json:"scheduled_at,omitempty"`
}

// Validate validates the create campaign request
func (r *CreateCampaignRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if r.Message == "" {
		return fmt.Errorf("message is required")
	}
	if len(r.Recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	for i, rec := range r.Recipients {
		if rec.Target == "" {
			return fmt.Errorf("recipient %d has no target", i)
		}
	}
	return nil
}

// CreateCampaign creates the campaign row and one job per recipient.
// Recipient order fixes each job's ordinal position, which batch
// numbering and claim order depend on.
func (s *CampaignService) CreateCampaign(ctx context.Context, req *CreateCampaignRequest) (*models.Campaign, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	if err := template.Validate(req.Message); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid message template: %v", err)}
	}

	pacing := req.Pacing
	if req.Preset != "" {
		preset, ok := s.presets.Get(req.Preset)
		if !ok {
			return nil, &ValidationError{Message: fmt.Sprintf("unknown pacing preset: %s", req.Preset)}
		}
		pacing = preset
	}
	pacing.Normalize()

	campaign := &models.Campaign{
		ID:          uuid.NewString(),
		TenantID:    req.TenantID,
		Name:        req.Name,
		Message:     req.Message,
		Status:      models.CampaignStatusCreated,
		Pacing:      pacing,
		ScheduledAt: req.ScheduledAt,
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, &InfrastructureError{Op: "create campaign", Err: err}
	}

	jobs := make([]*models.Job, 0, len(req.Recipients))
	for i, rec := range req.Recipients {
		jobs = append(jobs, &models.Job{
			ID:         uuid.NewString(),
			CampaignID: campaign.ID,
			Target:     rec.Target,
			Name:       rec.Name,
			Position:   i,
			Status:     models.JobStatusPending,
		})
	}

	if err := s.jobs.CreateBatch(ctx, jobs); err != nil {
		// Roll back the half-created campaign so a retry is clean.
		if delErr := s.campaigns.Delete(ctx, campaign.ID); delErr != nil {
			s.log.Warn().Err(delErr).Str("campaign", campaign.ID).
				Msg("failed to remove campaign after job creation failure")
		}
		return nil, &InfrastructureError{Op: "create jobs", Err: err}
	}

	s.log.Info().
		Str("campaign", campaign.ID).
		Str("tenant", campaign.TenantID).
		Int("recipients", len(jobs)).
		Msg("campaign created")

	return campaign, nil
}

// GetCampaign retrieves a campaign by ID
func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	campaign, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, &InfrastructureError{Op: "get campaign", Err: err}
	}
	if campaign == nil {
		return nil, &NotFoundError{Resource: "campaign", ID: id}
	}
	return campaign, nil
}

// ListCampaigns lists campaigns with filters
func (s *CampaignService) ListCampaigns(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, *PaginationInfo, error) {
	campaigns, total, err := s.campaigns.List(ctx, filters)
	if err != nil {
		return nil, nil, &InfrastructureError{Op: "list campaigns", Err: err}
	}

	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	pagination := &PaginationInfo{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}

	return campaigns, pagination, nil
}

// RecommendPreset suggests a pacing tier for the given audience size
func (s *CampaignService) RecommendPreset(recipientCount int) (string, models.PacingConfig) {
	return s.presets.Recommend(recipientCount)
}

// PaginationInfo represents pagination metadata
type PaginationInfo struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}
