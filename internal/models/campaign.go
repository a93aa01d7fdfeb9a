package models

import (
	"fmt"
	"time"
)

// CampaignStatus represents valid campaign statuses
type CampaignStatus string

const (
	CampaignStatusCreated    CampaignStatus = "created"
	CampaignStatusPending    CampaignStatus = "pending"
	CampaignStatusProcessing CampaignStatus = "processing"
	CampaignStatusPaused     CampaignStatus = "paused"
	CampaignStatusCompleted  CampaignStatus = "completed"
	CampaignStatusCancelled  CampaignStatus = "cancelled"
	CampaignStatusFailed     CampaignStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusCancelled || s == CampaignStatusFailed
}

// Defaults for pacing fields left unset at creation time.
const (
	DefaultBatchSize    = 10
	DefaultMessageDelay = time.Second
	DefaultMaxAttempts  = 3
	DefaultBackoffBase  = 2 * time.Second
	DefaultBackoffCap   = 60 * time.Second
)

// PacingConfig holds the per-campaign send pacing parameters.
type PacingConfig struct {
	BatchSize    int           `json:"batch_size"`
	MessageDelay time.Duration `json:"message_delay"`
	MaxAttempts  int           `json:"max_attempts"`
	BackoffBase  time.Duration `json:"backoff_base"`
	BackoffCap   time.Duration `json:"backoff_cap"`
}

// Normalize fills zero-valued pacing fields with defaults.
func (p *PacingConfig) Normalize() {
	if p.BatchSize <= 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.MessageDelay <= 0 {
		p.MessageDelay = DefaultMessageDelay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = DefaultBackoffBase
	}
	if p.BackoffCap <= 0 {
		p.BackoffCap = DefaultBackoffCap
	}
}

// Campaign represents a batch send campaign
type Campaign struct {
	ID          string         `json:"id" db:"id"`
	TenantID    string         `json:"tenant_id" db:"tenant_id"`
	Name        string         `json:"name" db:"name"`
	Message     string         `json:"message" db:"message"`
	Status      CampaignStatus `json:"status" db:"status"`
	Pacing      PacingConfig   `json:"pacing"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty" db:"scheduled_at"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Validate checks if the campaign fields are valid
func (c *Campaign) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if c.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if c.Message == "" {
		return fmt.Errorf("campaign message is required")
	}
	return nil
}

// IsScheduled checks if the campaign is waiting on a future start time
func (c *Campaign) IsScheduled() bool {
	return c.Status == CampaignStatusCreated && c.ScheduledAt != nil && c.ScheduledAt.After(time.Now())
}

// CanTransition reports whether a control action may move the campaign
// from its current status to the target status.
func (c *Campaign) CanTransition(to CampaignStatus) bool {
	if c.Status.IsTerminal() {
		return false
	}
	switch to {
	case CampaignStatusPending:
		return c.Status == CampaignStatusCreated
	case CampaignStatusProcessing:
		return c.Status == CampaignStatusPending || c.Status == CampaignStatusPaused
	case CampaignStatusPaused:
		return c.Status == CampaignStatusProcessing
	case CampaignStatusCancelled:
		return c.Status == CampaignStatusCreated ||
			c.Status == CampaignStatusPending ||
			c.Status == CampaignStatusProcessing ||
			c.Status == CampaignStatusPaused
	case CampaignStatusCompleted:
		return c.Status == CampaignStatusProcessing
	case CampaignStatusFailed:
		// Infrastructure faults may fail a campaign from any live state.
		return true
	}
	return false
}
