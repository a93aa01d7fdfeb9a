package models

import "time"

// FailedJobInfo is one entry in the status endpoint's recent-failures sample.
type FailedJobInfo struct {
	Target   string    `json:"target"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// ProgressSnapshot is the derived view of a campaign's progress. It is
// recomputed from the job store on every status query and is never a
// source of truth.
type ProgressSnapshot struct {
	CampaignID   string         `json:"campaign_id"`
	Name         string         `json:"name"`
	Status       CampaignStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`

	TotalRecipients int `json:"total_recipients"`
	Sent            int `json:"sent"`
	Failed          int `json:"failed"`
	Pending         int `json:"pending"`
	Processing      int `json:"processing"`
	Cancelled       int `json:"cancelled"`

	PercentComplete      int     `json:"percent_complete"`
	CurrentBatch         int     `json:"current_batch"`
	TotalBatches         int     `json:"total_batches"`
	CurrentBatchProgress float64 `json:"current_batch_progress"`

	// EstimatedTimeRemaining is "Unknown" until at least one send succeeds.
	EstimatedTimeRemaining string  `json:"estimated_time_remaining"`
	SuccessRate            float64 `json:"success_rate"`
	MessagesPerMinute      float64 `json:"messages_per_minute"`

	RecentFailures []FailedJobInfo `json:"recent_failures"`
	LastUpdated    time.Time       `json:"last_updated"`
}
