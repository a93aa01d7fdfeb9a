package models

import "time"

// JobStatus represents valid job statuses
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether the job has reached a final state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job represents one recipient's message within a campaign.
// Position is the insertion ordinal; it determines batch assignment
// and the claim order.
type Job struct {
	ID          string     `json:"id" db:"id"`
	CampaignID  string     `json:"campaign_id" db:"campaign_id"`
	Target      string     `json:"target" db:"target"`
	Name        string     `json:"name" db:"name"`
	Position    int        `json:"position" db:"position"`
	Status      JobStatus  `json:"status" db:"status"`
	Attempts    int        `json:"attempts" db:"attempts"`
	LastError   *string    `json:"last_error,omitempty" db:"last_error"`
	AvailableAt time.Time  `json:"available_at" db:"available_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty" db:"claimed_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	FailedAt    *time.Time `json:"failed_at,omitempty" db:"failed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// JobCounts holds per-status job totals for one campaign.
type JobCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// Done returns the number of jobs that reached a terminal send outcome.
// Cancelled jobs are excluded: they were never attempted.
func (c JobCounts) Done() int {
	return c.Completed + c.Failed
}

// Remaining returns the number of jobs still eligible for sending.
func (c JobCounts) Remaining() int {
	return c.Pending + c.Processing
}
