package service

import (
	"fmt"

	"lealta/internal/models"
)

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// ValidationError represents a validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// InvalidStateError represents an illegal control action for the
// campaign's current status
type InvalidStateError struct {
	CampaignID string
	Status     models.CampaignStatus
	Action     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s campaign %s in status %s", e.Action, e.CampaignID, e.Status)
}

// AlreadyRunningError represents a duplicate start attempt: a worker
// handle for the campaign is already tracked in this process
type AlreadyRunningError struct {
	CampaignID string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("campaign %s already has a running worker", e.CampaignID)
}

// InfrastructureError represents a job store or broker fault, as opposed
// to a per-message provider failure
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("infrastructure fault during %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}
