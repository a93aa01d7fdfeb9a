package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"lealta/internal/models"
	"lealta/internal/repository"
	"lealta/internal/service"
)

// Lifecycle drives campaign state transitions. Satisfied by the dispatch
// controller.
type Lifecycle interface {
	Start(ctx context.Context, id string) (*models.Campaign, error)
	Pause(ctx context.Context, id string) (*models.Campaign, error)
	Resume(ctx context.Context, id string) (*models.Campaign, error)
	Cancel(ctx context.Context, id string) (*models.Campaign, error)
}

// StatusReader produces progress snapshots. Satisfied by the progress
// tracker.
type StatusReader interface {
	Status(ctx context.Context, id string) (*models.ProgressSnapshot, error)
}

// CampaignHandler handles HTTP requests for campaign operations.
type CampaignHandler struct {
	campaignService *service.CampaignService
	lifecycle       Lifecycle
	status          StatusReader
}

func NewCampaignHandler(campaignService *service.CampaignService, lifecycle Lifecycle, status StatusReader) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignService,
		lifecycle:       lifecycle,
		status:          status,
	}
}

// Create handles POST /campaigns.
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateCampaignRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Request body is empty")
			return
		}
		WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	campaign, err := h.campaignService.CreateCampaign(r.Context(), &req)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteCreated(w, campaign)
}

// List handles GET /campaigns with pagination and filters.
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := 1
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	perPage := 20
	if perPageStr := query.Get("per_page"); perPageStr != "" {
		if pp, err := strconv.Atoi(perPageStr); err == nil && pp > 0 {
			perPage = pp
		}
	}
	if perPage > 100 {
		perPage = 100
	}

	filters := repository.CampaignFilters{
		Page:     page,
		PageSize: perPage,
		TenantID: query.Get("tenant_id"),
	}
	if statusStr := query.Get("status"); statusStr != "" {
		status := models.CampaignStatus(statusStr)
		filters.Status = &status
	}

	campaigns, pagination, err := h.campaignService.ListCampaigns(r.Context(), filters)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, map[string]interface{}{
		"campaigns":  campaigns,
		"pagination": pagination,
	})
}

// Get handles GET /campaigns/{id}: the full progress snapshot.
func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	snapshot, err := h.status.Status(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, snapshot)
}

// Start handles POST /campaigns/{id}/start.
func (h *CampaignHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Start)
}

// Pause handles POST /campaigns/{id}/pause.
func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Pause)
}

// Resume handles POST /campaigns/{id}/resume.
func (h *CampaignHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Resume)
}

// Cancel handles POST /campaigns/{id}/cancel.
func (h *CampaignHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Cancel)
}

func (h *CampaignHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (*models.Campaign, error)) {
	id := mux.Vars(r)["id"]

	campaign, err := op(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, map[string]interface{}{
		"id":     campaign.ID,
		"status": campaign.Status,
	})
}

// RecommendPreset handles GET /presets/recommendation?recipients=N.
func (h *CampaignHandler) RecommendPreset(w http.ResponseWriter, r *http.Request) {
	count, err := strconv.Atoi(r.URL.Query().Get("recipients"))
	if err != nil || count < 1 {
		WriteValidationError(w, "recipients must be a positive integer")
		return
	}

	name, pacing := h.campaignService.RecommendPreset(count)
	WriteOK(w, map[string]interface{}{
		"preset": name,
		"pacing": pacing,
	})
}
