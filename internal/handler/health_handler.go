package handler

import (
	"net/http"

	"lealta/internal/service"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	healthService *service.HealthChecker
}

func NewHealthHandler(healthService *service.HealthChecker) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
	}
}

// HandleHealth handles GET /health.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthStatus, err := h.healthService.CheckHealth()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to perform health check")
		return
	}

	status := http.StatusOK
	if healthStatus.Status == service.StatusUnhealthy || healthStatus.Status == service.StatusDegraded {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, healthStatus)
}
