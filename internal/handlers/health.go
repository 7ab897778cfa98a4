package handlers

import (
	"net/http"

	"event-router/internal/models"
)

// Health reports storage health.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{"storage": "ok"}
	status := http.StatusOK

	if err := h.storage.Health(); err != nil {
		components["storage"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	writeJSON(w, status, models.HealthResponse{
		Status:     overall,
		Components: components,
	})
}
