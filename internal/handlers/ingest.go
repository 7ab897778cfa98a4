package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"event-router/internal/common/errors"
	"event-router/internal/models"
)

// Ingest accepts an event for a tenant and runs the full pipeline.
// POST /api/ingest/{tenantID}
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]

	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.ValidationError("invalid JSON body"))
		return
	}

	result, err := h.pipeline.Ingest(r.Context(), tenantID, req.EventType, req.Payload, req.Metadata)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.IngestResponse{
		EventID:        result.Event.ID,
		RoutingSummary: result.Summary,
		Outcomes:       result.Outcomes,
	})
}

// GetEvent returns a single persisted event.
// GET /api/tenants/{tenantID}/events/{eventID}
func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	event, err := h.storage.GetDataEvent(r.Context(), vars["eventID"])
	if err != nil {
		h.writeError(w, err)
		return
	}

	if event.TenantID != vars["tenantID"] {
		h.writeError(w, errors.NotFoundError("data event"))
		return
	}

	writeJSON(w, http.StatusOK, models.ToEventResponse(event))
}

// ListEvents returns a tenant's events, newest first.
// GET /api/tenants/{tenantID}/events?event_type=&limit=&offset=
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]
	query := r.URL.Query()

	limit := parseIntParam(query.Get("limit"), 100)
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	offset := parseIntParam(query.Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	events, err := h.storage.ListDataEvents(r.Context(), tenantID, query.Get("event_type"), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	responses := make([]*models.EventResponse, len(events))
	for i, event := range events {
		responses[i] = models.ToEventResponse(event)
	}

	writeJSON(w, http.StatusOK, responses)
}

func parseIntParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
