// Package handlers implements the HTTP API surface.
package handlers

import (
	"encoding/json"
	"net/http"

	"event-router/internal/common/errors"
	"event-router/internal/common/logging"
	"event-router/internal/ingestion"
	"event-router/internal/routing"
	"event-router/internal/statistics"
	"event-router/internal/storage"
)

type Handlers struct {
	storage    storage.Storage
	pipeline   *ingestion.Pipeline
	evaluator  *routing.Evaluator
	aggregator *statistics.Aggregator
	logger     logging.Logger
}

func New(
	store storage.Storage,
	pipeline *ingestion.Pipeline,
	evaluator *routing.Evaluator,
	aggregator *statistics.Aggregator,
	logger logging.Logger,
) *Handlers {
	return &Handlers{
		storage:    store,
		pipeline:   pipeline,
		evaluator:  evaluator,
		aggregator: aggregator,
		logger:     logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto HTTP status codes.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch errors.GetType(err) {
	case errors.ErrTypeValidation:
		status = http.StatusBadRequest
	case errors.ErrTypeNotFound:
		status = http.StatusNotFound
	case errors.ErrTypeTimeout:
		status = http.StatusGatewayTimeout
	case errors.ErrTypeConnection, errors.ErrTypePersistence:
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		h.logger.Error("request failed", err)
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"type":  string(errors.GetType(err)),
	})
}
