package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"event-router/internal/middleware"
)

// Router builds the HTTP route table with middleware applied.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.LoggingMiddleware)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/ingest/{tenantID}", h.Ingest).Methods(http.MethodPost)

	tenant := api.PathPrefix("/tenants/{tenantID}").Subrouter()

	tenant.HandleFunc("/events", h.ListEvents).Methods(http.MethodGet)
	tenant.HandleFunc("/events/{eventID}", h.GetEvent).Methods(http.MethodGet)

	tenant.HandleFunc("/rules", h.CreateRule).Methods(http.MethodPost)
	tenant.HandleFunc("/rules", h.ListRules).Methods(http.MethodGet)
	tenant.HandleFunc("/rules/{ruleID}", h.GetRule).Methods(http.MethodGet)
	tenant.HandleFunc("/rules/{ruleID}", h.UpdateRule).Methods(http.MethodPut)
	tenant.HandleFunc("/rules/{ruleID}", h.DeleteRule).Methods(http.MethodDelete)
	tenant.HandleFunc("/rules/{ruleID}/toggle", h.ToggleRule).Methods(http.MethodPost)

	tenant.HandleFunc("/statistics", h.GetStatistics).Methods(http.MethodGet)
	tenant.HandleFunc("/statistics/dashboard", h.GetDashboard).Methods(http.MethodGet)
	tenant.HandleFunc("/statistics/refresh", h.RefreshStatistics).Methods(http.MethodPost)

	return r
}
