// Package models defines the JSON request and response shapes of the HTTP
// API.
package models

import (
	"time"

	"event-router/internal/dispatch"
	"event-router/internal/ingestion"
	"event-router/internal/storage"
)

// IngestRequest is the body of POST /api/ingest/{tenantID}.
type IngestRequest struct {
	EventType string                 `json:"event_type"`
	Payload   interface{}            `json:"payload"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// IngestResponse reports the persisted event id and what routing did with it.
type IngestResponse struct {
	EventID        string                   `json:"event_id"`
	RoutingSummary ingestion.RoutingSummary `json:"routing_summary"`
	Outcomes       []dispatch.Outcome       `json:"dispatch_outcomes,omitempty"`
}

// RuleRequest is the body for creating or updating a routing rule.
type RuleRequest struct {
	Name              string                 `json:"name"`
	EventTypeFilter   *string                `json:"event_type_filter,omitempty"`
	Condition         map[string]interface{} `json:"condition"`
	DestinationType   string                 `json:"destination_type"`
	DestinationConfig map[string]interface{} `json:"destination_config"`
	Priority          *int                   `json:"priority,omitempty"`
	IsActive          *bool                  `json:"is_active,omitempty"`
}

// RuleResponse mirrors the RoutingRule entity.
type RuleResponse struct {
	ID                string                 `json:"id"`
	TenantID          string                 `json:"tenant_id"`
	Name              string                 `json:"name"`
	EventTypeFilter   *string                `json:"event_type_filter,omitempty"`
	Condition         map[string]interface{} `json:"condition"`
	DestinationType   string                 `json:"destination_type"`
	DestinationConfig map[string]interface{} `json:"destination_config"`
	Priority          int                    `json:"priority"`
	IsActive          bool                   `json:"is_active"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// ToRuleResponse converts a stored rule to its API shape.
func ToRuleResponse(rule *storage.RoutingRule) *RuleResponse {
	return &RuleResponse{
		ID:                rule.ID,
		TenantID:          rule.TenantID,
		Name:              rule.Name,
		EventTypeFilter:   rule.EventTypeFilter,
		Condition:         rule.Condition,
		DestinationType:   rule.DestinationType,
		DestinationConfig: rule.DestinationConfig,
		Priority:          rule.Priority,
		IsActive:          rule.IsActive,
		CreatedAt:         rule.CreatedAt,
		UpdatedAt:         rule.UpdatedAt,
	}
}

// EventResponse mirrors the DataEvent entity.
type EventResponse struct {
	ID        string                 `json:"id"`
	TenantID  string                 `json:"tenant_id"`
	EventType string                 `json:"event_type"`
	Payload   interface{}            `json:"payload"`
	Metadata  map[string]interface{} `json:"metadata"`
	Processed bool                   `json:"processed"`
	CreatedAt time.Time              `json:"created_at"`
}

// ToEventResponse converts a stored event to its API shape.
func ToEventResponse(event *storage.DataEvent) *EventResponse {
	return &EventResponse{
		ID:        event.ID,
		TenantID:  event.TenantID,
		EventType: event.EventType,
		Payload:   event.Payload,
		Metadata:  event.Metadata,
		Processed: event.Processed,
		CreatedAt: event.CreatedAt,
	}
}

// StatisticsResponse is an ordered list of statistic rows.
type StatisticsResponse struct {
	TenantID   string                    `json:"tenant_id"`
	TimePeriod string                    `json:"time_period"`
	Rows       []*storage.EventStatistic `json:"rows"`
}

// RefreshResponse reports a completed statistics recompute.
type RefreshResponse struct {
	TenantID        string    `json:"tenant_id"`
	EventsRecounted int       `json:"events_recounted"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// HealthResponse reports component health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}
