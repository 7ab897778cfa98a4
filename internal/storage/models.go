package storage

import (
	"time"
)

// Destination types supported by routing rules. The set is closed: adding a
// destination type is a schema and dispatcher change, not a runtime extension.
const (
	DestinationWebhook = "webhook"
	DestinationTable   = "table"
	DestinationQueue   = "queue"
)

// ValidDestinationType reports whether s names a supported destination type
func ValidDestinationType(s string) bool {
	switch s {
	case DestinationWebhook, DestinationTable, DestinationQueue:
		return true
	}
	return false
}

// EventClass is the statistics classification of an ingested event
type EventClass string

const (
	// ClassProcessed means routing was attempted and at least one dispatch
	// succeeded, or no rule matched at all
	ClassProcessed EventClass = "processed"
	// ClassFailed means at least one rule matched and every dispatch failed
	ClassFailed EventClass = "failed"
	// ClassPending means the event has been persisted but not yet routed
	ClassPending EventClass = "pending"
)

// DataEvent is one ingested unit of arbitrary structured data tagged with a
// type. Immutable once persisted except for the single false->true Processed
// transition, set after routing has been attempted.
type DataEvent struct {
	ID        string                 `json:"id"`
	TenantID  string                 `json:"tenant_id"`
	EventType string                 `json:"event_type"`
	Payload   interface{}            `json:"payload"` // JSON object or array
	Metadata  map[string]interface{} `json:"metadata"`
	Processed bool                   `json:"processed"`
	CreatedAt time.Time              `json:"created_at"`
}

// RoutingRule is a declarative filter + condition + destination evaluated per
// event. Rules are scoped to a tenant and never match another tenant's events.
type RoutingRule struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	// EventTypeFilter restricts the rule to one event type; nil matches all types
	EventTypeFilter *string `json:"event_type_filter"`
	// Condition is the declarative condition tree, stored as opaque JSON and
	// parsed at evaluation time (e.g. {"payload.total": {"$gt": 50}})
	Condition         map[string]interface{} `json:"condition"`
	DestinationType   string                 `json:"destination_type"`
	DestinationConfig map[string]interface{} `json:"destination_config"`
	// Priority orders evaluation: lower value first, ties broken by ID ascending
	Priority  int       `json:"priority"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventStatistic is one pre-aggregated counter row, uniquely keyed by
// (tenant_id, event_type, time_bucket, time_period). The counters satisfy
// total = processed + failed + pending after every update.
type EventStatistic struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	EventType       string    `json:"event_type"`
	TimeBucket      time.Time `json:"time_bucket"`
	TimePeriod      string    `json:"time_period"` // hourly, daily, weekly
	TotalEvents     int64     `json:"total_events"`
	ProcessedEvents int64     `json:"processed_events"`
	FailedEvents    int64     `json:"failed_events"`
	PendingEvents   int64     `json:"pending_events"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// StatisticKey identifies one pre-aggregated counter row
type StatisticKey struct {
	TenantID   string
	EventType  string
	TimeBucket time.Time
	TimePeriod string
}

// StatisticsQuery filters statistics rows for a tenant
type StatisticsQuery struct {
	TenantID   string
	EventType  string // empty matches all event types
	TimePeriod string
	Start      time.Time
	End        time.Time
}

// StatTotals are counters summed across event types
type StatTotals struct {
	TotalEvents     int64 `json:"total_events"`
	ProcessedEvents int64 `json:"processed_events"`
	FailedEvents    int64 `json:"failed_events"`
	PendingEvents   int64 `json:"pending_events"`
}

// DashboardRow is the per-event-type summary used by the dashboard view
type DashboardRow struct {
	EventType       string    `json:"event_type"`
	TotalEvents     int64     `json:"total_events"`
	ProcessedEvents int64     `json:"processed_events"`
	FailedEvents    int64     `json:"failed_events"`
	PendingEvents   int64     `json:"pending_events"`
	LatestBucket    time.Time `json:"latest_bucket"`
}

// DashboardMetrics is the dashboard summary across all event types
type DashboardMetrics struct {
	TenantID   string         `json:"tenant_id"`
	TimePeriod string         `json:"time_period"`
	EventTypes []DashboardRow `json:"event_types"`
	Totals     StatTotals     `json:"totals"`
}
