// Package storage defines the persistence gateway consumed by the ingestion,
// routing and statistics components, plus the adapter registry that selects a
// concrete backend (SQLite or PostgreSQL).
package storage

import (
	"context"
	"time"
)

// Storage is the durable store for events, routing rules and statistics.
// A handle is created once by the service process and threaded explicitly
// through every component; there is no shared global connection state.
type Storage interface {
	// Connection management
	Close() error
	Health() error

	// Data events. Events are append-only: nothing here deletes or rewrites a
	// persisted event apart from the single Processed flag transition.
	CreateDataEvent(ctx context.Context, event *DataEvent) error
	GetDataEvent(ctx context.Context, id string) (*DataEvent, error)
	ListDataEvents(ctx context.Context, tenantID, eventType string, limit, offset int) ([]*DataEvent, error)
	// ListEventsInRange returns events created in [start, end) for a tenant,
	// used by the statistics recompute
	ListEventsInRange(ctx context.Context, tenantID string, start, end time.Time) ([]*DataEvent, error)
	// ListEventTenants returns the distinct tenants with events created since
	// the given time, used by the background statistics refresh
	ListEventTenants(ctx context.Context, since time.Time) ([]string, error)
	MarkEventProcessed(ctx context.Context, id string) error

	// Routing rules
	CreateRoutingRule(ctx context.Context, rule *RoutingRule) error
	GetRoutingRule(ctx context.Context, id string) (*RoutingRule, error)
	ListRoutingRules(ctx context.Context, tenantID string) ([]*RoutingRule, error)
	// GetActiveRules returns the tenant's active rules ordered by
	// (priority ASC, id ASC)
	GetActiveRules(ctx context.Context, tenantID string) ([]*RoutingRule, error)
	UpdateRoutingRule(ctx context.Context, rule *RoutingRule) error
	DeleteRoutingRule(ctx context.Context, id string) error
	SetRoutingRuleActive(ctx context.Context, id string, active bool) error

	// Statistics. IncrementStatistic must be atomic (upsert-with-increment):
	// concurrent increments on the same key must not lose updates.
	IncrementStatistic(ctx context.Context, key StatisticKey, class EventClass) error
	// UpsertStatisticTotals overwrites the total/processed/pending counters for
	// a row (creating it if absent), preserving failed_events. Used by recompute,
	// which cannot reconstruct dispatch failures from the event log.
	UpsertStatisticTotals(ctx context.Context, key StatisticKey, total, processed, pending int64) error
	ListStatistics(ctx context.Context, q StatisticsQuery) ([]*EventStatistic, error)
	DashboardStatistics(ctx context.Context, tenantID, timePeriod string, since time.Time) (*DashboardMetrics, error)

	// InsertDestinationRow writes an event representation into the named
	// destination table (the "table" destination type)
	InsertDestinationRow(ctx context.Context, table string, event *DataEvent) error
}

// StorageConfig is implemented by backend-specific configuration types
type StorageConfig interface {
	Validate() error
}

// GenericConfig is a map-based config handed to registered factories
type GenericConfig map[string]string

// Validate implements StorageConfig; key checks happen in the adapter factory
func (GenericConfig) Validate() error { return nil }

// StorageFactory creates a connected storage adapter from a config
type StorageFactory interface {
	Create(config StorageConfig) (Storage, error)
}
