// Package testutil provides in-memory test doubles shared across package
// tests.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"event-router/internal/common/errors"
	"event-router/internal/storage"
)

// MemStore is a mutex-protected in-memory implementation of storage.Storage.
type MemStore struct {
	mu     sync.Mutex
	events map[string]*storage.DataEvent
	rules  map[string]*storage.RoutingRule
	stats  map[storage.StatisticKey]*storage.EventStatistic

	// DestinationRows records InsertDestinationRow calls keyed by table name.
	DestinationRows map[string][]*storage.DataEvent

	// FailIncrement makes IncrementStatistic return an error when set.
	FailIncrement error

	// FailMarkProcessed makes MarkEventProcessed return an error when set.
	FailMarkProcessed error
}

func NewMemStore() *MemStore {
	return &MemStore{
		events:          make(map[string]*storage.DataEvent),
		rules:           make(map[string]*storage.RoutingRule),
		stats:           make(map[storage.StatisticKey]*storage.EventStatistic),
		DestinationRows: make(map[string][]*storage.DataEvent),
	}
}

func (m *MemStore) Close() error  { return nil }
func (m *MemStore) Health() error { return nil }

func (m *MemStore) CreateDataEvent(ctx context.Context, event *storage.DataEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *event
	m.events[event.ID] = &copied
	return nil
}

func (m *MemStore) GetDataEvent(ctx context.Context, id string) (*storage.DataEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return nil, errors.NotFoundError("data event")
	}
	copied := *event
	return &copied, nil
}

func (m *MemStore) ListDataEvents(ctx context.Context, tenantID, eventType string, limit, offset int) ([]*storage.DataEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*storage.DataEvent
	for _, event := range m.events {
		if event.TenantID != tenantID {
			continue
		}
		if eventType != "" && event.EventType != eventType {
			continue
		}
		copied := *event
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemStore) ListEventsInRange(ctx context.Context, tenantID string, start, end time.Time) ([]*storage.DataEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*storage.DataEvent
	for _, event := range m.events {
		if event.TenantID != tenantID {
			continue
		}
		if event.CreatedAt.Before(start) || !event.CreatedAt.Before(end) {
			continue
		}
		copied := *event
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

func (m *MemStore) ListEventTenants(ctx context.Context, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	for _, event := range m.events {
		if event.CreatedAt.Before(since) {
			continue
		}
		seen[event.TenantID] = true
	}

	tenants := make([]string, 0, len(seen))
	for tenant := range seen {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)
	return tenants, nil
}

func (m *MemStore) MarkEventProcessed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailMarkProcessed != nil {
		return m.FailMarkProcessed
	}
	event, ok := m.events[id]
	if !ok {
		return errors.NotFoundError("data event")
	}
	event.Processed = true
	return nil
}

func (m *MemStore) CreateRoutingRule(ctx context.Context, rule *storage.RoutingRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *rule
	m.rules[rule.ID] = &copied
	return nil
}

func (m *MemStore) GetRoutingRule(ctx context.Context, id string) (*storage.RoutingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return nil, errors.NotFoundError("routing rule")
	}
	copied := *rule
	return &copied, nil
}

func (m *MemStore) ListRoutingRules(ctx context.Context, tenantID string) ([]*storage.RoutingRule, error) {
	return m.rulesForTenant(tenantID, false), nil
}

func (m *MemStore) GetActiveRules(ctx context.Context, tenantID string) ([]*storage.RoutingRule, error) {
	return m.rulesForTenant(tenantID, true), nil
}

func (m *MemStore) rulesForTenant(tenantID string, activeOnly bool) []*storage.RoutingRule {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*storage.RoutingRule
	for _, rule := range m.rules {
		if rule.TenantID != tenantID {
			continue
		}
		if activeOnly && !rule.IsActive {
			continue
		}
		copied := *rule
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}
		return matched[i].ID < matched[j].ID
	})
	return matched
}

func (m *MemStore) UpdateRoutingRule(ctx context.Context, rule *storage.RoutingRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[rule.ID]; !ok {
		return errors.NotFoundError("routing rule")
	}
	copied := *rule
	m.rules[rule.ID] = &copied
	return nil
}

func (m *MemStore) DeleteRoutingRule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return errors.NotFoundError("routing rule")
	}
	delete(m.rules, id)
	return nil
}

func (m *MemStore) SetRoutingRuleActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return errors.NotFoundError("routing rule")
	}
	rule.IsActive = active
	rule.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemStore) IncrementStatistic(ctx context.Context, key storage.StatisticKey, class storage.EventClass) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailIncrement != nil {
		return m.FailIncrement
	}

	stat, ok := m.stats[key]
	if !ok {
		stat = &storage.EventStatistic{
			ID:         key.TenantID + "/" + key.EventType + "/" + key.TimePeriod,
			TenantID:   key.TenantID,
			EventType:  key.EventType,
			TimeBucket: key.TimeBucket,
			TimePeriod: key.TimePeriod,
		}
		m.stats[key] = stat
	}

	stat.TotalEvents++
	switch class {
	case storage.ClassProcessed:
		stat.ProcessedEvents++
	case storage.ClassFailed:
		stat.FailedEvents++
	case storage.ClassPending:
		stat.PendingEvents++
	}
	stat.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemStore) UpsertStatisticTotals(ctx context.Context, key storage.StatisticKey, total, processed, pending int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stat, ok := m.stats[key]
	if !ok {
		stat = &storage.EventStatistic{
			ID:         key.TenantID + "/" + key.EventType + "/" + key.TimePeriod,
			TenantID:   key.TenantID,
			EventType:  key.EventType,
			TimeBucket: key.TimeBucket,
			TimePeriod: key.TimePeriod,
		}
		m.stats[key] = stat
	}

	stat.TotalEvents = total
	stat.ProcessedEvents = processed
	stat.PendingEvents = pending
	stat.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemStore) ListStatistics(ctx context.Context, q storage.StatisticsQuery) ([]*storage.EventStatistic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*storage.EventStatistic
	for key, stat := range m.stats {
		if key.TenantID != q.TenantID || key.TimePeriod != q.TimePeriod {
			continue
		}
		if q.EventType != "" && key.EventType != q.EventType {
			continue
		}
		if key.TimeBucket.Before(q.Start) || key.TimeBucket.After(q.End) {
			continue
		}
		copied := *stat
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].TimeBucket.Equal(matched[j].TimeBucket) {
			return matched[i].TimeBucket.After(matched[j].TimeBucket)
		}
		return strings.Compare(matched[i].EventType, matched[j].EventType) < 0
	})
	return matched, nil
}

func (m *MemStore) DashboardStatistics(ctx context.Context, tenantID, timePeriod string, since time.Time) (*storage.DashboardMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byType := make(map[string]*storage.DashboardRow)
	for key, stat := range m.stats {
		if key.TenantID != tenantID || key.TimePeriod != timePeriod {
			continue
		}
		if key.TimeBucket.Before(since) {
			continue
		}

		row, ok := byType[key.EventType]
		if !ok {
			row = &storage.DashboardRow{EventType: key.EventType}
			byType[key.EventType] = row
		}
		row.TotalEvents += stat.TotalEvents
		row.ProcessedEvents += stat.ProcessedEvents
		row.FailedEvents += stat.FailedEvents
		row.PendingEvents += stat.PendingEvents
		if key.TimeBucket.After(row.LatestBucket) {
			row.LatestBucket = key.TimeBucket
		}
	}

	metrics := &storage.DashboardMetrics{
		TenantID:   tenantID,
		TimePeriod: timePeriod,
		EventTypes: []storage.DashboardRow{},
	}
	for _, row := range byType {
		metrics.EventTypes = append(metrics.EventTypes, *row)
		metrics.Totals.TotalEvents += row.TotalEvents
		metrics.Totals.ProcessedEvents += row.ProcessedEvents
		metrics.Totals.FailedEvents += row.FailedEvents
		metrics.Totals.PendingEvents += row.PendingEvents
	}

	sort.Slice(metrics.EventTypes, func(i, j int) bool {
		return metrics.EventTypes[i].TotalEvents > metrics.EventTypes[j].TotalEvents
	})
	return metrics, nil
}

func (m *MemStore) InsertDestinationRow(ctx context.Context, table string, event *storage.DataEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *event
	m.DestinationRows[table] = append(m.DestinationRows[table], &copied)
	return nil
}

// Statistic returns a copy of the stored statistic for the key, or nil.
func (m *MemStore) Statistic(key storage.StatisticKey) *storage.EventStatistic {
	m.mu.Lock()
	defer m.mu.Unlock()
	stat, ok := m.stats[key]
	if !ok {
		return nil
	}
	copied := *stat
	return &copied
}
