// Package sqlite provides a SQLite implementation of the storage gateway.
// Structured values (payload, metadata, condition, destination_config) are
// stored as JSON text columns.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"event-router/internal/common/errors"
	"event-router/internal/storage"
)

type Adapter struct {
	db     *sql.DB
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)

	adapter := &Adapter{db: db, config: config}

	if err := adapter.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Adapter) Health() error {
	return a.db.Ping()
}

func (a *Adapter) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS data_events (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			processed BOOLEAN NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS routing_rules (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			event_type_filter TEXT,
			condition TEXT NOT NULL DEFAULT '{}',
			destination_type TEXT NOT NULL,
			destination_config TEXT NOT NULL DEFAULT '{}',
			priority INTEGER NOT NULL DEFAULT 100,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS event_statistics (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			time_bucket TIMESTAMP NOT NULL,
			time_period TEXT NOT NULL,
			total_events INTEGER NOT NULL DEFAULT 0,
			processed_events INTEGER NOT NULL DEFAULT 0,
			failed_events INTEGER NOT NULL DEFAULT 0,
			pending_events INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (tenant_id, event_type, time_bucket, time_period)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_data_events_tenant ON data_events(tenant_id, event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_data_events_created_at ON data_events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_routing_rules_tenant ON routing_rules(tenant_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_event_statistics_lookup ON event_statistics(tenant_id, time_period, time_bucket)`,
	}

	for _, query := range queries {
		if _, err := a.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}

	return nil
}

// Data events

func (a *Adapter) CreateDataEvent(ctx context.Context, event *storage.DataEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `INSERT INTO data_events (id, tenant_id, event_type, payload, metadata, processed, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = a.db.ExecContext(ctx, query, event.ID, event.TenantID, event.EventType,
		string(payload), string(metadata), event.Processed, event.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create data event: %w", err)
	}

	return nil
}

func (a *Adapter) GetDataEvent(ctx context.Context, id string) (*storage.DataEvent, error) {
	query := `SELECT id, tenant_id, event_type, payload, metadata, processed, created_at
			  FROM data_events WHERE id = ?`

	event, err := scanDataEvent(a.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("data event")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data event: %w", err)
	}

	return event, nil
}

func (a *Adapter) ListDataEvents(ctx context.Context, tenantID, eventType string, limit, offset int) ([]*storage.DataEvent, error) {
	query := `SELECT id, tenant_id, event_type, payload, metadata, processed, created_at
			  FROM data_events WHERE tenant_id = ?`
	args := []interface{}{tenantID}

	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list data events: %w", err)
	}
	defer rows.Close()

	return collectDataEvents(rows)
}

func (a *Adapter) ListEventsInRange(ctx context.Context, tenantID string, start, end time.Time) ([]*storage.DataEvent, error) {
	query := `SELECT id, tenant_id, event_type, payload, metadata, processed, created_at
			  FROM data_events
			  WHERE tenant_id = ? AND created_at >= ? AND created_at < ?
			  ORDER BY created_at ASC`

	rows, err := a.db.QueryContext(ctx, query, tenantID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list events in range: %w", err)
	}
	defer rows.Close()

	return collectDataEvents(rows)
}

func (a *Adapter) ListEventTenants(ctx context.Context, since time.Time) ([]string, error) {
	query := `SELECT DISTINCT tenant_id FROM data_events WHERE created_at >= ?`

	rows, err := a.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list event tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}

	return tenants, rows.Err()
}

func (a *Adapter) MarkEventProcessed(ctx context.Context, id string) error {
	result, err := a.db.ExecContext(ctx, `UPDATE data_events SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return errors.NotFoundError("data event")
	}

	return nil
}

// Routing rules

func (a *Adapter) CreateRoutingRule(ctx context.Context, rule *storage.RoutingRule) error {
	condition, config, err := marshalRuleColumns(rule)
	if err != nil {
		return err
	}

	query := `INSERT INTO routing_rules
			  (id, tenant_id, name, event_type_filter, condition, destination_type, destination_config, priority, is_active, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = a.db.ExecContext(ctx, query, rule.ID, rule.TenantID, rule.Name, rule.EventTypeFilter,
		condition, rule.DestinationType, config, rule.Priority, rule.IsActive,
		rule.CreatedAt.UTC(), rule.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create routing rule: %w", err)
	}

	return nil
}

func (a *Adapter) GetRoutingRule(ctx context.Context, id string) (*storage.RoutingRule, error) {
	query := selectRuleColumns + ` FROM routing_rules WHERE id = ?`

	rule, err := scanRoutingRule(a.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("routing rule")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get routing rule: %w", err)
	}

	return rule, nil
}

func (a *Adapter) ListRoutingRules(ctx context.Context, tenantID string) ([]*storage.RoutingRule, error) {
	query := selectRuleColumns + ` FROM routing_rules WHERE tenant_id = ? ORDER BY priority ASC, id ASC`

	rows, err := a.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list routing rules: %w", err)
	}
	defer rows.Close()

	return collectRoutingRules(rows)
}

func (a *Adapter) GetActiveRules(ctx context.Context, tenantID string) ([]*storage.RoutingRule, error) {
	query := selectRuleColumns + ` FROM routing_rules
			  WHERE tenant_id = ? AND is_active = 1
			  ORDER BY priority ASC, id ASC`

	rows, err := a.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active rules: %w", err)
	}
	defer rows.Close()

	return collectRoutingRules(rows)
}

func (a *Adapter) UpdateRoutingRule(ctx context.Context, rule *storage.RoutingRule) error {
	condition, config, err := marshalRuleColumns(rule)
	if err != nil {
		return err
	}

	query := `UPDATE routing_rules
			  SET name = ?, event_type_filter = ?, condition = ?, destination_type = ?,
			      destination_config = ?, priority = ?, is_active = ?, updated_at = ?
			  WHERE id = ?`

	result, err := a.db.ExecContext(ctx, query, rule.Name, rule.EventTypeFilter, condition,
		rule.DestinationType, config, rule.Priority, rule.IsActive, rule.UpdatedAt.UTC(), rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update routing rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return errors.NotFoundError("routing rule")
	}

	return nil
}

func (a *Adapter) DeleteRoutingRule(ctx context.Context, id string) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM routing_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete routing rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return errors.NotFoundError("routing rule")
	}

	return nil
}

func (a *Adapter) SetRoutingRuleActive(ctx context.Context, id string, active bool) error {
	result, err := a.db.ExecContext(ctx,
		`UPDATE routing_rules SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to toggle routing rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return errors.NotFoundError("routing rule")
	}

	return nil
}

// Statistics

func (a *Adapter) IncrementStatistic(ctx context.Context, key storage.StatisticKey, class storage.EventClass) error {
	var processed, failed, pending int64
	switch class {
	case storage.ClassProcessed:
		processed = 1
	case storage.ClassFailed:
		failed = 1
	case storage.ClassPending:
		pending = 1
	default:
		return fmt.Errorf("unknown event class: %s", class)
	}

	query := `INSERT INTO event_statistics
			  (id, tenant_id, event_type, time_bucket, time_period, total_events, processed_events, failed_events, pending_events, updated_at)
			  VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
			  ON CONFLICT (tenant_id, event_type, time_bucket, time_period) DO UPDATE SET
			      total_events = total_events + 1,
			      processed_events = processed_events + excluded.processed_events,
			      failed_events = failed_events + excluded.failed_events,
			      pending_events = pending_events + excluded.pending_events,
			      updated_at = excluded.updated_at`

	_, err := a.db.ExecContext(ctx, query, newStatID(), key.TenantID, key.EventType,
		key.TimeBucket.UTC(), key.TimePeriod, processed, failed, pending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to increment statistic: %w", err)
	}

	return nil
}

func (a *Adapter) UpsertStatisticTotals(ctx context.Context, key storage.StatisticKey, total, processed, pending int64) error {
	// failed_events is deliberately left untouched on update: the event log
	// records only the processed flag, so recompute cannot rebuild failures
	query := `INSERT INTO event_statistics
			  (id, tenant_id, event_type, time_bucket, time_period, total_events, processed_events, failed_events, pending_events, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
			  ON CONFLICT (tenant_id, event_type, time_bucket, time_period) DO UPDATE SET
			      total_events = excluded.total_events,
			      processed_events = excluded.processed_events,
			      pending_events = excluded.pending_events,
			      updated_at = excluded.updated_at`

	_, err := a.db.ExecContext(ctx, query, newStatID(), key.TenantID, key.EventType,
		key.TimeBucket.UTC(), key.TimePeriod, total, processed, pending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert statistic totals: %w", err)
	}

	return nil
}

func (a *Adapter) ListStatistics(ctx context.Context, q storage.StatisticsQuery) ([]*storage.EventStatistic, error) {
	query := `SELECT id, tenant_id, event_type, time_bucket, time_period,
			         total_events, processed_events, failed_events, pending_events, updated_at
			  FROM event_statistics
			  WHERE tenant_id = ? AND time_period = ? AND time_bucket >= ? AND time_bucket <= ?`
	args := []interface{}{q.TenantID, q.TimePeriod, q.Start.UTC(), q.End.UTC()}

	if q.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, q.EventType)
	}
	query += ` ORDER BY time_bucket DESC, event_type ASC`

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list statistics: %w", err)
	}
	defer rows.Close()

	var stats []*storage.EventStatistic
	for rows.Next() {
		stat := &storage.EventStatistic{}
		err := rows.Scan(&stat.ID, &stat.TenantID, &stat.EventType, &stat.TimeBucket, &stat.TimePeriod,
			&stat.TotalEvents, &stat.ProcessedEvents, &stat.FailedEvents, &stat.PendingEvents, &stat.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statistic: %w", err)
		}
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}

func (a *Adapter) DashboardStatistics(ctx context.Context, tenantID, timePeriod string, since time.Time) (*storage.DashboardMetrics, error) {
	query := `SELECT event_type,
			         SUM(total_events), SUM(processed_events), SUM(failed_events), SUM(pending_events),
			         MAX(time_bucket)
			  FROM event_statistics
			  WHERE tenant_id = ? AND time_period = ? AND time_bucket >= ?
			  GROUP BY event_type
			  ORDER BY SUM(total_events) DESC`

	rows, err := a.db.QueryContext(ctx, query, tenantID, timePeriod, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get dashboard statistics: %w", err)
	}
	defer rows.Close()

	metrics := &storage.DashboardMetrics{
		TenantID:   tenantID,
		TimePeriod: timePeriod,
		EventTypes: []storage.DashboardRow{},
	}

	for rows.Next() {
		var row storage.DashboardRow
		err := rows.Scan(&row.EventType, &row.TotalEvents, &row.ProcessedEvents,
			&row.FailedEvents, &row.PendingEvents, &row.LatestBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dashboard row: %w", err)
		}

		metrics.EventTypes = append(metrics.EventTypes, row)
		metrics.Totals.TotalEvents += row.TotalEvents
		metrics.Totals.ProcessedEvents += row.ProcessedEvents
		metrics.Totals.FailedEvents += row.FailedEvents
		metrics.Totals.PendingEvents += row.PendingEvents
	}

	return metrics, rows.Err()
}

// Destination tables

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (a *Adapter) InsertDestinationRow(ctx context.Context, table string, event *storage.DataEvent) error {
	if !identifierPattern.MatchString(table) {
		return errors.ValidationError(fmt.Sprintf("invalid destination table name: %q", table))
	}

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL
	)`, table)
	if _, err := a.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create destination table %s: %w", table, err)
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (id, event_id, tenant_id, event_type, payload, metadata, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`, table)

	_, err = a.db.ExecContext(ctx, insert, newStatID(), event.ID, event.TenantID,
		event.EventType, string(payload), string(metadata), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert into destination table %s: %w", table, err)
	}

	return nil
}
