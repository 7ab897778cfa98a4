// Package postgres provides a PostgreSQL implementation of the storage
// gateway using the pgx stdlib driver. Structured values (payload, metadata,
// condition, destination_config) are stored as JSONB columns.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"event-router/internal/common/errors"
	"event-router/internal/storage"
)

type Adapter struct {
	db     *sql.DB
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	db, err := sql.Open("pgx", config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

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
			id UUID PRIMARY KEY,
			tenant_id VARCHAR(255) NOT NULL,
			event_type VARCHAR(255) NOT NULL,
			payload JSONB NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			processed BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS routing_rules (
			id UUID PRIMARY KEY,
			tenant_id VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			event_type_filter VARCHAR(255),
			condition JSONB NOT NULL DEFAULT '{}',
			destination_type VARCHAR(50) NOT NULL,
			destination_config JSONB NOT NULL DEFAULT '{}',
			priority INTEGER NOT NULL DEFAULT 100,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS event_statistics (
			id UUID PRIMARY KEY,
			tenant_id VARCHAR(255) NOT NULL,
			event_type VARCHAR(255) NOT NULL,
			time_bucket TIMESTAMPTZ NOT NULL,
			time_period VARCHAR(20) NOT NULL,
			total_events BIGINT NOT NULL DEFAULT 0,
			processed_events BIGINT NOT NULL DEFAULT 0,
			failed_events BIGINT NOT NULL DEFAULT 0,
			pending_events BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL,
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
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = a.db.ExecContext(ctx, query, event.ID, event.TenantID, event.EventType,
		payload, metadata, event.Processed, event.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create data event: %w", err)
	}

	return nil
}

func (a *Adapter) GetDataEvent(ctx context.Context, id string) (*storage.DataEvent, error) {
	query := `SELECT id, tenant_id, event_type, payload, metadata, processed, created_at
			  FROM data_events WHERE id = $1`

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
			  FROM data_events WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if eventType != "" {
		query += fmt.Sprintf(` AND event_type = $%d`, len(args)+1)
		args = append(args, eventType)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
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
			  WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
			  ORDER BY created_at ASC`

	rows, err := a.db.QueryContext(ctx, query, tenantID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list events in range: %w", err)
	}
	defer rows.Close()

	return collectDataEvents(rows)
}

func (a *Adapter) ListEventTenants(ctx context.Context, since time.Time) ([]string, error) {
	query := `SELECT DISTINCT tenant_id FROM data_events WHERE created_at >= $1`

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
	result, err := a.db.ExecContext(ctx, `UPDATE data_events SET processed = true WHERE id = $1`, id)
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
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = a.db.ExecContext(ctx, query, rule.ID, rule.TenantID, rule.Name, rule.EventTypeFilter,
		condition, rule.DestinationType, config, rule.Priority, rule.IsActive,
		rule.CreatedAt.UTC(), rule.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create routing rule: %w", err)
	}

	return nil
}

func (a *Adapter) GetRoutingRule(ctx context.Context, id string) (*storage.RoutingRule, error) {
	query := selectRuleColumns + ` FROM routing_rules WHERE id = $1`

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
	query := selectRuleColumns + ` FROM routing_rules WHERE tenant_id = $1 ORDER BY priority ASC, id ASC`

	rows, err := a.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list routing rules: %w", err)
	}
	defer rows.Close()

	return collectRoutingRules(rows)
}

func (a *Adapter) GetActiveRules(ctx context.Context, tenantID string) ([]*storage.RoutingRule, error) {
	query := selectRuleColumns + ` FROM routing_rules
			  WHERE tenant_id = $1 AND is_active = true
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
			  SET name = $1, event_type_filter = $2, condition = $3, destination_type = $4,
			      destination_config = $5, priority = $6, is_active = $7, updated_at = $8
			  WHERE id = $9`

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
	result, err := a.db.ExecContext(ctx, `DELETE FROM routing_rules WHERE id = $1`, id)
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
		`UPDATE routing_rules SET is_active = $1, updated_at = $2 WHERE id = $3`,
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
			  VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $8, $9)
			  ON CONFLICT (tenant_id, event_type, time_bucket, time_period) DO UPDATE SET
			      total_events = event_statistics.total_events + 1,
			      processed_events = event_statistics.processed_events + EXCLUDED.processed_events,
			      failed_events = event_statistics.failed_events + EXCLUDED.failed_events,
			      pending_events = event_statistics.pending_events + EXCLUDED.pending_events,
			      updated_at = EXCLUDED.updated_at`

	_, err := a.db.ExecContext(ctx, query, uuid.NewString(), key.TenantID, key.EventType,
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
			  VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
			  ON CONFLICT (tenant_id, event_type, time_bucket, time_period) DO UPDATE SET
			      total_events = EXCLUDED.total_events,
			      processed_events = EXCLUDED.processed_events,
			      pending_events = EXCLUDED.pending_events,
			      updated_at = EXCLUDED.updated_at`

	_, err := a.db.ExecContext(ctx, query, uuid.NewString(), key.TenantID, key.EventType,
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
			  WHERE tenant_id = $1 AND time_period = $2 AND time_bucket >= $3 AND time_bucket <= $4`
	args := []interface{}{q.TenantID, q.TimePeriod, q.Start.UTC(), q.End.UTC()}

	if q.EventType != "" {
		query += fmt.Sprintf(` AND event_type = $%d`, len(args)+1)
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
			  WHERE tenant_id = $1 AND time_period = $2 AND time_bucket >= $3
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
		id UUID PRIMARY KEY,
		event_id UUID NOT NULL,
		tenant_id VARCHAR(255) NOT NULL,
		event_type VARCHAR(255) NOT NULL,
		payload JSONB NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL
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
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`, table)

	_, err = a.db.ExecContext(ctx, insert, uuid.NewString(), event.ID, event.TenantID,
		event.EventType, payload, metadata, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert into destination table %s: %w", table, err)
	}

	return nil
}
