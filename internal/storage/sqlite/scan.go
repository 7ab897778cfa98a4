package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"event-router/internal/storage"
)

const selectRuleColumns = `SELECT id, tenant_id, name, event_type_filter, condition,
		       destination_type, destination_config, priority, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDataEvent(row rowScanner) (*storage.DataEvent, error) {
	event := &storage.DataEvent{}
	var payload, metadata string

	err := row.Scan(&event.ID, &event.TenantID, &event.EventType, &payload, &metadata,
		&event.Processed, &event.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(payload), &event.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &event.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	return event, nil
}

func collectDataEvents(rows *sql.Rows) ([]*storage.DataEvent, error) {
	var events []*storage.DataEvent
	for rows.Next() {
		event, err := scanDataEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanRoutingRule(row rowScanner) (*storage.RoutingRule, error) {
	rule := &storage.RoutingRule{}
	var condition, config string

	err := row.Scan(&rule.ID, &rule.TenantID, &rule.Name, &rule.EventTypeFilter, &condition,
		&rule.DestinationType, &config, &rule.Priority, &rule.IsActive,
		&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(condition), &rule.Condition); err != nil {
		return nil, fmt.Errorf("failed to decode condition: %w", err)
	}
	if err := json.Unmarshal([]byte(config), &rule.DestinationConfig); err != nil {
		return nil, fmt.Errorf("failed to decode destination config: %w", err)
	}

	return rule, nil
}

func collectRoutingRules(rows *sql.Rows) ([]*storage.RoutingRule, error) {
	var rules []*storage.RoutingRule
	for rows.Next() {
		rule, err := scanRoutingRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan routing rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func marshalRuleColumns(rule *storage.RoutingRule) (condition, config string, err error) {
	conditionBytes, err := json.Marshal(rule.Condition)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal condition: %w", err)
	}
	configBytes, err := json.Marshal(rule.DestinationConfig)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal destination config: %w", err)
	}
	return string(conditionBytes), string(configBytes), nil
}

func newStatID() string {
	return uuid.NewString()
}
