package testutil

import (
	"context"
	"time"

	"github.com/google/uuid"

	"event-router/internal/common/logging"
	"event-router/internal/storage"
)

// NopLogger discards all log output.
type NopLogger struct{}

func (NopLogger) Debug(msg string, fields ...logging.Field)            {}
func (NopLogger) Info(msg string, fields ...logging.Field)             {}
func (NopLogger) Warn(msg string, fields ...logging.Field)             {}
func (NopLogger) Error(msg string, err error, fields ...logging.Field) {}
func (n NopLogger) WithFields(fields ...logging.Field) logging.Logger  { return n }
func (n NopLogger) WithContext(ctx context.Context) logging.Logger     { return n }

// NewEvent builds a persisted-shaped data event with sensible defaults.
func NewEvent(tenantID, eventType string, payload interface{}) *storage.DataEvent {
	return &storage.DataEvent{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		EventType: eventType,
		Payload:   payload,
		Metadata:  map[string]interface{}{},
		CreatedAt: time.Now().UTC(),
	}
}

// NewRule builds an active webhook rule with the given condition.
func NewRule(tenantID string, priority int, condition map[string]interface{}) *storage.RoutingRule {
	now := time.Now().UTC()
	return &storage.RoutingRule{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		Name:            "test rule",
		Condition:       condition,
		DestinationType: storage.DestinationWebhook,
		DestinationConfig: map[string]interface{}{
			"url": "http://example.com/hook",
		},
		Priority:  priority,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
