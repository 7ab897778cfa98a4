// Package dispatch delivers routed events to their rule destinations. Each
// destination type has a dedicated handler; a failure in one destination is
// isolated to its rule and reported as a failed outcome.
package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"event-router/internal/common/errors"
	"event-router/internal/common/logging"
	"event-router/internal/storage"
)

// Outcome records the result of delivering one event to one rule's
// destination.
type Outcome struct {
	RuleID          string    `json:"rule_id"`
	RuleName        string    `json:"rule_name"`
	DestinationType string    `json:"destination_type"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	DispatchedAt    time.Time `json:"dispatched_at"`
}

// QueuePublisher publishes event payloads to a message queue. A nil publisher
// means queue destinations are disabled and fail with a config error.
type QueuePublisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
	Close() error
}

// Dispatcher routes events to webhook, table, and queue destinations.
type Dispatcher struct {
	httpClient *http.Client
	store      storage.Storage
	queue      QueuePublisher
	logger     logging.Logger
}

func NewDispatcher(store storage.Storage, queue QueuePublisher, logger logging.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		httpClient: &http.Client{Timeout: timeout},
		store:      store,
		queue:      queue,
		logger:     logger,
	}
}

// Dispatch delivers the event to a single rule's destination and returns the
// outcome. The returned error is non-nil only for failures; the Outcome is
// always populated.
func (d *Dispatcher) Dispatch(ctx context.Context, event *storage.DataEvent, rule *storage.RoutingRule) Outcome {
	outcome := Outcome{
		RuleID:          rule.ID,
		RuleName:        rule.Name,
		DestinationType: rule.DestinationType,
		DispatchedAt:    time.Now().UTC(),
	}

	var err error
	switch rule.DestinationType {
	case storage.DestinationWebhook:
		err = d.dispatchWebhook(ctx, event, rule)
	case storage.DestinationTable:
		err = d.dispatchTable(ctx, event, rule)
	case storage.DestinationQueue:
		err = d.dispatchQueue(ctx, event, rule)
	default:
		err = errors.DispatchError(
			fmt.Sprintf("unknown destination type %q", rule.DestinationType), nil)
	}

	if err != nil {
		outcome.Error = err.Error()
		d.logger.Warn("destination dispatch failed",
			logging.String("rule_id", rule.ID),
			logging.String("destination_type", rule.DestinationType),
			logging.String("event_id", event.ID),
			logging.NamedError("error", err))
		return outcome
	}

	outcome.Success = true
	d.logger.Debug("destination dispatch succeeded",
		logging.String("rule_id", rule.ID),
		logging.String("destination_type", rule.DestinationType),
		logging.String("event_id", event.ID))
	return outcome
}

// configString extracts a required string key from a destination config.
func configString(config map[string]interface{}, key string) (string, error) {
	raw, ok := config[key]
	if !ok {
		return "", errors.DispatchError(fmt.Sprintf("destination config is missing %q", key), nil)
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", errors.DispatchError(fmt.Sprintf("destination config %q must be a non-empty string", key), nil)
	}
	return value, nil
}
