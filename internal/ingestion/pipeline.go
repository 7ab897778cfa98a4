// Package ingestion implements the event intake pipeline: validate, enrich,
// persist, route, dispatch, and aggregate, strictly in that order for each
// event.
package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"

	"event-router/internal/common/errors"
	"event-router/internal/common/logging"
	"event-router/internal/dispatch"
	"event-router/internal/routing"
	"event-router/internal/statistics"
	"event-router/internal/storage"
)

// RoutingSummary counts the stages of one ingestion's rule processing.
// RulesExecuted counts successful dispatches only.
type RoutingSummary struct {
	RulesEvaluated int `json:"rules_evaluated"`
	RulesMatched   int `json:"rules_matched"`
	RulesExecuted  int `json:"rules_executed"`
}

// Result is the outcome of a completed ingestion.
type Result struct {
	Event    *storage.DataEvent
	Summary  RoutingSummary
	Outcomes []dispatch.Outcome
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	store      storage.Storage
	evaluator  *routing.Evaluator
	dispatcher *dispatch.Dispatcher
	aggregator *statistics.Aggregator
	logger     logging.Logger
}

func NewPipeline(
	store storage.Storage,
	evaluator *routing.Evaluator,
	dispatcher *dispatch.Dispatcher,
	aggregator *statistics.Aggregator,
	logger logging.Logger,
) *Pipeline {
	return &Pipeline{
		store:      store,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		aggregator: aggregator,
		logger:     logger,
	}
}

// Ingest runs the full pipeline for one event. Once the event is persisted
// the remaining stages run detached from the caller's cancellation; a
// disconnecting client does not roll back the event or abort dispatches.
func (p *Pipeline) Ingest(ctx context.Context, tenantID, eventType string, payload interface{}, metadata map[string]interface{}) (*Result, error) {
	if err := validateInput(tenantID, eventType, payload); err != nil {
		return nil, err
	}

	event := &storage.DataEvent{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		EventType: eventType,
		Payload:   payload,
		Metadata:  enrichMetadata(ctx, metadata),
		Processed: false,
		CreatedAt: time.Now().UTC(),
	}

	if err := p.store.CreateDataEvent(ctx, event); err != nil {
		return nil, errors.PersistenceError("failed to persist event", err).
			WithContext("tenant_id", tenantID).
			WithContext("event_type", eventType)
	}

	// Fire-and-continue past this point
	ctx = context.WithoutCancel(ctx)

	result := &Result{Event: event}

	routed, err := p.evaluator.Route(ctx, event)
	if err != nil {
		// The event is durable; routing failure leaves it pending for a
		// later recompute rather than failing the call
		p.logger.Error("rule evaluation failed, event left pending", err,
			logging.String("event_id", event.ID),
			logging.String("tenant_id", tenantID))
		p.recordStatistic(ctx, event, storage.ClassPending)
		return result, nil
	}

	result.Summary.RulesEvaluated = routed.Evaluated
	result.Summary.RulesMatched = len(routed.Matched)

	for _, rule := range routed.Matched {
		outcome := p.dispatcher.Dispatch(ctx, event, rule)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Success {
			result.Summary.RulesExecuted++
		}
	}

	// If the processed-flag write fails the event log still says unprocessed,
	// and the next recompute would derive pending from it. Record pending here
	// so the incremental rollup agrees with that healing path.
	if err := p.store.MarkEventProcessed(ctx, event.ID); err != nil {
		p.logger.Error("failed to mark event processed, recording as pending", err,
			logging.String("event_id", event.ID))
		p.recordStatistic(ctx, event, storage.ClassPending)
		return result, nil
	}
	event.Processed = true

	p.recordStatistic(ctx, event, classify(result))

	p.logger.Info("event ingested",
		logging.String("event_id", event.ID),
		logging.String("tenant_id", tenantID),
		logging.String("event_type", eventType),
		logging.Int("rules_matched", result.Summary.RulesMatched),
		logging.Int("rules_executed", result.Summary.RulesExecuted))

	return result, nil
}

// classify derives the statistics classification from dispatch outcomes.
// Zero matched rules counts as processed; with matches, one success is
// enough, and only all-failed marks the event failed.
func classify(result *Result) storage.EventClass {
	if len(result.Outcomes) == 0 {
		return storage.ClassProcessed
	}
	for _, outcome := range result.Outcomes {
		if outcome.Success {
			return storage.ClassProcessed
		}
	}
	return storage.ClassFailed
}

func (p *Pipeline) recordStatistic(ctx context.Context, event *storage.DataEvent, class storage.EventClass) {
	if err := p.aggregator.Record(ctx, event, class); err != nil {
		// Statistics are a derived view; the event is still ingested
		p.logger.Warn("statistics update failed",
			logging.String("event_id", event.ID),
			logging.String("tenant_id", event.TenantID),
			logging.NamedError("error", err))
	}
}

func validateInput(tenantID, eventType string, payload interface{}) error {
	if tenantID == "" {
		return errors.ValidationError("tenant id must not be empty")
	}
	if eventType == "" {
		return errors.ValidationError("event_type must not be empty")
	}

	switch payload.(type) {
	case map[string]interface{}, []interface{}:
		return nil
	default:
		return errors.ValidationError("payload must be a JSON object or array")
	}
}

// enrichMetadata stamps the ingestion time and propagates the transport
// correlation id when the caller put one on the context.
func enrichMetadata(ctx context.Context, metadata map[string]interface{}) map[string]interface{} {
	enriched := make(map[string]interface{}, len(metadata)+2)
	for k, v := range metadata {
		enriched[k] = v
	}

	enriched["ingested_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	if correlationID, ok := ctx.Value(logging.CorrelationIDKey).(string); ok && correlationID != "" {
		enriched["correlation_id"] = correlationID
	}

	return enriched
}
