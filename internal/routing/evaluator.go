package routing

import (
	"context"
	"sort"
	"time"

	"event-router/internal/common/logging"
	"event-router/internal/storage"
)

// RuleCache is an optional read-through cache for a tenant's active rules.
// A nil cache is valid; every evaluation then reads from storage.
type RuleCache interface {
	GetRules(ctx context.Context, tenantID string) ([]*storage.RoutingRule, bool)
	SetRules(ctx context.Context, tenantID string, rules []*storage.RoutingRule, ttl time.Duration)
	Invalidate(ctx context.Context, tenantID string) error
}

// RouteResult describes the outcome of evaluating one event against a
// tenant's active rules.
type RouteResult struct {
	Evaluated int
	Matched   []*storage.RoutingRule
}

// Evaluator selects the active rules matching an event, in priority order.
type Evaluator struct {
	store    storage.Storage
	cache    RuleCache
	logger   logging.Logger
	cacheTTL time.Duration
}

func NewEvaluator(store storage.Storage, cache RuleCache, logger logging.Logger, cacheTTL time.Duration) *Evaluator {
	return &Evaluator{
		store:    store,
		cache:    cache,
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

// Route evaluates the active rules for the event's tenant and returns the
// matching rules ordered by ascending priority, ties broken by rule ID.
// Rules excluded by their event_type_filter are never condition-evaluated
// and do not count toward Evaluated. A rule with a malformed condition is
// logged and treated as non-matching so one bad rule cannot block the rest
// of the pipeline.
func (e *Evaluator) Route(ctx context.Context, event *storage.DataEvent) (*RouteResult, error) {
	rules, err := e.activeRules(ctx, event.TenantID)
	if err != nil {
		return nil, err
	}

	doc := ConditionDocument(event)
	result := &RouteResult{}

	for _, rule := range rules {
		if rule.EventTypeFilter != nil && *rule.EventTypeFilter != event.EventType {
			continue
		}
		result.Evaluated++

		matched, err := EvaluateCondition(rule.Condition, doc)
		if err != nil {
			e.logger.Warn("skipping rule with malformed condition",
				logging.String("rule_id", rule.ID),
				logging.String("tenant_id", event.TenantID),
				logging.NamedError("error", err))
			continue
		}
		if matched {
			result.Matched = append(result.Matched, rule)
		}
	}

	sortRules(result.Matched)
	return result, nil
}

// InvalidateTenant drops the tenant's cached rules after a rule mutation.
func (e *Evaluator) InvalidateTenant(ctx context.Context, tenantID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, tenantID); err != nil {
		e.logger.Warn("failed to invalidate rule cache",
			logging.String("tenant_id", tenantID),
			logging.NamedError("error", err))
	}
}

func (e *Evaluator) activeRules(ctx context.Context, tenantID string) ([]*storage.RoutingRule, error) {
	if e.cache != nil {
		if rules, ok := e.cache.GetRules(ctx, tenantID); ok {
			return rules, nil
		}
	}

	rules, err := e.store.GetActiveRules(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.SetRules(ctx, tenantID, rules, e.cacheTTL)
	}
	return rules, nil
}

// ConditionDocument builds the document rule conditions are evaluated
// against. Payload fields are addressed as "payload.x", metadata fields as
// "metadata.x", and the event type as "event_type".
func ConditionDocument(event *storage.DataEvent) map[string]interface{} {
	doc := map[string]interface{}{
		"event_type": event.EventType,
		"payload":    event.Payload,
	}
	if event.Metadata != nil {
		doc["metadata"] = event.Metadata
	}
	return doc
}

func sortRules(rules []*storage.RoutingRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}
