package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-router/internal/storage"
	"event-router/internal/testutil"
)

type stubCache struct {
	rules       map[string][]*storage.RoutingRule
	gets        int
	sets        int
	invalidated []string
}

func newStubCache() *stubCache {
	return &stubCache{rules: make(map[string][]*storage.RoutingRule)}
}

func (c *stubCache) GetRules(ctx context.Context, tenantID string) ([]*storage.RoutingRule, bool) {
	c.gets++
	rules, ok := c.rules[tenantID]
	return rules, ok
}

func (c *stubCache) SetRules(ctx context.Context, tenantID string, rules []*storage.RoutingRule, ttl time.Duration) {
	c.sets++
	c.rules[tenantID] = rules
}

func (c *stubCache) Invalidate(ctx context.Context, tenantID string) error {
	c.invalidated = append(c.invalidated, tenantID)
	delete(c.rules, tenantID)
	return nil
}

func TestEvaluatorRoute(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	evaluator := NewEvaluator(store, nil, testutil.NopLogger{}, 0)

	highValue := testutil.NewRule("acme", 10, map[string]interface{}{
		"payload.total": map[string]interface{}{"$gt": 100.0},
	})
	catchAll := testutil.NewRule("acme", 50, map[string]interface{}{})
	inactive := testutil.NewRule("acme", 1, map[string]interface{}{})
	inactive.IsActive = false
	otherTenant := testutil.NewRule("globex", 1, map[string]interface{}{})

	require.NoError(t, store.CreateRoutingRule(ctx, highValue))
	require.NoError(t, store.CreateRoutingRule(ctx, catchAll))
	require.NoError(t, store.CreateRoutingRule(ctx, inactive))
	require.NoError(t, store.CreateRoutingRule(ctx, otherTenant))

	t.Run("matching rules ordered by priority", func(t *testing.T) {
		event := testutil.NewEvent("acme", "order.created", map[string]interface{}{"total": 150.0})

		result, err := evaluator.Route(ctx, event)
		require.NoError(t, err)

		assert.Equal(t, 2, result.Evaluated)
		require.Len(t, result.Matched, 2)
		assert.Equal(t, highValue.ID, result.Matched[0].ID)
		assert.Equal(t, catchAll.ID, result.Matched[1].ID)
	})

	t.Run("non-matching condition excluded", func(t *testing.T) {
		event := testutil.NewEvent("acme", "order.created", map[string]interface{}{"total": 10.0})

		result, err := evaluator.Route(ctx, event)
		require.NoError(t, err)

		require.Len(t, result.Matched, 1)
		assert.Equal(t, catchAll.ID, result.Matched[0].ID)
	})

	t.Run("zero matches is not an error", func(t *testing.T) {
		event := testutil.NewEvent("initech", "order.created", map[string]interface{}{})

		result, err := evaluator.Route(ctx, event)
		require.NoError(t, err)
		assert.Empty(t, result.Matched)
		assert.Equal(t, 0, result.Evaluated)
	})
}

func TestEvaluatorEventTypeFilter(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	evaluator := NewEvaluator(store, nil, testutil.NopLogger{}, 0)

	filter := "order.created"
	filtered := testutil.NewRule("acme", 10, map[string]interface{}{})
	filtered.EventTypeFilter = &filter
	require.NoError(t, store.CreateRoutingRule(ctx, filtered))

	match, err := evaluator.Route(ctx, testutil.NewEvent("acme", "order.created", map[string]interface{}{}))
	require.NoError(t, err)
	assert.Len(t, match.Matched, 1)
	assert.Equal(t, 1, match.Evaluated)

	miss, err := evaluator.Route(ctx, testutil.NewEvent("acme", "order.cancelled", map[string]interface{}{}))
	require.NoError(t, err)
	assert.Empty(t, miss.Matched)
	assert.Equal(t, 0, miss.Evaluated, "type-filtered rules are never condition-evaluated")
}

func TestEvaluatorSkipsMalformedRules(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	evaluator := NewEvaluator(store, nil, testutil.NopLogger{}, 0)

	malformed := testutil.NewRule("acme", 10, map[string]interface{}{
		"payload.total": map[string]interface{}{"$regex": ".*"},
	})
	healthy := testutil.NewRule("acme", 20, map[string]interface{}{})
	require.NoError(t, store.CreateRoutingRule(ctx, malformed))
	require.NoError(t, store.CreateRoutingRule(ctx, healthy))

	result, err := evaluator.Route(ctx, testutil.NewEvent("acme", "x", map[string]interface{}{"total": 1.0}))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Evaluated)
	require.Len(t, result.Matched, 1)
	assert.Equal(t, healthy.ID, result.Matched[0].ID)
}

func TestEvaluatorPriorityTieBreak(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	evaluator := NewEvaluator(store, nil, testutil.NopLogger{}, 0)

	first := testutil.NewRule("acme", 10, map[string]interface{}{})
	second := testutil.NewRule("acme", 10, map[string]interface{}{})
	first.ID = "aaaa"
	second.ID = "bbbb"
	require.NoError(t, store.CreateRoutingRule(ctx, second))
	require.NoError(t, store.CreateRoutingRule(ctx, first))

	result, err := evaluator.Route(ctx, testutil.NewEvent("acme", "x", map[string]interface{}{}))
	require.NoError(t, err)

	require.Len(t, result.Matched, 2)
	assert.Equal(t, "aaaa", result.Matched[0].ID)
	assert.Equal(t, "bbbb", result.Matched[1].ID)
}

func TestEvaluatorUsesCache(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	cache := newStubCache()
	evaluator := NewEvaluator(store, cache, testutil.NopLogger{}, 30*time.Second)

	rule := testutil.NewRule("acme", 10, map[string]interface{}{})
	require.NoError(t, store.CreateRoutingRule(ctx, rule))

	event := testutil.NewEvent("acme", "x", map[string]interface{}{})

	_, err := evaluator.Route(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	_, err = evaluator.Route(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets, "second route should be served from cache")
	assert.Equal(t, 2, cache.gets)

	evaluator.InvalidateTenant(ctx, "acme")
	assert.Equal(t, []string{"acme"}, cache.invalidated)

	_, err = evaluator.Route(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.sets, "route after invalidation repopulates the cache")
}
