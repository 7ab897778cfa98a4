package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "event-router/internal/common/errors"
	"event-router/internal/common/logging"
	"event-router/internal/dispatch"
	"event-router/internal/routing"
	"event-router/internal/statistics"
	"event-router/internal/storage"
	"event-router/internal/testutil"
)

func newPipeline(store *testutil.MemStore) *Pipeline {
	logger := testutil.NopLogger{}
	return NewPipeline(
		store,
		routing.NewEvaluator(store, nil, logger, 0),
		dispatch.NewDispatcher(store, nil, logger, 2*time.Second),
		statistics.NewAggregator(store, logger),
		logger,
	)
}

func hourlyKey(tenantID, eventType string, ts time.Time) storage.StatisticKey {
	return storage.StatisticKey{
		TenantID:   tenantID,
		EventType:  eventType,
		TimeBucket: statistics.BucketFor(ts, statistics.PeriodHourly),
		TimePeriod: statistics.PeriodHourly,
	}
}

func TestIngestValidation(t *testing.T) {
	pipeline := newPipeline(testutil.NewMemStore())
	ctx := context.Background()

	tests := []struct {
		name      string
		tenantID  string
		eventType string
		payload   interface{}
	}{
		{"empty tenant", "", "order.created", map[string]interface{}{}},
		{"empty event type", "acme", "", map[string]interface{}{}},
		{"nil payload", "acme", "order.created", nil},
		{"scalar payload", "acme", "order.created", "just a string"},
		{"numeric payload", "acme", "order.created", 42.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.Ingest(ctx, tt.tenantID, tt.eventType, tt.payload, nil)
			require.Error(t, err)
			assert.True(t, commonerrors.IsType(err, commonerrors.ErrTypeValidation))
		})
	}
}

func TestIngestArrayPayloadAccepted(t *testing.T) {
	pipeline := newPipeline(testutil.NewMemStore())

	result, err := pipeline.Ingest(context.Background(), "acme", "batch.import",
		[]interface{}{map[string]interface{}{"n": 1.0}}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Event.ID)
}

func TestIngestMatchedWebhook(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := testutil.NewMemStore()
	pipeline := newPipeline(store)
	ctx := context.Background()

	rule := testutil.NewRule("acme", 10, map[string]interface{}{
		"payload.total": map[string]interface{}{"$gt": 50.0},
	})
	rule.DestinationConfig = map[string]interface{}{"url": server.URL}
	require.NoError(t, store.CreateRoutingRule(ctx, rule))

	result, err := pipeline.Ingest(ctx, "acme", "order_created",
		map[string]interface{}{"total": 99.99}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, hits)
	assert.Equal(t, RoutingSummary{RulesEvaluated: 1, RulesMatched: 1, RulesExecuted: 1}, result.Summary)

	persisted, err := store.GetDataEvent(ctx, result.Event.ID)
	require.NoError(t, err)
	assert.True(t, persisted.Processed)

	// All three period buckets count the event as processed
	for _, period := range statistics.AllPeriods {
		stat := store.Statistic(storage.StatisticKey{
			TenantID:   "acme",
			EventType:  "order_created",
			TimeBucket: statistics.BucketFor(result.Event.CreatedAt, period),
			TimePeriod: period,
		})
		require.NotNil(t, stat, period)
		assert.Equal(t, int64(1), stat.TotalEvents, period)
		assert.Equal(t, int64(1), stat.ProcessedEvents, period)
	}
}

func TestIngestNoMatchingRules(t *testing.T) {
	store := testutil.NewMemStore()
	pipeline := newPipeline(store)
	ctx := context.Background()

	result, err := pipeline.Ingest(ctx, "acme", "order_created",
		map[string]interface{}{"total": 1.0}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Summary.RulesMatched)
	assert.Empty(t, result.Outcomes)

	stat := store.Statistic(hourlyKey("acme", "order_created", result.Event.CreatedAt))
	require.NotNil(t, stat)
	assert.Equal(t, int64(1), stat.ProcessedEvents, "zero matches classifies as processed")
	assert.Equal(t, int64(0), stat.FailedEvents)
}

func TestIngestAllDispatchesFail(t *testing.T) {
	store := testutil.NewMemStore()
	pipeline := newPipeline(store)
	ctx := context.Background()

	rule := testutil.NewRule("acme", 10, nil)
	rule.DestinationConfig = map[string]interface{}{"url": "http://127.0.0.1:1/unreachable"}
	require.NoError(t, store.CreateRoutingRule(ctx, rule))

	result, err := pipeline.Ingest(ctx, "acme", "order_created",
		map[string]interface{}{"total": 1.0}, nil)
	require.NoError(t, err, "ingestion succeeds even when every dispatch fails")

	require.Len(t, result.Outcomes, 1)
	assert.False(t, result.Outcomes[0].Success)
	assert.Equal(t, 0, result.Summary.RulesExecuted)

	// Event is durable and marked processed
	persisted, err := store.GetDataEvent(ctx, result.Event.ID)
	require.NoError(t, err)
	assert.True(t, persisted.Processed)

	stat := store.Statistic(hourlyKey("acme", "order_created", result.Event.CreatedAt))
	require.NotNil(t, stat)
	assert.Equal(t, int64(1), stat.FailedEvents)
	assert.Equal(t, int64(0), stat.ProcessedEvents)
}

func TestIngestPartialDispatchFailureIsProcessed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := testutil.NewMemStore()
	pipeline := newPipeline(store)
	ctx := context.Background()

	broken := testutil.NewRule("acme", 10, nil)
	broken.DestinationConfig = map[string]interface{}{"url": "http://127.0.0.1:1/unreachable"}
	healthy := testutil.NewRule("acme", 20, nil)
	healthy.DestinationConfig = map[string]interface{}{"url": server.URL}
	require.NoError(t, store.CreateRoutingRule(ctx, broken))
	require.NoError(t, store.CreateRoutingRule(ctx, healthy))

	result, err := pipeline.Ingest(ctx, "acme", "order_created",
		map[string]interface{}{}, nil)
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	assert.False(t, result.Outcomes[0].Success, "priority 10 dispatches first and fails")
	assert.True(t, result.Outcomes[1].Success)
	assert.Equal(t, 1, result.Summary.RulesExecuted)

	stat := store.Statistic(hourlyKey("acme", "order_created", result.Event.CreatedAt))
	require.NotNil(t, stat)
	assert.Equal(t, int64(1), stat.ProcessedEvents, "one success is enough to count as processed")
}

func TestIngestEventTypeFilterMismatch(t *testing.T) {
	store := testutil.NewMemStore()
	pipeline := newPipeline(store)
	ctx := context.Background()

	filter := "login"
	rule := testutil.NewRule("acme", 10, nil)
	rule.EventTypeFilter = &filter
	require.NoError(t, store.CreateRoutingRule(ctx, rule))

	result, err := pipeline.Ingest(ctx, "acme", "order_created",
		map[string]interface{}{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Summary.RulesEvaluated, "type-filtered rules do not count as evaluated")
	assert.Equal(t, 0, result.Summary.RulesMatched)
}

func TestIngestTenantIsolation(t *testing.T) {
	store := testutil.NewMemStore()
	pipeline := newPipeline(store)
	ctx := context.Background()

	require.NoError(t, store.CreateRoutingRule(ctx, testutil.NewRule("globex", 10, nil)))

	result, err := pipeline.Ingest(ctx, "acme", "order_created",
		map[string]interface{}{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Summary.RulesEvaluated, "another tenant's rules are invisible")
}

func TestIngestMetadataEnrichment(t *testing.T) {
	store := testutil.NewMemStore()
	pipeline := newPipeline(store)

	ctx := context.WithValue(context.Background(), logging.CorrelationIDKey, "corr-123")

	result, err := pipeline.Ingest(ctx, "acme", "order_created",
		map[string]interface{}{}, map[string]interface{}{"ip": "10.0.0.1"})
	require.NoError(t, err)

	persisted, err := store.GetDataEvent(ctx, result.Event.ID)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", persisted.Metadata["ip"])
	assert.Equal(t, "corr-123", persisted.Metadata["correlation_id"])
	assert.NotEmpty(t, persisted.Metadata["ingested_at"])
}

func TestIngestMarkProcessedFailureRecordsPending(t *testing.T) {
	store := testutil.NewMemStore()
	store.FailMarkProcessed = commonerrors.PersistenceError("flag write failed", nil)
	pipeline := newPipeline(store)
	ctx := context.Background()

	result, err := pipeline.Ingest(ctx, "acme", "order_created",
		map[string]interface{}{}, nil)
	require.NoError(t, err, "the event is durable; a failed flag write does not fail ingestion")

	// The log still says unprocessed, so the rollup must agree with what a
	// recompute would derive from it
	persisted, err := store.GetDataEvent(ctx, result.Event.ID)
	require.NoError(t, err)
	assert.False(t, persisted.Processed)

	stat := store.Statistic(hourlyKey("acme", "order_created", result.Event.CreatedAt))
	require.NotNil(t, stat)
	assert.Equal(t, int64(1), stat.PendingEvents)
	assert.Equal(t, int64(0), stat.ProcessedEvents)
	assert.Equal(t, int64(0), stat.FailedEvents)
}

func TestIngestStatisticsFailureDoesNotFailIngestion(t *testing.T) {
	store := testutil.NewMemStore()
	store.FailIncrement = commonerrors.InternalError("stats store down", nil)
	pipeline := newPipeline(store)

	result, err := pipeline.Ingest(context.Background(), "acme", "order_created",
		map[string]interface{}{}, nil)
	require.NoError(t, err, "statistics are derived; their failure never fails ingestion")
	assert.NotEmpty(t, result.Event.ID)
}
