package statistics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-router/internal/storage"
	"event-router/internal/testutil"
)

func statKey(tenantID, eventType, period string, ts time.Time) storage.StatisticKey {
	return storage.StatisticKey{
		TenantID:   tenantID,
		EventType:  eventType,
		TimeBucket: BucketFor(ts, period),
		TimePeriod: period,
	}
}

func TestAggregatorRecordUpdatesAllPeriods(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	aggregator := NewAggregator(store, testutil.NopLogger{})

	event := testutil.NewEvent("acme", "order.created", map[string]interface{}{})
	event.CreatedAt = time.Date(2024, 3, 13, 15, 42, 0, 0, time.UTC)

	require.NoError(t, aggregator.Record(ctx, event, storage.ClassProcessed))

	for _, period := range AllPeriods {
		stat := store.Statistic(statKey("acme", "order.created", period, event.CreatedAt))
		require.NotNil(t, stat, period)
		assert.Equal(t, int64(1), stat.TotalEvents, period)
		assert.Equal(t, int64(1), stat.ProcessedEvents, period)
		assert.Equal(t, int64(0), stat.FailedEvents, period)
		assert.Equal(t, int64(0), stat.PendingEvents, period)
	}
}

func TestAggregatorRecordClassification(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	aggregator := NewAggregator(store, testutil.NopLogger{})

	ts := time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)

	for _, class := range []storage.EventClass{
		storage.ClassProcessed, storage.ClassFailed, storage.ClassPending,
	} {
		event := testutil.NewEvent("acme", "order.created", nil)
		event.CreatedAt = ts
		require.NoError(t, aggregator.Record(ctx, event, class))
	}

	stat := store.Statistic(statKey("acme", "order.created", PeriodHourly, ts))
	require.NotNil(t, stat)
	assert.Equal(t, int64(3), stat.TotalEvents)
	assert.Equal(t, int64(1), stat.ProcessedEvents)
	assert.Equal(t, int64(1), stat.FailedEvents)
	assert.Equal(t, int64(1), stat.PendingEvents)
	assert.Equal(t, stat.TotalEvents,
		stat.ProcessedEvents+stat.FailedEvents+stat.PendingEvents)
}

func TestAggregatorRecordConcurrent(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	aggregator := NewAggregator(store, testutil.NopLogger{})

	ts := time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			event := testutil.NewEvent("acme", "order.created", nil)
			event.CreatedAt = ts
			_ = aggregator.Record(ctx, event, storage.ClassProcessed)
		}()
	}
	wg.Wait()

	stat := store.Statistic(statKey("acme", "order.created", PeriodHourly, ts))
	require.NotNil(t, stat)
	assert.Equal(t, int64(n), stat.TotalEvents)
	assert.Equal(t, int64(n), stat.ProcessedEvents)
}

func TestAggregatorRecompute(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	aggregator := NewAggregator(store, testutil.NopLogger{})

	base := time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		event := testutil.NewEvent("acme", "order.created", nil)
		event.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		event.Processed = i < 2
		require.NoError(t, store.CreateDataEvent(ctx, event))
	}

	// Seed a drifted rollup with a failure count that recompute must keep
	key := statKey("acme", "order.created", PeriodHourly, base)
	require.NoError(t, store.IncrementStatistic(ctx, key, storage.ClassFailed))

	count, err := aggregator.Recompute(ctx, "acme", base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	stat := store.Statistic(key)
	require.NotNil(t, stat)
	assert.Equal(t, int64(3), stat.TotalEvents)
	assert.Equal(t, int64(2), stat.ProcessedEvents)
	assert.Equal(t, int64(1), stat.PendingEvents)
	assert.Equal(t, int64(1), stat.FailedEvents, "recompute must not erase failure counts")

	// Idempotent: a second run yields identical rollups
	_, err = aggregator.Recompute(ctx, "acme", base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)

	again := store.Statistic(key)
	assert.Equal(t, stat.TotalEvents, again.TotalEvents)
	assert.Equal(t, stat.ProcessedEvents, again.ProcessedEvents)
	assert.Equal(t, stat.PendingEvents, again.PendingEvents)
	assert.Equal(t, stat.FailedEvents, again.FailedEvents)
}

func TestAggregatorRecomputeEmptyWindow(t *testing.T) {
	ctx := context.Background()
	aggregator := NewAggregator(testutil.NewMemStore(), testutil.NopLogger{})

	count, err := aggregator.Recompute(ctx, "acme",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAggregatorListValidatesPeriod(t *testing.T) {
	aggregator := NewAggregator(testutil.NewMemStore(), testutil.NopLogger{})

	_, err := aggregator.List(context.Background(), storage.StatisticsQuery{
		TenantID:   "acme",
		TimePeriod: "yearly",
	})
	assert.Error(t, err)
}

func TestAggregatorDashboard(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	aggregator := NewAggregator(store, testutil.NopLogger{})

	ts := time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		event := testutil.NewEvent("acme", "order.created", nil)
		event.CreatedAt = ts
		require.NoError(t, aggregator.Record(ctx, event, storage.ClassProcessed))
	}
	failed := testutil.NewEvent("acme", "payment.failed", nil)
	failed.CreatedAt = ts
	require.NoError(t, aggregator.Record(ctx, failed, storage.ClassFailed))

	metrics, err := aggregator.Dashboard(ctx, "acme", PeriodHourly, ts.Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, int64(3), metrics.Totals.TotalEvents)
	assert.Equal(t, int64(2), metrics.Totals.ProcessedEvents)
	assert.Equal(t, int64(1), metrics.Totals.FailedEvents)
	require.Len(t, metrics.EventTypes, 2)
	assert.Equal(t, "order.created", metrics.EventTypes[0].EventType)
}
