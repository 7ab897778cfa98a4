package statistics

import (
	"context"
	"time"

	"event-router/internal/common/errors"
	"event-router/internal/common/logging"
	"event-router/internal/storage"
)

// Aggregator maintains the event_statistics rollups.
type Aggregator struct {
	store  storage.Storage
	logger logging.Logger
}

func NewAggregator(store storage.Storage, logger logging.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Record increments the hourly, daily, and weekly buckets for one event. The
// per-bucket upserts are atomic, so concurrent recorders never lose counts.
func (a *Aggregator) Record(ctx context.Context, event *storage.DataEvent, class storage.EventClass) error {
	for _, period := range AllPeriods {
		key := storage.StatisticKey{
			TenantID:   event.TenantID,
			EventType:  event.EventType,
			TimeBucket: BucketFor(event.CreatedAt, period),
			TimePeriod: period,
		}

		if err := a.store.IncrementStatistic(ctx, key, class); err != nil {
			return errors.AggregationError("failed to record event statistic", err).
				WithContext("tenant_id", event.TenantID).
				WithContext("time_period", period)
		}
	}
	return nil
}

// bucketCounts accumulates per-bucket totals during a recompute.
type bucketCounts struct {
	total     int64
	processed int64
}

// Recompute rebuilds a tenant's statistics for a time window from the event
// log. It is idempotent; running it twice produces the same rollups. Failure
// counts are not rebuilt because the event log does not record dispatch
// failures, only whether an event completed processing.
func (a *Aggregator) Recompute(ctx context.Context, tenantID string, start, end time.Time) (int, error) {
	events, err := a.store.ListEventsInRange(ctx, tenantID, start.UTC(), end.UTC())
	if err != nil {
		return 0, errors.AggregationError("failed to load events for recompute", err).
			WithContext("tenant_id", tenantID)
	}

	counts := make(map[storage.StatisticKey]*bucketCounts)
	for _, event := range events {
		for _, period := range AllPeriods {
			key := storage.StatisticKey{
				TenantID:   tenantID,
				EventType:  event.EventType,
				TimeBucket: BucketFor(event.CreatedAt, period),
				TimePeriod: period,
			}

			c, ok := counts[key]
			if !ok {
				c = &bucketCounts{}
				counts[key] = c
			}
			c.total++
			if event.Processed {
				c.processed++
			}
		}
	}

	for key, c := range counts {
		pending := c.total - c.processed
		if err := a.store.UpsertStatisticTotals(ctx, key, c.total, c.processed, pending); err != nil {
			return 0, errors.AggregationError("failed to write recomputed statistic", err).
				WithContext("tenant_id", tenantID).
				WithContext("time_period", key.TimePeriod)
		}
	}

	a.logger.Info("statistics recomputed",
		logging.String("tenant_id", tenantID),
		logging.Int("events", len(events)),
		logging.Int("buckets", len(counts)))

	return len(events), nil
}

// List returns statistics matching the query after validating the period.
func (a *Aggregator) List(ctx context.Context, q storage.StatisticsQuery) ([]*storage.EventStatistic, error) {
	period, err := ParsePeriod(q.TimePeriod)
	if err != nil {
		return nil, errors.ValidationError(err.Error())
	}
	q.TimePeriod = period

	if q.End.IsZero() {
		q.End = time.Now().UTC()
	}

	return a.store.ListStatistics(ctx, q)
}

// Dashboard returns aggregated per-event-type metrics for a tenant.
func (a *Aggregator) Dashboard(ctx context.Context, tenantID, period string, since time.Time) (*storage.DashboardMetrics, error) {
	parsed, err := ParsePeriod(period)
	if err != nil {
		return nil, errors.ValidationError(err.Error())
	}

	return a.store.DashboardStatistics(ctx, tenantID, parsed, since.UTC())
}
