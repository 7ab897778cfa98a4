package statistics

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"event-router/internal/common/logging"
	"event-router/internal/storage"
)

// Refresher periodically recomputes recent statistics from the event log so
// drift from lost increments self-heals.
type Refresher struct {
	aggregator *Aggregator
	store      storage.Storage
	logger     logging.Logger
	cron       *cron.Cron
	window     time.Duration
}

// NewRefresher creates a refresher that recomputes the trailing window for
// every tenant with recent events.
func NewRefresher(aggregator *Aggregator, store storage.Storage, logger logging.Logger, window time.Duration) *Refresher {
	return &Refresher{
		aggregator: aggregator,
		store:      store,
		logger:     logger,
		cron:       cron.New(),
		window:     window,
	}
}

// Start schedules the refresh job with a cron expression such as "@hourly".
func (r *Refresher) Start(schedule string) error {
	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		r.RefreshAll(ctx)
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	r.logger.Info("statistics refresher started", logging.String("schedule", schedule))
	return nil
}

// Stop halts the cron scheduler and waits for a running job to finish.
func (r *Refresher) Stop() {
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
}

// RefreshAll recomputes the trailing window for every tenant that ingested
// events inside it. Per-tenant failures are logged and do not stop the pass.
func (r *Refresher) RefreshAll(ctx context.Context) {
	end := time.Now().UTC()
	start := end.Add(-r.window)

	tenants, err := r.store.ListEventTenants(ctx, start)
	if err != nil {
		r.logger.Error("failed to list tenants for statistics refresh", err)
		return
	}

	for _, tenant := range tenants {
		if _, err := r.aggregator.Recompute(ctx, tenant, start, end); err != nil {
			r.logger.Error("statistics refresh failed for tenant", err,
				logging.String("tenant_id", tenant))
		}
	}
}
