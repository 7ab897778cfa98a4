package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"event-router/internal/common/errors"
	"event-router/internal/models"
	"event-router/internal/statistics"
	"event-router/internal/storage"
)

// lookback is how far each period's statistics query reaches by default.
var defaultLookback = map[string]time.Duration{
	statistics.PeriodHourly: 24 * time.Hour,
	statistics.PeriodDaily:  30 * 24 * time.Hour,
	statistics.PeriodWeekly: 12 * 7 * 24 * time.Hour,
}

// GetStatistics returns statistic rows for a tenant and period.
// GET /api/tenants/{tenantID}/statistics?time_period=&event_type=&start=&end=
func (h *Handlers) GetStatistics(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]
	query := r.URL.Query()

	period := query.Get("time_period")
	if period == "" {
		period = statistics.PeriodHourly
	}

	start, end, err := parseRange(query.Get("start"), query.Get("end"), period)
	if err != nil {
		h.writeError(w, err)
		return
	}

	rows, err := h.aggregator.List(r.Context(), storage.StatisticsQuery{
		TenantID:   tenantID,
		EventType:  query.Get("event_type"),
		TimePeriod: period,
		Start:      start,
		End:        end,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if rows == nil {
		rows = []*storage.EventStatistic{}
	}

	writeJSON(w, http.StatusOK, models.StatisticsResponse{
		TenantID:   tenantID,
		TimePeriod: period,
		Rows:       rows,
	})
}

// GetDashboard returns per-event-type aggregates plus totals.
// GET /api/tenants/{tenantID}/statistics/dashboard?time_period=
func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]

	period := r.URL.Query().Get("time_period")
	if period == "" {
		period = statistics.PeriodDaily
	}

	lookback, ok := defaultLookback[period]
	if !ok {
		h.writeError(w, errors.ValidationError("time_period must be one of hourly, daily, weekly"))
		return
	}

	metrics, err := h.aggregator.Dashboard(r.Context(), tenantID, period, time.Now().UTC().Add(-lookback))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, metrics)
}

// RefreshStatistics recomputes a tenant's rollups from the event log.
// POST /api/tenants/{tenantID}/statistics/refresh?start=&end=
func (h *Handlers) RefreshStatistics(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]
	query := r.URL.Query()

	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)

	var err error
	if raw := query.Get("start"); raw != "" {
		if start, err = time.Parse(time.RFC3339, raw); err != nil {
			h.writeError(w, errors.ValidationError("start must be RFC3339"))
			return
		}
	}
	if raw := query.Get("end"); raw != "" {
		if end, err = time.Parse(time.RFC3339, raw); err != nil {
			h.writeError(w, errors.ValidationError("end must be RFC3339"))
			return
		}
	}
	if !start.Before(end) {
		h.writeError(w, errors.ValidationError("start must be before end"))
		return
	}

	count, err := h.aggregator.Recompute(r.Context(), tenantID, start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.RefreshResponse{
		TenantID:        tenantID,
		EventsRecounted: count,
		Start:           start.UTC(),
		End:             end.UTC(),
	})
}

func parseRange(rawStart, rawEnd, period string) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	lookback, ok := defaultLookback[period]
	if !ok {
		lookback = 24 * time.Hour
	}
	start := end.Add(-lookback)

	if rawStart != "" {
		parsed, err := time.Parse(time.RFC3339, rawStart)
		if err != nil {
			return time.Time{}, time.Time{}, errors.ValidationError("start must be RFC3339")
		}
		start = parsed.UTC()
	}
	if rawEnd != "" {
		parsed, err := time.Parse(time.RFC3339, rawEnd)
		if err != nil {
			return time.Time{}, time.Time{}, errors.ValidationError("end must be RFC3339")
		}
		end = parsed.UTC()
	}

	return start, end, nil
}
