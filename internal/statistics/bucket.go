// Package statistics maintains pre-aggregated event counts per tenant, event
// type, and time bucket.
package statistics

import (
	"fmt"
	"time"
)

// Periods for statistic aggregation. Every recorded event updates one bucket
// per period.
const (
	PeriodHourly = "hourly"
	PeriodDaily  = "daily"
	PeriodWeekly = "weekly"
)

// AllPeriods lists every aggregation period in coarsening order.
var AllPeriods = []string{PeriodHourly, PeriodDaily, PeriodWeekly}

// ParsePeriod validates a period string
func ParsePeriod(s string) (string, error) {
	switch s {
	case PeriodHourly, PeriodDaily, PeriodWeekly:
		return s, nil
	default:
		return "", fmt.Errorf("invalid time period %q (expected hourly, daily, or weekly)", s)
	}
}

// BucketFor truncates a timestamp to the start of its bucket in UTC. Weekly
// buckets start on Monday 00:00 UTC.
func BucketFor(ts time.Time, period string) time.Time {
	ts = ts.UTC()

	switch period {
	case PeriodHourly:
		return ts.Truncate(time.Hour)

	case PeriodDaily:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)

	case PeriodWeekly:
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		// time.Weekday numbers Sunday as 0; shift so Monday is the week start
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)

	default:
		return ts.Truncate(time.Hour)
	}
}
