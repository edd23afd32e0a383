package config

import "time"

// Data granularities accepted by the traffic log API.
const (
	DataTypeMins  = "mins"
	DataTypeHours = "hours"
	DataTypeDays  = "days"
)

// First-run fetch windows per granularity, used when no last-run state
// exists yet.
const (
	// DefaultWindowMins is the initial window for minute-level data.
	DefaultWindowMins = 5 * time.Minute

	// DefaultWindowHours is the initial window for hour-level data.
	DefaultWindowHours = 2 * time.Hour

	// DefaultWindowDays is the initial window for day-level data.
	DefaultWindowDays = 48 * time.Hour
)

// Backfill caps bound how far back a fetch window may reach, no matter how
// stale the persisted last-run time is. They prevent unbounded catch-up
// queries after long collector outages.
const (
	MaxBackfillMins  = 24 * time.Hour
	MaxBackfillHours = 7 * 24 * time.Hour
	MaxBackfillDays  = 30 * 24 * time.Hour
)

// HTTP client behavior against the WAF management API.
const (
	// DefaultProbeTimeout bounds a single device-id validation probe.
	DefaultProbeTimeout = 10 * time.Second

	// DefaultQueryTimeout bounds a full traffic window query.
	DefaultQueryTimeout = 30 * time.Second

	// DefaultRateLimitPerMin paces requests to the appliance. Resolution
	// can issue up to ~15 probes per site in the worst case.
	DefaultRateLimitPerMin = 120
)

// Site list pagination. The appliance caps per_page at 1000; one page is
// enough for every deployment seen so far.
const (
	SiteListPage    = 1
	SiteListPerPage = 1000
)

// DefaultWindow returns the first-run fetch window for a granularity.
// Unknown granularities fall back to the minute-level window.
func DefaultWindow(dataType string) time.Duration {
	switch dataType {
	case DataTypeHours:
		return DefaultWindowHours
	case DataTypeDays:
		return DefaultWindowDays
	default:
		return DefaultWindowMins
	}
}

// MaxBackfill returns the backfill cap for a granularity. Unknown
// granularities fall back to the minute-level cap.
func MaxBackfill(dataType string) time.Duration {
	switch dataType {
	case DataTypeHours:
		return MaxBackfillHours
	case DataTypeDays:
		return MaxBackfillDays
	default:
		return MaxBackfillMins
	}
}
