// Package traffic fetches windowed traffic statistics and normalizes them
// into clean time series points.
//
// Windowing is incremental: each run queries [last run time, now) so
// consecutive runs tile the timeline without gaps or overlap. A run that
// starts with no saved state, or with state older than the backfill cap
// for its granularity, falls back to a bounded default window instead of
// dragging in unbounded history.
//
// Normalization deals with the appliance's habit of padding responses:
// rows where every field is the "-" placeholder are dropped, remaining
// placeholder fields become zero, and rows with unparseable timestamps
// are discarded rather than guessed at. A site that ends up with no rows
// at all still yields exactly one all-zero point so downstream items keep
// receiving values.
package traffic

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/pilot-net/waf-mon/internal/config"
	"github.com/pilot-net/waf-mon/internal/wafapi"
)

// API is the subset of the WAF client the fetcher needs.
type API interface {
	Traffic(ctx context.Context, q wafapi.TrafficQuery) ([]wafapi.TrafficRecord, error)
}

// Window is one half-open query interval [Since, Until).
type Window struct {
	Since time.Time
	Until time.Time
}

// ComputeWindow derives the query window for a run starting at now.
// lastRun is the previous successful run time, or the zero value when no
// state exists. The result is clamped so a long outage never produces an
// unbounded query.
func ComputeWindow(dataType string, lastRun, now time.Time) Window {
	since := lastRun
	if since.IsZero() {
		since = now.Add(-config.DefaultWindow(dataType))
	}
	if max := config.MaxBackfill(dataType); now.Sub(since) > max {
		since = now.Add(-max)
	}
	return Window{Since: since.UTC(), Until: now.UTC()}
}

// Point is one normalized sample: a UTC timestamp plus a value for every
// traffic field, placeholders already collapsed to zero.
type Point struct {
	Time   time.Time
	Values map[string]float64
}

// Fetcher queries and normalizes traffic for one run.
type Fetcher struct {
	api          API
	dataType     string
	queryTimeout time.Duration
	logger       *slog.Logger
}

// Config for a Fetcher.
type Config struct {
	API          API
	DataType     string        // mins, hours, or days
	QueryTimeout time.Duration // per-query bound (default: 30s)
	Logger       *slog.Logger
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = config.DefaultQueryTimeout
	}
	return &Fetcher{
		api:          cfg.API,
		dataType:     cfg.DataType,
		queryTimeout: cfg.QueryTimeout,
		logger:       cfg.Logger,
	}
}

// Fetch returns the site's normalized points for the window, oldest
// first. Fetch never fails: a query error or an empty result degrades to
// a single zero point stamped at the window end, so every enabled site
// reports on every run.
func (f *Fetcher) Fetch(ctx context.Context, siteID, deviceID string, w Window) []Point {
	qctx, cancel := context.WithTimeout(ctx, f.queryTimeout)
	defer cancel()

	records, err := f.api.Traffic(qctx, wafapi.TrafficQuery{
		DataType: f.dataType,
		SiteID:   siteID,
		DeviceID: deviceID,
		Since:    w.Since,
		Until:    w.Until,
	})
	if err != nil {
		f.logger.Warn("traffic query failed, reporting zeros",
			"site_id", siteID,
			"device_id", deviceID,
			"error", err)
		records = nil
	}

	points := f.normalize(siteID, records)
	if len(points) == 0 {
		points = []Point{ZeroPoint(w.Until)}
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	f.logWindowStats(siteID, w, points)
	return points
}

// normalize converts raw records into points, dropping placeholder-only
// rows and rows whose timestamp cannot be parsed.
func (f *Fetcher) normalize(siteID string, records []wafapi.TrafficRecord) []Point {
	points := make([]Point, 0, len(records))
	for _, rec := range records {
		if !rec.HasData() {
			continue
		}

		ts, err := time.ParseInLocation(wafapi.TimestampLayout, rec.Timestamp, time.UTC)
		if err != nil {
			f.logger.Debug("dropping record with unparseable timestamp",
				"site_id", siteID,
				"timestamp", rec.Timestamp)
			continue
		}

		values := make(map[string]float64, len(wafapi.FieldNames))
		for name, v := range rec.Fields() {
			values[name] = v.Float64()
		}
		points = append(points, Point{Time: ts, Values: values})
	}
	return points
}

// ZeroPoint builds an all-zero sample stamped at ts. Used for sites with
// no data in the window and for disabled sites.
func ZeroPoint(ts time.Time) Point {
	values := make(map[string]float64, len(wafapi.FieldNames))
	for _, name := range wafapi.FieldNames {
		values[name] = 0
	}
	return Point{Time: ts.UTC(), Values: values}
}

func (f *Fetcher) logWindowStats(siteID string, w Window, points []Point) {
	if !f.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	var gap time.Duration
	if len(points) > 1 {
		gap = points[len(points)-1].Time.Sub(points[0].Time) / time.Duration(len(points)-1)
	}
	f.logger.Debug("traffic window fetched",
		"site_id", siteID,
		"since", w.Since.Format(wafapi.TimestampLayout),
		"until", w.Until.Format(wafapi.TimestampLayout),
		"points", len(points),
		"mean_interval", gap)
}
