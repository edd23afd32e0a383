// Package collector runs one WAF collection pass: authenticate, discover
// sites, resolve the device id, fetch windowed traffic, and submit the
// whole batch to Zabbix.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pilot-net/waf-mon/internal/config"
	"github.com/pilot-net/waf-mon/internal/health"
	"github.com/pilot-net/waf-mon/internal/resolver"
	"github.com/pilot-net/waf-mon/internal/state"
	"github.com/pilot-net/waf-mon/internal/traffic"
	"github.com/pilot-net/waf-mon/internal/wafapi"
	"github.com/pilot-net/waf-mon/internal/zabbix"
)

// Version is the collector version, stamped at build time via ldflags.
var Version = "dev"

// Item keys for collector liveness.
const (
	KeyStatus     = "waf.collector.status"
	KeyTimestamp  = "waf.collector.timestamp"
	keySiteStatus = "waf.site.status[%s]"
	keySiteField  = "waf.site.%s[%s]"
)

// API is the WAF client surface one run consumes.
type API interface {
	DeviceName(ctx context.Context) (string, error)
	DeviceInfo(ctx context.Context) (wafapi.DeviceInfo, error)
	Sites(ctx context.Context) ([]wafapi.Site, error)
	SiteTree(ctx context.Context, treeType string) ([]*wafapi.TreeNode, error)
	Traffic(ctx context.Context, q wafapi.TrafficQuery) ([]wafapi.TrafficRecord, error)
}

// Sender submits a batch of tuples to the monitoring backend.
type Sender interface {
	Send(ctx context.Context, tuples []zabbix.Tuple) error
}

// Options wires a Collector's collaborators and run parameters.
type Options struct {
	API    API
	Sender Sender
	Store  *state.Store

	ZabbixHost string
	DataType   string // mins, hours, or days

	ProbeTimeout time.Duration
	QueryTimeout time.Duration

	Logger *slog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Collector executes collection runs.
type Collector struct {
	api        API
	sender     Sender
	store      *state.Store
	zabbixHost string
	dataType   string

	probeTimeout time.Duration
	queryTimeout time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// New creates a Collector.
func New(opts Options) *Collector {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DataType == "" {
		opts.DataType = config.DataTypeMins
	}
	return &Collector{
		api:          opts.API,
		sender:       opts.Sender,
		store:        opts.Store,
		zabbixHost:   opts.ZabbixHost,
		dataType:     opts.DataType,
		probeTimeout: opts.ProbeTimeout,
		queryTimeout: opts.QueryTimeout,
		logger:       opts.Logger,
		now:          opts.Now,
	}
}

// Run executes one collection pass. On success the last-run state advances
// to this run's start time; on any failure the state is left untouched and
// a status=0 tuple is sent best-effort so the monitoring side sees the
// collector go unhealthy rather than silent.
func (c *Collector) Run(ctx context.Context) error {
	runStart := c.now().UTC()
	logger := c.logger.With("run_id", uuid.NewString())
	monitor := health.NewMonitor(logger)

	logger.Info("collection run starting",
		"data_type", c.dataType,
		"zabbix_host", c.zabbixHost,
		"version", Version)

	deviceNameID, err := c.api.DeviceName(ctx)
	if err != nil {
		logger.Error("credential check failed", "error", err)
		c.reportFailure(ctx, logger)
		return fmt.Errorf("verifying credentials: %w", err)
	}

	sites, err := c.api.Sites(ctx)
	if err != nil {
		logger.Error("site listing failed", "error", err)
		c.reportFailure(ctx, logger)
		return fmt.Errorf("listing sites: %w", err)
	}
	if len(sites) == 0 {
		logger.Error("site listing is empty, nothing to monitor")
		c.reportFailure(ctx, logger)
		return fmt.Errorf("no sites discovered")
	}
	logger.Info("sites discovered", "count", len(sites))

	lastRun, haveState := c.store.Load()
	window := traffic.ComputeWindow(c.dataType, lastRun, runStart)
	logger.Info("query window computed",
		"since", window.Since.Format(wafapi.TimestampLayout),
		"until", window.Until.Format(wafapi.TimestampLayout),
		"first_run", !haveState)

	runDeviceID := c.resolveDeviceID(ctx, logger, sites, deviceNameID)

	deviceIDFor := func(site wafapi.Site) string {
		if site.StructID != "" && site.StructID != "0" {
			return site.StructID
		}
		return runDeviceID
	}

	clock := runStart.Unix()
	tuples := []zabbix.Tuple{
		{Host: c.zabbixHost, Key: KeyStatus, Clock: clock, Value: 1},
		{Host: c.zabbixHost, Key: KeyTimestamp, Clock: clock, Value: clock},
	}

	discovery, err := zabbix.Discovery(sites, deviceIDFor)
	if err != nil {
		logger.Error("discovery document failed", "error", err)
		c.reportFailure(ctx, logger)
		return fmt.Errorf("building discovery document: %w", err)
	}
	tuples = append(tuples, zabbix.Tuple{
		Host:  c.zabbixHost,
		Key:   zabbix.DiscoveryKey,
		Clock: clock,
		Value: discovery,
	})

	fetcher := traffic.New(traffic.Config{
		API:          c.api,
		DataType:     c.dataType,
		QueryTimeout: c.queryTimeout,
		Logger:       logger,
	})

	for _, site := range sites {
		tuples = append(tuples, c.siteTuples(ctx, fetcher, site, deviceIDFor(site), window, runStart)...)
	}

	tuples = append(tuples, monitor.Tuples(c.zabbixHost, clock)...)

	if err := c.sender.Send(ctx, tuples); err != nil {
		logger.Error("batch submission failed", "error", err, "tuples", len(tuples))
		c.reportFailure(ctx, logger)
		return fmt.Errorf("submitting batch: %w", err)
	}

	if err := c.store.Save(runStart, c.dataType); err != nil {
		// Data is delivered; a state write failure only widens the next
		// window. Surface it without failing the run.
		logger.Warn("state save failed, next run will re-fetch", "error", err)
	}

	logger.Info("collection run complete",
		"tuples", len(tuples),
		"sites", len(sites),
		"duration", time.Since(runStart).Round(time.Millisecond))
	return nil
}

// resolveDeviceID finds the run-wide device id. The probe subject is the
// first enabled site; its usable struct id, else the device-name id, seeds
// the chain as the nominal value.
func (c *Collector) resolveDeviceID(ctx context.Context, logger *slog.Logger, sites []wafapi.Site, deviceNameID string) string {
	subject := sites[0]
	for _, site := range sites {
		if site.Enabled {
			subject = site
			break
		}
	}

	nominal := deviceNameID
	if subject.StructID != "" && subject.StructID != "0" {
		nominal = subject.StructID
	}

	r := resolver.New(resolver.Config{
		API:          c.api,
		Sites:        sites,
		ProbeTimeout: c.probeTimeout,
		Logger:       logger,
	})
	r.SeedDeviceName(deviceNameID)

	return r.Resolve(ctx, subject.ID, nominal)
}

// siteTuples builds the per-site status tuple plus either fetched traffic
// points (enabled) or explicit zeros (disabled). Zeros keep the item
// history continuous so a re-enabled site's graphs have no holes.
func (c *Collector) siteTuples(ctx context.Context, fetcher *traffic.Fetcher, site wafapi.Site, deviceID string, w traffic.Window, runStart time.Time) []zabbix.Tuple {
	status := 0
	if site.Enabled {
		status = 1
	}
	tuples := []zabbix.Tuple{{
		Host:  c.zabbixHost,
		Key:   fmt.Sprintf(keySiteStatus, site.Name),
		Clock: runStart.Unix(),
		Value: status,
	}}

	var points []traffic.Point
	if site.Enabled {
		points = fetcher.Fetch(ctx, site.ID, deviceID, w)
	} else {
		points = []traffic.Point{traffic.ZeroPoint(runStart)}
	}

	for _, p := range points {
		clock := p.Time.Unix()
		for _, field := range wafapi.FieldNames {
			tuples = append(tuples, zabbix.Tuple{
				Host:  c.zabbixHost,
				Key:   fmt.Sprintf(keySiteField, field, site.Name),
				Clock: clock,
				Value: p.Values[field],
			})
		}
	}
	return tuples
}

// reportFailure pushes a status=0 tuple so the monitoring side can alert
// on collector health. Best-effort: a send failure here is only logged.
func (c *Collector) reportFailure(ctx context.Context, logger *slog.Logger) {
	clock := c.now().UTC().Unix()
	err := c.sender.Send(ctx, []zabbix.Tuple{{
		Host:  c.zabbixHost,
		Key:   KeyStatus,
		Clock: clock,
		Value: 0,
	}})
	if err != nil {
		logger.Warn("failure status not delivered", "error", err)
	}
}
