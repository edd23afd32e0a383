// Package resolver finds a device id that the traffic log API accepts.
//
// # Why this exists
//
// The traffic endpoint scopes queries by a device_id parameter, but the
// site listing does not reliably expose a usable value: struct_pk is often
// "0", empty, or a stale placeholder. Several unrelated identifier
// namespaces can hold the right value - the site's own struct id, the
// device-name endpoint, cluster nodes in the topology tree, or the
// hardware serial - and which one works varies by deployment mode and
// firmware version.
//
// # Strategy
//
// Candidates are gathered from an ordered list of sources and validated by
// probing: issue a traffic query scoped to the candidate and accept it if
// any returned record carries at least one non-placeholder field. The
// first validated candidate wins; earlier sources and earlier-encountered
// candidates always take priority. Probe errors mean "candidate invalid",
// never failure - resolution degrades through the chain and, at worst,
// hands the caller back the nominal value it started with.
//
// A Resolver carries per-run caches only (site listing, device-name id,
// the validated result). Nothing persists across process runs.
package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/pilot-net/waf-mon/internal/config"
	"github.com/pilot-net/waf-mon/internal/wafapi"
)

// Candidate ids that never scope traffic data; the tree walk skips them.
var reservedIDs = map[string]bool{"0": true, "1": true}

// API is the subset of the WAF client the resolver needs.
type API interface {
	DeviceName(ctx context.Context) (string, error)
	DeviceInfo(ctx context.Context) (wafapi.DeviceInfo, error)
	SiteTree(ctx context.Context, treeType string) ([]*wafapi.TreeNode, error)
	Traffic(ctx context.Context, q wafapi.TrafficQuery) ([]wafapi.TrafficRecord, error)
}

// Config for a Resolver. One Resolver serves one collection run.
type Config struct {
	API          API
	Sites        []wafapi.Site // site listing fetched at run start
	ProbeTimeout time.Duration // per-probe bound (default: 10s)
	Logger       *slog.Logger
}

// Resolver resolves device ids with per-run memoization.
type Resolver struct {
	api          API
	sites        map[string]wafapi.Site
	probeTimeout time.Duration
	logger       *slog.Logger

	deviceNameID      string
	deviceNameFetched bool

	resolved    string
	hasResolved bool

	probes int
}

// New creates a resolver for one collection run.
func New(cfg Config) *Resolver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = config.DefaultProbeTimeout
	}

	sites := make(map[string]wafapi.Site, len(cfg.Sites))
	for _, s := range cfg.Sites {
		sites[s.ID] = s
	}

	return &Resolver{
		api:          cfg.API,
		sites:        sites,
		probeTimeout: cfg.ProbeTimeout,
		logger:       cfg.Logger,
	}
}

// SeedDeviceName primes the device-name cache with an id already fetched
// elsewhere in the run, saving a duplicate API call.
func (r *Resolver) SeedDeviceName(id string) {
	if id != "" {
		r.deviceNameID = id
		r.deviceNameFetched = true
	}
}

// Probes returns how many validation queries this resolver has issued.
func (r *Resolver) Probes() int {
	return r.probes
}

// Resolve returns a device id that yields traffic data for the site, or
// nominal unchanged when every strategy fails. A result validated earlier
// in the run is returned immediately without re-probing.
func (r *Resolver) Resolve(ctx context.Context, siteID, nominal string) string {
	if r.hasResolved {
		return r.resolved
	}

	// A placeholder nominal value is known useless; skip the as-is probe.
	if !isPlaceholder(nominal) && r.probe(ctx, siteID, nominal) {
		r.memoize(siteID, nominal, "nominal")
		return nominal
	}

	tried := map[string]bool{nominal: true}
	for _, src := range r.sources(siteID, nominal) {
		for _, candidate := range src.candidates(ctx) {
			if candidate == "" || tried[candidate] {
				continue
			}
			tried[candidate] = true

			if r.probe(ctx, siteID, candidate) {
				r.memoize(siteID, candidate, src.name)
				return candidate
			}
		}
	}

	r.logger.Warn("device id resolution exhausted, keeping nominal value",
		"site_id", siteID,
		"device_id", nominal)
	return nominal
}

func (r *Resolver) memoize(siteID, deviceID, strategy string) {
	r.resolved = deviceID
	r.hasResolved = true
	r.logger.Info("resolved device id",
		"site_id", siteID,
		"device_id", deviceID,
		"strategy", strategy,
		"probes", r.probes)
}

// isPlaceholder reports whether a nominal device id is one of the values
// the site listing uses to mean "unscoped".
func isPlaceholder(id string) bool {
	return id == "" || id == "0" || id == "auto"
}

// source is one candidate namespace. Sources are consulted lazily: a
// source's fetch cost is only paid when every earlier candidate failed.
type source struct {
	name       string
	candidates func(ctx context.Context) []string
}

func (r *Resolver) sources(siteID, nominal string) []source {
	srcs := []source{
		{
			name: "site_struct_id",
			candidates: func(ctx context.Context) []string {
				site, ok := r.sites[siteID]
				if !ok {
					return nil
				}
				if site.StructID == "" || site.StructID == "0" || site.StructID == nominal {
					return nil
				}
				return []string{site.StructID}
			},
		},
		{
			name: "device_name",
			candidates: func(ctx context.Context) []string {
				id := r.cachedDeviceName(ctx)
				if id == "" {
					return nil
				}
				return []string{id}
			},
		},
	}

	for _, treeType := range wafapi.TreeTypes {
		tt := treeType
		srcs = append(srcs, source{
			name: "topology_" + tt,
			candidates: func(ctx context.Context) []string {
				return r.clusterCandidates(ctx, tt, nominal)
			},
		})
	}

	srcs = append(srcs, source{
		name: "device_serial",
		candidates: func(ctx context.Context) []string {
			info, err := r.api.DeviceInfo(ctx)
			if err != nil {
				r.logger.Debug("device info lookup failed", "error", err)
				return nil
			}
			if info.Serial == "" {
				return nil
			}
			return []string{info.Serial}
		},
	})

	return srcs
}

// cachedDeviceName fetches the canonical device id once per run. The id is
// cached whether or not it later validates as a traffic scope.
func (r *Resolver) cachedDeviceName(ctx context.Context) string {
	if r.deviceNameFetched {
		return r.deviceNameID
	}
	r.deviceNameFetched = true

	id, err := r.api.DeviceName(ctx)
	if err != nil {
		r.logger.Debug("device name lookup failed", "error", err)
		return ""
	}
	r.deviceNameID = id
	return id
}

// clusterCandidates walks one deployment mode's topology tree depth-first
// and returns cluster node ids in encounter order, skipping reserved ids
// and the nominal value.
func (r *Resolver) clusterCandidates(ctx context.Context, treeType, nominal string) []string {
	roots, err := r.api.SiteTree(ctx, treeType)
	if err != nil {
		r.logger.Debug("topology tree unavailable", "tree_type", treeType, "error", err)
		return nil
	}

	var ids []string
	for _, root := range roots {
		for _, id := range root.ClusterIDs() {
			if reservedIDs[id] || id == nominal {
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids
}

// probe issues one validation query. A candidate is valid when the query
// succeeds and any record has a non-placeholder field.
func (r *Resolver) probe(ctx context.Context, siteID, deviceID string) bool {
	r.probes++

	pctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	records, err := r.api.Traffic(pctx, wafapi.TrafficQuery{
		DataType: config.DataTypeMins,
		SiteID:   siteID,
		DeviceID: deviceID,
	})
	if err != nil {
		r.logger.Debug("probe query failed",
			"site_id", siteID,
			"device_id", deviceID,
			"error", err)
		return false
	}

	for _, rec := range records {
		if rec.HasData() {
			return true
		}
	}

	r.logger.Debug("probe returned placeholder data only",
		"site_id", siteID,
		"device_id", deviceID,
		"records", len(records))
	return false
}
