package wafapi

import (
	"encoding/json"
	"strconv"
	"time"
)

// Sentinel is the placeholder the traffic API returns in place of a real
// number when no data exists for a field/time bucket.
const Sentinel = "-"

// TimestampLayout is the human-readable timestamp format used by the API,
// both in traffic records and in query parameters. All values are UTC.
const TimestampLayout = "2006-01-02 15:04:05"

// envelope is the uniform response wrapper returned by every endpoint.
type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Site is one entry from the website listing.
type Site struct {
	ID       string        `json:"_pk"`
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	IPSet    string        `json:"ip_set"`
	Ports    []json.Number `json:"port"`
	Domains  []string      `json:"domain"`
	Enabled  bool          `json:"enable"`
	StructID string        `json:"struct_pk"`
}

// DeviceInfo describes the appliance hardware identity.
type DeviceInfo struct {
	Serial  string `json:"serial"`
	Version string `json:"version"`
}

// Topology node kinds observed in the website tree.
const (
	NodeGlobal  = "global"
	NodeArea    = "area"
	NodeCluster = "cluster"
	NodeSite    = "site"
)

// TreeNode is one node of the cluster topology tree. The tree endpoint
// returns a list of root nodes, each carrying nested children.
type TreeNode struct {
	ID         string      `json:"_pk"`
	Name       string      `json:"name"`
	StructType string      `json:"struct_type"`
	Children   []*TreeNode `json:"children"`
}

// IsCluster reports whether this node represents a cluster rather than an
// area, site, or global grouping node.
func (n *TreeNode) IsCluster() bool {
	return n.StructType == NodeCluster
}

// ClusterIDs walks the tree depth-first and returns the ids of all cluster
// nodes in encounter order.
func (n *TreeNode) ClusterIDs() []string {
	var ids []string
	n.walk(func(node *TreeNode) {
		if node.IsCluster() {
			ids = append(ids, node.ID)
		}
	})
	return ids
}

func (n *TreeNode) walk(visit func(*TreeNode)) {
	if n == nil {
		return
	}
	visit(n)
	for _, child := range n.Children {
		child.walk(visit)
	}
}

// MetricValue is a numeric field that the API may return as a number, a
// numeric string, or the sentinel placeholder. The zero value is a sentinel.
type MetricValue struct {
	val   float64
	valid bool
}

// Metric builds a non-sentinel value; used by tests and synthetic points.
func Metric(v float64) MetricValue {
	return MetricValue{val: v, valid: true}
}

// Float64 returns the numeric value, 0 for sentinels.
func (m MetricValue) Float64() float64 {
	return m.val
}

// Valid reports whether the API returned real data rather than the sentinel.
func (m MetricValue) Valid() bool {
	return m.valid
}

// UnmarshalJSON accepts numbers, quoted numbers, the sentinel string, and
// null. Non-numeric strings count as present-but-zero, matching how the
// appliance occasionally reports empty buckets.
func (m *MetricValue) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}

	if len(s) > 0 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		if str == Sentinel {
			return nil
		}
		if f, err := strconv.ParseFloat(str, 64); err == nil {
			m.val = f
		}
		m.valid = true
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	m.val = f
	m.valid = true
	return nil
}

// MarshalJSON round-trips sentinels as the placeholder string.
func (m MetricValue) MarshalJSON() ([]byte, error) {
	if !m.valid {
		return json.Marshal(Sentinel)
	}
	return json.Marshal(m.val)
}

// TrafficRecord is one raw row from the traffic log endpoint.
type TrafficRecord struct {
	Timestamp       string      `json:"timestamp"`
	BytesInRateAvg  MetricValue `json:"bytes_in_rate_avg"`
	BytesInRateMax  MetricValue `json:"bytes_in_rate_max"`
	BytesOutRateAvg MetricValue `json:"bytes_out_rate_avg"`
	BytesOutRateMax MetricValue `json:"bytes_out_rate_max"`
	ConnCurAvg      MetricValue `json:"conn_cur_avg"`
	ConnCurMax      MetricValue `json:"conn_cur_max"`
	ConnRateAvg     MetricValue `json:"conn_rate_avg"`
	HTTPReqCntAvg   MetricValue `json:"http_req_cnt_avg"`
	HTTPReqCntMax   MetricValue `json:"http_req_cnt_max"`
	HTTPReqRateAvg  MetricValue `json:"http_req_rate_avg"`
}

// FieldNames lists the traffic metric fields in wire order. Consumers
// that emit per-field output iterate this instead of the Fields map so
// the result is deterministic.
var FieldNames = []string{
	"bytes_in_rate_avg",
	"bytes_in_rate_max",
	"bytes_out_rate_avg",
	"bytes_out_rate_max",
	"conn_cur_avg",
	"conn_cur_max",
	"conn_rate_avg",
	"http_req_cnt_avg",
	"http_req_cnt_max",
	"http_req_rate_avg",
}

// Fields returns the record's metric fields keyed by their API names.
func (r TrafficRecord) Fields() map[string]MetricValue {
	return map[string]MetricValue{
		"bytes_in_rate_avg":  r.BytesInRateAvg,
		"bytes_in_rate_max":  r.BytesInRateMax,
		"bytes_out_rate_avg": r.BytesOutRateAvg,
		"bytes_out_rate_max": r.BytesOutRateMax,
		"conn_cur_avg":       r.ConnCurAvg,
		"conn_cur_max":       r.ConnCurMax,
		"conn_rate_avg":      r.ConnRateAvg,
		"http_req_cnt_avg":   r.HTTPReqCntAvg,
		"http_req_cnt_max":   r.HTTPReqCntMax,
		"http_req_rate_avg":  r.HTTPReqRateAvg,
	}
}

// HasData reports whether any non-timestamp field carries a real value.
// Records where everything is the sentinel are placeholder rows.
func (r TrafficRecord) HasData() bool {
	for _, v := range r.Fields() {
		if v.Valid() {
			return true
		}
	}
	return false
}

// TrafficQuery describes one traffic log request.
type TrafficQuery struct {
	DataType string // mins, hours, or days
	SiteID   string // app_id parameter
	DeviceID string // device_id scoping parameter

	// Window bounds. Zero values omit the bound, which the appliance
	// treats as "most recent bucket" - the form used by validation probes.
	Since time.Time
	Until time.Time
}
