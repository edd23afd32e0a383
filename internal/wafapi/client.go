// Package wafapi provides the WAF management API client.
//
// # Operations
//
// - DeviceName: canonical device id, also the connectivity/auth check
// - DeviceInfo: hardware serial and firmware version
// - Sites: website listing with per-site struct ids
// - SiteTree: cluster topology tree for one deployment mode
// - Traffic: time-series traffic counters for one site
//
// Every endpoint wraps its payload in a {code, message, data} envelope;
// any code other than SUCCESS surfaces as ErrAPIFailure. Appliances ship
// self-signed certificates, so TLS verification is skipped.
package wafapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pilot-net/waf-mon/internal/config"
)

// ErrAPIFailure marks responses whose envelope code was not SUCCESS.
var ErrAPIFailure = errors.New("waf api failure")

const (
	pathDeviceName = "/api/v1/device/name/"
	pathDeviceInfo = "/api/v1/device/info/"
	pathSites      = "/api/v1/website/site/"
	pathTraffic    = "/api/v1/logs/traffic/"
)

// TreeTypes are the deployment modes the topology tree is partitioned by,
// in resolver probing order.
var TreeTypes = []string{"reverse", "transparent", "traction", "sniffer", "bridge"}

// Client communicates with the WAF management API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
	limiter    *rate.Limiter
}

// Config for the client.
type Config struct {
	Host            string        // appliance address, scheme optional
	AuthToken       string        // bearer token
	Timeout         time.Duration // per-request timeout (default: 30s)
	RateLimitPerMin int           // request pacing (default: 120/min)
	HTTPClient      *http.Client  // optional, overrides Timeout
}

// NewClient creates a new WAF API client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = config.DefaultQueryTimeout
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}

	perMin := cfg.RateLimitPerMin
	if perMin <= 0 {
		perMin = config.DefaultRateLimitPerMin
	}

	return &Client{
		baseURL:    normalizeHost(cfg.Host),
		httpClient: cfg.HTTPClient,
		authToken:  cfg.AuthToken,
		limiter:    rate.NewLimiter(rate.Limit(float64(perMin)/60.0), 1),
	}
}

// normalizeHost turns a bare host:port into a https base URL and strips
// any trailing slash.
func normalizeHost(host string) string {
	h := strings.TrimRight(host, "/")
	if h != "" && !strings.Contains(h, "://") {
		h = "https://" + h
	}
	return h
}

// DeviceName returns the appliance's canonical device id. It doubles as
// the connectivity and auth check at run start.
func (c *Client) DeviceName(ctx context.Context) (string, error) {
	var data struct {
		ID string `json:"id"`
	}
	if err := c.get(ctx, pathDeviceName, nil, &data); err != nil {
		return "", err
	}
	return data.ID, nil
}

// DeviceInfo returns the appliance serial and firmware version.
func (c *Client) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	var data DeviceInfo
	if err := c.get(ctx, pathDeviceInfo, nil, &data); err != nil {
		return DeviceInfo{}, err
	}
	return data, nil
}

// Sites returns the website listing. The appliance caps per_page at 1000;
// real deployments fit on one page.
func (c *Client) Sites(ctx context.Context) ([]Site, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(config.SiteListPage))
	params.Set("per_page", strconv.Itoa(config.SiteListPerPage))

	var data struct {
		Result []Site `json:"result"`
	}
	if err := c.get(ctx, pathSites, params, &data); err != nil {
		return nil, err
	}
	return data.Result, nil
}

// SiteTree returns the topology root nodes for one deployment mode.
func (c *Client) SiteTree(ctx context.Context, treeType string) ([]*TreeNode, error) {
	var nodes []*TreeNode
	path := fmt.Sprintf("/api/v1/website/tree/%s/", treeType)
	if err := c.get(ctx, path, nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// Traffic queries the traffic log for one site. Zero window bounds are
// omitted, yielding the appliance's default most-recent bucket.
func (c *Client) Traffic(ctx context.Context, q TrafficQuery) ([]TrafficRecord, error) {
	params := url.Values{}
	params.Set("type", q.DataType)
	params.Set("app_id", q.SiteID)
	params.Set("device_id", q.DeviceID)
	if !q.Since.IsZero() {
		params.Set("timestamp__ge", q.Since.UTC().Format(TimestampLayout))
	}
	if !q.Until.IsZero() {
		params.Set("timestamp__lt", q.Until.UTC().Format(TimestampLayout))
	}

	var data struct {
		Result []TrafficRecord `json:"result"`
	}
	if err := c.get(ctx, pathTraffic, params, &data); err != nil {
		return nil, err
	}
	return data.Result, nil
}

// get performs a GET request, unwraps the envelope, and decodes data into
// out. A nil out discards the payload.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	// Cache buster; the appliance aggressively caches log queries.
	params.Set("_ts", strconv.FormatInt(time.Now().UnixMilli(), 10))

	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.readError(resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if env.Code != "SUCCESS" {
		return fmt.Errorf("%w: code %s: %s", ErrAPIFailure, env.Code, env.Message)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}

// readError extracts an error message from a failed response.
func (c *Client) readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
}
