package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/pilot-net/waf-mon/internal/wafapi"
)

type mockAPI struct {
	deviceNameFunc func(ctx context.Context) (string, error)
	deviceInfoFunc func(ctx context.Context) (wafapi.DeviceInfo, error)
	siteTreeFunc   func(ctx context.Context, treeType string) ([]*wafapi.TreeNode, error)
	trafficFunc    func(ctx context.Context, q wafapi.TrafficQuery) ([]wafapi.TrafficRecord, error)

	deviceNameCalls int
	deviceInfoCalls int
	siteTreeCalls   int
	trafficCalls    int

	// Device ids probed, in order.
	probed []string
}

func (m *mockAPI) DeviceName(ctx context.Context) (string, error) {
	m.deviceNameCalls++
	if m.deviceNameFunc == nil {
		return "", errors.New("device name not stubbed")
	}
	return m.deviceNameFunc(ctx)
}

func (m *mockAPI) DeviceInfo(ctx context.Context) (wafapi.DeviceInfo, error) {
	m.deviceInfoCalls++
	if m.deviceInfoFunc == nil {
		return wafapi.DeviceInfo{}, errors.New("device info not stubbed")
	}
	return m.deviceInfoFunc(ctx)
}

func (m *mockAPI) SiteTree(ctx context.Context, treeType string) ([]*wafapi.TreeNode, error) {
	m.siteTreeCalls++
	if m.siteTreeFunc == nil {
		return nil, errors.New("site tree not stubbed")
	}
	return m.siteTreeFunc(ctx, treeType)
}

func (m *mockAPI) Traffic(ctx context.Context, q wafapi.TrafficQuery) ([]wafapi.TrafficRecord, error) {
	m.trafficCalls++
	m.probed = append(m.probed, q.DeviceID)
	if m.trafficFunc == nil {
		return nil, errors.New("traffic not stubbed")
	}
	return m.trafficFunc(ctx, q)
}

// acceptOnly returns a traffic stub that yields real data for exactly the
// given device ids and placeholder rows for everything else.
func acceptOnly(ids ...string) func(ctx context.Context, q wafapi.TrafficQuery) ([]wafapi.TrafficRecord, error) {
	ok := make(map[string]bool, len(ids))
	for _, id := range ids {
		ok[id] = true
	}
	return func(_ context.Context, q wafapi.TrafficQuery) ([]wafapi.TrafficRecord, error) {
		if ok[q.DeviceID] {
			return []wafapi.TrafficRecord{{
				Timestamp:  "2025-06-01 00:00:00",
				ConnCurAvg: wafapi.Metric(5),
			}}, nil
		}
		return []wafapi.TrafficRecord{{Timestamp: "2025-06-01 00:00:00"}}, nil
	}
}

func testResolver(api *mockAPI, sites []wafapi.Site) *Resolver {
	return New(Config{
		API:    api,
		Sites:  sites,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestResolveNominalShortCircuit(t *testing.T) {
	api := &mockAPI{trafficFunc: acceptOnly("dev-42")}
	r := testResolver(api, nil)

	got := r.Resolve(context.Background(), "site-1", "dev-42")
	if got != "dev-42" {
		t.Fatalf("Resolve() = %q, want %q", got, "dev-42")
	}
	if api.trafficCalls != 1 {
		t.Errorf("traffic calls = %d, want 1", api.trafficCalls)
	}
	if api.siteTreeCalls != 0 {
		t.Errorf("site tree calls = %d, want 0 when nominal id validates", api.siteTreeCalls)
	}
	if api.deviceInfoCalls != 0 {
		t.Errorf("device info calls = %d, want 0 when nominal id validates", api.deviceInfoCalls)
	}
	if api.deviceNameCalls != 0 {
		t.Errorf("device name calls = %d, want 0 when nominal id validates", api.deviceNameCalls)
	}
}

func TestResolvePlaceholderSkipsAsIsProbe(t *testing.T) {
	for _, nominal := range []string{"", "0", "auto"} {
		t.Run("nominal_"+nominal, func(t *testing.T) {
			api := &mockAPI{trafficFunc: acceptOnly("struct-9")}
			sites := []wafapi.Site{{ID: "site-1", StructID: "struct-9"}}
			r := testResolver(api, sites)

			got := r.Resolve(context.Background(), "site-1", nominal)
			if got != "struct-9" {
				t.Fatalf("Resolve() = %q, want %q", got, "struct-9")
			}
			if len(api.probed) != 1 || api.probed[0] != "struct-9" {
				t.Errorf("probed = %v, want only the struct id", api.probed)
			}
		})
	}
}

func TestResolveFallbackOrder(t *testing.T) {
	// Nominal fails, struct id fails, the first topology cluster id
	// succeeds. The serial source must never be consulted.
	tree := []*wafapi.TreeNode{{
		ID:         "0",
		StructType: wafapi.NodeGlobal,
		Children: []*wafapi.TreeNode{{
			ID:         "1",
			StructType: wafapi.NodeArea,
			Children: []*wafapi.TreeNode{
				{ID: "cl-7", StructType: wafapi.NodeCluster},
				{ID: "cl-8", StructType: wafapi.NodeCluster},
			},
		}},
	}}

	api := &mockAPI{
		trafficFunc:    acceptOnly("cl-7"),
		deviceNameFunc: func(context.Context) (string, error) { return "name-id", nil },
		siteTreeFunc: func(_ context.Context, treeType string) ([]*wafapi.TreeNode, error) {
			if treeType == "reverse" {
				return tree, nil
			}
			return nil, nil
		},
	}
	sites := []wafapi.Site{{ID: "site-1", StructID: "struct-9"}}
	r := testResolver(api, sites)

	got := r.Resolve(context.Background(), "site-1", "nom-1")
	if got != "cl-7" {
		t.Fatalf("Resolve() = %q, want %q", got, "cl-7")
	}

	want := []string{"nom-1", "struct-9", "name-id", "cl-7"}
	if len(api.probed) != len(want) {
		t.Fatalf("probed = %v, want %v", api.probed, want)
	}
	for i := range want {
		if api.probed[i] != want[i] {
			t.Fatalf("probe order = %v, want %v", api.probed, want)
		}
	}
	if api.deviceInfoCalls != 0 {
		t.Errorf("device info calls = %d, want 0 once a cluster id validated", api.deviceInfoCalls)
	}
}

func TestResolveTreeSkipsReservedIDs(t *testing.T) {
	tree := []*wafapi.TreeNode{{
		ID:         "0",
		StructType: wafapi.NodeGlobal,
		Children: []*wafapi.TreeNode{
			{ID: "0", StructType: wafapi.NodeCluster},
			{ID: "1", StructType: wafapi.NodeCluster},
			{ID: "nom-1", StructType: wafapi.NodeCluster},
			{ID: "cl-9", StructType: wafapi.NodeCluster},
		},
	}}

	api := &mockAPI{
		trafficFunc:    acceptOnly("cl-9"),
		deviceNameFunc: func(context.Context) (string, error) { return "", errors.New("unavailable") },
		siteTreeFunc: func(_ context.Context, treeType string) ([]*wafapi.TreeNode, error) {
			return tree, nil
		},
	}
	r := testResolver(api, nil)

	got := r.Resolve(context.Background(), "site-1", "nom-1")
	if got != "cl-9" {
		t.Fatalf("Resolve() = %q, want %q", got, "cl-9")
	}
	// nom-1 probed as-is once; reserved ids and the nominal repeat in the
	// tree must not be probed again.
	want := []string{"nom-1", "cl-9"}
	if len(api.probed) != len(want) || api.probed[0] != want[0] || api.probed[1] != want[1] {
		t.Fatalf("probed = %v, want %v", api.probed, want)
	}
}

func TestResolveSerialLastResort(t *testing.T) {
	api := &mockAPI{
		trafficFunc:    acceptOnly("SN12345"),
		deviceNameFunc: func(context.Context) (string, error) { return "name-id", nil },
		deviceInfoFunc: func(context.Context) (wafapi.DeviceInfo, error) {
			return wafapi.DeviceInfo{Serial: "SN12345", Version: "5.6"}, nil
		},
		siteTreeFunc: func(_ context.Context, treeType string) ([]*wafapi.TreeNode, error) {
			return nil, errors.New("tree unavailable")
		},
	}
	r := testResolver(api, nil)

	got := r.Resolve(context.Background(), "site-1", "nom-1")
	if got != "SN12345" {
		t.Fatalf("Resolve() = %q, want serial %q", got, "SN12345")
	}
	if api.siteTreeCalls != len(wafapi.TreeTypes) {
		t.Errorf("site tree calls = %d, want %d (one per deployment mode)", api.siteTreeCalls, len(wafapi.TreeTypes))
	}
	last := api.probed[len(api.probed)-1]
	if last != "SN12345" {
		t.Errorf("last probe = %q, want the serial", last)
	}
}

func TestResolveExhaustedKeepsNominal(t *testing.T) {
	api := &mockAPI{
		trafficFunc:    acceptOnly(), // nothing validates
		deviceNameFunc: func(context.Context) (string, error) { return "name-id", nil },
		deviceInfoFunc: func(context.Context) (wafapi.DeviceInfo, error) {
			return wafapi.DeviceInfo{Serial: "SN12345"}, nil
		},
		siteTreeFunc: func(_ context.Context, treeType string) ([]*wafapi.TreeNode, error) {
			return nil, nil
		},
	}
	sites := []wafapi.Site{{ID: "site-1", StructID: "struct-9"}}
	r := testResolver(api, sites)

	got := r.Resolve(context.Background(), "site-1", "nom-1")
	if got != "nom-1" {
		t.Fatalf("Resolve() = %q, want nominal %q back", got, "nom-1")
	}
}

func TestResolveMemoizedAcrossSites(t *testing.T) {
	api := &mockAPI{trafficFunc: acceptOnly("dev-42")}
	r := testResolver(api, nil)

	if got := r.Resolve(context.Background(), "site-1", "dev-42"); got != "dev-42" {
		t.Fatalf("first Resolve() = %q, want %q", got, "dev-42")
	}
	if got := r.Resolve(context.Background(), "site-2", "other"); got != "dev-42" {
		t.Fatalf("second Resolve() = %q, want memoized %q", got, "dev-42")
	}
	if api.trafficCalls != 1 {
		t.Errorf("traffic calls = %d, want 1 (memoized result must not re-probe)", api.trafficCalls)
	}
}

func TestResolveFailureNotMemoized(t *testing.T) {
	api := &mockAPI{
		trafficFunc:    acceptOnly(),
		deviceNameFunc: func(context.Context) (string, error) { return "", errors.New("unavailable") },
		deviceInfoFunc: func(context.Context) (wafapi.DeviceInfo, error) {
			return wafapi.DeviceInfo{}, errors.New("unavailable")
		},
		siteTreeFunc: func(_ context.Context, treeType string) ([]*wafapi.TreeNode, error) {
			return nil, nil
		},
	}
	r := testResolver(api, nil)

	r.Resolve(context.Background(), "site-1", "nom-1")
	probesAfterFirst := api.trafficCalls

	r.Resolve(context.Background(), "site-2", "nom-2")
	if api.trafficCalls == probesAfterFirst {
		t.Error("second Resolve() issued no probes; an exhausted run must not be memoized")
	}

	// Device name is cached even though the lookup failed.
	if api.deviceNameCalls != 1 {
		t.Errorf("device name calls = %d, want 1 (cached across attempts)", api.deviceNameCalls)
	}
}

func TestSeedDeviceName(t *testing.T) {
	api := &mockAPI{trafficFunc: acceptOnly("seeded-id")}
	r := testResolver(api, nil)
	r.SeedDeviceName("seeded-id")

	got := r.Resolve(context.Background(), "site-1", "0")
	if got != "seeded-id" {
		t.Fatalf("Resolve() = %q, want seeded %q", got, "seeded-id")
	}
	if api.deviceNameCalls != 0 {
		t.Errorf("device name calls = %d, want 0 when seeded", api.deviceNameCalls)
	}
}
