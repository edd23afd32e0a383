package zabbix

import (
	"encoding/json"
	"strings"

	"github.com/pilot-net/waf-mon/internal/wafapi"
)

// DiscoveryKey is the LLD item key the discovery document ships under.
const DiscoveryKey = "waf.sites.discovery"

// DiscoveryEntry is one site in the low-level discovery document. Every
// macro is always emitted; unknown values become the empty string because
// downstream prototype matching keys off macro presence.
type DiscoveryEntry struct {
	SiteID   string `json:"{#SITE_ID}"`
	SiteName string `json:"{#SITE_NAME}"`
	SiteType string `json:"{#SITE_TYPE}"`
	IP       string `json:"{#SITE_IP}"`
	Port     string `json:"{#SITE_PORT}"`
	Domain   string `json:"{#SITE_DOMAIN}"`
	Enabled  string `json:"{#SITE_ENABLE}"`
	StructID string `json:"{#STRUCT_ID}"`
	DeviceID string `json:"{#DEVICE_ID}"`
	StructPK string `json:"{#STRUCT_PK}"`
}

type discoveryDocument struct {
	Data []DiscoveryEntry `json:"data"`
}

// Discovery builds the LLD document JSON for the given sites, preserving
// their listing order. deviceIDFor maps a site to the device id its items
// should query with; the raw struct id is carried separately for
// diagnostics.
func Discovery(sites []wafapi.Site, deviceIDFor func(wafapi.Site) string) (string, error) {
	entries := make([]DiscoveryEntry, 0, len(sites))
	for _, site := range sites {
		enabled := "0"
		if site.Enabled {
			enabled = "1"
		}

		ports := make([]string, 0, len(site.Ports))
		for _, p := range site.Ports {
			ports = append(ports, p.String())
		}

		deviceID := deviceIDFor(site)
		entries = append(entries, DiscoveryEntry{
			SiteID:   site.ID,
			SiteName: site.Name,
			SiteType: site.Type,
			IP:       site.IPSet,
			Port:     strings.Join(ports, ","),
			Domain:   strings.Join(site.Domains, ","),
			Enabled:  enabled,
			StructID: deviceID,
			DeviceID: deviceID,
			StructPK: site.StructID,
		})
	}

	doc, err := json.Marshal(discoveryDocument{Data: entries})
	if err != nil {
		return "", err
	}
	return string(doc), nil
}
