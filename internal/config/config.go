// Package config handles collector configuration loading and validation.
//
// # Configuration Sources
//
// Configuration is loaded from (in order of precedence):
// 1. Command-line flags
// 2. Environment variables (WAFMON_*)
// 3. Config file (YAML)
// 4. Defaults
//
// # Example Config File
//
//	waf:
//	  host: https://10.21.30.5:8443
//	  api_token: wmon_xxx
//	  rate_limit_per_min: 120
//
//	zabbix:
//	  server: zbx01.pilot.net
//	  host: waf-primary
//
//	collector:
//	  data_type: mins
//	  state_dir: /var/lib/wafmon
//
//	secrets:
//	  source: auto
//	  onepassword:
//	    vault: infra-tokens
//	    item: waf-api
//	    field: credential
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete collector configuration.
type Config struct {
	WAF       WAFConfig       `yaml:"waf"`
	Zabbix    ZabbixConfig    `yaml:"zabbix"`
	Collector CollectorConfig `yaml:"collector"`
	Secrets   SecretsConfig   `yaml:"secrets"`
}

// WAFConfig defines how to reach the WAF management API.
type WAFConfig struct {
	Host      string `yaml:"host"`       // e.g., https://10.21.30.5:8443
	APIToken  string `yaml:"api_token"`  // Bearer token
	TokenFile string `yaml:"token_file"` // File holding the bearer token

	// Timeouts
	ProbeTimeout time.Duration `yaml:"probe_timeout,omitempty"`
	QueryTimeout time.Duration `yaml:"query_timeout,omitempty"`

	// Request pacing against the appliance
	RateLimitPerMin int `yaml:"rate_limit_per_min,omitempty"`
}

// ZabbixConfig defines the monitoring backend target.
type ZabbixConfig struct {
	Server     string `yaml:"server"`                // zabbix server/proxy for zabbix_sender -z
	Host       string `yaml:"host"`                  // monitored host name in Zabbix
	SenderPath string `yaml:"sender_path,omitempty"` // zabbix_sender binary, found via PATH when empty
}

// CollectorConfig defines collection behavior.
type CollectorConfig struct {
	DataType string `yaml:"data_type"`           // mins, hours, or days
	StateDir string `yaml:"state_dir,omitempty"` // last-run state location, OS temp dir when empty
}

// SecretsConfig selects where the WAF API token comes from.
type SecretsConfig struct {
	// Source is "auto" (default), "static", "file", or "1password".
	Source      string            `yaml:"source,omitempty"`
	OnePassword OnePasswordConfig `yaml:"onepassword,omitempty"`
}

// OnePasswordConfig locates the token item in 1Password Connect.
// Connect host and token come from OP_CONNECT_HOST / OP_CONNECT_TOKEN.
type OnePasswordConfig struct {
	Vault string `yaml:"vault,omitempty"`
	Item  string `yaml:"item,omitempty"`
	Field string `yaml:"field,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		WAF: WAFConfig{
			ProbeTimeout:    DefaultProbeTimeout,
			QueryTimeout:    DefaultQueryTimeout,
			RateLimitPerMin: DefaultRateLimitPerMin,
		},
		Collector: CollectorConfig{
			DataType: DataTypeMins,
		},
		Secrets: SecretsConfig{
			Source: "auto",
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.WAF.Host == "" {
		return fmt.Errorf("waf.host is required")
	}
	if c.Zabbix.Server == "" {
		return fmt.Errorf("zabbix.server is required")
	}
	if c.Zabbix.Host == "" {
		return fmt.Errorf("zabbix.host is required")
	}
	switch c.Collector.DataType {
	case DataTypeMins, DataTypeHours, DataTypeDays:
	default:
		return fmt.Errorf("collector.data_type must be one of mins, hours, days, got %q", c.Collector.DataType)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
// Environment variables use WAFMON_ prefix:
// - WAFMON_WAF_HOST
// - WAFMON_API_TOKEN
// - WAFMON_TOKEN_FILE
// - WAFMON_ZABBIX_SERVER
// - WAFMON_ZABBIX_HOST
// - WAFMON_DATA_TYPE
// - WAFMON_STATE_DIR
// - WAFMON_SECRETS_SOURCE
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("WAFMON_WAF_HOST"); v != "" {
		c.WAF.Host = v
	}
	if v := os.Getenv("WAFMON_API_TOKEN"); v != "" {
		c.WAF.APIToken = v
	}
	if v := os.Getenv("WAFMON_TOKEN_FILE"); v != "" {
		c.WAF.TokenFile = v
	}
	if v := os.Getenv("WAFMON_ZABBIX_SERVER"); v != "" {
		c.Zabbix.Server = v
	}
	if v := os.Getenv("WAFMON_ZABBIX_HOST"); v != "" {
		c.Zabbix.Host = v
	}
	if v := os.Getenv("WAFMON_DATA_TYPE"); v != "" {
		c.Collector.DataType = v
	}
	if v := os.Getenv("WAFMON_STATE_DIR"); v != "" {
		c.Collector.StateDir = v
	}
	if v := os.Getenv("WAFMON_SECRETS_SOURCE"); v != "" {
		c.Secrets.Source = v
	}
}
