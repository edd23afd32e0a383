// Command wafmon collects traffic and status metrics from a WAF management
// API and pushes them to Zabbix via zabbix_sender.
//
// # Usage
//
//	wafmon --waf-host https://10.21.30.5:8443 --token <api-token> \
//	       --zabbix-server zabbix.example.com --zabbix-host waf-prod-01
//
// # Configuration
//
// Configuration can be provided via:
// - Command-line flags
// - Environment variables (WAFMON_*)
// - Config file (--config)
//
// # Output
//
// The process prints a single result line to stdout, 0 on success and 1 on
// failure, so a scheduler item can capture the outcome directly. All
// diagnostics go to stderr.
//
// # Examples
//
// Run with a config file, hourly granularity:
//
//	wafmon --config /etc/wafmon/config.yaml --data-type hours
//
// Run quiet from cron:
//
//	wafmon --config /etc/wafmon/config.yaml --quiet
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pilot-net/waf-mon/collector"
	"github.com/pilot-net/waf-mon/internal/config"
	"github.com/pilot-net/waf-mon/internal/secrets"
	"github.com/pilot-net/waf-mon/internal/state"
	"github.com/pilot-net/waf-mon/internal/wafapi"
	"github.com/pilot-net/waf-mon/internal/zabbix"
)

func main() {
	// Parse flags
	var (
		configFile   = flag.String("config", "", "Path to config file")
		wafHost      = flag.String("waf-host", "", "WAF management API address")
		token        = flag.String("token", "", "WAF API bearer token")
		zabbixServer = flag.String("zabbix-server", "", "Zabbix server or proxy address")
		zabbixHost   = flag.String("zabbix-host", "", "Host name as registered in Zabbix")
		dataType     = flag.String("data-type", "", "Traffic granularity: mins, hours, or days")
		debug        = flag.Bool("debug", false, "Enable debug logging")
		quiet        = flag.Bool("quiet", false, "Suppress all log output")
		version      = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	// Print version
	if *version {
		fmt.Printf("wafmon %s\n", collector.Version)
		os.Exit(0)
	}

	// Set up logging. The stdout result line is the machine-readable
	// outcome; logs stay on stderr and vanish entirely under --quiet.
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logOut := io.Writer(os.Stderr)
	if *quiet {
		logOut = io.Discard
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// Load configuration
	cfg := config.DefaultConfig()

	if *configFile != "" {
		fileCfg, err := config.LoadFromFile(*configFile)
		if err != nil {
			logger.Error("failed to load config file", "error", err)
			fail()
		}
		cfg = fileCfg
	}

	// Apply environment overrides
	cfg.ApplyEnvOverrides()

	// Apply flag overrides
	if *wafHost != "" {
		cfg.WAF.Host = *wafHost
	}
	if *token != "" {
		cfg.WAF.APIToken = *token
	}
	if *zabbixServer != "" {
		cfg.Zabbix.Server = *zabbixServer
	}
	if *zabbixHost != "" {
		cfg.Zabbix.Host = *zabbixHost
	}
	if *dataType != "" {
		cfg.Collector.DataType = *dataType
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		flag.Usage()
		fail()
	}

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Resolve the API token
	provider, err := secrets.NewProvider(cfg, logger)
	if err != nil {
		logger.Error("no usable token source", "error", err)
		fail()
	}
	apiToken, err := provider.APIToken(ctx)
	if err != nil {
		logger.Error("failed to resolve API token", "error", err)
		fail()
	}

	// Assemble the collector
	api := wafapi.NewClient(wafapi.Config{
		Host:            cfg.WAF.Host,
		AuthToken:       apiToken,
		Timeout:         cfg.WAF.QueryTimeout,
		RateLimitPerMin: cfg.WAF.RateLimitPerMin,
	})

	sender := zabbix.NewSender(zabbix.Config{
		Server:     cfg.Zabbix.Server,
		SenderPath: cfg.Zabbix.SenderPath,
		Logger:     logger,
	})

	store := state.NewStore(cfg.Collector.StateDir, cfg.Zabbix.Host, logger)

	c := collector.New(collector.Options{
		API:          api,
		Sender:       sender,
		Store:        store,
		ZabbixHost:   cfg.Zabbix.Host,
		DataType:     cfg.Collector.DataType,
		ProbeTimeout: cfg.WAF.ProbeTimeout,
		QueryTimeout: cfg.WAF.QueryTimeout,
		Logger:       logger,
	})

	if err := c.Run(ctx); err != nil {
		logger.Error("collection failed", "error", err)
		fail()
	}

	fmt.Println(0)
}

// fail prints the failure result line and exits. Zabbix external checks
// read the line; schedulers read the exit code.
func fail() {
	fmt.Println(1)
	os.Exit(1)
}
