package secrets

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pilot-net/waf-mon/internal/config"
)

// NewProvider picks a token source from collector configuration.
//
// Explicit sources fail loudly when misconfigured. "auto" prefers an
// inline token, then a token file, then 1Password when OP_CONNECT_HOST is
// present.
func NewProvider(cfg *config.Config, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	source := cfg.Secrets.Source
	if source == "" {
		source = "auto"
	}

	switch source {
	case "static":
		if cfg.WAF.APIToken == "" {
			return nil, fmt.Errorf("secrets source is static but waf.api_token is empty")
		}
		return Static{Token: cfg.WAF.APIToken}, nil

	case "file":
		if cfg.WAF.TokenFile == "" {
			return nil, fmt.Errorf("secrets source is file but waf.token_file is empty")
		}
		return File{Path: cfg.WAF.TokenFile}, nil

	case "1password":
		return NewOnePassword(onePasswordConfig(cfg), logger)

	case "auto":
		if cfg.WAF.APIToken != "" {
			return Static{Token: cfg.WAF.APIToken}, nil
		}
		if cfg.WAF.TokenFile != "" {
			return File{Path: cfg.WAF.TokenFile}, nil
		}
		if os.Getenv("OP_CONNECT_HOST") != "" {
			logger.Info("no inline token or token file, using 1Password Connect")
			return NewOnePassword(onePasswordConfig(cfg), logger)
		}
		return nil, fmt.Errorf("no token source configured: set waf.api_token, waf.token_file, or 1Password Connect environment")

	default:
		return nil, fmt.Errorf("unknown secrets source: %s", source)
	}
}

func onePasswordConfig(cfg *config.Config) OnePasswordConfig {
	return OnePasswordConfig{
		Host:  os.Getenv("OP_CONNECT_HOST"),
		Token: os.Getenv("OP_CONNECT_TOKEN"),
		Vault: cfg.Secrets.OnePassword.Vault,
		Item:  cfg.Secrets.OnePassword.Item,
		Field: cfg.Secrets.OnePassword.Field,
	}
}
