package secrets

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/1Password/connect-sdk-go/connect"
)

// OnePassword fetches the token from a 1Password Connect server.
//
// Configuration is via environment variables:
//   - OP_CONNECT_HOST: URL of the 1Password Connect server
//   - OP_CONNECT_TOKEN: Access token for the Connect server
//
// Vault, item title, and field label come from collector config.
type OnePassword struct {
	client connect.Client
	vault  string
	item   string
	field  string
	logger *slog.Logger
}

// OnePasswordConfig holds connection and lookup parameters.
type OnePasswordConfig struct {
	Host  string // OP_CONNECT_HOST
	Token string // OP_CONNECT_TOKEN
	Vault string // vault UUID
	Item  string // item title
	Field string // field label holding the token (default: "token")
}

// NewOnePassword creates a Connect-backed provider.
func NewOnePassword(cfg OnePasswordConfig, logger *slog.Logger) (*OnePassword, error) {
	if cfg.Host == "" || cfg.Token == "" || cfg.Vault == "" || cfg.Item == "" {
		return nil, fmt.Errorf("1Password configuration incomplete: connect host, token, vault, and item are required")
	}
	if cfg.Field == "" {
		cfg.Field = "token"
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := connect.NewClientWithUserAgent(cfg.Host, cfg.Token, "wafmon-collector")

	return &OnePassword{
		client: client,
		vault:  cfg.Vault,
		item:   cfg.Item,
		field:  cfg.Field,
		logger: logger,
	}, nil
}

// APIToken looks the item up by title and returns the configured field.
func (p *OnePassword) APIToken(ctx context.Context) (string, error) {
	items, err := p.client.GetItemsByTitle(p.item, p.vault)
	if err != nil {
		return "", fmt.Errorf("listing 1Password items: %w", err)
	}
	if len(items) == 0 {
		return "", fmt.Errorf("1Password item %q not found in vault %s", p.item, p.vault)
	}
	if len(items) > 1 {
		p.logger.Warn("multiple 1Password items share a title, using the first",
			"item", p.item,
			"matches", len(items))
	}

	item, err := p.client.GetItem(items[0].ID, p.vault)
	if err != nil {
		return "", fmt.Errorf("getting 1Password item: %w", err)
	}

	for _, f := range item.Fields {
		if f.Label == p.field && f.Value != "" {
			return f.Value, nil
		}
	}
	return "", fmt.Errorf("1Password item %q has no %q field", p.item, p.field)
}
