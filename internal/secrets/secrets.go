// Package secrets resolves the WAF API token from its configured source.
//
// Deployments differ: lab boxes inline the token in config or environment,
// fleet hosts mount a token file, and managed installs keep it in
// 1Password behind a Connect server. The factory picks a source; callers
// only see Provider.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider yields the WAF API bearer token.
type Provider interface {
	APIToken(ctx context.Context) (string, error)
}

// Static serves a token already in hand (config file, environment, flag).
type Static struct {
	Token string
}

// APIToken returns the stored token.
func (s Static) APIToken(ctx context.Context) (string, error) {
	if s.Token == "" {
		return "", fmt.Errorf("static token is empty")
	}
	return s.Token, nil
}

// File reads the token from a mounted file on every call, so a rotated
// token is picked up by the next run without a config change.
type File struct {
	Path string
}

// APIToken reads and trims the token file.
func (f File) APIToken(ctx context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", f.Path)
	}
	return token, nil
}
