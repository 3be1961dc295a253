// Package identity acquires access tokens for the storage backend using the
// OAuth2 client-credentials grant.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/alekspetrov/qa-handoff/internal/logging"
)

// DefaultAuthority is the Microsoft identity platform token host.
const DefaultAuthority = "https://login.microsoftonline.com"

// DefaultScope requests every application permission granted to the app.
const DefaultScope = "https://graph.microsoft.com/.default"

// Config holds client-credentials settings.
type Config struct {
	TenantID     string   `yaml:"tenant_id"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Authority    string   `yaml:"authority,omitempty"`
	TokenURL     string   `yaml:"token_url,omitempty"` // overrides Authority/TenantID
	Scopes       []string `yaml:"scopes,omitempty"`
}

// Configured reports whether enough is set to request a token.
func (c *Config) Configured() bool {
	return c != nil && c.ClientID != "" && c.ClientSecret != "" && (c.TenantID != "" || c.TokenURL != "")
}

func (c *Config) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	authority := c.Authority
	if authority == "" {
		authority = DefaultAuthority
	}
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", authority, c.TenantID)
}

// Provider hands out access tokens. A provider built from an incomplete
// config returns an empty token and no error: "no token" is a normal
// outcome that callers treat as storage being unreachable. Every call
// performs a fresh token request.
type Provider struct {
	cc     *clientcredentials.Config
	client *http.Client
}

// NewProvider creates a provider. The HTTP client is optional.
func NewProvider(cfg *Config, client *http.Client) *Provider {
	p := &Provider{client: client}
	if !cfg.Configured() {
		logging.WithComponent("identity").Info("Client credentials not configured, storage access disabled")
		return p
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}
	p.cc = &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.tokenURL(),
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return p
}

// AcquireToken returns a bearer token, or "" when none is configured.
func (p *Provider) AcquireToken(ctx context.Context) (string, error) {
	if p == nil || p.cc == nil {
		return "", nil
	}
	if p.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	}
	tok, err := p.cc.Token(ctx)
	if err != nil {
		logging.WithComponent("identity").Warn("Token acquisition failed", slog.Any("error", err))
		return "", fmt.Errorf("failed to acquire token: %w", err)
	}
	return tok.AccessToken, nil
}
