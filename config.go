package authclient

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"golang.org/x/time/rate"
)

// Config holds the client settings. LoadConfig reads it from the
// environment; programmatic users fill it in and call EnsureDefaults.
type Config struct {
	// ServerURL is the provider base URL, e.g. http://localhost:8080.
	ServerURL string `env:"AUTH_SERVER_URL,required"`

	// Timeout bounds each provider call.
	Timeout time.Duration `env:"AUTH_CLIENT_TIMEOUT,default=10s"`

	// RefreshLeeway is how long before expiry tokens are refreshed.
	RefreshLeeway time.Duration `env:"AUTH_REFRESH_LEEWAY,default=30s"`

	// StrongCheck makes CheckAuth confirm tokens with a user lookup.
	StrongCheck bool `env:"AUTH_STRONG_CHECK,default=false"`

	// TokenHeader is the header the provider reads the access token from.
	TokenHeader string `env:"AUTH_TOKEN_HEADER,default=token"`

	// RefreshRate limits refresh calls per second per session. 0 disables.
	RefreshRate  float64 `env:"AUTH_REFRESH_RATE,default=0"`
	RefreshBurst int     `env:"AUTH_REFRESH_BURST,default=1"`

	Endpoints Endpoints
}

// LoadConfig decodes a Config from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to load auth client config: %w", err)
	}
	return cfg.EnsureDefaults(), nil
}

// EnsureDefaults fills in reasonable values for unset fields.
func (c *Config) EnsureDefaults() *Config {
	c.ServerURL = strings.TrimSuffix(c.ServerURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultCallTimeout
	}
	if c.RefreshLeeway <= 0 {
		c.RefreshLeeway = DefaultRefreshLeeway
	}
	if c.TokenHeader == "" {
		c.TokenHeader = DefaultTokenHeader
	}
	if c.RefreshBurst <= 0 {
		c.RefreshBurst = 1
	}
	c.Endpoints.EnsureDefaults()
	return c
}

// NewProviderClient builds a ProviderClient from the config.
func (c *Config) NewProviderClient(logger *slog.Logger) *ProviderClient {
	return NewProviderClient(c.ServerURL,
		WithHTTPClient(&http.Client{Timeout: c.Timeout}),
		WithEndpoints(c.Endpoints),
		WithTokenHeader(c.TokenHeader),
		WithProviderLogger(logger),
	)
}

// ManagerOptions returns the SessionManager options the config describes.
// Each call returns a fresh rate limiter, so limits apply per session.
func (c *Config) ManagerOptions(logger *slog.Logger) []ManagerOption {
	opts := []ManagerOption{
		WithLogger(logger),
		WithCallTimeout(c.Timeout),
		WithRefreshLeeway(c.RefreshLeeway),
		WithStrongAuthCheck(c.StrongCheck),
	}
	if c.RefreshRate > 0 {
		opts = append(opts, WithRefreshLimiter(rate.NewLimiter(rate.Limit(c.RefreshRate), c.RefreshBurst)))
	}
	return opts
}
