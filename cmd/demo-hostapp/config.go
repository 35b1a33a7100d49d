package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/kwesidev/authclient"
	"github.com/kwesidev/authclient/internal/logging"
)

// Config for the demo host app. All values come from the environment.
type Config struct {
	Auth authclient.Config
	Log  logging.Config

	Port string `env:"PORT,default=8000"`

	// Backend selects where session tokens live: session, memory, fs,
	// redis, postgres or datastore.
	Backend string `env:"TOKEN_BACKEND,default=session"`

	StorePath          string `env:"TOKEN_STORE_PATH"`
	RedisURL           string `env:"REDIS_URL,default=redis://localhost:6379/0"`
	DatabaseURL        string `env:"DATABASE_URL"`
	DatastoreProject   string `env:"DATASTORE_PROJECT_ID"`
	DatastoreNamespace string `env:"DATASTORE_NAMESPACE"`

	SessionLifetime     time.Duration `env:"SESSION_LIFETIME,default=24h"`
	SessionIdleTimeout  time.Duration `env:"SESSION_IDLE_TIMEOUT,default=30m"`
	SweepInterval       time.Duration `env:"SESSION_SWEEP_INTERVAL,default=5m"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD,default=10s"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Auth.EnsureDefaults()
	return cfg, nil
}
