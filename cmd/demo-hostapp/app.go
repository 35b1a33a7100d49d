package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kwesidev/authclient"
	"github.com/kwesidev/authclient/internal/logging"
	fsstore "github.com/kwesidev/authclient/stores/fs"
	gaestore "github.com/kwesidev/authclient/stores/gae"
	gormstore "github.com/kwesidev/authclient/stores/gorm"
	redisstore "github.com/kwesidev/authclient/stores/redis"
	scsstore "github.com/kwesidev/authclient/stores/scs"
)

// Application wires the auth client into a web app.
type Application struct {
	cfg    Config
	logger *slog.Logger

	sessions *scs.SessionManager
	provider *authclient.ProviderClient
	stores   authclient.SessionStores
	registry *authclient.Registry

	// purge removes expired sessions from shared backends, if supported
	purge   func(ctx context.Context, cutoff time.Time) (int64, error)
	closers []func() error

	router *mux.Router
	server *http.Server
	done   chan struct{}
}

// New creates an Application with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg:    cfg,
		logger: logging.New(cfg.Log),
		done:   make(chan struct{}),
	}

	app.sessions = scs.New()
	app.sessions.Lifetime = cfg.SessionLifetime
	app.sessions.IdleTimeout = cfg.SessionIdleTimeout
	app.sessions.Cookie.Name = "authclient_session"
	app.sessions.Cookie.HttpOnly = true
	app.sessions.Cookie.SameSite = http.SameSiteLaxMode

	app.provider = cfg.Auth.NewProviderClient(app.logger)

	if err := app.initStores(context.Background()); err != nil {
		app.close()
		return nil, err
	}
	app.registry = authclient.NewRegistry(func(sessionID string) *authclient.SessionManager {
		return authclient.NewSessionManager(app.provider, app.stores.ForSession(sessionID),
			cfg.Auth.ManagerOptions(app.logger.With("sid", sessionID))...)
	})

	app.initHTTP()
	return app, nil
}

// initStores opens the configured token backend
func (app *Application) initStores(ctx context.Context) error {
	switch app.cfg.Backend {
	case "", "session":
		app.stores = scsstore.New(app.sessions)

	case "memory":
		app.stores = authclient.SessionStoresFunc(func(string) authclient.TokenStore {
			return authclient.NewMemoryTokenStore()
		})

	case "fs":
		store, err := fsstore.New(app.cfg.StorePath, "authclient-demo")
		if err != nil {
			return err
		}
		app.stores = store

	case "redis":
		opts, err := redis.ParseURL(app.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		app.closers = append(app.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		store, err := redisstore.New(redisstore.Config{Client: client, TTL: app.cfg.SessionLifetime})
		if err != nil {
			return err
		}
		app.stores = store

	case "postgres":
		db, err := gorm.Open(postgres.Open(app.cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			app.closers = append(app.closers, sqlDB.Close)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		store := gormstore.New(db)
		app.stores = store
		app.purge = store.DeleteExpired

	case "datastore":
		client, err := datastore.NewClient(ctx, app.cfg.DatastoreProject)
		if err != nil {
			return fmt.Errorf("failed to create datastore client: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		store := gaestore.New(client, app.cfg.DatastoreNamespace)
		app.stores = store
		app.purge = func(ctx context.Context, cutoff time.Time) (int64, error) {
			n, err := store.DeleteExpired(ctx, cutoff)
			return int64(n), err
		}

	default:
		return fmt.Errorf("unknown token backend %q", app.cfg.Backend)
	}

	app.logger.Info("token backend ready", "backend", app.cfg.Backend)
	return nil
}

// Handler returns the app's HTTP handler, including session loading.
func (app *Application) Handler() http.Handler {
	return app.sessions.LoadAndSave(app.router)
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	go app.sweepLoop()

	app.logger.Info("demo host app starting", "port", app.cfg.Port, "auth_server", app.provider.BaseURL())

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.close()
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}
	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}
	app.close()
	app.logger.Info("demo host app stopped")
	return nil
}

func (app *Application) close() {
	select {
	case <-app.done:
	default:
		close(app.done)
	}
	for _, c := range app.closers {
		if err := c(); err != nil {
			app.logger.Error("error closing backend", "error", err)
		}
	}
	app.closers = nil
}

// sweepLoop drops idle session managers and purges expired stored sessions.
func (app *Application) sweepLoop() {
	interval := app.cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-app.done:
			return
		case <-ticker.C:
			app.sweep(context.Background())
		}
	}
}

func (app *Application) sweep(ctx context.Context) {
	if n := app.registry.Sweep(app.cfg.SessionIdleTimeout); n > 0 {
		app.logger.Debug("dropped idle sessions", "count", n)
	}
	if app.purge == nil {
		return
	}
	n, err := app.purge(ctx, time.Now().Add(-app.cfg.SessionLifetime))
	if err != nil {
		app.logger.Warn("failed to purge expired sessions", "error", err)
		return
	}
	if n > 0 {
		app.logger.Info("purged expired sessions", "count", n)
	}
}
