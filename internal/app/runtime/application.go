// Package runtime wires configuration, storage, services, and the HTTP
// server into a runnable application.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	app "github.com/habitloop/habitloop/internal/app"
	"github.com/habitloop/habitloop/internal/app/httpapi"
	"github.com/habitloop/habitloop/internal/app/storage/postgres"
	"github.com/habitloop/habitloop/internal/config"
	"github.com/habitloop/habitloop/internal/middleware"
	"github.com/habitloop/habitloop/internal/platform/cache"
	"github.com/habitloop/habitloop/internal/platform/database"
	"github.com/habitloop/habitloop/internal/platform/migrations"
	"github.com/habitloop/habitloop/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg    *config.Config
	log    *logger.Logger
	app     *app.Application
	server  *http.Server
	db      *sql.DB
	cache   *cache.Cache
	limiter *middleware.RateLimiter
}

// NewApplication constructs a new application instance with default wiring.
// Without a database DSN it falls back to in-memory storage, which is only
// suitable for local development.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		db     *sql.DB
		stores app.Stores
	)
	if cfg.Database.DSN != "" {
		db, err = database.Open(ctx, database.Config{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := migrations.Apply(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		store := postgres.New(db)
		stores = app.Stores{
			Users:    store,
			Habits:   store,
			CheckIns: store,
			Profiles: store,
		}
	} else {
		log.Warn("DATABASE_URL not set; using in-memory storage")
	}

	c, err := cache.New(ctx, cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.WithError(err).Warn("redis unavailable; leaderboard cache disabled")
		c = nil
	}

	schedule := ""
	if cfg.Reconciler.Enabled {
		schedule = cfg.Reconciler.Schedule
	}
	application, err := app.New(stores, app.Options{
		Cache:             c,
		JWTSecret:         cfg.Auth.JWTSecret,
		TokenTTL:          cfg.Auth.TokenTTLDuration(),
		ReconcileSchedule: schedule,
	}, log)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("build application: %w", err)
	}

	limiter := middleware.NewRateLimiter(
		float64(cfg.RateLimit.RequestsPerSecond),
		cfg.RateLimit.Burst,
	)
	handler := httpapi.NewHandler(application, httpapi.Options{
		AuditDB:   db,
		RateLimit: limiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &Application{
		cfg:     cfg,
		log:     log,
		app:     application,
		server:  server,
		db:      db,
		cache:   c,
		limiter: limiter,
	}, nil
}

// Run starts the services and the HTTP server and blocks until the context
// is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, the background services, and
// the storage connections.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := time.Duration(a.cfg.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping services")
	}
	a.limiter.Stop()
	if err := a.cache.Close(); err != nil {
		a.log.WithError(err).Warn("error closing redis connection")
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}
