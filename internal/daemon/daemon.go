package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gdp-network/gdpnet/internal/api"
	"github.com/gdp-network/gdpnet/internal/app/claims"
	"github.com/gdp-network/gdpnet/internal/app/eligibility"
	"github.com/gdp-network/gdpnet/internal/domain"
	"github.com/gdp-network/gdpnet/internal/infra/memstore"
	"github.com/gdp-network/gdpnet/internal/infra/neo4j"
	"github.com/gdp-network/gdpnet/internal/infra/observability"
	"github.com/gdp-network/gdpnet/internal/infra/postgres"
	"github.com/gdp-network/gdpnet/internal/infra/settings"
	"github.com/gdp-network/gdpnet/internal/infra/sqlite"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Daemon holds the wired components.
type Daemon struct {
	Config     Config
	Store      domain.Store
	Snapshots  domain.SnapshotProvider
	Settings   domain.SettingsStore
	Engine     *eligibility.Engine
	Claims     *claims.Service
	Reconciler *claims.Reconciler
	Tracer     *observability.Tracer

	log     *slog.Logger
	closers []func() error
}

// New opens storage and wires every component. Callers must Close the
// returned daemon.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Daemon, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	d := &Daemon{Config: cfg, log: log}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	d.Store = store
	d.closers = append(d.closers, store.Close)

	// The relational store owns the tree unless a graph is configured.
	d.Snapshots = store
	if cfg.Neo4j.Enabled {
		client, err := neo4j.NewReadOnlyClient(ctx, log, cfg.Neo4j)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Snapshots = neo4j.NewProvider(client)
		d.closers = append(d.closers, func() error { return client.Close(context.Background()) })
		log.Info("daemon: snapshots from neo4j", "uri", cfg.Neo4j.URI)
	}

	d.Settings = store
	if cfg.Rewards.SettingsFile != "" {
		d.Settings = settings.NewFileStore(cfg.Rewards.SettingsFile)
		log.Info("daemon: reward settings from file", "path", cfg.Rewards.SettingsFile)
	}

	tcfg := observability.DefaultTracerConfig()
	tcfg.Enabled = cfg.Tracing.Enabled
	if cfg.Tracing.MaxSpans > 0 {
		tcfg.MaxSpans = cfg.Tracing.MaxSpans
	}
	d.Tracer = observability.NewTracer(tcfg)

	d.Engine = eligibility.NewEngine(d.Snapshots, store, log)
	d.Claims = claims.NewService(claims.Deps{
		Engine:   d.Engine,
		Claims:   store,
		Ledger:   store,
		Settings: d.Settings,
		Clock:    clockwork.NewRealClock(),
		Tracer:   d.Tracer,
		Logger:   log,
	})

	interval, _ := parseDuration(cfg.Rewards.ReconcileInterval, time.Minute)
	rcfg := claims.DefaultReconcilerConfig()
	rcfg.Interval = interval
	rcfg.BatchSize = cfg.Rewards.ReconcileBatch
	rcfg.MaxConcurrent = cfg.Rewards.ReconcileConcurrency
	d.Reconciler = claims.NewReconciler(d.Claims, rcfg)

	return d, nil
}

func openStore(ctx context.Context, cfg Config, log *slog.Logger) (domain.Store, error) {
	switch cfg.Storage.Backend {
	case BackendPostgres:
		s, err := postgres.Open(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		log.Info("daemon: storage postgres", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		return s, nil
	case BackendMemory:
		log.Warn("daemon: storage in memory, nothing is persisted")
		return memstore.New(clockwork.NewRealClock()), nil
	default:
		s, err := sqlite.Open(cfg.DataDir())
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Info("daemon: storage sqlite", "dir", cfg.DataDir())
		return s, nil
	}
}

// Users returns the store's user writer, if it has one.
func (d *Daemon) Users() (domain.UserWriter, bool) {
	w, ok := d.Store.(domain.UserWriter)
	return w, ok
}

// Server builds the HTTP API.
func (d *Daemon) Server() *api.Server {
	timeout, _ := parseDuration(d.Config.API.RequestTimeout, 30*time.Second)
	opts := api.Options{
		MetricsEnabled: d.Config.Metrics.Enabled,
		AllowedOrigins: d.Config.API.AllowedOrigins,
		RequestTimeout: timeout,
	}
	if d.Config.Claims.RateLimitPerMinute > 0 {
		burst := max(d.Config.Claims.Burst, 1)
		opts.ClaimLimiter = api.NewRateLimiter(rate.Limit(float64(d.Config.Claims.RateLimitPerMinute)/60), burst)
	}
	return api.NewServer(d.Engine, d.Claims, d.Settings, d.Tracer, d.log, opts)
}

// Serve runs the HTTP API and the credit reconciler until ctx is cancelled.
func (d *Daemon) Serve(ctx context.Context) error {
	srv := d.Server()
	httpSrv := &http.Server{
		Addr:              d.Config.API.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.log.Info("daemon: listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return d.Reconciler.Run(ctx)
	})
	if limiter := srv.ClaimLimiter(); limiter != nil {
		g.Go(func() error {
			limiter.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		d.log.Info("daemon: shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases storage and graph connections in reverse order.
func (d *Daemon) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
