// Package control assembles the engine from configuration and manages its
// background tasks.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/livecluster/internal/admission"
	"github.com/vietddude/livecluster/internal/circuit"
	"github.com/vietddude/livecluster/internal/cluster"
	"github.com/vietddude/livecluster/internal/core/config"
	"github.com/vietddude/livecluster/internal/core/domain"
	"github.com/vietddude/livecluster/internal/health"
	"github.com/vietddude/livecluster/internal/infra/loadstat"
	redisclient "github.com/vietddude/livecluster/internal/infra/redis"
	"github.com/vietddude/livecluster/internal/infra/routing"
	"github.com/vietddude/livecluster/internal/infra/storage/postgres"
	"github.com/vietddude/livecluster/internal/infra/transport"
	"github.com/vietddude/livecluster/internal/policy"
)

// App is the main application struct that owns the cluster and its
// supporting services.
type App struct {
	cfg          *config.AppConfig
	cluster      *cluster.LiveCluster
	router       *routing.StaticRouter
	source       *policy.StaticSource
	reloader     *policy.Reloader
	sampler      *loadstat.Sampler
	healthMon    *health.Monitor
	healthServer *health.Server
	grpc         *transport.GRPCTransport
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// NewApp creates an App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	app := &App{cfg: cfg, log: slog.Default()}

	// 1. Policies
	source, err := buildSource(cfg)
	if err != nil {
		return nil, err
	}
	app.source = source
	slog.Info("Loaded policies from config", "sets", source.Len())

	if cfg.PolicyReload.Source == config.PolicySourcePostgres {
		if err := app.initPolicyStore(ctx); err != nil {
			app.close()
			return nil, err
		}
	}

	// 2. Routing and transports
	app.grpc = transport.NewGRPCTransport()
	mux := transport.NewMux(transport.NewHTTPTransport(cfg.Cluster.TransportTimeout))
	app.router = routing.NewStaticRouter()
	for name, svc := range cfg.Services {
		if svc.Transport == config.TransportGRPC {
			mux.Bind(name, app.grpc)
		}
		eps := make([]domain.Endpoint, 0, len(svc.Endpoints))
		for i := range svc.Endpoints {
			inst := svc.Endpoints[i]
			eps = append(eps, &inst)
		}
		app.router.SetEndpoints(name, eps)
		slog.Info("Registered service", "service", name, "transport", svc.Transport, "endpoints", len(eps))
	}

	// 3. Admission
	var metrics admission.MetricSource
	if sampler, err := loadstat.NewSampler(cfg.Load.ProcFS); err != nil {
		slog.Warn("Load sampling unavailable, load limits disabled", "error", err)
	} else {
		app.sampler = sampler
		metrics = sampler
	}

	// 4. Sticky sessions
	var sticky cluster.StickyStore = cluster.NewMemoryStickyStore()
	if cfg.Cluster.Sticky == config.StickyRedis {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		app.redisClient = client
		sticky = redisclient.NewStickyStore(client, cfg.Redis.KeyPrefix, cfg.Redis.StickyTTL)
		slog.Info("Using Redis sticky store")
	}

	strategy, err := cluster.ParseSelectStrategy(cfg.Cluster.Selector)
	if err != nil {
		app.close()
		return nil, err
	}

	// 5. Cluster and health
	circuits := circuit.NewRegistry()
	app.healthMon = health.NewMonitor(circuits, health.DefaultThresholds, 10*time.Second)
	app.cluster = cluster.New(
		app.router,
		mux,
		app.source,
		cluster.WithAdmission(admission.NewRegistry(metrics)),
		cluster.WithCircuits(circuits),
		cluster.WithStickyStore(sticky),
		cluster.WithSelector(cluster.NewSelector(strategy)),
		cluster.WithObserver(app.healthMon),
	)
	app.healthServer = health.NewServer(app.healthMon, cfg.Server.Addr)

	return app, nil
}

func buildSource(cfg *config.AppConfig) (*policy.StaticSource, error) {
	var fallback *policy.Set
	if len(cfg.Cluster.DefaultPolicy) > 0 {
		set, err := policy.Decode(cfg.Cluster.DefaultPolicy)
		if err != nil {
			return nil, fmt.Errorf("invalid default policy: %w", err)
		}
		fallback = set
	}
	source, err := policy.NewStaticSource(fallback)
	if err != nil {
		return nil, err
	}

	sets, err := policy.Build(cfg.Cluster.DefaultPolicy, cfg.PolicyDocuments())
	if err != nil {
		return nil, err
	}
	if err := source.Replace(sets); err != nil {
		return nil, err
	}
	return source, nil
}

func (a *App) initPolicyStore(ctx context.Context) error {
	db, err := postgres.NewDB(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}
	a.db = db

	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	reloader, err := policy.NewReloader(a.source, postgres.NewPolicyRepo(db), a.cfg.PolicyReload.Schedule)
	if err != nil {
		return err
	}
	a.reloader = reloader

	if err := reloader.Reload(ctx); err != nil {
		slog.Warn("Initial policy load failed, using config policies", "error", err)
	}
	slog.Info("Using PostgreSQL policy store", "schedule", a.cfg.PolicyReload.Schedule)
	return nil
}

// Cluster returns the invocation engine.
func (a *App) Cluster() *cluster.LiveCluster {
	return a.cluster
}

// Router returns the endpoint router so endpoints can be updated at runtime.
func (a *App) Router() *routing.StaticRouter {
	return a.router
}

// GRPC returns the gRPC transport used by services configured with
// transport: grpc. Handlers must be registered before those services are
// called.
func (a *App) GRPC() *transport.GRPCTransport {
	return a.grpc
}

// Start starts the background tasks and the ops server.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()
	a.log.Info("Ops server listening", "addr", a.cfg.Server.Addr)

	if a.sampler != nil {
		go a.sampler.Run(ctx, a.cfg.Load.Interval)
	}
	if a.reloader != nil {
		go a.reloader.Start(ctx)
	}
	return nil
}

// Stop shuts the ops server down and releases connections.
func (a *App) Stop(ctx context.Context) error {
	err := a.healthServer.Stop(ctx)
	a.close()
	return err
}

func (a *App) close() {
	if a.grpc != nil {
		if err := a.grpc.Close(); err != nil {
			a.log.Warn("Failed to close grpc connections", "error", err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
