// Package app wires the decision support service together and manages its
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/apron-guard/internal/compliance"
	"github.com/bissquit/apron-guard/internal/config"
	"github.com/bissquit/apron-guard/internal/enrichment"
	"github.com/bissquit/apron-guard/internal/pkg/ctxlog"
	"github.com/bissquit/apron-guard/internal/pkg/httputil"
	"github.com/bissquit/apron-guard/internal/pkg/metrics"
	"github.com/bissquit/apron-guard/internal/pkg/postgres"
	"github.com/bissquit/apron-guard/internal/pkg/token"
	"github.com/bissquit/apron-guard/internal/registry"
	"github.com/bissquit/apron-guard/internal/risk"
	"github.com/bissquit/apron-guard/internal/schedule"
	"github.com/bissquit/apron-guard/internal/session"
	"github.com/bissquit/apron-guard/internal/session/memory"
	sessionpostgres "github.com/bissquit/apron-guard/internal/session/postgres"
	sessionredis "github.com/bissquit/apron-guard/internal/session/redis"
	"github.com/bissquit/apron-guard/internal/tools"
	"github.com/bissquit/apron-guard/internal/topology"
	"github.com/bissquit/apron-guard/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *sessionredis.Repository
	service       *session.Service
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	toolbox, err := newToolbox(cfg)
	if err != nil {
		return nil, err
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())
	app := &App{
		config:        cfg,
		logger:        logger,
		metricsCancel: metricsCancel,
	}

	repo, err := app.openStore(metricsCtx)
	if err != nil {
		metricsCancel()
		return nil, err
	}
	app.service = session.NewService(repo, toolbox)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// newToolbox loads the reference data and builds the analysis components.
func newToolbox(cfg *config.Config) (*tools.Toolbox, error) {
	graph, err := topology.LoadGraphFile(cfg.Data.Topology)
	if err != nil {
		return nil, fmt.Errorf("load topology: %w", err)
	}
	store, err := schedule.LoadStoreFile(cfg.Data.Schedule)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	var engine *risk.Engine
	if cfg.Data.Rules != "" {
		engine, err = risk.NewEngineFromFile(cfg.Data.Rules)
	} else {
		engine, err = risk.DefaultEngine()
	}
	if err != nil {
		return nil, fmt.Errorf("load risk rules: %w", err)
	}

	aircraft, err := newRegistry(cfg)
	if err != nil {
		return nil, err
	}

	slog.Info("reference data loaded",
		"nodes", graph.Len(),
		"flights", store.Len(),
		"rules", len(engine.Rules()),
	)

	topo := topology.NewEngine(graph)
	scheduler := enrichment.NewScheduler(
		enrichment.Config{
			Workers: cfg.Enrichment.Workers,
			Timeout: cfg.Enrichment.Timeout,
		},
		[]enrichment.Lookup{
			enrichment.AircraftLookup{Registry: aircraft},
			enrichment.FlightPlanLookup{Store: store},
			enrichment.LocationLookup{Resolver: topo.Resolver()},
		},
		[]enrichment.Dependent{
			enrichment.SpatialImpactStep(topo, engine),
		},
	)

	return tools.NewToolbox(
		tools.Config{PredictionWindow: cfg.Prediction.Window},
		engine,
		topo,
		schedule.NewPredictor(store),
		scheduler,
		compliance.NewValidator(engine),
	), nil
}

// newRegistry chains the remote registry, when configured, in front of the
// static aircraft file.
func newRegistry(cfg *config.Config) (registry.Registry, error) {
	var chain registry.Chain

	if cfg.Registry.BaseURL != "" {
		client, err := registry.NewHTTPClient(registry.HTTPConfig{
			BaseURL:   cfg.Registry.BaseURL,
			Timeout:   cfg.Registry.Timeout,
			RateLimit: cfg.Registry.RateLimit,
			Token:     cfg.Registry.Token,
		})
		if err != nil {
			return nil, fmt.Errorf("create registry client: %w", err)
		}
		chain = append(chain, client)
	}

	if cfg.Data.Aircraft != "" {
		static, err := registry.LoadStaticFile(cfg.Data.Aircraft)
		if err != nil {
			return nil, fmt.Errorf("load aircraft: %w", err)
		}
		chain = append(chain, static)
	}

	if len(chain) == 0 {
		slog.Warn("no aircraft registry configured: aircraft lookups will fail")
	}
	return chain, nil
}

// openStore connects the configured session store.
func (a *App) openStore(metricsCtx context.Context) (session.Repository, error) {
	cfg := a.config

	switch cfg.Session.Store {
	case config.StorePostgres:
		connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
		defer connectCancel()

		db, err := postgres.Connect(connectCtx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectAttempts: cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if cfg.Database.Migrate {
			if err := postgres.Migrate(cfg.Database.URL); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate database: %w", err)
			}
		}
		a.db = db
		go collectStoreMetrics(metricsCtx, func() { metrics.RecordPostgresPool(db) })
		return sessionpostgres.NewRepository(db), nil

	case config.StoreRedis:
		connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Redis.Timeout)
		defer connectCancel()

		repo, err := sessionredis.Connect(connectCtx, sessionredis.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			Database: cfg.Redis.Database,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
			Timeout:  cfg.Redis.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = repo
		go collectStoreMetrics(metricsCtx, func() { metrics.RecordRedisPool(repo.PoolStats()) })
		return repo, nil

	default:
		slog.Warn("using in-memory session store: sessions are lost on restart")
		return memory.NewRepository(), nil
	}
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"session_store", a.config.Session.Store,
		"auth", a.config.Auth.Enabled,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	return errors.Join(errs...)
}

// collectStoreMetrics runs record now and every 15 seconds until ctx ends.
func collectStoreMetrics(ctx context.Context, record func()) {
	record()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			record()
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.config.Server.RequestTimeout))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	sessionHandler := session.NewHandler(a.service)

	r.Route("/api/v1", func(r chi.Router) {
		if a.config.Auth.Enabled {
			r.Use(httputil.AuthMiddleware(token.NewValidator(token.Config{
				SecretKey: a.config.Auth.SecretKey,
				Issuer:    a.config.Auth.Issuer,
			})))
		}
		sessionHandler.RegisterRoutes(r)
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.service.Ready(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Session store unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
