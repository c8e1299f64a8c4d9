// Package app wires storage, connectors, the sync pipeline and the HTTP API together
// and manages their lifecycle.
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

	"github.com/bissquit/incident-radar/api/openapi"
	"github.com/bissquit/incident-radar/internal/alerts"
	"github.com/bissquit/incident-radar/internal/auth"
	"github.com/bissquit/incident-radar/internal/config"
	"github.com/bissquit/incident-radar/internal/connectors"
	"github.com/bissquit/incident-radar/internal/connectors/factory"
	"github.com/bissquit/incident-radar/internal/datasources"
	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/incidents"
	"github.com/bissquit/incident-radar/internal/pkg/cache"
	"github.com/bissquit/incident-radar/internal/pkg/ctxlog"
	"github.com/bissquit/incident-radar/internal/pkg/httputil"
	"github.com/bissquit/incident-radar/internal/pkg/metrics"
	"github.com/bissquit/incident-radar/internal/pkg/postgres"
	"github.com/bissquit/incident-radar/internal/realtime"
	"github.com/bissquit/incident-radar/internal/store"
	"github.com/bissquit/incident-radar/internal/store/memory"
	storepostgres "github.com/bissquit/incident-radar/internal/store/postgres"
	"github.com/bissquit/incident-radar/internal/syncer"
	"github.com/bissquit/incident-radar/internal/version"
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
	repo          store.Repository
	cache         cache.Cache
	hub           *realtime.Hub
	auth          *auth.Authenticator
	alerts        *alerts.Notifier
	orchestrator  *syncer.Orchestrator
	scheduler     *syncer.Scheduler
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
}

// New creates the application. Nothing is started until Run.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	authenticator, err := auth.NewAuthenticator(auth.Config{
		SecretKey:     cfg.JWT.SecretKey,
		Issuer:        cfg.JWT.Issuer,
		TokenDuration: cfg.JWT.TokenDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("create authenticator: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())
	app := &App{
		config:        cfg,
		logger:        logger,
		auth:          authenticator,
		metricsCancel: metricsCancel,
	}

	if err := app.openStore(metricsCtx); err != nil {
		metricsCancel()
		return nil, err
	}

	if err := app.openCache(); err != nil {
		app.closeStore()
		metricsCancel()
		return nil, err
	}

	incidentService := incidents.NewService(app.repo, app.cache, cfg.Redis.TTL)
	dataSourceService := datasources.NewService(app.repo)
	dataSourceService.OnChange(incidentService.Invalidate)

	provisionCtx, provisionCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer provisionCancel()
	if err := dataSourceService.EnsureConfigured(provisionCtx, configuredDataSources(cfg.DataSources)); err != nil {
		app.closeStore()
		metricsCancel()
		return nil, fmt.Errorf("provision data sources: %w", err)
	}

	app.hub = realtime.NewHub(realtime.Config{AllowedOrigins: cfg.CORS.AllowedOrigins})

	connectorFactory := factory.New(connectors.Options{
		UserAgent:         cfg.Sync.UserAgent,
		RequestsPerSecond: cfg.Sync.RequestsPerSecond,
	})
	app.orchestrator = syncer.NewOrchestrator(app.repo, connectorFactory, app.hub, syncer.Config{
		Concurrency:         cfg.Sync.Concurrency,
		RetryAlertThreshold: cfg.Sync.RetryAlertThreshold,
		SystemID:            cfg.Sync.SystemID,
	})
	app.scheduler = syncer.NewScheduler(syncer.SchedulerConfig{
		Interval:   cfg.Sync.Interval,
		RunOnStart: cfg.Sync.RunOnStart,
	}, app.orchestrator)

	// Aborted runs reach hooks too; they may have written some sources already.
	app.orchestrator.OnRunComplete(func(ctx context.Context, _ *syncer.RunResult) {
		incidentService.Invalidate(ctx)
	})

	if cfg.Alerts.WebhookURL != "" {
		app.alerts = alerts.NewNotifier(alerts.NewWebhookSender(alerts.WebhookConfig{
			URL:      cfg.Alerts.WebhookURL,
			Username: cfg.Alerts.Username,
			IconURL:  cfg.Alerts.IconURL,
			Timeout:  cfg.Alerts.Timeout,
		}), alerts.Config{Threshold: cfg.Sync.RetryAlertThreshold})
		app.alerts.Start(context.Background())
		app.orchestrator.OnRunComplete(app.alerts.OnRunComplete)
	}

	router := app.setupRouter(incidentService, dataSourceService)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
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

func (a *App) openStore(metricsCtx context.Context) error {
	cfg := a.config.Database
	if cfg.Driver == config.DriverMemory {
		a.logger.Warn("using in-memory store: data is lost on restart")
		a.repo = memory.New()
		return nil
	}

	if cfg.MigrateOnStart {
		if err := postgres.MigrateUp(cfg.URL); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnectAttempts: cfg.ConnectAttempts,
		ApplicationName: "incident-radar",
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	a.db = db
	a.repo = storepostgres.NewRepository(db)
	go metrics.CollectDBPool(metricsCtx, db, metrics.DBPoolInterval)
	return nil
}

func (a *App) openCache() error {
	if a.config.Redis.URL == "" {
		a.cache = cache.Noop{}
		return nil
	}

	redisCache, err := cache.NewRedisCache(cache.Config{
		URL:       a.config.Redis.URL,
		KeyPrefix: a.config.Redis.KeyPrefix,
	})
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisCache.Ping(ctx); err != nil {
		// The cache is an optimization: serve from the store until Redis comes back.
		a.logger.Warn("redis unreachable at startup", "error", err)
	}

	a.cache = redisCache
	return nil
}

func configuredDataSources(list []config.DataSourceConfig) []domain.DataSource {
	out := make([]domain.DataSource, 0, len(list))
	for _, ds := range list {
		out = append(out, domain.DataSource{
			Name:     ds.Name,
			Type:     domain.ConnectorType(ds.Type),
			BaseURL:  ds.BaseURL,
			APIKey:   ds.APIKey,
			IsActive: ds.Active(),
		})
	}
	return out
}

// Run starts the scheduler and both HTTP servers. It blocks until the API server stops.
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

	a.scheduler.Start(context.Background())

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// SyncOnce performs one run on the caller's goroutine. Used by the sync command.
func (a *App) SyncOnce(ctx context.Context) (*syncer.RunResult, error) {
	return a.scheduler.RunNow(ctx, syncer.TriggerCLI)
}

// Shutdown stops the scheduler, letting an in-flight run record its outcomes, then
// disconnects subscribers and stops both servers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	var errs []error

	stopped := make(chan struct{})
	go func() {
		a.scheduler.Stop()
		close(stopped)
	}()
	runInFlight := false
	select {
	case <-stopped:
	case <-ctx.Done():
		runInFlight = a.scheduler.Running()
		errs = append(errs, fmt.Errorf("wait for sync run: %w", ctx.Err()))
	}

	a.hub.Close()
	if a.alerts != nil {
		a.alerts.Stop()
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, srv := range map[string]*http.Server{"server": a.server, "metrics server": a.metricsServer} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", name, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	a.metricsCancel()

	// The run still writes outcomes and invalidates the cache; both stay open until exit.
	if runInFlight {
		a.logger.Error("sync run still in flight at shutdown, leaving store and cache open")
		return errors.Join(errs...)
	}

	if err := a.cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	a.closeStore()

	return errors.Join(errs...)
}

func (a *App) closeStore() {
	if a.db != nil {
		a.db.Close()
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Scheduler returns the sync scheduler.
func (a *App) Scheduler() *syncer.Scheduler {
	return a.scheduler
}

// Repository returns the store the application writes to.
func (a *App) Repository() store.Repository {
	return a.repo
}

func (a *App) setupRouter(incidentService *incidents.Service, dataSourceService *datasources.Service) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)
	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		_, _ = w.Write(openapi.Spec)
	})

	incidentsHandler := incidents.NewHandler(incidentService)
	dataSourcesHandler := datasources.NewHandler(dataSourceService)
	syncHandler := syncer.NewHandler(a.scheduler)

	r.Route("/api/v1", func(r chi.Router) {
		// Long-lived websocket connections stay outside the request timeout.
		r.Get("/events", a.hub.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			incidentsHandler.RegisterRoutes(r)
			dataSourcesHandler.RegisterRoutes(r)
			syncHandler.RegisterRoutes(r)

			r.Route("/admin", func(r chi.Router) {
				r.Use(httputil.AuthMiddleware(a.auth))
				r.Use(httputil.RequireRole(domain.RoleAdmin))

				syncHandler.RegisterAdminRoutes(r)
				dataSourcesHandler.RegisterAdminRoutes(r)
			})
		})
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.repo.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
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

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
