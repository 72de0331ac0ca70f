package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"emicli/internal/config"
	"emicli/internal/dataprocessing"
	"emicli/internal/errors"
	"emicli/internal/fetch"
	"emicli/internal/infrastructure"
	customMiddleware "emicli/internal/middleware"
	"emicli/internal/pipeline"
	"emicli/internal/services"
	handlers "emicli/internal/transport/http"
	ws "emicli/internal/websocket"
	"emicli/pkg/contracts"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
)

// AppName is the human-facing product name.
const AppName = "EMI Market Data Toolkit"

// systemMetricsInterval is how often runtime stats are sampled.
const systemMetricsInterval = 30 * time.Second

// Application is the composition root for the web server: configuration,
// observability, the ingestion pipeline, the services over it and the HTTP
// surface, wired once at startup.
type Application struct {
	Config         *config.Config
	Paths          *config.Paths
	Catalog        *config.Catalog
	Router         *chi.Mux
	Server         *http.Server
	WebSocketHub   *ws.Hub
	RunStore       *pipeline.RunStore
	DataService    *services.DataService
	RefreshService *services.RefreshService
	HealthService  *services.HealthService
	Logger         *slog.Logger
	OTelProviders  *infrastructure.OTelProviders
	Metrics        *infrastructure.PipelineMetrics

	otelMiddleware *customMiddleware.OTelMiddleware
	collector      *infrastructure.SystemMetricsCollector
	collectorStop  context.CancelFunc
}

// NewApplication loads configuration from the environment and builds a
// ready-to-run application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", contracts.Version))

	paths, err := config.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution()

	catalog, err := config.LoadCatalog(cfg.GetSourcesFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load source catalog: %w", err)
	}

	return newApplication(cfg, paths, catalog, logger)
}

// newApplication wires an application from already-resolved inputs. Tests
// use it directly so they can point paths at a temp directory.
func newApplication(cfg *config.Config, paths *config.Paths, catalog *config.Catalog, logger *slog.Logger) (*Application, error) {
	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	otelMiddleware, err := customMiddleware.NewOTelMiddleware(otelProviders)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenTelemetry middleware: %w", err)
	}

	collector, err := infrastructure.NewSystemMetricsCollector(otelProviders.Meter, systemMetricsInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to create system metrics collector: %w", err)
	}

	app := &Application{
		Config:         cfg,
		Paths:          paths,
		Catalog:        catalog,
		Logger:         logger,
		OTelProviders:  otelProviders,
		Metrics:        otelMiddleware.Metrics(),
		otelMiddleware: otelMiddleware,
		collector:      collector,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the pipeline and the services over it, bottom up.
func (a *Application) initializeServices() error {
	hub := ws.NewHub(a.Logger)
	hub.Start()
	a.WebSocketHub = hub

	fetcher := fetch.NewFetcher(fetch.Config{
		Timeout:        a.Config.Pipeline.FetchTimeout,
		RateLimitRPS:   a.Config.Pipeline.RateLimitRPS,
		RateLimitBurst: a.Config.Pipeline.RateLimitBurst,
		UserAgent:      a.Config.Pipeline.UserAgent,
		MaxParallel:    a.Config.Pipeline.MaxParallel,
	}, a.Logger)

	// The artifact cache short-circuits reruns over unchanged sources.
	var cache fetch.Cache
	if a.Config.Pipeline.CacheEnabled {
		cache = fetch.NewFileCache(a.Paths.CacheDir, a.Logger)
	}

	reducer, err := dataprocessing.ParseReducer(a.Config.Pipeline.AggregateReduce)
	if err != nil {
		return fmt.Errorf("invalid aggregate reducer %q: %w", a.Config.Pipeline.AggregateReduce, err)
	}

	pipe := pipeline.New(pipeline.Dependencies{
		Fetcher:    fetcher,
		Cache:      cache,
		Aggregator: dataprocessing.NewAggregator(reducer, a.Logger),
		Metrics:    a.Metrics,
		Reporter:   ws.NewRefreshBroadcaster(hub, a.Logger),
		Logger:     a.Logger,
	})

	store := pipeline.NewRunStore(0)
	a.RunStore = store

	a.DataService = services.NewDataService(store, a.Paths, a.Logger)

	a.RefreshService = services.NewRefreshService(services.RefreshOptions{
		Pipeline:   pipe,
		Store:      store,
		Catalog:    a.Catalog,
		Paths:      a.Paths,
		RunTimeout: a.Config.Pipeline.RunTimeout,
		Logger:     a.Logger,
	})

	a.HealthService = services.NewHealthService(a.Paths, store, a.RefreshService, hub, a.Logger)

	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Minimal middleware that is safe for WebSocket upgrades: nothing here
	// wraps the ResponseWriter. Chi's RequestID feeds GetReqID in the
	// handlers; ours mints the uuid, echoes X-Request-ID and seeds the
	// trace id.
	r.Use(middleware.RequestID)
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	// WebSocket route with tracing only; registered before the full group
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).HandleFunc("/ws", a.handleWebSocket)

	// Everything else gets the full middleware chain
	r.Group(func(r chi.Router) {
		r.Use(a.otelMiddleware.Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)

		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.getCORSConfig()))
		}

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
		a.setupWebRoutes(r)
	})

	// Prometheus scrape endpoint stays outside the middleware group
	metricsHandler := handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, a.collector, a.Logger)
	r.Get("/metrics", metricsHandler.Prometheus)

	a.Router = r
}

// setupAPIRoutes configures the /api surface
func (a *Application) setupAPIRoutes(r chi.Router) {
	errorHandler := errors.NewErrorHandler(a.Logger, false)
	validation := customMiddleware.NewValidationMiddleware(a.Logger, errorHandler)
	metricsHandler := handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, a.collector, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))
		r.Use(customMiddleware.ContentTypeValidator("application/json"))
		r.Use(validation.ValidateRequest)

		healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
		r.Mount("/health", healthHandler.Routes())
		r.Get("/version", healthHandler.Version)

		r.Get("/metrics", metricsHandler.SystemStats)
		r.Post("/client-logs", handlers.NewClientLogHandler(a.Logger).Handle)

		// Series, aggregates, diagnostics, refresh and exports live at the
		// /api root; static segments win over the data handler's wildcards.
		dataHandler := handlers.NewDataHandler(a.DataService, a.RefreshService, a.Logger, errorHandler)
		r.Mount("/", dataHandler.Routes())
	})
}

// setupWebRoutes serves the dashboard and its static assets
func (a *Application) setupWebRoutes(r chi.Router) {
	r.Route("/static", func(r chi.Router) {
		r.Use(customMiddleware.Compress(5))
		r.Handle("/*", http.StripPrefix("/static", http.FileServer(http.Dir(a.Paths.StaticDir))))
	})

	r.Get("/", handlers.ServeDashboard(a.Paths.WebDir))
}

// getCORSConfig returns CORS configuration from the security settings
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	origins := a.Config.Security.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)}
	}

	return customMiddleware.CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
		Logger:         a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the server, the scheduler and the background collectors.
// Server errors cancel the supplied context so Run can unwind.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	a.Logger.InfoContext(ctx, "Application paths",
		slog.String("executable_dir", a.Paths.ExecutableDir),
		slog.String("data_dir", a.Paths.DataDir),
		slog.String("reports_dir", a.Paths.ReportsDir),
		slog.String("logs_dir", a.Paths.LogsDir),
		slog.String("sources_file", a.Paths.SourcesFile))

	if err := a.RefreshService.StartScheduler(a.Config.Scheduler); err != nil {
		return fmt.Errorf("failed to start refresh scheduler: %w", err)
	}

	collectorCtx, collectorStop := context.WithCancel(context.Background())
	a.collectorStop = collectorStop
	go a.collector.Start(collectorCtx)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))

	go a.openDashboard(ctx)

	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	a.RefreshService.StopScheduler()
	a.WebSocketHub.Stop()

	if a.collectorStop != nil {
		a.collectorStop()
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}

// handleWebSocket upgrades dashboard connections and attaches them to the hub
func (a *Application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	a.Logger.InfoContext(ctx, "WebSocket upgrade request",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("origin", r.Header.Get("Origin")))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  a.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: a.Config.WebSocket.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Same-origin and non-browser clients send no Origin header
			if origin == "" {
				return true
			}
			for _, allowed := range a.Config.Security.AllowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			a.Logger.WarnContext(ctx, "WebSocket origin rejected",
				slog.String("origin", origin))
			return false
		},
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			a.Logger.ErrorContext(ctx, "WebSocket upgrade error",
				slog.Int("status", status),
				slog.String("reason", reason.Error()))
			http.Error(w, http.StatusText(status), status)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.ErrorContext(ctx, "WebSocket upgrade failed",
			slog.String("error", err.Error()))
		return
	}

	client := ws.NewClientWithTrace(a.WebSocketHub, conn, traceID, a.Logger)
	a.WebSocketHub.Register(client)

	a.Logger.InfoContext(ctx, "WebSocket client connected",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("trace_id", traceID))

	go client.WritePump()
	go client.ReadPump()
}

// performStartupHealthCheck verifies the data directories are writable
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	dirs := []struct {
		name string
		path string
	}{
		{"sources", a.Paths.SourcesDir},
		{"downloads", a.Paths.DownloadsDir},
		{"cache", a.Paths.CacheDir},
		{"snapshots", a.Paths.SnapshotsDir},
		{"reports", a.Paths.ReportsDir},
		{"logs", a.Paths.LogsDir},
	}

	var warnings []string
	for _, d := range dirs {
		probe := filepath.Join(d.path, ".writable")
		if err := os.WriteFile(probe, nil, 0o644); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s directory not writable: %s", d.name, d.path))
			continue
		}
		os.Remove(probe)
	}

	if len(warnings) > 0 {
		return fmt.Errorf("startup health check warnings: %s", strings.Join(warnings, "; "))
	}

	a.Logger.InfoContext(ctx, "Startup health check passed")
	return nil
}

// openDashboard opens the browser once the server answers health checks.
// Failures only log; headless environments use the printed URL.
func (a *Application) openDashboard(ctx context.Context) {
	url := fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)
	healthURL := url + "/api/health"

	for i := 0; i < 10; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		resp, err := http.Get(healthURL)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				if err := openBrowser(url); err != nil {
					a.Logger.InfoContext(ctx, "Could not open browser; dashboard is ready",
						slog.String("url", url))
				}
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// openBrowser opens the default browser to the given URL
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "windows":
		return exec.Command("cmd", "/c", "start", "", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
