package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alex-user-go/hutavail/internal/availability"
	"github.com/alex-user-go/hutavail/internal/availability/cache"
	"github.com/alex-user-go/hutavail/internal/availability/ratelimit"
	"github.com/alex-user-go/hutavail/internal/config"
	"github.com/alex-user-go/hutavail/internal/daily"
	"github.com/alex-user-go/hutavail/internal/handler"
	"github.com/alex-user-go/hutavail/internal/logging"
	"github.com/alex-user-go/hutavail/internal/middleware"
	"github.com/alex-user-go/hutavail/internal/obs"
	"github.com/alex-user-go/hutavail/internal/providers"
	"github.com/alex-user-go/hutavail/internal/providers/suedtirol"
	"github.com/alex-user-go/hutavail/internal/roster"
)

// App holds the wired components of the service.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *obs.Metrics

	Roster   *roster.Roster
	Registry *providers.Registry
	Service  *availability.Service

	cache   *cache.Cache
	limiter *ratelimit.Keyed
}

// NewRegistry creates a Registry with every supported booking system registered.
func NewRegistry(cfg config.Config, metrics *obs.Metrics, logger *slog.Logger) *providers.Registry {
	registry := providers.NewRegistry(cfg.Providers)
	registry.Register(suedtirol.BookingType, suedtirol.Factory(metrics, logger))
	return registry
}

// New wires the service from cfg. Huts whose booking system is not supported are skipped.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	metrics := obs.NewMetrics(nil)
	registry := NewRegistry(cfg, metrics, logger)

	all, err := roster.Load(cfg.RosterPath)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	huts := all.Filter(registry.Types()...)
	if skipped := all.Len() - huts.Len(); skipped > 0 {
		logger.Warn("skipping huts with unsupported booking systems",
			"skipped", skipped,
			"supported", registry.Types(),
		)
	}

	resultCache := cache.NewCache(cfg.CacheTTL)

	return &App{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		Roster:   huts,
		Registry: registry,
		Service:  availability.NewService(huts, registry, resultCache, metrics, logger),
		cache:    resultCache,
		limiter:  ratelimit.NewKeyed(cfg.RequestLimit.MaxCalls, cfg.RequestLimit.Period),
	}, nil
}

// Close releases background goroutines.
func (a *App) Close() {
	a.cache.Close()
	a.limiter.Close()
}

// Runner returns a daily Runner over the service.
func (a *App) Runner() *daily.Runner {
	return daily.NewRunner(a.Service, a.cfg.Concurrency, a.logger)
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	h := handler.New(a.Service, a.limiter, a.cfg.MaxRangeDays, a.logger)

	r := chi.NewRouter()
	r.Use(middleware.Logging(a.logger, a.metrics))
	h.Routes(r)
	r.Get("/healthz", obs.HealthHandler(a.logger))
	r.Method(http.MethodGet, "/metrics", a.metrics.MetricsHandler())
	return r
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully.
func (a *App) Serve(ctx context.Context) error {
	// WriteTimeout covers aggregations blocked on upstream rate limits.
	srv := &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      a.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", "addr", srv.Addr, "huts", a.Roster.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", "error", err)
		return err
	}

	a.logger.Info("server stopped")
	return nil
}

// Run loads configuration from the environment and serves until SIGINT or SIGTERM.
func Run() error {
	cfg, err := config.Load(os.Getenv("HUTAVAIL_CONFIG"))
	if err != nil {
		return err
	}

	logger := logging.New("hutavail", cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	a, err := New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.Serve(ctx)
}
