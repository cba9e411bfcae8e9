package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/accessreg/internal/adapters/http/api"
	"github.com/okian/accessreg/internal/adapters/http/swagger"
	"github.com/okian/accessreg/internal/adapters/repository"
	service "github.com/okian/accessreg/internal/app"
	"github.com/okian/accessreg/internal/config"
	"github.com/okian/accessreg/internal/domain/clock"
	"github.com/okian/accessreg/internal/domain/feedback"
	"github.com/okian/accessreg/internal/domain/model"
	"github.com/okian/accessreg/pkg/logger"
	"github.com/okian/accessreg/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := newService(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		svc.Stop()
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- api.WrapKind("listen", api.ErrServe, err)
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newService opens the configured store and clock and builds the registry.
func newService(ctx context.Context, cfg *config.Config, log logger.Logger) (*service.Service, error) {
	rounding, err := feedback.ParseRounding(cfg.AverageRounding)
	if err != nil {
		return nil, err
	}

	store, err := repository.Open(ctx, cfg.StoreDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	return service.New(
		service.WithStore(store),
		service.WithClock(newClock(cfg)),
		service.WithDeployer(model.Principal(cfg.Deployer)),
		service.WithLogger(log),
		service.WithRatingScale(cfg.RatingMin, cfg.RatingMax),
		service.WithAverageRounding(rounding),
		service.WithExpirationReason(cfg.ExpirationReason),
		service.WithSupersedeOnIssue(cfg.SupersedeOnIssue),
	), nil
}

func newClock(cfg *config.Config) clock.Clock {
	if cfg.ClockMode == config.ClockManual {
		return clock.NewManual(1)
	}
	return clock.NewWall(time.Now(), time.Duration(cfg.BlockIntervalMS)*time.Millisecond)
}

// newHandler registers the API and docs routes behind the identity middleware.
func newHandler(svc *service.Service, log logger.Logger) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(api.Dependencies{
		Facilities:     svc.Facilities(),
		Certifications: svc.Certifications(),
		Improvements:   svc.Improvements(),
		Feedback:       svc.Feedback(),
		Registry:       svc,
		Stats:          svc,
	}).Register(mux)
	return api.IdentityMiddleware(mux, log.Named("http"))
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes the record count gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats(ctx)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
