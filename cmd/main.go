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

	"github.com/okian/gubs/internal/adapters/http/api"
	"github.com/okian/gubs/internal/adapters/lock"
	"github.com/okian/gubs/internal/adapters/repository"
	app "github.com/okian/gubs/internal/app"
	"github.com/okian/gubs/internal/config"
	"github.com/okian/gubs/internal/domain/model"
	"github.com/okian/gubs/pkg/logger"
	"github.com/okian/gubs/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use fmt for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Metrics are named once, before anything records or serves them.
	metrics.Configure(metricsOptions(cfg)...)

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "gubs exited with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the store, economy and HTTP server and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := openStore(cfg, loggerInstance.Named("store"))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			loggerInstance.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	if err := seedAdmins(ctx, store, cfg.Admins); err != nil {
		return err
	}

	svc, err := newService(cfg, store, loggerInstance)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	apiServer := newAPIServer(cfg, svc, loggerInstance)
	defer apiServer.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.StoreDriver),
			logger.String("strategy", cfg.PurchaseStrategy),
			logger.Bool("metrics", cfg.MetricsEnabled),
			logger.Any("metricsLabels", cfg.MetricsLabels),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
	return nil
}

// metricsOptions maps the metrics_* settings onto the global manager.
func metricsOptions(cfg *config.Config) []metrics.Option {
	return []metrics.Option{
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(cfg.MetricsBuckets),
		metrics.WithRefreshInterval(cfg.MetricsRefreshInterval),
		metrics.WithCustomLabels(cfg.MetricsLabels),
	}
}

// openStore opens the ledger store selected by store_driver.
func openStore(cfg *config.Config, log logger.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return repository.NewMemoryStore(
			repository.WithMaxRetries(cfg.TxMaxRetries),
			repository.WithLogger(log),
		), nil
	case config.DriverBadger:
		store, err := repository.OpenBadger(
			repository.WithPath(cfg.BadgerPath),
			repository.WithInMemory(cfg.BadgerInMemory),
			repository.WithSyncWrites(cfg.BadgerSyncWrites),
			repository.WithMaxRetries(cfg.TxMaxRetries),
			repository.WithLogger(log),
		)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", repository.ErrUnknownDriver, cfg.StoreDriver)
	}
}

// seedAdmins grants admin rights to the configured uids.
func seedAdmins(ctx context.Context, store repository.Store, admins []string) error {
	if len(admins) == 0 {
		return nil
	}
	updates := make(map[string]any, len(admins))
	for _, uid := range admins {
		if !model.ValidSegment(uid) {
			return fmt.Errorf("%w: admin uid %q", config.ErrInvalidConfig, uid)
		}
		updates[model.AdminPath(uid)] = true
	}
	if err := store.Update(ctx, updates); err != nil {
		return fmt.Errorf("seed admins: %w", err)
	}
	return nil
}

// newService builds the economy from cfg.
func newService(cfg *config.Config, store repository.Store, log logger.Logger) (*app.Service, error) {
	cat, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	locker := lock.New(store,
		lock.WithTTL(cfg.LockTTL),
		lock.WithAttempts(cfg.LockAttempts),
		lock.WithBackoff(cfg.LockBackoff),
		lock.WithLogger(log.Named("lock")),
	)
	svc, err := app.New(store,
		app.WithLogger(log.Named("economy")),
		app.WithCatalog(cat),
		app.WithStrategy(app.Strategy(cfg.PurchaseStrategy)),
		app.WithLocker(locker),
		app.WithOfflineRate(cfg.OfflineRate),
		app.WithMaxSyncDelta(cfg.MaxSyncDelta),
		app.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		app.WithAuditQueueSize(cfg.AuditQueueSize),
		app.WithAuditWorkers(cfg.AuditWorkers),
		app.WithRefundRetries(cfg.RefundRetries, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return svc, nil
}

// newAPIServer builds the HTTP surface over svc.
func newAPIServer(cfg *config.Config, svc *app.Service, log logger.Logger) *api.Server {
	return api.NewServer(svc, svc,
		api.WithUIDHeader(cfg.UIDHeader),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		api.WithLogger(log.Named("http")),
	)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
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

// startServiceMetricsUpdater samples the service stats so the audit queue
// gauge stays current between writes.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
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
		// Calculate average GC pause time
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
