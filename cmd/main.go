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

	"github.com/redis/go-redis/v9"

	"github.com/okian/crmscore/internal/adapters/dataset"
	"github.com/okian/crmscore/internal/adapters/http/api"
	"github.com/okian/crmscore/internal/adapters/http/swagger"
	app "github.com/okian/crmscore/internal/app"
	"github.com/okian/crmscore/internal/config"
	"github.com/okian/crmscore/internal/domain/dedupe"
	"github.com/okian/crmscore/pkg/logger"
	"github.com/okian/crmscore/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
	redisPingTimeout       = 3 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "crmscore exited with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the service from cfg and serves HTTP until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	configureLogging(ctx, cfg)
	log := logger.Get()

	if !metrics.Init(metricsOptions(cfg)...) {
		log.Warn(ctx, "metrics already initialized; namespace and labels from config ignored")
	}

	deduper, closeDeduper, err := newDeduper(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDeduper()

	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.EventQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithDeduper(deduper),
	)

	if cfg.SeedFile != "" {
		ds, err := dataset.LoadFile(cfg.SeedFile)
		if err != nil {
			return fmt.Errorf("seed file: %w", err)
		}
		if err := svc.LoadDataset(ctx, ds); err != nil {
			return fmt.Errorf("seed file: %w", err)
		}
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(stopCtx, "service stop failed", logger.Error(err))
		}
	}()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
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
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	log.Info(shutdownCtx, "server stopped")
	return nil
}

// configureLogging applies log_format and log_level, falling back to text
// and info on invalid input.
func configureLogging(ctx context.Context, cfg *config.Config) {
	if err := logger.InitWithFormat(cfg.LogFormat, os.Stdout); err != nil {
		_ = logger.Init()
		logger.Get().Warn(ctx, "invalid log_format; falling back to text", logger.String("log_format", cfg.LogFormat), logger.Error(err))
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
}

// metricsOptions maps the metrics settings of cfg to collector options.
func metricsOptions(cfg *config.Config) []metrics.Option {
	opts := []metrics.Option{
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
	}
	if cfg.MetricsEnv != "" {
		opts = append(opts, metrics.WithConstLabels(map[string]string{"env": cfg.MetricsEnv}))
	}
	return opts
}

// newDeduper builds the configured dedupe backend. The returned func
// releases its resources.
func newDeduper(ctx context.Context, cfg *config.Config) (dedupe.Deduper, func(), error) {
	if cfg.DedupeBackend != config.DedupeRedis {
		return dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize)), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	d := dedupe.NewRedisDeduper(client, dedupe.WithTTL(cfg.DedupeTTL()))

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := d.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis dedupe backend %s: %w", cfg.RedisAddr, err)
	}
	logger.Get().Info(ctx, "using redis dedupe backend", logger.String("addr", cfg.RedisAddr))
	return d, func() { _ = client.Close() }, nil
}

// newMux registers the documentation and business routes.
func newMux(ctx context.Context, cfg *config.Config, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, api.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit)).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater refreshes process metrics until ctx ends.
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

// startServiceMetricsUpdater refreshes service gauges until ctx ends.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	st := svc.Stats(ctx)
	metrics.UpdateQueueSize(st.QueueSize)
	metrics.UpdateRecordCounts(st.Entities, st.Opportunities)
	if d, err := svc.Summary(ctx); err == nil {
		metrics.UpdateWeightedPipelineValue(d.TotalWeightedValue)
	}
}
