package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/koperasi/anomaly-engine/internal/api"
	"github.com/koperasi/anomaly-engine/internal/cache"
	"github.com/koperasi/anomaly-engine/internal/config"
	"github.com/koperasi/anomaly-engine/internal/digest"
	"github.com/koperasi/anomaly-engine/internal/engine"
	"github.com/koperasi/anomaly-engine/internal/metrics"
	"github.com/koperasi/anomaly-engine/internal/repo"
	"github.com/koperasi/anomaly-engine/internal/services"
	"github.com/koperasi/anomaly-engine/internal/thresholds"
	"github.com/koperasi/anomaly-engine/internal/utils"
	"github.com/koperasi/anomaly-engine/internal/watch"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	if err := run(configPath); err != nil {
		slog.Error("koperasi anomaly engine failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// run boots the engine and blocks until SIGINT or SIGTERM. Deferred closes run on every
// return path.
func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting koperasi anomaly engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	var valkeyCloser cache.Provider
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			KeyPrefix:    cfg.Cache.KeyPrefix,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			valkeyCloser = provider
		}
	}
	if valkeyCloser != nil {
		defer valkeyCloser.Close()
	}

	thresholdStore := thresholds.NewStore()
	if _, err := thresholds.LoadFile(cfg.Thresholds.Path, thresholdStore, logger); err != nil {
		return fmt.Errorf("load thresholds %s: %w", cfg.Thresholds.Path, err)
	}

	var alertStore *repo.AlertStore
	if cfg.Store.Enabled {
		if dir := filepath.Dir(cfg.Store.Path); dir != "." && cfg.Store.Path != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create store directory %s: %w", dir, err)
			}
		}
		alertStore, err = repo.NewAlertStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open alert store: %w", err)
		}
		defer func() {
			if err := alertStore.Close(); err != nil {
				logger.Warn("alert store close", slog.Any("error", err))
			}
		}()

		persisted, err := alertStore.LoadThresholds(context.Background())
		if err != nil {
			return fmt.Errorf("load persisted thresholds: %w", err)
		}
		for metric, threshold := range persisted {
			thresholdStore.Set(metric, threshold)
		}
	}

	var history engine.AlertHistory
	if cfg.Cache.SharedCooldown && valkeyCloser != nil {
		history = engine.NewCacheHistory(cacheProvider)
	}

	detector, err := engine.NewDetector(logger, engine.Config{
		ZScoreThreshold:      cfg.Detection.ZScoreThreshold,
		IQRMultiplier:        cfg.Detection.IQRMultiplier,
		TrendChangeThreshold: cfg.Detection.TrendChangeThreshold,
		MinDataPoints:        cfg.Detection.MinDataPoints,
		AlertCooldown:        cfg.Detection.AlertCooldown,
	}, thresholdStore, history, nil)
	if err != nil {
		return fmt.Errorf("create detector: %w", err)
	}

	// Keep nil interfaces nil when the store is disabled.
	var (
		alertRepo services.AlertRepository
		digests   services.DigestBuilder
	)
	if alertStore != nil {
		services.RecordAlerts(detector, alertStore, 2*time.Second)
		alertRepo = alertStore
		digests = digest.NewBuilder(logger, alertStore)
	}

	anomalyService := services.NewAnomalyService(logger, detector, alertRepo, digests, nil)

	server, err := api.NewServer(cfg.Server, anomalyService)
	if err != nil {
		return fmt.Errorf("create gRPC server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(cfg.Watch.Jobs) > 0 {
		ledger := repo.NewLedgerClient(repo.LedgerClientConfig{
			BaseURL:        cfg.Ledger.BaseURL,
			SeriesPath:     cfg.Ledger.SeriesPath,
			Timeout:        cfg.Ledger.Timeout,
			MaxRetries:     cfg.Ledger.MaxRetries,
			InitialBackoff: cfg.Ledger.InitialBackoff,
			SeriesTTL:      cfg.Cache.SeriesTTL,
		}, cacheProvider, logger)

		jobs := make([]watch.Job, 0, len(cfg.Watch.Jobs))
		for _, job := range cfg.Watch.Jobs {
			jobs = append(jobs, watch.Job{Metric: job.Metric, Interval: job.Interval, Lookback: job.Lookback})
		}
		scheduler := watch.NewScheduler(logger, nil, ledger, detector, jobs)
		go func() {
			if err := scheduler.Run(ctx); err != nil {
				logger.Error("watch scheduler exited", slog.Any("error", err))
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("koperasi anomaly engine stopped")
	return nil
}
