package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benchwork/procurement-bridge/internal/api"
	"github.com/benchwork/procurement-bridge/internal/automation"
	"github.com/benchwork/procurement-bridge/internal/cache"
	"github.com/benchwork/procurement-bridge/internal/config"
	"github.com/benchwork/procurement-bridge/internal/matching"
	"github.com/benchwork/procurement-bridge/internal/metrics"
	"github.com/benchwork/procurement-bridge/internal/repo"
	"github.com/benchwork/procurement-bridge/internal/services"
	"github.com/benchwork/procurement-bridge/internal/transport"
	"github.com/benchwork/procurement-bridge/internal/utils"
)

func main() {
	var configPath, weightsPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&weightsPath, "match-weights", "", "Optional YAML file overriding matching weights")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting procurement-bridge",
		slog.String("address", cfg.Server.Address),
		slog.String("base_url", cfg.Service.BaseURL),
		slog.Bool("enabled", cfg.Service.Enabled),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider := newCacheProvider(ctx, cfg.Cache, logger)
	defer provider.Close()
	layer := cache.NewLayer(provider, cfg.Cache.TTL, cfg.Cache.TTLs, time.Now, utils.Component(logger, "cache"))

	httpClient := transport.NewClient(transport.Options{
		Timeout:           cfg.Transport.Timeout,
		MaxRetries:        cfg.Transport.MaxRetries,
		Backoff:           cfg.Transport.Backoff,
		MaxWorkers:        max(cfg.Service.MaxWorkers, cfg.Service.EffectiveInventoryWorkers()),
		RequestsPerSecond: cfg.Transport.RequestsPerSecond,
		Burst:             cfg.Transport.Burst,
		Logger:            utils.Component(logger, "transport"),
	})
	client := repo.NewProcurementClient(cfg.Service, httpClient, layer, utils.Component(logger, "repo"))

	engine, err := matching.LoadEngine(weightsPath, utils.Component(logger, "matching"))
	if err != nil {
		logger.Error("failed to load matching weights", slog.Any("error", err))
		os.Exit(1)
	}

	var runner automation.Runner
	if cfg.Automation.Endpoint != "" {
		handler := automation.NewRemoteHandler(cfg.Automation.Endpoint, &http.Client{Timeout: 30 * time.Second}, cfg.Automation.PollInterval, utils.Component(logger, "automation"))
		queue := automation.NewQueue(handler, automation.QueueOptions{
			Workers:    cfg.Automation.Workers,
			Size:       cfg.Automation.QueueSize,
			JobTimeout: cfg.Automation.JobTimeout,
		}, utils.Component(logger, "automation"))
		defer queue.Close()
		runner = queue
	} else {
		logger.Info("automation endpoint not configured; failed writes will not be handed off")
	}

	bridge := services.NewBridgeService(utils.Component(logger, "service"), client, engine, runner)

	server, err := api.NewServer(cfg.Server, cfg.Server.WarmInterval <= 0)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
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

	if cfg.Server.WarmInterval > 0 {
		go warmLoop(ctx, bridge, server, cfg.Server.WarmInterval, logger)
	}

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

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("procurement-bridge stopped")
}

func newCacheProvider(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	switch cfg.Backend {
	case "none", "off":
		return cache.NoopProvider{}
	case "redis":
		provider, err := cache.NewRedisProvider(ctx, cache.RedisConfig{URL: cfg.RedisURL, KeyPrefix: cfg.KeyPrefix})
		if err != nil {
			logger.Warn("redis cache unavailable, falling back to memory", slog.Any("error", err))
			return cache.NewMemoryProvider(time.Now)
		}
		return provider
	default:
		return cache.NewMemoryProvider(time.Now)
	}
}

// warmLoop re-primes discovery and caches on an interval. Health flips to
// SERVING after the first success.
func warmLoop(ctx context.Context, bridge *services.BridgeService, server *api.Server, interval time.Duration, logger *slog.Logger) {
	warm := func() {
		warmCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		if err := bridge.Warm(warmCtx); err != nil {
			logger.Warn("warm-up failed", slog.Any("error", err))
			return
		}
		server.SetReady(true)
	}

	warm()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			warm()
		}
	}
}
