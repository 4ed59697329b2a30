// Package main provides the publishing dispatcher entry point: the dispatch
// poller, the worker pool, and the status API in one process.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/publish-dispatcher/internal/adapter"
	"github.com/publish-dispatcher/internal/api"
	"github.com/publish-dispatcher/internal/circuitbreaker"
	"github.com/publish-dispatcher/internal/config"
	"github.com/publish-dispatcher/internal/credentials"
	"github.com/publish-dispatcher/internal/dispatcher"
	"github.com/publish-dispatcher/internal/logging"
	"github.com/publish-dispatcher/internal/notify"
	"github.com/publish-dispatcher/internal/processor"
	"github.com/publish-dispatcher/internal/ratelimit"
	"github.com/publish-dispatcher/internal/retry"
	"github.com/publish-dispatcher/internal/storage"
	"github.com/publish-dispatcher/internal/types"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Global().Fatalf("Failed to load configuration: %v", err)
	}

	logging.Init(logging.ParseLevel(cfg.Logging.Level), logging.Format(cfg.Logging.Format))
	log := logging.WithComponent("main")

	log.Info("Publish dispatcher starting...")

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	// Connect to ClickHouse
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer clickhouse.Close()

	// Connect to Redis
	redis, err := storage.NewRedisStore(&cfg.Database.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	log.Info("Database connections established")

	// Initialize repositories
	jobRepo := storage.NewJobRepository(postgres)
	resultRepo := storage.NewPublishResultRepository(clickhouse)
	accountRepo := storage.NewAccountRepository(postgres)

	// Rate limit tracker with per-platform default pacing
	limits := make(map[types.Platform]ratelimit.LimitConfig)
	for name, platformCfg := range cfg.Platforms.Platforms {
		limits[types.Platform(name)] = ratelimit.LimitConfig{
			RPS:   platformCfg.DefaultRPS,
			Burst: platformCfg.DefaultBurst,
		}
	}
	tracker := ratelimit.NewTracker(limits)

	// Circuit breakers, one per platform
	breakers := circuitbreaker.NewManager(cfg.Breaker.FailureThreshold, cfg.Breaker.RecoveryTimeout)

	// Platform publishers, each behind the shared guard stack
	httpClient := &http.Client{Timeout: cfg.Dispatcher.CallTimeout}
	registry := adapter.NewRegistry()
	for _, name := range cfg.Platforms.Enabled {
		platformCfg, ok := cfg.Platforms.Platforms[name]
		if !ok || platformCfg.APIBaseURL == "" {
			log.WithField("platform", name).Warn("Skipping platform: no API base URL configured")
			continue
		}

		var publisher adapter.Publisher
		switch types.Platform(name) {
		case types.PlatformTwitter:
			publisher = adapter.NewTwitterPublisher(platformCfg.APIBaseURL, httpClient, tracker)
		case types.PlatformLinkedIn:
			publisher = adapter.NewLinkedInPublisher(platformCfg.APIBaseURL, httpClient, tracker)
		case types.PlatformFacebook:
			publisher = adapter.NewFacebookPublisher(platformCfg.APIBaseURL, httpClient, tracker)
		case types.PlatformInstagram:
			publisher = adapter.NewInstagramPublisher(platformCfg.APIBaseURL, httpClient, tracker)
		default:
			log.WithField("platform", name).Warn("Skipping unknown platform")
			continue
		}

		registry.Register(adapter.NewGuardedPublisher(publisher, breakers, tracker, cfg.Dispatcher.CallTimeout))
		log.WithField("platform", name).Info("Platform publisher initialized")
	}

	if len(registry.Platforms()) == 0 {
		log.Fatal("No platform publishers enabled. Please configure at least one platform.")
	}

	// Retry policy shared by every job
	policy := retry.NewPolicy(&retry.Config{
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Multiplier:  cfg.Retry.Multiplier,
		MaxAttempts: cfg.Retry.MaxAttempts,
	})

	notifier := notify.NewRedisNotifier(redis.Client())
	provider := credentials.NewStoreProvider(accountRepo)

	proc := processor.New(jobRepo, resultRepo, provider, registry, policy, notifier, redis)

	poller, err := dispatcher.NewPoller(jobRepo, proc, &dispatcher.Config{
		PollInterval: cfg.Dispatcher.PollInterval,
		BatchSize:    cfg.Dispatcher.BatchSize,
		Concurrency:  cfg.Dispatcher.Concurrency,
		ClaimLease:   cfg.Dispatcher.ClaimLease,
	})
	if err != nil {
		log.Fatalf("Failed to create poller: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := poller.Start(ctx); err != nil {
		log.Fatalf("Failed to start poller: %v", err)
	}

	// Status API
	server := api.NewServer(&api.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, jobRepo, resultRepo, breakers, tracker, poller)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("API server shutdown error")
	}
	if err := poller.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("Poller shutdown error")
	}
	cancel()

	log.Info("Publish dispatcher stopped")
}
