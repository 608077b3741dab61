// Package main provides the entrypoint for the NextStop cache warming worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/nextstop/nextstop/internal/cache"
	"github.com/nextstop/nextstop/internal/provider/resilience"
	"github.com/nextstop/nextstop/internal/telemetry"
	"github.com/nextstop/nextstop/internal/transit"
	"github.com/nextstop/nextstop/internal/transit/ptv"
	"github.com/nextstop/nextstop/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "nextstop-worker"

	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting NextStop worker")

	// Worker also exposes health endpoint for Cloud Run
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	// Warming only makes sense against the cache the API reads from.
	redisConfig, ok, err := cache.RedisConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid redis configuration")
	}
	if !ok {
		log.Fatal().Msg("REDIS_ADDR must be set for the worker")
	}
	store, err := cache.NewRedisStore(ctx, redisConfig)
	if err != nil {
		log.Fatal().Err(err).Str("addr", redisConfig.Addr).Msg("failed to connect to redis")
	}
	defer store.Close() //nolint:errcheck // best-effort on exit

	ptvConfig, err := ptv.ConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("PTV credentials not configured")
	}
	httpConfig := resilience.DefaultClientConfig(ptv.ProviderName)
	httpConfig.Observers = []resilience.Observer{providerMetrics}
	httpConfig.Logger = log
	ptvConfig.HTTPClient = resilience.NewClient(httpConfig)
	ptvConfig.Logger = log

	transitService := transit.NewService(transit.ServiceConfig{
		Provider: ptv.NewClient(ptvConfig),
		Cache:    store,
		Metrics:  providerMetrics,
		Logger:   log,
	})

	warmConfig := worker.DefaultWarmConfig()
	if path := os.Getenv("WORKER_CONFIG"); path != "" {
		warmConfig, err = worker.LoadWarmConfig(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to load worker config")
		}
		log.Info().Str("path", path).Int("stops", len(warmConfig.Stops)).Msg("worker config loaded")
	}

	job := worker.NewWarmJob(worker.WarmJobConfig{
		Config: warmConfig,
		Logger: log,
		Warmer: transitService,
	})

	// Create HTTP server for health checks
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "healthy",
			"version": Version,
			"metrics": job.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Jobs arrive over Pub/Sub when configured, otherwise warm on a schedule.
	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	subscription := os.Getenv("PUBSUB_SUBSCRIPTION")

	if projectID != "" && subscription != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: subscription,
			Job:              job,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close() //nolint:errcheck // best-effort on exit

		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
				cancel()
			}
		}()
	} else {
		log.Info().Msg("pubsub not configured - warming on a schedule")
		go job.RunEvery(ctx)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down worker")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
