// Package main provides the entrypoint for the NextStop API server.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/nextstop/nextstop/internal/api"
	"github.com/nextstop/nextstop/internal/api/handler"
	"github.com/nextstop/nextstop/internal/api/middleware"
	"github.com/nextstop/nextstop/internal/auth"
	"github.com/nextstop/nextstop/internal/cache"
	"github.com/nextstop/nextstop/internal/database"
	"github.com/nextstop/nextstop/internal/provider/resilience"
	"github.com/nextstop/nextstop/internal/settings"
	"github.com/nextstop/nextstop/internal/telemetry"
	"github.com/nextstop/nextstop/internal/transit"
	"github.com/nextstop/nextstop/internal/transit/ptv"
	"github.com/nextstop/nextstop/internal/watch"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "nextstop-api"

	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting NextStop API")

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	ctx := context.Background()

	// Initialize OpenTelemetry
	telemetryConfig := telemetry.ConfigFromEnv(serviceName, Version)
	tp, err := telemetry.Init(ctx, telemetryConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryConfig.Enabled {
		log.Info().
			Str("otlp_endpoint", telemetryConfig.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}
	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	var checks []handler.DependencyCheck

	// Cache: Redis when configured, otherwise in-process
	store, closeStore := openCache(ctx, log)
	defer closeStore()
	checks = append(checks, handler.DependencyCheck{Name: "cache", Ping: store.Ping})

	// Upstream timetable client
	ptvConfig, err := ptv.ConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("PTV credentials not configured")
	}

	registry := resilience.NewRegistry()
	httpConfig := resilience.DefaultClientConfig(ptv.ProviderName)
	httpConfig.Registry = registry
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
	log.Info().Str("provider", transitService.ProviderName()).Msg("transit service initialized")

	// Device and preference persistence: Postgres when configured
	var (
		deviceRepo   auth.DeviceRepository = auth.NewInMemoryDeviceRepository()
		settingsRepo settings.Repository   = settings.NewInMemoryRepository()
	)
	if database.Configured() {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().Str("target", dbConfig.Target()).Msg("database connected")

		pgDevices := auth.NewPostgresDeviceRepository(pool)
		pgSettings := settings.NewPostgresRepository(pool)
		err = database.Migrate(ctx, map[string]database.Migrator{
			"devices":  pgDevices,
			"settings": pgSettings,
		}, "devices", "settings")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		deviceRepo, settingsRepo = pgDevices, pgSettings
		checks = append(checks, handler.DependencyCheck{Name: "database", Ping: pool.Ping})
	} else {
		log.Warn().Msg("no database configured - devices and settings are kept in memory")
	}

	// Initialize JWT service (get signing key from environment)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	authService := auth.NewService(auth.ServiceConfig{
		JWTService: auth.NewJWTService(auth.JWTConfig{
			SigningKey: jwtSigningKey,
			Issuer:     envString("JWT_ISSUER", "https://api.nextstop.app"),
			Audience:   envString("JWT_AUDIENCE", "nextstop-api"),
		}),
		Devices: deviceRepo,
		Logger:  log,
	})
	log.Info().Msg("auth service initialized")

	settingsService := settings.NewService(settings.ServiceConfig{
		Repository: settingsRepo,
		Logger:     log,
	})
	log.Info().Msg("settings service initialized")

	// Watch sessions refresh patterns in the background
	watchManager := watch.NewManager(watch.ManagerConfig{
		Source:      transitService,
		Interval:    envDuration("WATCH_INTERVAL", 30*time.Second),
		IdleTTL:     envDuration("WATCH_IDLE_TTL", 10*time.Minute),
		MaxSessions: envInt("WATCH_MAX_SESSIONS", 1000),
		MaxPerOwner: envInt("WATCH_MAX_PER_DEVICE", 5),
		Logger:      log,
	})
	watchManager.Start(ctx)
	log.Info().Msg("watch manager started")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:         Version,
		BuildTime:       BuildTime,
		Logger:          log,
		ServiceName:     serviceName,
		Metrics:         metrics,
		AuthService:     authService,
		TransitService:  transitService,
		WatchManager:    watchManager,
		SettingsService: settingsService,
		Registry:        registry,
		Checks:          checks,
	})

	// No write timeout: the settings event stream stays open. Streams end
	// when the base context is cancelled on shutdown.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancelBase)

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	watchManager.Shutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

// openCache connects to Redis if REDIS_ADDR is set and falls back to memory.
func openCache(ctx context.Context, log zerolog.Logger) (cache.Store, func()) {
	redisConfig, ok, err := cache.RedisConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid redis configuration")
	}
	if !ok {
		log.Info().Msg("REDIS_ADDR not set - using in-memory cache")
		return cache.NewMemoryStore(), func() {}
	}

	store, err := cache.NewRedisStore(ctx, redisConfig)
	if err != nil {
		log.Fatal().Err(err).Str("addr", redisConfig.Addr).Msg("failed to connect to redis")
	}
	log.Info().Str("addr", redisConfig.Addr).Msg("redis cache connected")

	return store, func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis")
		}
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return def
}
