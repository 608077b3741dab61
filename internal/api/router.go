// Package api provides the HTTP API for NextStop.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/nextstop/nextstop/internal/api/handler"
	"github.com/nextstop/nextstop/internal/api/middleware"
	"github.com/nextstop/nextstop/internal/auth"
	"github.com/nextstop/nextstop/internal/provider/resilience"
	"github.com/nextstop/nextstop/internal/settings"
	"github.com/nextstop/nextstop/internal/transit"
	"github.com/nextstop/nextstop/internal/watch"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version         string
	BuildTime       string
	Logger          zerolog.Logger
	ServiceName     string
	Metrics         *middleware.Metrics
	AuthService     *auth.Service
	TransitService  *transit.Service
	WatchManager    *watch.Manager
	SettingsService *settings.Service
	Registry        *resilience.Registry

	// Checks are probed by the readiness and status endpoints.
	Checks []handler.DependencyCheck
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "nextstop-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type
	r.Use(middleware.RequireJSON)          // JSON request bodies

	opsConfig := handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Checks:    cfg.Checks,
	}
	if cfg.TransitService != nil {
		opsConfig.Upstream = cfg.TransitService.ProviderName()
	}
	if cfg.WatchManager != nil {
		opsConfig.Watches = cfg.WatchManager
	}
	opsHandler := handler.NewOpsHandler(opsConfig)
	authHandler := handler.NewAuthHandler(cfg.AuthService, cfg.Logger)
	transitHandler := handler.NewTransitHandler(cfg.TransitService, cfg.Logger)
	watchHandler := handler.NewWatchHandler(cfg.WatchManager, cfg.SettingsService, cfg.Logger)
	settingsHandler := handler.NewSettingsHandler(cfg.SettingsService, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.AuthService)

	authRateLimit := middleware.RateLimitByIP(middleware.AuthRateLimit)           // 10 req/min
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min
	deviceRateLimit := middleware.RateLimitByDevice(middleware.StandardRateLimit) // 100 req/min per device

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Use(authRateLimit)
			r.Post("/device", authHandler.RegisterDevice)
		})

		// Public timetable endpoints
		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/stops/{stopId}/departures", transitHandler.Departures)
			r.Get("/runs/{runRef}/pattern", transitHandler.Pattern)
			r.Get("/disruptions", transitHandler.Disruptions)
		})
		r.With(expensiveRateLimit).Get("/search", transitHandler.Search)

		r.Route("/watches", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(deviceRateLimit)
			r.Post("/", watchHandler.CreateWatch)
			r.Route("/{watchId}", func(r chi.Router) {
				r.Get("/", watchHandler.GetWatch)
				r.Put("/visibility", watchHandler.SetVisibility)
				r.Delete("/", watchHandler.DeleteWatch)
			})
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(authMiddleware)

			// The event stream is long-lived and not counted against the limit.
			r.Get("/settings/events", settingsHandler.Events)

			r.Group(func(r chi.Router) {
				r.Use(deviceRateLimit)
				r.Get("/settings", settingsHandler.ListSettings)
				r.Put("/settings/{key}", settingsHandler.PutSetting)
				r.Delete("/settings/{key}", settingsHandler.DeleteSetting)

				r.Get("/recents/{list}", settingsHandler.ListRecents)
				r.Post("/recents/{list}", settingsHandler.PushRecent)
				r.Delete("/recents/{list}", settingsHandler.ClearRecents)
			})
		})
	})

	return r
}
