package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/locolive/socialgraph/internal/auth"
	"github.com/locolive/socialgraph/internal/metrics"
	"github.com/locolive/socialgraph/internal/middleware"
)

// RouterConfig carries the HTTP-level settings of the router
type RouterConfig struct {
	AllowedOrigins    []string
	RequestsPerMinute int
	// UploadsDir serves locally stored media under /uploads when set
	UploadsDir string
}

// Router holds all handlers and creates the chi router
type Router struct {
	userHandler       *UserHandler
	graphHandler      *GraphHandler
	connectionHandler *ConnectionHandler
	healthHandler     *HealthHandler
	verifiers         []auth.TokenVerifier
	identity          middleware.Hydrator
	cfg               RouterConfig
	logger            *zap.Logger
}

// NewRouter creates a new router
func NewRouter(
	userHandler *UserHandler,
	graphHandler *GraphHandler,
	connectionHandler *ConnectionHandler,
	healthHandler *HealthHandler,
	identity middleware.Hydrator,
	verifiers []auth.TokenVerifier,
	cfg RouterConfig,
	logger *zap.Logger,
) *Router {
	return &Router{
		userHandler:       userHandler,
		graphHandler:      graphHandler,
		connectionHandler: connectionHandler,
		healthHandler:     healthHandler,
		verifiers:         verifiers,
		identity:          identity,
		cfg:               cfg,
		logger:            logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.LoggingMiddleware(rt.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.CORSMiddleware(rt.cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", rt.healthHandler.Health)
		r.Get("/ready", rt.healthHandler.Ready)
		r.Get("/live", rt.healthHandler.Live)
	})
	r.Handle("/metrics", metrics.Handler())

	if rt.cfg.UploadsDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(rt.cfg.UploadsDir))))
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitMiddleware(rt.cfg.RequestsPerMinute, time.Minute))
		r.Use(middleware.AuthMiddleware(rt.verifiers...))
		r.Use(middleware.HydrationMiddleware(rt.identity, rt.logger))

		r.Get("/me", rt.userHandler.Me)
		r.Put("/me", rt.userHandler.UpdateMe)

		r.Route("/users", func(r chi.Router) {
			r.Get("/search", rt.userHandler.Search)
			r.Get("/{id}/profile", rt.userHandler.Profile)
			r.Post("/{id}/follow", rt.graphHandler.Follow)
			r.Delete("/{id}/follow", rt.graphHandler.Unfollow)
		})

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", rt.connectionHandler.GetConnections)
			r.Post("/requests", rt.connectionHandler.SendRequest)
			r.Post("/requests/{requesterID}/accept", rt.connectionHandler.AcceptRequest)
		})
	})

	return r
}
