package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"chatguard-lab/internal/api/handlers"
	apimiddleware "chatguard-lab/internal/api/middleware"
	"chatguard-lab/internal/config"
	"chatguard-lab/internal/infrastructure/cache"
	"chatguard-lab/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	cache    *cache.RedisCache
	logger   *logger.Logger
}

// NewRouter creates a new Router instance
func NewRouter(cfg config.Config, h *handlers.Handlers, c *cache.RedisCache, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		cache:    c,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	// Rate limiting
	if r.config.RateLimit.Enabled && r.cache != nil {
		router.Use(apimiddleware.RateLimiter(r.cache, r.config.RateLimit))
	}

	// Health checks
	router.Get("/health", r.handlers.Health.Check)
	router.Get("/ready", r.handlers.Health.Ready)

	router.Route("/api/v1", func(api chi.Router) {
		// Chunked upload sessions
		api.Route("/uploads", func(uploads chi.Router) {
			uploads.Post("/", r.handlers.Uploads.Initialize)
			uploads.Post("/{id}/chunks/{index}", r.handlers.Uploads.UploadChunk)
			uploads.Post("/{id}/complete", r.handlers.Uploads.Complete)
			uploads.Delete("/{id}", r.handlers.Uploads.Cancel)
			uploads.Get("/{id}/progress", r.handlers.Uploads.Progress)
		})

		// Imports
		api.Route("/imports", func(imports chi.Router) {
			imports.Get("/", r.handlers.Imports.List)
			imports.Get("/{id}/status", r.handlers.Imports.Status)
			imports.Get("/{id}/results", r.handlers.Imports.Results)
			imports.Get("/{id}/events", r.handlers.Stream.Events)
			imports.Delete("/{id}", r.handlers.Imports.Delete)
		})

		api.Get("/streaming/stats", r.handlers.Stream.Stats)
	})

	return router
}
