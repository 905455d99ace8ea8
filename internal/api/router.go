// Package api wires the HTTP surface: routing, middleware and the
// Prometheus scrape endpoint.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/srujana-sanaka/tars-chat/internal/api/middleware"
	"github.com/srujana-sanaka/tars-chat/internal/config"
	"github.com/srujana-sanaka/tars-chat/internal/handlers"
	"github.com/srujana-sanaka/tars-chat/internal/notify"
	"github.com/srujana-sanaka/tars-chat/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, db store.DataStore, redisNotifier *notify.RedisNotifier) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting only when Redis is available
	if redisNotifier != nil {
		limiter := middleware.NewRateLimiter(redisNotifier.Client(), logger)
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(db, redisNotifier, cfg.ExclusivePresence())
	auth := middleware.NewAuthMiddleware(cfg.JWTSecret)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Authenticated routes (require a session token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession)

		r.Post("/users/sync", h.SyncProfile)
		r.Post("/users/online", h.SetOnline)
		r.Get("/users", h.ListUsers)

		r.Post("/conversations/direct", h.CreateDirect)
		r.Post("/conversations/group", h.CreateGroup)
		r.Get("/conversations", h.ListConversations)
		r.Get("/conversations/{id}", h.GetConversation)
		r.Post("/conversations/{id}/read", h.MarkRead)
		r.Get("/conversations/{id}/unread", h.GetUnread)

		r.Post("/conversations/{id}/messages", h.SendMessage)
		r.Get("/conversations/{id}/messages", h.ListMessages)
		r.Patch("/messages/{id}", h.EditMessage)
		r.Delete("/messages/{id}", h.DeleteMessage)
		r.Post("/messages/{id}/reactions", h.React)

		r.Post("/conversations/{id}/typing", h.SetTyping)
		r.Get("/conversations/{id}/typing", h.GetTypers)
		r.Get("/typing", h.GetAllTypers)
	})

	return r
}
