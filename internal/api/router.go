package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/a2abus-protocol/a2abus/internal/api/middleware"
	"github.com/a2abus-protocol/a2abus/internal/config"
	"github.com/a2abus-protocol/a2abus/internal/handlers"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, h *handlers.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - allow all origins (agents call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-A2A-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no key required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// WebSocket endpoint carrying the client session protocol
	r.Get("/ws", h.WebSocket)

	// Keyed routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKey(cfg.APIKeys))

		r.Post("/messages", h.SendMessage)
		r.Post("/messages/broadcast", h.Broadcast)
		r.Post("/messages/{id}/read", h.MarkRead)
		r.Post("/messages/{id}/ack", h.Acknowledge)
		r.Post("/requests", h.SendRequest)
		r.Post("/responses", h.SendResponse)

		r.Get("/inbox/{agent}", h.GetInbox)

		r.Post("/conversations", h.CreateConversation)
		r.Get("/conversations/{id}", h.GetConversation)
		r.Get("/agents/{id}/conversations", h.GetActiveConversations)
		r.Get("/agents/{id}/stats", h.AgentStats)

		r.Get("/stats", h.Stats)
	})

	return r
}
