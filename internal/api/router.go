package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aether-labs/aether/internal/database"
	"github.com/aether-labs/aether/internal/events"
	mw "github.com/aether-labs/aether/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Auth handlers
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc
	Me       http.HandlerFunc

	// Usage handlers
	GetUsage http.HandlerFunc

	// Conversation handlers
	CreateConversation http.HandlerFunc
	ListConversations  http.HandlerFunc
	GetConversation    http.HandlerFunc
	RenameConversation http.HandlerFunc
	DeleteConversation http.HandlerFunc
	ListMessages       http.HandlerFunc
	SendMessage        http.HandlerFunc
	SearchMessages     http.HandlerFunc

	// Insight handlers
	GenerateInsight  http.HandlerFunc
	InsightCooldowns http.HandlerFunc

	// Billing handlers
	BillingCheckout http.HandlerFunc
	BillingPortal   http.HandlerFunc
	BillingWebhook  http.HandlerFunc

	// Audit handlers
	ListAuditLogs http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
	ChatRateLimiter    func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, natsClient *events.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe — always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe — checks DB and NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public) — optionally rate-limited
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter)
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			// Protected auth routes
			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		// Stripe webhook (public; the signature is the authentication)
		r.Post("/billing/webhook", h.BillingWebhook)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Get("/me", h.Me)
			r.Get("/me/usage", h.GetUsage)

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", h.CreateConversation)
				r.Get("/", h.ListConversations)
				r.Post("/search", h.SearchMessages)

				r.Route("/{conversationID}", func(r chi.Router) {
					r.Get("/", h.GetConversation)
					r.Put("/", h.RenameConversation)
					r.Delete("/", h.DeleteConversation)
					r.Get("/messages", h.ListMessages)

					r.Group(func(r chi.Router) {
						if cfg.ChatRateLimiter != nil {
							r.Use(cfg.ChatRateLimiter)
						}
						r.Post("/messages", h.SendMessage)
					})
				})
			})

			r.Route("/insights", func(r chi.Router) {
				r.Get("/cooldowns", h.InsightCooldowns)
				r.Post("/{category}", h.GenerateInsight)
			})

			r.Route("/billing", func(r chi.Router) {
				r.Post("/checkout", h.BillingCheckout)
				r.Post("/portal", h.BillingPortal)
			})

			r.Get("/audit", h.ListAuditLogs)
		})
	})

	return r
}
