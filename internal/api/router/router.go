package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/inbox-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/inbox-ai-platform/internal/http/middleware"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Webhooks           *handlers.WebhookHandler
	Dashboard          *handlers.DashboardHandler
	Health             http.Handler
	MetricsHandler     http.Handler
	DashboardJWTSecret string
	CORSAllowedOrigins []string
	// WebhookLimiter bounds inbound webhook calls per org; nil disables it.
	WebhookLimiter *httpmiddleware.RateLimiter
}

// New creates a chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Public endpoints: health, metrics and channel webhooks.
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Handle("/health", cfg.Health)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhooks == nil {
			return
		}
		public.Route("/webhooks", func(hooks chi.Router) {
			if cfg.WebhookLimiter != nil {
				hooks.Use(httpmiddleware.RateLimit(cfg.WebhookLimiter, webhookKey))
			}
			hooks.Post("/telegram/{orgID}", cfg.Webhooks.Telegram)
			hooks.Post("/whatsapp/{orgID}/messages", cfg.Webhooks.WhatsAppMessage)
			hooks.Post("/whatsapp/{orgID}/status", cfg.Webhooks.WhatsAppStatus)
		})
	})

	// Dashboard API, scoped by the org_id claim of the bearer token.
	if cfg.Dashboard != nil {
		r.Route("/api", func(api chi.Router) {
			api.Use(httpmiddleware.DashboardJWT(cfg.DashboardJWTSecret))
			api.Route("/conversations/{id}", func(conv chi.Router) {
				conv.Get("/ai", cfg.Dashboard.GetConversationAI)
				conv.Patch("/ai", cfg.Dashboard.ToggleConversationAI)
				conv.Post("/messages", cfg.Dashboard.SendMessage)
				conv.Post("/read", cfg.Dashboard.MarkRead)
			})
			api.Route("/whatsapp/session", func(wa chi.Router) {
				wa.Get("/", cfg.Dashboard.WhatsAppSession)
				wa.Post("/start", cfg.Dashboard.StartWhatsAppSession)
				wa.Post("/stop", cfg.Dashboard.StopWhatsAppSession)
			})
			api.Post("/telegram/connect", cfg.Dashboard.ConnectTelegram)
		})
	}

	return r
}

// webhookKey charges webhook traffic to the org in the path
// (/webhooks/<channel>/<orgID>/...), falling back to the client address.
// Route params are not yet resolved when group middleware runs.
func webhookKey(r *http.Request) string {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) >= 3 && parts[2] != "" {
		return "org:" + parts[2]
	}
	return httpmiddleware.RemoteIP(r)
}
