package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vaultmind/chat-client/internal/middleware"
	"github.com/vaultmind/chat-client/pkg/logger"
)

// RouterConfig holds what the bridge router needs.
type RouterConfig struct {
	Workspace          Workspace
	ReadyChecks        map[string]ReadyCheck
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	Logger             *logger.Logger
}

// NewRouter builds the bridge routes.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	healthHandler := NewHealthHandler(cfg.Workspace, cfg.ReadyChecks)
	messageHandler := NewMessageHandler(cfg.Workspace, log.Named("messages"))
	sessionHandler := NewSessionHandler(cfg.Workspace, log.Named("sessions"))
	streamHandler := NewStreamHandler(cfg.Workspace, log.Named("stream"))

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log.Named("http")))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/chat", func(r chi.Router) {
			r.Get("/messages", messageHandler.List)
			r.Post("/messages", messageHandler.Send)
			r.Post("/new", messageHandler.NewChat)
			r.Get("/stream", streamHandler.Stream)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionHandler.List)
			r.Post("/refresh", sessionHandler.Refresh)
			r.Post("/{id}/open", sessionHandler.Open)
		})
	})

	return r
}
