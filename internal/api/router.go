package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hugh/zerogap/internal/api/handlers"
	"github.com/hugh/zerogap/internal/api/middleware"
	"github.com/hugh/zerogap/internal/reports"
	"github.com/hugh/zerogap/internal/session"
	"github.com/redis/go-redis/v9"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	Session *session.Session
	Fetcher *reports.Fetcher
	// Journal and JournalPinger are nil when the journal is disabled.
	Journal       handlers.TransitionLister
	JournalPinger handlers.Pinger
	Backend       handlers.Pinger
	// Schedule is nil when scheduled rescans are disabled.
	Schedule       handlers.Schedule
	Redis          *redis.Client
	Logger         *slog.Logger
	ReportsDir     string
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(cfg.Backend, cfg.JournalPinger, cfg.Redis)
	scanHandler := handlers.NewScanHandler(cfg.Session, cfg.Fetcher, cfg.Journal, cfg.ReportsDir)
	historyHandler := handlers.NewHistoryHandler(cfg.Session.History)
	notificationHandler := handlers.NewNotificationHandler(cfg.Session.Notifier)
	scheduleHandler := handlers.NewScheduleHandler(cfg.Schedule)
	explainHandler := handlers.NewExplainHandler(cfg.Session.Explainer, cfg.Session.Controller)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api", func(r chi.Router) {
		r.Route("/scan", func(r chi.Router) {
			r.Get("/", scanHandler.Current)
			r.Post("/", scanHandler.Start)
			r.Post("/{id}/view", scanHandler.View)
			r.Get("/{id}/report", scanHandler.Report)
			r.Post("/{id}/report/archive", scanHandler.Archive)
			r.Get("/{id}/transitions", scanHandler.Transitions)
		})

		r.Get("/severity", scanHandler.Severity)

		r.Route("/history", func(r chi.Router) {
			r.Get("/", historyHandler.List)
			r.Delete("/", historyHandler.Reset)
			r.Post("/refresh", historyHandler.Refresh)
			r.Delete("/{id}", historyHandler.Delete)
		})
		r.Get("/stats", historyHandler.Stats)

		r.Get("/notification", notificationHandler.Current)
		r.Delete("/notification", notificationHandler.Dismiss)

		r.Post("/explain", explainHandler.Explain)

		r.Get("/schedule", scheduleHandler.Get)
		r.Post("/schedule/run", scheduleHandler.Run)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not found"}`))
	})

	return &Router{r}
}
