package api

import (
	"log/slog"
	"strings"

	"github.com/bobarin/promptreel/internal/logger"
	"github.com/bobarin/promptreel/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the router.
type RouterConfig struct {
	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig, log *slog.Logger, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (applied to all routes including /health)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(m))

	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	if m != nil {
		r.Handle("/metrics", m.Handler(h.refreshGauges))
	}

	// Generator
	r.Get("/", h.Index)
	r.Post("/generate", h.Generate)
	r.Get("/download/{filename}", h.Download)
	r.Handle("/static/videos/*", h.Videos())

	// Admin pages redirect to the login page on their own
	r.Get("/admin", h.AdminPanel)
	r.Get("/admin/login", h.AdminLoginPage)
	r.Post("/admin/login", h.AdminLogin)
	r.Get("/admin/logout", h.AdminLogout)

	// Admin JSON endpoints answer 401 without a session
	r.Group(func(r chi.Router) {
		r.Use(RequireAdmin(h.sessions))
		r.Delete("/admin/delete/{video_id}", h.DeleteVideo)
		r.Get("/stats", h.Stats)
	})

	return r
}
