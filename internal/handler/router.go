package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// RouterConfig — параметры, общие для всех маршрутов.
type RouterConfig struct {
	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
	// Metrics отдаётся на /metrics, если задан.
	Metrics http.Handler
}

// NewRouter собирает chi-роутер админского API.
func NewRouter(h *PhotoHandler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept"},
		MaxAge:         300,
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		r.Post("/uploads/targets", h.GetUploadTargets)

		r.Route("/photos", func(r chi.Router) {
			r.Get("/", h.ListReadyPhotos)
			r.Post("/", h.CreatePendingRecord)
			r.Delete("/", h.DeletePhotos)
			r.Post("/optimize", h.Optimize)
		})

		r.Get("/objects", h.ListObjects)

		r.Route("/tags", func(r chi.Router) {
			r.Get("/", h.ListTags)
			r.Post("/", h.CreateTag)
			r.Delete("/{pk}", h.DeleteTag)
			r.Post("/{pk}/photos", h.AssignTag)
			r.Delete("/{pk}/photos", h.UnassignTag)
		})
	})

	return r
}
