// Package api is the HTTP surface: a chi router mapping routes one-to-one
// onto catalog, storage and upload operations. Admin routes are gated by
// the auth validator; everything returns JSON except artifact downloads.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/apkhub/apkhub-server/internal/auth"
	"github.com/apkhub/apkhub-server/internal/metrics"
	"github.com/apkhub/apkhub-server/pkg/catalog"
	"github.com/apkhub/apkhub-server/pkg/storage"
	"github.com/apkhub/apkhub-server/pkg/upload"
)

// Server bundles the collaborators behind the HTTP routes.
type Server struct {
	store     *storage.Store
	db        *catalog.Store
	uploads   *upload.Service
	validator *auth.Validator
	metrics   *metrics.Metrics
	maxUpload int64
	staticDir string
	log       *slog.Logger
}

// Options configures optional collaborators. Validator and Metrics may be
// nil; StaticDir may be empty.
type Options struct {
	Validator *auth.Validator
	Metrics   *metrics.Metrics
	StaticDir string
}

// NewServer assembles the HTTP surface.
func NewServer(store *storage.Store, db *catalog.Store, uploads *upload.Service, maxUpload int64, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:     store,
		db:        db,
		uploads:   uploads,
		validator: opts.Validator,
		metrics:   opts.Metrics,
		maxUpload: maxUpload,
		staticDir: opts.StaticDir,
		log:       log,
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.validator.Middleware)

		r.Get("/apps", s.handleListApps)
		r.Route("/apps/{package}", func(r chi.Router) {
			r.Get("/", s.handleGetApp)
			r.Get("/icon", s.handleGetIcon)
			r.Get("/versions/{code}/apk", s.handleDownloadAPK)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.validator.RequireAdmin)

			r.Post("/apps", s.handleUpload)
			r.Put("/apps/{package}", s.handleUpdateApp)
			r.Delete("/apps/{package}", s.handleDeleteApp)
			r.Delete("/apps/{package}/versions/{code}", s.handleDeleteVersion)
		})
	})

	if s.staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.staticDir)))
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
