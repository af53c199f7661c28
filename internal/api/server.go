package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tahfidz-hub/mizan/internal/domain"
)

// Server serves insights, event ingestion and rule administration over HTTP.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer wires the router. Every route except the probes needs a school.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(RecoverMiddleware)
	router.Use(CORSMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Probes are school-agnostic.
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Group(func(r chi.Router) {
		r.Use(SchoolMiddleware)
		r.Use(LimitBody)

		r.Route("/students", func(r chi.Router) {
			r.Post("/", handler.SaveStudent)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/insight", handler.StudentInsight)
				r.Get("/progress", handler.StudentProgress)
				r.Get("/behavior", handler.StudentBehavior)
				r.Get("/risk", handler.StudentRisk)
			})
		})
		r.Post("/groups", handler.SaveGroup)
		r.Get("/groups/{id}/insight", handler.ClassInsight)
		r.Post("/units", handler.SaveUnit)
		r.Get("/system/insight", handler.SystemInsight)

		r.Post("/behavior/{id}/resolve", handler.ResolveBehavior)
		r.Post("/events", handler.IngestEvent)

		r.Route("/automation/rules", func(r chi.Router) {
			r.Get("/", handler.ListRules)
			r.Post("/", handler.SaveRule)
			r.Post("/reload", handler.ReloadRules)
			r.Post("/{id}/toggle", handler.ToggleRule)
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.config.ReadTimeout) * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the mux so tests can drive it without a listener.
func (s *Server) Router() *chi.Mux {
	return s.router
}
