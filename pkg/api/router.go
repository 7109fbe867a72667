// Package api exposes the federation engine over HTTP.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sampledb/sampledb/pkg/federation"
	"github.com/sampledb/sampledb/pkg/tasks"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	engine *federation.Engine
	tasks  *tasks.Service
	logger *slog.Logger
}

// NewServer creates a Server. A nil logger uses slog.Default().
func NewServer(engine *federation.Engine, svc *tasks.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, tasks: svc, logger: logger}
}

// Router creates the HTTP router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.healthHandler)

	r.Route("/components", func(r chi.Router) {
		r.Get("/", s.listComponentsHandler)
		r.Post("/", s.addComponentHandler)
		r.Route("/{uuid}", func(r chi.Router) {
			r.Get("/", s.getComponentHandler)
			r.Get("/log", s.componentLogHandler)
			r.Get("/export", s.exportHandler)
			r.Post("/shares", s.shareObjectHandler)
			r.Post("/updates", s.enqueueUpdateHandler)
		})
	})

	r.Get("/log/{kind}/{id}", s.entityLogHandler)

	if s.tasks != nil {
		r.Mount("/tasks", tasks.Router(s.tasks.Store()))
	}

	return r
}
