// Package server exposes the e-learning repositories over HTTP.
package server

import (
	"context"
	"log/slog"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alimasry/elearning-docstore/store"
)

const metricsPath = "/metrics"

// Server is the HTTP front end over one document store.
type Server struct {
	app      *fiber.App
	registry *Registry
	log      *slog.Logger
}

// New builds the Fiber app with middleware and routes. Metrics are
// registered on reg and served from /metrics.
func New(st store.Store, log *slog.Logger, reg *prometheus.Registry) (*Server, error) {
	metrics, err := NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	// Immutable: params become document IDs that outlive the request.
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "elearning-docstore",
			ErrorHandler:          ErrorHandler(),
			Immutable:             true,
			DisableStartupMessage: true,
		}),
		registry: NewRegistry(st),
		log:      log,
	}

	s.app.Use(RequestID())
	s.app.Use(otelfiber.Middleware(otelfiber.WithNext(func(c *fiber.Ctx) bool {
		return c.Path() == metricsPath
	})))
	s.app.Use(RequestLogger(log))
	s.app.Use(metrics.Handler())

	s.app.Get("/healthz", s.health)
	s.app.Get(metricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	api := s.app.Group("/api")
	api.Get("/:resource", s.list)
	api.Post("/:resource", s.create)
	api.Get("/:resource/search", s.search)
	api.Get("/:resource/:id", s.get)
	api.Put("/:resource/:id", s.update)
	api.Patch("/:resource/:id", s.update)
	api.Delete("/:resource/:id", s.remove)
}

// App returns the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves HTTP on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.log.Info("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
