package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/helmcode/crew-bus/internal/config"
	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/events"
)

// Server holds dependencies for the HTTP API.
type Server struct {
	App    *fiber.App
	crew   *crew.Service
	events *events.Bus
	config config.ServerConfig
	logger *slog.Logger
	checks []namedCheck

	// cancel stops background work started by middleware (limiter cleanup).
	cancel context.CancelFunc
}

// NewServer creates a Fiber app with middleware and registers all routes.
// A nil bus disables the /ws/events stream.
func NewServer(svc *crew.Service, bus *events.Bus, cfg config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	app := fiber.New(fiber.Config{
		AppName:      "crew-bus",
		ErrorHandler: errorHandler(logger),
	})

	ctx, cancel := context.WithCancel(context.Background())

	// Middleware.
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(requestLogger(logger))
	if cfg.RatePerMinute > 0 {
		app.Use(rateLimiter(ctx, cfg.RatePerMinute, cfg.Burst))
	}

	s := &Server{
		App:    app,
		crew:   svc,
		events: bus,
		config: cfg,
		logger: logger,
		cancel: cancel,
	}

	s.registerRoutes()
	return s
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	s.logger.Info("starting HTTP server", "addr", addr)
	return s.App.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down HTTP server")
	s.cancel()
	return s.App.Shutdown()
}
