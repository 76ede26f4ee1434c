// Package api exposes the pipeline over HTTP with fiber. Uploads are parsed
// statelessly: a password challenge is answered with 423 and the client
// resubmits the file with the password and the attempt number it was shown.
package api

import (
	"context"
	"time"

	"fjacquet/statement-ingest/internal/common"
	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/metrics"
	"fjacquet/statement-ingest/internal/pipeline"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Config holds the server settings taken from the application config.
type Config struct {
	BodyLimitMB int
	// TempDir receives uploads while they are parsed.
	TempDir   string
	Delimiter rune
}

// Server is the HTTP surface of the pipeline.
type Server struct {
	app      *fiber.App
	service  *pipeline.Service
	metrics  *metrics.Metrics
	exporter *common.Exporter
	logger   logging.Logger
	tempDir  string
}

// NewServer builds the fiber app and registers every route.
func NewServer(service *pipeline.Service, m *metrics.Metrics, cfg Config, logger logging.Logger) *Server {
	logger = logging.OrDefault(logger)
	if cfg.BodyLimitMB <= 0 {
		cfg.BodyLimitMB = 32
	}
	s := &Server{
		service:  service,
		metrics:  m,
		exporter: common.NewExporter(cfg.Delimiter, logger),
		logger:   logger,
		tempDir:  cfg.TempDir,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "statement-ingest",
		BodyLimit:             cfg.BodyLimitMB << 20,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.logRequests)

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/api/formats", s.handleFormats)
	s.app.Post("/api/statements", s.handleStatement)
	s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	return s
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("HTTP server listening", logging.F("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else {
			status = fiber.StatusInternalServerError
		}
	}
	s.logger.Debug("HTTP request",
		logging.F("method", c.Method()),
		logging.F("path", c.Path()),
		logging.F(logging.FieldStatus, status),
		logging.F(logging.FieldDuration, time.Since(start).Milliseconds()))
	return err
}

// handleError renders unhandled errors in the same JSON shape as handled ones.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed", logging.F("path", c.Path()))
	}
	return c.Status(code).JSON(errorResponse{Success: false, Error: err.Error()})
}
