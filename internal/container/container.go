// Package container provides dependency injection for the statement-ingest
// application. It centralizes the creation and wiring of all application
// dependencies, making them explicit and testable.
package container

import (
	"context"
	"fmt"
	"io"

	"fjacquet/statement-ingest/internal/api"
	"fjacquet/statement-ingest/internal/common"
	"fjacquet/statement-ingest/internal/config"
	"fjacquet/statement-ingest/internal/extractor"
	"fjacquet/statement-ingest/internal/fileutils"
	"fjacquet/statement-ingest/internal/formats"
	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/metrics"
	"fjacquet/statement-ingest/internal/ocr"
	"fjacquet/statement-ingest/internal/pdfparser"
	"fjacquet/statement-ingest/internal/pipeline"
	"fjacquet/statement-ingest/internal/reader"
	"fjacquet/statement-ingest/internal/store"
)

// Container holds all application dependencies and provides methods to access them.
//
// Container is immutable after creation: all fields are private and can only
// be accessed through getter methods.
type Container struct {
	logger     logging.Logger
	config     *config.Config
	fs         fileutils.FileSystem
	recognizer ocr.Recognizer
	metrics    *metrics.Metrics
	service    *pipeline.Service
	accounts   store.Repository
	exporter   *common.Exporter
	server     *api.Server
}

// NewContainer creates and wires all application dependencies.
//
// The OCR engine is only built when OCR is enabled; an engine that cannot
// be created (a Gemini engine without API key) fails the whole container.
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	// Create logger first as it's needed by other components
	logger := logging.NewLogrusAdapter(cfg.Log.Level, cfg.Log.Format)

	fs := fileutils.NewLocalFS(cfg.Pipeline.ContentRoot)
	pdf := pdfparser.NewReader(logger, pdfparser.NewRealPDFExtractor(logger))
	rd := reader.New(fs, pdf, cfg.TempDir(), logger)

	var recognizer ocr.Recognizer
	if cfg.OCR.Enabled {
		r, err := ocr.New(context.Background(), cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create OCR engine: %w", err)
		}
		recognizer = r
		logger.Info("OCR enabled", logging.F(logging.FieldEngine, cfg.OCR.Engine))
	} else {
		logger.Info("OCR disabled")
	}

	m := metrics.New()
	deps := pipeline.Dependencies{
		FS:              fs,
		Reader:          rd,
		Detector:        formats.NewDetector(),
		Extractor:       extractor.New(logger),
		Metrics:         m,
		Logger:          logger,
		DefaultCurrency: cfg.DefaultCurrency(),
	}
	if recognizer != nil {
		deps.Recognizer = recognizer
	}
	service := pipeline.NewService(deps)

	var accounts store.Repository
	if cfg.Accounts.File != "" {
		path := cfg.Accounts.File
		// A missing file is created on first upsert at the configured path.
		if found, err := store.FindConfigFile(path); err == nil {
			path = found
		}
		accounts = store.NewYAMLRepository(path, logger)
	} else {
		accounts = store.NewMemoryRepository()
	}

	server := api.NewServer(service, m, api.Config{
		BodyLimitMB: cfg.Server.BodyLimitMB,
		TempDir:     cfg.TempDir(),
		Delimiter:   cfg.Delimiter(),
	}, logger)

	logger.Info("Container initialized successfully",
		logging.F(logging.FieldCount, len(formats.Registry())),
		logging.F("ocr_enabled", cfg.OCR.Enabled),
		logging.F("accounts_file", cfg.Accounts.File))

	return &Container{
		logger:     logger,
		config:     cfg,
		fs:         fs,
		recognizer: recognizer,
		metrics:    m,
		service:    service,
		accounts:   accounts,
		exporter:   common.NewExporter(cfg.Delimiter(), logger),
		server:     server,
	}, nil
}

// GetLogger returns the container's logger instance.
func (c *Container) GetLogger() logging.Logger {
	return c.logger
}

// GetConfig returns the container's configuration instance.
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetFileSystem returns the content resolver documents are read through.
func (c *Container) GetFileSystem() fileutils.FileSystem {
	return c.fs
}

// GetService returns the parsing pipeline.
func (c *Container) GetService() *pipeline.Service {
	return c.service
}

// GetRecognizer returns the OCR engine, or nil when OCR is disabled.
func (c *Container) GetRecognizer() ocr.Recognizer {
	return c.recognizer
}

// GetMetrics returns the Prometheus collectors shared by the service and the server.
func (c *Container) GetMetrics() *metrics.Metrics {
	return c.metrics
}

// GetAccounts returns the account balance repository.
func (c *Container) GetAccounts() store.Repository {
	return c.accounts
}

// GetExporter returns the CSV exporter configured with the export delimiter.
func (c *Container) GetExporter() *common.Exporter {
	return c.exporter
}

// GetServer returns the HTTP server.
func (c *Container) GetServer() *api.Server {
	return c.server
}

// Close releases the OCR client if it holds one.
func (c *Container) Close() error {
	if closer, ok := c.recognizer.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close OCR engine: %w", err)
		}
	}
	c.logger.Info("Container closed")
	return nil
}
