package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/wbr/pkg/harness"
	"github.com/ethpandaops/wbr/pkg/loader"
	"github.com/ethpandaops/wbr/pkg/publish"
)

// Service defines the API service interface.
type Service interface {
	Start(ctx context.Context) error
	Stop() error
}

type service struct {
	app       *fiber.App
	server    *http.Server
	config    *Config
	loader    *loader.Loader
	publisher *publish.Publisher
	runner    *harness.Runner
	log       logrus.FieldLogger
}

// NewService creates the API service.
func NewService(cfg *Config, ldr *loader.Loader, publisher *publish.Publisher,
	runner *harness.Runner, log logrus.FieldLogger) Service {
	return &service{
		config:    cfg,
		loader:    ldr,
		publisher: publisher,
		runner:    runner,
		log:       log.WithField("service", "api"),
	}
}

// buildApp assembles the Fiber app with all routes registered.
func (s *service) buildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		AppName:      "WBR API",
	})

	setupMiddleware(app)

	app.Post("/report", s.handleReport)
	app.Post("/get-wbr-metrics", s.handleReport)
	app.Post("/download_yaml", s.handleDownloadYAML)
	app.Post("/publish-wbr-report", s.handlePublish)
	app.Post("/publish-protected-report", s.handlePublishProtected)
	app.Get("/build-wbr/publish", s.handleFetchReport)
	app.Get("/build-wbr/publish/protected", s.handleFetchProtectedReport)
	app.Get("/wbr-unit-test", s.handleUnitTest)

	return app
}

// Start initializes and starts the API server.
func (s *service) Start(_ context.Context) error {
	s.app = s.buildApp()

	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           adaptor.FiberApp(s.app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.WithField("addr", s.config.Addr).Info("Starting API server")

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Server failed to start")
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server.
func (s *service) Stop() error {
	if s.server == nil {
		return nil
	}

	s.log.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
