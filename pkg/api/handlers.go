package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/ethpandaops/wbr/pkg/annotations"
	"github.com/ethpandaops/wbr/pkg/config"
	"github.com/ethpandaops/wbr/pkg/deck"
	"github.com/ethpandaops/wbr/pkg/engine"
	"github.com/ethpandaops/wbr/pkg/generator"
	"github.com/ethpandaops/wbr/pkg/observability"
	"github.com/ethpandaops/wbr/pkg/publish"
	"github.com/ethpandaops/wbr/pkg/wbrerr"
)

// Request validation errors.
var (
	errConfigFileRequired = fiber.NewError(fiber.StatusBadRequest, "configfile is required")
	errCSVFileRequired    = fiber.NewError(fiber.StatusBadRequest, "csvfile is required")
	errFileParamRequired  = fiber.NewError(fiber.StatusBadRequest, "file query parameter is required")
	errPasswordRequired   = fiber.NewError(fiber.StatusBadRequest, "password query parameter is required")
	errJSONOutputOnly     = fiber.NewError(fiber.StatusNotImplemented,
		"only outputType=JSON is supported, rendering is done by the frontend")
)

// handleReport builds a deck from the uploaded config, with an optional CSV
// upload replacing the declared data sources.
func (s *service) handleReport(c fiber.Ctx) error {
	start := time.Now()

	configData, err := formFile(c, "configfile")
	if err != nil {
		return errConfigFileRequired
	}

	// The upload replaces every declared source when present.
	csvData, _ := formFile(c, "csvfile")

	if outputType := c.Query("outputType"); outputType != "" && !strings.EqualFold(outputType, "JSON") {
		return errJSONOutputOnly
	}

	cfg, err := config.Load(configData)
	if err != nil {
		return wbrerr.New(wbrerr.KindConfig, "configfile", "%s", err)
	}

	if err := applyOverrides(c, cfg); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	doc, err := s.buildDeck(c.Context(), cfg, csvData)

	status := "success"
	if err != nil {
		status = "failed"
	}

	observability.ReportBuildsTotal.WithLabelValues(status).Inc()
	observability.ReportBuildDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if err != nil {
		return err
	}

	return c.JSON(doc)
}

// buildDeck runs the full pipeline for one request.
func (s *service) buildDeck(ctx context.Context, cfg *config.Config, override []byte) (*deck.Document, error) {
	result, err := s.loader.Load(ctx, cfg, override)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(s.log, cfg, result.Master)
	if err != nil {
		return nil, err
	}

	if err := eng.Materialize(); err != nil {
		return nil, err
	}

	events := annotations.Resolve(s.log, result.Events, eng.WeekEnding(), eng.Resolves)

	return deck.NewBuilder(s.log, cfg, eng, events).Build()
}

// handleDownloadYAML returns a starter config generated from the uploaded
// CSV.
func (s *service) handleDownloadYAML(c fiber.Ctx) error {
	csvData, err := formFile(c, "csvfile")
	if err != nil {
		return errCSVFileRequired
	}

	out, err := generator.Generate(csvData)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "application/x-yaml")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="config.yaml"`)

	return c.Send(out)
}

// handlePublish stores the posted deck document and returns the URL it can
// be rendered from.
func (s *service) handlePublish(c fiber.Ctx) error {
	var doc deck.Document

	if err := json.Unmarshal(c.Body(), &doc); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "request body must be a deck document")
	}

	filename, err := s.publisher.Publish(c.Context(), &doc)
	if err != nil {
		return err
	}

	observability.PublishedReportsTotal.WithLabelValues("plain").Inc()

	return c.JSON(fiber.Map{"path": baseURL(c) + publish.ServePath(filename)})
}

// handlePublishProtected stores the posted deck behind a password.
func (s *service) handlePublishProtected(c fiber.Ctx) error {
	password := c.Query("password")
	if password == "" {
		return errPasswordRequired
	}

	var doc deck.Document

	if err := json.Unmarshal(c.Body(), &doc); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "request body must be a deck document")
	}

	filename, err := s.publisher.PublishProtected(c.Context(), &doc, password)
	if err != nil {
		return err
	}

	observability.PublishedReportsTotal.WithLabelValues("protected").Inc()

	return c.JSON(fiber.Map{"path": baseURL(c) + publish.ProtectedServePath(filename)})
}

// handleFetchReport returns a stored deck document.
func (s *service) handleFetchReport(c fiber.Ctx) error {
	filename := c.Query("file")
	if filename == "" {
		return errFileParamRequired
	}

	data, err := s.publisher.Fetch(c.Context(), filename)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "report not found")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	return c.Send(data)
}

// handleFetchProtectedReport returns a protected deck after checking the
// password against its envelope.
func (s *service) handleFetchProtectedReport(c fiber.Ctx) error {
	filename := c.Query("file")
	if filename == "" {
		return errFileParamRequired
	}

	password := c.Query("password")
	if password == "" {
		return errPasswordRequired
	}

	data, err := s.publisher.FetchProtected(c.Context(), filename, password)
	if err != nil {
		if errors.Is(err, publish.ErrUnauthorized) {
			return fiber.NewError(fiber.StatusForbidden, "Unauthorised")
		}

		return fiber.NewError(fiber.StatusNotFound, "report not found")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	return c.Send(data)
}

// handleUnitTest runs the scenario harness and returns its result document.
func (s *service) handleUnitTest(c fiber.Ctx) error {
	result, err := s.runner.Run(c.Context())
	if err != nil {
		return err
	}

	for _, scenario := range result.Scenarios {
		for _, tc := range scenario.TestCases {
			for _, check := range tc.Checks() {
				observability.HarnessChecksTotal.WithLabelValues(check.Result).Inc()
			}
		}
	}

	return c.JSON(result)
}

// applyOverrides copies recognised query parameters over the uploaded
// config's setup section.
func applyOverrides(c fiber.Ctx, cfg *config.Config) error {
	if v := c.Query("weekEnding"); v != "" {
		cfg.Setup.WeekEnding = v
	}

	if v := c.Query("title"); v != "" {
		cfg.Setup.Title = v
	}

	if v := c.Query("fiscalYearEndMonth"); v != "" {
		cfg.Setup.FiscalYearEndMonth = v
	}

	if v := c.Query("weekNumber"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "weekNumber must be an integer")
		}

		cfg.Setup.WeekNumber = n
	}

	if v := c.Query("blockStartingNumber"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "blockStartingNumber must be an integer")
		}

		cfg.Setup.BlockStartingNumber = n
	}

	if v := c.Query("tooltip"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "tooltip must be a boolean")
		}

		cfg.Setup.Tooltip = b
	}

	return nil
}

// formFile reads one uploaded multipart file into memory.
func formFile(c fiber.Ctx, name string) ([]byte, error) {
	header, err := c.FormFile(name)
	if err != nil {
		return nil, err
	}

	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// baseURL reconstructs the externally visible scheme and host, preferring
// https everywhere except local development.
func baseURL(c fiber.Ctx) string {
	host := c.Hostname()
	scheme := c.Scheme()

	if scheme == "http" && !strings.HasPrefix(host, "localhost") && !strings.HasPrefix(host, "127.0.0.1") {
		scheme = "https"
	}

	return scheme + "://" + host
}
