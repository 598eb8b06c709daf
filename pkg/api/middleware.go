package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/ethpandaops/wbr/pkg/wbrerr"
)

// setupMiddleware configures global middleware for the Fiber app
func setupMiddleware(app *fiber.App) {
	// Recovery middleware catches panics
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Logger middleware for request logging
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))

	// CORS middleware for cross-origin requests
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
	}))
}

// errorHandler maps pipeline error kinds onto HTTP statuses and renders a
// structured body the frontend can display.
func errorHandler(c fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"description": fiberErr.Message,
			"code":        fiberErr.Code,
		})
	}

	kind := wbrerr.KindOf(err)
	code := statusForKind(kind)

	return c.Status(code).JSON(fiber.Map{
		"description": err.Error(),
		"kind":        kind,
		"code":        code,
	})
}

func statusForKind(kind wbrerr.Kind) int {
	switch kind {
	case wbrerr.KindConfig, wbrerr.KindData, wbrerr.KindAnnotation:
		return fiber.StatusBadRequest
	case wbrerr.KindConnection:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
