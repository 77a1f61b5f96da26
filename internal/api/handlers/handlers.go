package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/repository"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/workflow"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

// Launcher prepares and executes workflow runs.
type Launcher interface {
	Prepare(ctx context.Context, req workflow.Request) (*workflow.Handle, error)
	Execute(ctx context.Context, h *workflow.Handle) error
}

// HealthCheck probes one backing service.
type HealthCheck func(ctx context.Context) error

// Dependencies are what the handlers serve from.
type Dependencies struct {
	Launcher Launcher
	Runs     repository.RunRepository
	// Archive may be nil; the archive routes then answer 503.
	Archive repository.CDRArchive
	Checks  map[string]HealthCheck
	Logger  *logger.Logger
}

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	launcher Launcher
	runs     repository.RunRepository
	archive  repository.CDRArchive
	checks   map[string]HealthCheck
	logger   *logger.Logger

	background sync.WaitGroup
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(deps Dependencies) *HandlerSet {
	return &HandlerSet{
		launcher: deps.Launcher,
		runs:     deps.Runs,
		archive:  deps.Archive,
		checks:   deps.Checks,
		logger:   deps.Logger,
	}
}

// Wait blocks until executions started over HTTP have finished.
func (h *HandlerSet) Wait() {
	h.background.Wait()
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	executions := v1.Group("/executions")
	executions.Post("/", h.startExecution)
	executions.Get("/", h.listExecutions)
	executions.Get("/:id", h.getExecution)

	v1.Get("/connectors/:connectorId/cdrs", h.listCDRs)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)
	for name, check := range h.checks {
		if err := check(healthCtx); err != nil {
			errs[name] = err.Error()
		}
	}

	status := fiber.StatusOK
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
	}

	return ctx.Status(status).JSON(fiber.Map{"status": "ok", "errors": errs})
}
