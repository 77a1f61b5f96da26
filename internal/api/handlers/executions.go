package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/workflow"
)

type startExecutionRequest struct {
	Workflow string `json:"workflow"`
	Date     string `json:"date"`
	Month    string `json:"month"`
}

type executionResponse struct {
	ID           uuid.UUID              `json:"id"`
	Workflow     domain.Workflow        `json:"workflow"`
	Input        string                 `json:"input"`
	Status       domain.ExecutionStatus `json:"status"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Runs         []runResponse          `json:"runs,omitempty"`
}

type runResponse struct {
	ID           uuid.UUID            `json:"id"`
	Kind         domain.OperationKind `json:"kind"`
	Target       string               `json:"target"`
	Token        string               `json:"token"`
	State        domain.RunState      `json:"state"`
	ErrorMessage string               `json:"error_message,omitempty"`
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
}

type listExecutionsResponse struct {
	Executions []executionResponse `json:"executions"`
}

// startExecution takes the launch lease synchronously so overlaps surface as
// 409, then runs the workflow in the background.
func (h *HandlerSet) startExecution(ctx *fiber.Ctx) error {
	var req startExecutionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	handle, err := h.launcher.Prepare(ctx.UserContext(), workflow.Request{
		Workflow: domain.Workflow(req.Workflow),
		Date:     req.Date,
		Month:    req.Month,
	})
	if err != nil {
		return translateError(err)
	}

	runCtx := context.WithoutCancel(ctx.UserContext())
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		if err := h.launcher.Execute(runCtx, handle); err != nil {
			h.logger.Error("execution aborted", zap.String("execution_id", handle.Execution.ID.String()), zap.Error(err))
		}
	}()

	return ctx.Status(http.StatusAccepted).JSON(toExecutionResponse(handle.Execution, nil))
}

func (h *HandlerSet) listExecutions(ctx *fiber.Ctx) error {
	limit, _ := strconv.Atoi(ctx.Query("limit", "20"))
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	execs, err := h.runs.ListExecutions(ctx.UserContext(), domain.Workflow(ctx.Query("workflow")), limit)
	if err != nil {
		return translateError(err)
	}

	resp := listExecutionsResponse{Executions: make([]executionResponse, 0, len(execs))}
	for _, e := range execs {
		resp.Executions = append(resp.Executions, toExecutionResponse(e, nil))
	}
	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) getExecution(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid execution id")
	}

	exec, err := h.runs.GetExecution(ctx.UserContext(), id)
	if err != nil {
		return translateError(err)
	}
	runs, err := h.runs.ListRuns(ctx.UserContext(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toExecutionResponse(exec, runs))
}

func toExecutionResponse(e *domain.Execution, runs []domain.OperationRun) executionResponse {
	resp := executionResponse{
		ID:           e.ID,
		Workflow:     e.Workflow,
		Input:        e.Input,
		Status:       e.Status,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	for _, r := range runs {
		resp.Runs = append(resp.Runs, runResponse{
			ID:           r.ID,
			Kind:         r.Kind,
			Target:       r.Target,
			Token:        r.Token,
			State:        r.State,
			ErrorMessage: r.ErrorMessage,
			StartedAt:    r.StartedAt,
			FinishedAt:   r.FinishedAt,
		})
	}
	return resp
}
