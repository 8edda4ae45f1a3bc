package web

import (
	"errors"

	"github.com/dukex/conductor/pkg/history"
	"github.com/dukex/conductor/pkg/persistence"
	"github.com/dukex/conductor/pkg/registry"
	"github.com/dukex/conductor/pkg/scheduler"
	"github.com/dukex/conductor/pkg/services"
	"github.com/dukex/conductor/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

var errOrchestratorUnavailable = errors.New("orchestrator is not configured")

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

func typedNotFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

// handleServiceError maps the errors of the service, scheduler, engine and
// registry layers onto problem documents.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err),
		errors.Is(err, scheduler.ErrInvalidTrigger),
		errors.Is(err, scheduler.ErrPastDate),
		errors.Is(err, registry.ErrInvalidParams):
		return badRequest(c, err.Error())

	case persistence.IsWorkflowNotFound(err):
		return typedNotFound(c, "workflow_not_found", "workflow not found")

	case persistence.IsTemplateNotFound(err):
		return typedNotFound(c, "template_not_found", "template not found")

	case errors.Is(err, scheduler.ErrTaskNotFound):
		return typedNotFound(c, "task_not_found", "scheduled task not found")

	case errors.Is(err, workflow.ErrExecutionNotFound), errors.Is(err, history.ErrExecutionNotFound):
		return typedNotFound(c, "execution_not_found", "execution not found")

	case registry.IsUnknownCapability(err):
		return typedNotFound(c, "capability_not_found", err.Error())

	default:
		return internalError(c, err)
	}
}
