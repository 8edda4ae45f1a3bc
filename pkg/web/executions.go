package web

import (
	"errors"

	"github.com/dukex/conductor/pkg/workflow"
	"github.com/gofiber/fiber/v3"
)

// GetExecution answers from the engine while the execution runs and from the
// history once it has finished.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.engine.Execution(id)
	if err == nil {
		return c.JSON(execution.Summary())
	}

	if !errors.Is(err, workflow.ErrExecutionNotFound) {
		return handleServiceError(c, err)
	}

	summary, err := h.history.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(summary)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if h.engine.Cancel(id) {
		return c.JSON(fiber.Map{"execution_id": id, "status": "cancelled"})
	}

	if _, err := h.history.Get(c.Context(), id); err == nil {
		return conflict(c, "Execution has already finished")
	}

	return notFound(c, "Execution not found")
}
