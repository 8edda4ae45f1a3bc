package web

import (
	"context"

	"github.com/dukex/conductor/pkg/models"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetSchedules(c fiber.Ctx) error {
	tasks := h.scheduler.List()

	if workflowID := c.Query("workflow_id"); workflowID != "" {
		tasks = h.scheduler.TasksByWorkflow(workflowID)
	}

	return c.JSON(fiber.Map{
		"tasks": tasks,
		"stats": h.scheduler.Stats(),
	})
}

func (h *APIHandlers) GetScheduleStats(c fiber.Ctx) error {
	return c.JSON(h.scheduler.Stats())
}

func (h *APIHandlers) CreateSchedule(c fiber.Ctx) error {
	var req ScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := h.workflowService.FetchByID(c.Context(), req.WorkflowID); err != nil {
		return handleServiceError(c, err)
	}

	task, err := h.scheduler.Schedule(
		c.Context(),
		req.WorkflowID,
		req.Name,
		models.TriggerType(req.TriggerType),
		req.TriggerConfig,
		req.Variables,
	)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *APIHandlers) GetSchedule(c fiber.Ctx) error {
	task, err := h.scheduler.Get(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) DeleteSchedule(c fiber.Ctx) error {
	if err := h.scheduler.Cancel(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PauseSchedule(c fiber.Ctx) error {
	task, err := h.scheduler.Pause(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) ResumeSchedule(c fiber.Ctx) error {
	task, err := h.scheduler.Resume(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

// RunSchedule fires the task once in the background.
func (h *APIHandlers) RunSchedule(c fiber.Ctx) error {
	id := c.Params("id")

	if err := h.scheduler.RunNow(context.Background(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"task_id": id, "status": "triggered"})
}
