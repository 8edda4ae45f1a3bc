package web

import (
	"context"
	"sync"

	"github.com/dukex/conductor/pkg/events"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetTools(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"tools": h.registry.Tools()})
}

func (h *APIHandlers) GetAgents(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"agents": h.registry.Agents()})
}

// ExecuteTool runs a registered tool with the request body as parameters.
func (h *APIHandlers) ExecuteTool(c fiber.Ctx) error {
	params := map[string]any{}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&params); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	result, err := h.registry.ExecuteTool(c.Context(), c.Params("name"), params)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Emit(_ context.Context, event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *eventRecorder) recorded() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]events.Event{}, r.events...)
}

// ExecuteOrchestrator runs a task through the orchestrator and returns its
// output together with the progress events of this run.
func (h *APIHandlers) ExecuteOrchestrator(c fiber.Ctx) error {
	if h.orchestrator == nil {
		return internalError(c, errOrchestratorUnavailable)
	}

	var req OrchestratorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	recorder := &eventRecorder{}
	result := h.orchestrator.Run(c.Context(), req.Task, req.Context, recorder)

	return c.JSON(OrchestratorResponse{
		Output:        result.Output,
		Success:       result.Success,
		Error:         result.Error,
		ExecutionTime: result.ExecutionTime,
		Events:        recorder.recorded(),
	})
}
