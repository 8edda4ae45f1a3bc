// Package web provides HTTP handlers and REST API endpoints for workflows,
// executions, schedules and the orchestrator.
package web

import (
	"net/http"
	"time"

	"github.com/dukex/conductor/pkg/history"
	"github.com/dukex/conductor/pkg/orchestrator"
	"github.com/dukex/conductor/pkg/registry"
	"github.com/dukex/conductor/pkg/scheduler"
	"github.com/dukex/conductor/pkg/services"
	"github.com/dukex/conductor/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflowService *services.Workflow
	engine          *workflow.Engine
	history         history.Store
	scheduler       *scheduler.Scheduler
	registry        *registry.Registry
	orchestrator    *orchestrator.Orchestrator
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	engine *workflow.Engine,
	historyStore history.Store,
	scheduler *scheduler.Scheduler,
	registry *registry.Registry,
	orchestrator *orchestrator.Orchestrator,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		engine:          engine,
		history:         historyStore,
		scheduler:       scheduler,
		registry:        registry,
		orchestrator:    orchestrator,
		validator:       validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Conductor API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Conductor API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"scheduler": h.scheduler.Stats(),
		"running":   len(h.engine.Running()),
		"timestamp": time.Now().UTC(),
	})
}
