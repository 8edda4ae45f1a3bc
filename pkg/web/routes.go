package web

import "github.com/gofiber/fiber/v3"

// Register mounts every API route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Post("/import", h.ImportWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/run", h.RunWorkflow)
	w.Get("/:id/export", h.ExportWorkflow)
	w.Post("/:id/template", h.SaveAsTemplate)
	w.Get("/:id/executions", h.GetWorkflowExecutions)

	t := router.Group("/templates")
	t.Get("/", h.GetTemplates)
	t.Post("/:id/instantiate", h.InstantiateTemplate)

	e := router.Group("/executions")
	e.Get("/:id", h.GetExecution)
	e.Post("/:id/cancel", h.CancelExecution)

	s := router.Group("/schedules")
	s.Get("/", h.GetSchedules)
	s.Post("/", h.CreateSchedule)
	s.Get("/stats", h.GetScheduleStats)
	s.Get("/:id", h.GetSchedule)
	s.Delete("/:id", h.DeleteSchedule)
	s.Post("/:id/pause", h.PauseSchedule)
	s.Post("/:id/resume", h.ResumeSchedule)
	s.Post("/:id/run", h.RunSchedule)

	router.Get("/tools", h.GetTools)
	router.Post("/tools/:name/execute", h.ExecuteTool)
	router.Get("/agents", h.GetAgents)
	router.Post("/orchestrator/execute", h.ExecuteOrchestrator)
}
