package web

import (
	"context"
	"strconv"
	"strings"

	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/services"
	"github.com/gofiber/fiber/v3"
)

const defaultExecutionsLimit = 20

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req := services.ListWorkflowsRequest{Search: c.Query("search")}

	if tags := c.Query("tags"); tags != "" {
		for tag := range strings.SplitSeq(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				req.Tags = append(req.Tags, tag)
			}
		}
	}

	workflows, err := h.workflowService.ListWorkflows(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": TransformWorkflowSummaries(workflows)})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), req.Workflow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	updated, err := h.workflowService.Update(c.Context(), id, req.Apply(existing))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflowService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// RunWorkflow executes a stored workflow. The body is optional.
func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req RunWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Async {
		execution, _ := h.engine.Start(context.Background(), workflow, req.Variables)

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"execution_id": execution.ID,
			"workflow_id":  workflow.ID,
			"status":       execution.CurrentStatus(),
		})
	}

	execution := h.engine.Execute(c.Context(), workflow, req.Variables)

	return c.JSON(execution.Summary())
}

func (h *APIHandlers) ExportWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	format, err := services.ParseFormat(c.Query("format"))
	if err != nil {
		return handleServiceError(c, err)
	}

	data, err := h.workflowService.Export(c.Context(), id, format)
	if err != nil {
		return handleServiceError(c, err)
	}

	c.Set(fiber.HeaderContentType, contentType(format))
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+id+"."+string(format)+`"`)

	return c.Send(data)
}

// ImportWorkflow reads the format from the query, falling back to the
// request content type.
func (h *APIHandlers) ImportWorkflow(c fiber.Ctx) error {
	raw := c.Query("format")
	if raw == "" && strings.Contains(c.Get(fiber.HeaderContentType), "yaml") {
		raw = string(services.FormatYAML)
	}

	format, err := services.ParseFormat(raw)
	if err != nil {
		return handleServiceError(c, err)
	}

	if len(c.Body()) == 0 {
		return badRequest(c, "Workflow document is required")
	}

	imported, err := h.workflowService.Import(c.Context(), c.Body(), format)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(imported)
}

func (h *APIHandlers) SaveAsTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req SaveTemplateRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	template, err := h.workflowService.SaveAsTemplate(c.Context(), id, req.Name)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	limit := defaultExecutionsLimit

	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return badRequest(c, "limit must be a positive integer")
		}

		limit = parsed
	}

	if _, err := h.workflowService.FetchByID(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	executions, err := h.history.ByWorkflow(c.Context(), id, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	if executions == nil {
		executions = []*models.ExecutionSummary{}
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	templates, err := h.workflowService.Templates(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"templates": TransformWorkflowSummaries(templates)})
}

func (h *APIHandlers) InstantiateTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	var req InstantiateTemplateRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	created, err := h.workflowService.CreateFromTemplate(c.Context(), id, req.Name, req.Variables)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func contentType(format services.Format) string {
	if format == services.FormatYAML {
		return "application/yaml"
	}

	return fiber.MIMEApplicationJSON
}
