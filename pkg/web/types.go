// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"time"

	"github.com/dukex/conductor/pkg/events"
	"github.com/dukex/conductor/pkg/models"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"                 validate:"required,min=1"`
	Description string                 `json:"description"`
	Steps       []*models.WorkflowStep `json:"steps"                validate:"required,min=1"`
	Variables   map[string]any         `json:"variables"`
	Tags        []string               `json:"tags"`
	CreatedBy   string                 `json:"created_by,omitempty"`
}

func (r CreateWorkflowRequest) Workflow() *models.Workflow {
	return &models.Workflow{
		Name:        r.Name,
		Description: r.Description,
		Steps:       r.Steps,
		Variables:   r.Variables,
		Tags:        r.Tags,
		CreatedBy:   r.CreatedBy,
	}
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name,omitempty"        validate:"omitempty,min=1"`
	Description *string                `json:"description,omitempty"`
	Steps       []*models.WorkflowStep `json:"steps,omitempty"       validate:"omitempty,min=1"`
	Variables   map[string]any         `json:"variables,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
}

// Apply merges the set fields of the request into a copy of existing.
func (r UpdateWorkflowRequest) Apply(existing *models.Workflow) *models.Workflow {
	updated := existing.Clone()

	if r.Name != nil {
		updated.Name = *r.Name
	}

	if r.Description != nil {
		updated.Description = *r.Description
	}

	if r.Steps != nil {
		updated.Steps = r.Steps
	}

	if r.Variables != nil {
		updated.Variables = r.Variables
	}

	if r.Tags != nil {
		updated.Tags = r.Tags
	}

	return updated
}

// RunWorkflowRequest starts an execution. Async executions answer with 202
// and are polled through /executions/:id.
type RunWorkflowRequest struct {
	Variables map[string]any `json:"variables"`
	Async     bool           `json:"async"`
}

type InstantiateTemplateRequest struct {
	Name      string         `json:"name"`
	Variables map[string]any `json:"variables"`
}

type SaveTemplateRequest struct {
	Name string `json:"name"`
}

// ScheduleRequest binds a workflow to a trigger.
type ScheduleRequest struct {
	WorkflowID    string         `json:"workflow_id"    validate:"required"`
	Name          string         `json:"name"           validate:"required,min=1"`
	TriggerType   string         `json:"trigger_type"   validate:"required,oneof=cron interval date"`
	TriggerConfig map[string]any `json:"trigger_config"`
	Variables     map[string]any `json:"variables"`
}

type OrchestratorRequest struct {
	Task    string         `json:"task"    validate:"required,min=1"`
	Context map[string]any `json:"context"`
}

type OrchestratorResponse struct {
	Output        string         `json:"output"`
	Success       bool           `json:"success"`
	Error         string         `json:"error,omitempty"`
	ExecutionTime float64        `json:"execution_time"`
	Events        []events.Event `json:"events"`
}

// WorkflowSummary is the listing shape of a workflow.
type WorkflowSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
	StepsCount  int       `json:"steps_count"`
	Tags        []string  `json:"tags"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func TransformWorkflowSummary(workflow *models.Workflow) WorkflowSummary {
	return WorkflowSummary{
		ID:          workflow.ID,
		Name:        workflow.Name,
		Description: workflow.Description,
		Version:     workflow.Version,
		StepsCount:  len(workflow.Steps),
		Tags:        workflow.Tags,
		UpdatedAt:   workflow.UpdatedAt,
	}
}

func TransformWorkflowSummaries(workflows []*models.Workflow) []WorkflowSummary {
	summaries := make([]WorkflowSummary, 0, len(workflows))
	for _, workflow := range workflows {
		summaries = append(summaries, TransformWorkflowSummary(workflow))
	}

	return summaries
}
