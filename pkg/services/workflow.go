package services

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/persistence"
	"github.com/google/uuid"
)

// ScheduleCanceller removes the schedules bound to a deleted workflow.
type ScheduleCanceller interface {
	TasksByWorkflow(workflowID string) []*models.ScheduledTask
	Cancel(ctx context.Context, taskID string) error
}

type Workflow struct {
	persistence persistence.Persistence
	logger      *slog.Logger
	schedules   ScheduleCanceller
}

type Option func(*Workflow)

// WithScheduleCanceller makes Delete cancel the schedules of the workflow.
func WithScheduleCanceller(schedules ScheduleCanceller) Option {
	return func(w *Workflow) {
		w.schedules = schedules
	}
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, logger *slog.Logger, opts ...Option) *Workflow {
	w := &Workflow{
		persistence: persistence,
		logger:      logger.With("module", "workflow_service"),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest filters the listing. A workflow matches Tags when it
// carries any of them; Search is a case-insensitive substring of the name or
// the description.
type ListWorkflowsRequest struct {
	Tags   []string
	Search string
}

// ListWorkflows returns the matching workflows, most recently updated first.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) ([]*models.Workflow, error) {
	workflows, err := w.persistence.Workflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	search := strings.ToLower(strings.TrimSpace(req.Search))
	filtered := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if len(req.Tags) > 0 && !workflow.HasTag(req.Tags...) {
			continue
		}

		if search != "" &&
			!strings.Contains(strings.ToLower(workflow.Name), search) &&
			!strings.Contains(strings.ToLower(workflow.Description), search) {
			continue
		}

		filtered = append(filtered, workflow)
	}

	slices.SortStableFunc(filtered, func(a, b *models.Workflow) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	return filtered, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, notFound("FetchByID", id, ErrWorkflowNotFound)
	}

	return workflow, nil
}

// Create validates and stores a new workflow under a fresh id.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if err := Validate(w.logger, workflow); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.Version = models.InitialVersion
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	normalize(workflow)

	err := w.persistence.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow created", "workflow_id", workflow.ID, "name", workflow.Name)

	return workflow, nil
}

// Update replaces the definition of an existing workflow and bumps its version.
func (w *Workflow) Update(
	ctx context.Context,
	workflowID string,
	workflow *models.Workflow,
) (*models.Workflow, error) {
	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := Validate(w.logger, workflow); err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.Version = models.NextVersion(existing.Version)
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()
	normalize(workflow)

	err = w.persistence.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow by its ID and cancels the schedules bound to it.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if _, err := w.FetchByID(ctx, workflowID); err != nil {
		return err
	}

	err := w.persistence.DeleteWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	if w.schedules == nil {
		return nil
	}

	for _, task := range w.schedules.TasksByWorkflow(workflowID) {
		if err := w.schedules.Cancel(ctx, task.ID); err != nil {
			w.logger.WarnContext(ctx, "Failed to cancel schedule of deleted workflow",
				"workflow_id", workflowID,
				"task_id", task.ID,
				"error", err,
			)
		}
	}

	return nil
}

// Templates returns the built-in templates followed by the stored ones.
func (w *Workflow) Templates(ctx context.Context) ([]*models.Workflow, error) {
	stored, err := w.persistence.Templates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	templates := BuiltinTemplates()
	builtin := make(map[string]struct{}, len(templates))

	for _, template := range templates {
		builtin[template.ID] = struct{}{}
	}

	for _, template := range stored {
		if _, shadowed := builtin[template.ID]; !shadowed {
			templates = append(templates, template)
		}
	}

	return templates, nil
}

// TemplateByID resolves a built-in or stored template.
func (w *Workflow) TemplateByID(ctx context.Context, templateID string) (*models.Workflow, error) {
	for _, template := range BuiltinTemplates() {
		if template.ID == templateID {
			return template, nil
		}
	}

	template, err := w.persistence.TemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if template == nil {
		return nil, notFound("TemplateByID", templateID, ErrTemplateNotFound)
	}

	return template, nil
}

// CreateFromTemplate instantiates a template as a new workflow. variables
// are merged over the template's defaults.
func (w *Workflow) CreateFromTemplate(
	ctx context.Context,
	templateID string,
	name string,
	variables map[string]any,
) (*models.Workflow, error) {
	template, err := w.TemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	workflow := template.Clone()
	if workflow == nil {
		return nil, fmt.Errorf("failed to copy template %s", templateID)
	}

	workflow.Name = cmp.Or(strings.TrimSpace(name), template.Name)
	workflow.Tags = slices.DeleteFunc(workflow.Tags, func(tag string) bool { return tag == "template" })

	if workflow.Variables == nil {
		workflow.Variables = map[string]any{}
	}

	maps.Copy(workflow.Variables, variables)

	return w.Create(ctx, workflow)
}

// SaveAsTemplate stores a copy of an existing workflow as a reusable template.
func (w *Workflow) SaveAsTemplate(ctx context.Context, workflowID string, name string) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	template := workflow.Clone()
	if template == nil {
		return nil, fmt.Errorf("failed to copy workflow %s", workflowID)
	}

	now := time.Now().UTC()
	template.ID = uuid.New().String()
	template.Name = cmp.Or(strings.TrimSpace(name), workflow.Name+" Template")
	template.CreatedAt = now
	template.UpdatedAt = now

	if !template.HasTag("template") {
		template.Tags = append(template.Tags, "template")
	}

	normalize(template)

	if err := w.persistence.SaveTemplate(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	return template, nil
}

// Export renders a stored workflow in format.
func (w *Workflow) Export(ctx context.Context, workflowID string, format Format) ([]byte, error) {
	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return Encode(workflow, format)
}

// Import stores the workflow in data under a new id with fresh timestamps.
// The imported version is kept.
func (w *Workflow) Import(ctx context.Context, data []byte, format Format) (*models.Workflow, error) {
	workflow, err := Decode(data, format)
	if err != nil {
		return nil, err
	}

	if err := Validate(w.logger, workflow); err != nil {
		return nil, err
	}

	version := cmp.Or(workflow.Version, models.InitialVersion)

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.Version = version
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	normalize(workflow)

	if err := w.persistence.SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to import workflow: %w", err)
	}

	return workflow, nil
}

// normalize strips runtime state from steps and fills empty collections.
func normalize(workflow *models.Workflow) {
	for i, step := range workflow.Steps {
		workflow.Steps[i] = step.Definition()
	}

	if workflow.Variables == nil {
		workflow.Variables = map[string]any{}
	}

	if workflow.Tags == nil {
		workflow.Tags = []string{}
	}
}
