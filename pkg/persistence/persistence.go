// Package persistence provides the storage abstraction for workflow definitions and templates.
package persistence

import (
	"context"

	"github.com/dukex/conductor/pkg/models"
)

// Persistence stores workflow definitions and reusable templates. Lookups
// return nil, nil when the document does not exist.
type Persistence interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	Templates(ctx context.Context) ([]*models.Workflow, error)
	SaveTemplate(ctx context.Context, template *models.Workflow) error
	TemplateByID(ctx context.Context, id string) (*models.Workflow, error)

	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
