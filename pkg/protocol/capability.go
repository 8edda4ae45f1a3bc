// Package protocol defines the contracts between the engine and the
// capabilities it invokes.
package protocol

import (
	"context"

	"github.com/dukex/conductor/pkg/models"
)

// Tool is a named capability invoked with keyword parameters.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, params map[string]any) (*models.ToolResult, error)
}

// SchemaProvider is implemented by tools that publish a JSON schema for their parameters.
type SchemaProvider interface {
	Schema() map[string]any
}

// Agent is a specialized worker that carries out a free-form task.
type Agent interface {
	Name() string
	Description() string
	Execute(ctx context.Context, task string, taskContext map[string]any) (*models.AgentResult, error)
}
