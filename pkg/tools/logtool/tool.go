// Package logtool provides a tool that writes a message to the structured log.
package logtool

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/conductor/pkg/log"
	"github.com/dukex/conductor/pkg/models"
)

const Name = "log"

type Tool struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Tool {
	return &Tool{logger: logger.With("module", "log_tool")}
}

func (t *Tool) Name() string {
	return Name
}

func (t *Tool) Description() string {
	return "Writes a message to the log and returns it as output."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{},
			"level":   map[string]any{"type": "string", "enum": []any{"debug", "info", "warn", "error"}},
		},
		"required": []any{"message"},
	}
}

func (t *Tool) Execute(ctx context.Context, params map[string]any) (*models.ToolResult, error) {
	message := fmt.Sprintf("%v", params["message"])

	level := slog.LevelInfo
	if raw, ok := params["level"].(string); ok {
		level = log.ParseLevel(raw)
	}

	t.logger.Log(ctx, level, "Workflow log", "message", message)

	return models.NewToolResult(message), nil
}
