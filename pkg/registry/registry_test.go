package registry

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/dukex/conductor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes params" }
func (echoTool) Execute(_ context.Context, params map[string]any) (*models.ToolResult, error) {
	msg, _ := params["message"].(string)

	return models.NewToolResult(msg), nil
}
func (echoTool) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"message"},
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
		},
	}
}

type panicTool struct{}

func (panicTool) Name() string        { return "boom" }
func (panicTool) Description() string { return "panics" }
func (panicTool) Execute(context.Context, map[string]any) (*models.ToolResult, error) {
	panic("kaboom")
}

type writerAgent struct{}

func (writerAgent) Name() string        { return "writer" }
func (writerAgent) Description() string { return "writes things" }
func (writerAgent) Execute(_ context.Context, task string, _ map[string]any) (*models.AgentResult, error) {
	return &models.AgentResult{Success: true, Output: "wrote: " + task}, nil
}

func newTestRegistry() *Registry {
	r := NewRegistry(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	r.RegisterTool(echoTool{})
	r.RegisterTool(panicTool{})
	r.RegisterAgent(writerAgent{})

	return r
}

func TestRegistry_UnknownCapability(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Tool("missing")
	require.Error(t, err)
	assert.True(t, IsUnknownCapability(err))
	assert.Equal(t, "unknown tool: missing", err.Error())

	_, err = r.ExecuteAgent(context.Background(), "ghost", "task", nil)
	require.Error(t, err)

	var capErr *UnknownCapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, KindAgent, capErr.Kind)
	assert.Equal(t, "ghost", capErr.Name)
}

func TestRegistry_ExecuteTool(t *testing.T) {
	r := newTestRegistry()

	result, err := r.ExecuteTool(context.Background(), "echo", map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hi", result.Output)
}

func TestRegistry_ExecuteToolValidatesSchema(t *testing.T) {
	r := newTestRegistry()

	_, err := r.ExecuteTool(context.Background(), "echo", map[string]any{"message": 42})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = r.ExecuteTool(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestRegistry_ExecuteToolRecoversPanic(t *testing.T) {
	r := newTestRegistry()

	result, err := r.ExecuteTool(context.Background(), "boom", nil)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapabilityPanic)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRegistry_ExecuteAgent(t *testing.T) {
	r := newTestRegistry()

	result, err := r.ExecuteAgent(context.Background(), "writer", "a poem", nil)
	require.NoError(t, err)
	assert.Equal(t, "wrote: a poem", result.Output)
}

func TestRegistry_Listings(t *testing.T) {
	r := newTestRegistry()

	tools := r.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "boom", tools[0].Name)
	assert.Equal(t, "echo", tools[1].Name)
	assert.NotNil(t, tools[1].Schema)
	assert.Nil(t, tools[0].Schema)

	agents := r.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, KindAgent, agents[0].Kind)

	msg, ok := r.HealthCheck()
	assert.True(t, ok)
	assert.Equal(t, "2 tools and 1 agents registered", msg)
}
