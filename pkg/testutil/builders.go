// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dukex/conductor/pkg/models"
	"github.com/google/uuid"
)

// CreateTestStep creates a tool step calling the log tool that can be overridden.
func CreateTestStep(id string, overrides ...func(*models.WorkflowStep)) *models.WorkflowStep {
	step := &models.WorkflowStep{
		ID:         id,
		Name:       id,
		Type:       models.StepTypeTool,
		Config:     map[string]any{"tool": "log", "params": map[string]any{"message": "test"}},
		OnError:    models.ErrorPolicyFail,
		MaxRetries: models.DefaultMaxRetries,
		Timeout:    models.DefaultStepTimeoutSeconds,
		Status:     models.StepStatusPending,
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// ToolStep creates a step invoking tool with params.
func ToolStep(id, tool string, params map[string]any, overrides ...func(*models.WorkflowStep)) *models.WorkflowStep {
	step := CreateTestStep(id, WithConfig(map[string]any{"tool": tool, "params": params}))

	for _, override := range overrides {
		override(step)
	}

	return step
}

func WithType(stepType models.StepType) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Type = stepType
	}
}

func WithConfig(config map[string]any) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Config = config
	}
}

func WithCondition(condition string) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Condition = condition
	}
}

func WithOnError(policy models.ErrorPolicy) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.OnError = policy
	}
}

func WithMaxRetries(retries int) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.MaxRetries = retries
	}
}

func WithInputs(inputs map[string]string) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Inputs = inputs
	}
}

// CreateTestWorkflow creates a workflow holding steps with default metadata.
func CreateTestWorkflow(steps ...*models.WorkflowStep) *models.Workflow {
	now := time.Now().UTC()

	return &models.Workflow{
		ID:          uuid.NewString(),
		Name:        "Test Workflow",
		Description: "A test workflow",
		Version:     models.InitialVersion,
		Steps:       steps,
		Variables:   map[string]any{},
		Tags:        []string{"test"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// DiscardLogger returns a logger that writes nowhere.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CountingTool is a tool whose behaviour is given by a function. It counts its calls.
type CountingTool struct {
	ToolName string
	Fn       func(ctx context.Context, params map[string]any) (*models.ToolResult, error)
	calls    atomic.Int64
}

func (t *CountingTool) Name() string        { return t.ToolName }
func (t *CountingTool) Description() string { return "test tool " + t.ToolName }

func (t *CountingTool) Execute(ctx context.Context, params map[string]any) (*models.ToolResult, error) {
	t.calls.Add(1)

	return t.Fn(ctx, params)
}

func (t *CountingTool) Calls() int {
	return int(t.calls.Load())
}

// StaticAgent answers every task with a fixed result.
type StaticAgent struct {
	AgentName string
	Result    *models.AgentResult
	Err       error
	calls     atomic.Int64
}

func (a *StaticAgent) Name() string        { return a.AgentName }
func (a *StaticAgent) Description() string { return "test agent " + a.AgentName }

func (a *StaticAgent) Execute(context.Context, string, map[string]any) (*models.AgentResult, error) {
	a.calls.Add(1)

	return a.Result, a.Err
}

func (a *StaticAgent) Calls() int {
	return int(a.calls.Load())
}
