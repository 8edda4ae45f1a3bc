package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/testutil"
	"github.com/dukex/conductor/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typed(id string, stepType models.StepType, config map[string]any) *models.WorkflowStep {
	return testutil.CreateTestStep(id, testutil.WithType(stepType), testutil.WithConfig(config))
}

func resultOf(t *testing.T, execution *models.WorkflowExecution, stepID string) map[string]any {
	t.Helper()

	result, ok := execution.StepResults[stepID].(map[string]any)
	require.True(t, ok, "no result for %s: %s", stepID, execution.Error)

	return result
}

func TestEngine_ParallelCapturesEachFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(typed("fanout", models.StepTypeParallel, map[string]any{
		"max_concurrency": 2,
		"tasks": []any{
			map[string]any{"type": "tool", "tool": "calculator", "params": map[string]any{"operation": "add", "a": 1, "b": 2}},
			map[string]any{"type": "tool", "tool": "teleport"},
			map[string]any{"type": "agent", "agent": "writer", "task": "summarize"},
			"not a task",
		},
	}))

	execution := f.engine.Execute(context.Background(), wf, nil)

	require.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	results, ok := resultOf(t, execution, "fanout")["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 4)

	assert.Equal(t, "3", results[0].(map[string]any)["output"])
	assert.Equal(t, false, results[1].(map[string]any)["success"])
	assert.Contains(t, results[1].(map[string]any)["error"], "unknown tool: teleport")
	assert.Equal(t, "draft", results[2].(map[string]any)["output"])
	assert.Equal(t, false, results[3].(map[string]any)["success"])
}

func TestEngine_LoopBindsVariable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(typed("each", models.StepTypeLoop, map[string]any{
		"items":    "{numbers}",
		"variable": "n",
		"body":     map[string]any{"tool": "calculator", "params": map[string]any{"operation": "add", "a": "{n}", "b": 10}},
	}))

	execution := f.engine.Execute(context.Background(), wf, map[string]any{"numbers": []any{1, 2, 3}})

	require.Equal(t, models.ExecutionStatusCompleted, execution.Status, execution.Error)

	results := resultOf(t, execution, "each")["results"].([]any)
	require.Len(t, results, 3)

	outputs := make([]any, 0, len(results))
	for _, r := range results {
		outputs = append(outputs, r.(map[string]any)["output"])
	}

	assert.Equal(t, []any{"11", "12", "13"}, outputs)
	assert.Equal(t, 3, execution.Context["n"])
}

func TestEngine_LoopIterationFailureFailsStep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(typed("each", models.StepTypeLoop, map[string]any{
		"items": []any{2, 0},
		"body":  map[string]any{"tool": "calculator", "params": map[string]any{"operation": "divide", "a": 10, "b": "{item}"}},
	}))

	execution := f.engine.Execute(context.Background(), wf, nil)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.Error, "loop iteration 1")
	assert.Contains(t, execution.Error, "division by zero")
}

func TestEngine_LoopRejectsNonList(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(typed("each", models.StepTypeLoop, map[string]any{
		"items": "{missing}",
		"body":  map[string]any{"tool": "calculator"},
	}))

	execution := f.engine.Execute(context.Background(), wf, nil)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.Error, "loop items must be a list")
}

func TestEngine_ConditionStep(t *testing.T) {
	t.Parallel()

	branches := map[string]any{
		"condition": "check_output.success",
		"then":      map[string]any{"tool": "echo", "params": map[string]any{"message": "yes"}},
		"else":      map[string]any{"tool": "echo", "params": map[string]any{"message": "no"}},
	}

	tests := []struct {
		name     string
		check    *models.WorkflowStep
		config   map[string]any
		expected map[string]any
	}{
		{
			name:     "then branch",
			check:    testutil.ToolStep("check", "echo", map[string]any{"message": "ok"}),
			config:   branches,
			expected: map[string]any{"success": true, "output": "yes", "error": nil},
		},
		{
			name:     "else branch when guard variable is missing",
			check:    testutil.ToolStep("check", "flaky", nil, testutil.WithOnError(models.ErrorPolicySkip)),
			config:   branches,
			expected: map[string]any{"success": true, "output": "no", "error": nil},
		},
		{
			name:  "no else branch",
			check: testutil.ToolStep("check", "echo", map[string]any{"message": "ok"}),
			config: map[string]any{
				"condition": "check_output.output == 'nope'",
				"then":      map[string]any{"tool": "echo", "params": map[string]any{"message": "yes"}},
			},
			expected: map[string]any{"skipped": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			wf := testutil.CreateTestWorkflow(tt.check, typed("branch", models.StepTypeCondition, tt.config))

			execution := f.engine.Execute(context.Background(), wf, nil)

			require.Equal(t, models.ExecutionStatusCompleted, execution.Status, execution.Error)
			assert.Equal(t, tt.expected, resultOf(t, execution, "branch"))
		})
	}
}

func TestEngine_TransformPipeline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(
		typed("parse", models.StepTypeTransform, map[string]any{
			"transform": "json_parse",
			"input":     `{"name": "ada", "langs": ["go"]}`,
		}),
		typed("name", models.StepTypeTransform, map[string]any{
			"transform": "extract",
			"input":     "{parse_output.result}",
			"key":       "name",
		}),
		typed("greet", models.StepTypeTransform, map[string]any{
			"transform": "template",
			"template":  "{{ .greeting }} {name_output.result}",
		}),
		typed("langs", models.StepTypeTransform, map[string]any{
			"transform": "json_stringify",
			"input":     "{parse_output.result.langs}",
		}),
		typed("passthrough", models.StepTypeTransform, map[string]any{
			"transform": "reverse",
			"input":     "as is",
		}),
	)

	execution := f.engine.Execute(context.Background(), wf, map[string]any{"greeting": "Hello"})

	require.Equal(t, models.ExecutionStatusCompleted, execution.Status, execution.Error)
	assert.Equal(t, "ada", resultOf(t, execution, "name")["result"])
	assert.Equal(t, "Hello ada", resultOf(t, execution, "greet")["result"])
	assert.Equal(t, `["go"]`, resultOf(t, execution, "langs")["result"])
	assert.Equal(t, "as is", resultOf(t, execution, "passthrough")["result"])
}

func TestEngine_TransformParseErrorFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(typed("parse", models.StepTypeTransform, map[string]any{
		"transform": "json_parse",
		"input":     "{not json",
	}))

	execution := f.engine.Execute(context.Background(), wf, nil)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.Error, "json_parse")
}

func TestEngine_Wait(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(
		typed("pause", models.StepTypeWait, map[string]any{"seconds": 0.01}),
		typed("ready", models.StepTypeWait, map[string]any{"mode": "condition", "condition": "ready == true"}),
		typed("never", models.StepTypeWait, map[string]any{
			"type": "condition", "condition": "ready == false", "timeout": 0.03, "interval": 0.01,
		}),
	)

	started := time.Now()
	execution := f.engine.Execute(context.Background(), wf, map[string]any{"ready": true})

	require.Equal(t, models.ExecutionStatusCompleted, execution.Status, execution.Error)
	assert.GreaterOrEqual(t, time.Since(started), 10*time.Millisecond)
	assert.Equal(t, map[string]any{"waited": 0.01}, resultOf(t, execution, "pause"))
	assert.Equal(t, map[string]any{"condition_met": true, "elapsed": 0.0}, resultOf(t, execution, "ready"))
	assert.Equal(t, map[string]any{"condition_met": false, "timeout": true}, resultOf(t, execution, "never"))
}

func TestEngine_StepTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, workflow.WithDefaultTimeout(20*time.Millisecond))
	f.registry.RegisterTool(&testutil.CountingTool{
		ToolName: "hang",
		Fn: func(ctx context.Context, _ map[string]any) (*models.ToolResult, error) {
			<-ctx.Done()

			return nil, ctx.Err()
		},
	})

	step := testutil.ToolStep("stuck", "hang", nil, func(s *models.WorkflowStep) { s.Timeout = 0 })
	execution := f.engine.Execute(context.Background(), testutil.CreateTestWorkflow(step), nil)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.Error, "step timed out after 20ms")
}
