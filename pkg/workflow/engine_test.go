package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukex/conductor/pkg/events"
	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/registry"
	"github.com/dukex/conductor/pkg/testutil"
	"github.com/dukex/conductor/pkg/tools/calculator"
	"github.com/dukex/conductor/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Emit(_ context.Context, event events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, event)
}

func (l *eventLog) types() []events.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()

	types := make([]events.EventType, 0, len(l.events))
	for _, e := range l.events {
		types = append(types, e.Type)
	}

	return types
}

func (l *eventLog) count(eventType events.EventType) int {
	n := 0

	for _, t := range l.types() {
		if t == eventType {
			n++
		}
	}

	return n
}

type fixture struct {
	registry *registry.Registry
	engine   *workflow.Engine
	events   *eventLog
	failing  *testutil.CountingTool
}

func newFixture(t *testing.T, opts ...workflow.Option) *fixture {
	t.Helper()

	logger := testutil.DiscardLogger()
	reg := registry.NewRegistry(logger)
	reg.RegisterTool(calculator.New(logger))

	failing := &testutil.CountingTool{
		ToolName: "flaky",
		Fn: func(context.Context, map[string]any) (*models.ToolResult, error) {
			return models.NewToolError("service unavailable"), nil
		},
	}
	reg.RegisterTool(failing)

	reg.RegisterTool(&testutil.CountingTool{
		ToolName: "explode",
		Fn: func(context.Context, map[string]any) (*models.ToolResult, error) {
			panic("boom")
		},
	})

	reg.RegisterTool(&testutil.CountingTool{
		ToolName: "echo",
		Fn: func(_ context.Context, params map[string]any) (*models.ToolResult, error) {
			msg, _ := params["message"].(string)

			return models.NewToolResult(msg), nil
		},
	})

	reg.RegisterAgent(&testutil.StaticAgent{
		AgentName: "writer",
		Result:    &models.AgentResult{Success: true, Output: "draft"},
	})

	log := &eventLog{}

	options := append([]workflow.Option{
		workflow.WithEmitter(log),
		workflow.WithRetryBaseDelay(time.Millisecond),
	}, opts...)

	return &fixture{
		registry: reg,
		engine:   workflow.NewEngine(reg, logger, options...),
		events:   log,
		failing:  failing,
	}
}

func add(id string, a, b any, overrides ...func(*models.WorkflowStep)) *models.WorkflowStep {
	return testutil.ToolStep(id, "calculator", map[string]any{"operation": "add", "a": a, "b": b}, overrides...)
}

func stepStatus(execution *models.WorkflowExecution, id string) models.StepStatus {
	for _, step := range execution.Summary().Steps {
		if step.ID == id {
			return step.Status
		}
	}

	return ""
}

func TestEngine_EndToEndCalculator(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(add("s1", 2, 3))

	execution := f.engine.Execute(context.Background(), wf, nil)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, map[string]any{"success": true, "output": "5", "error": nil}, execution.StepResults["s1"])
	assert.Equal(t, execution.StepResults["s1"], execution.Context["s1_output"])
	assert.Empty(t, execution.Error)
	assert.NotNil(t, execution.CompletedAt)
}

func TestEngine_StepOrdering(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(add("first", 1, 1), add("second", 2, 2), add("third", 3, 3), add("fourth", 4, 4))

	execution := f.engine.Execute(context.Background(), wf, map[string]any{})

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, execution.ResultOrder)
	assert.Equal(t, 3, execution.CurrentStep)
	assert.Equal(t, 4, execution.Summary().StepsCompleted)

	assert.Equal(t, []events.EventType{
		events.WorkflowStarted,
		events.StepStarted, events.StepCompleted,
		events.StepStarted, events.StepCompleted,
		events.StepStarted, events.StepCompleted,
		events.StepStarted, events.StepCompleted,
		events.WorkflowCompleted,
	}, f.events.types())
}

func TestEngine_ConditionalSkip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		x        int
		expected models.StepStatus
	}{
		{name: "condition false skips", x: 5, expected: models.StepStatusSkipped},
		{name: "condition true runs", x: 15, expected: models.StepStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			wf := testutil.CreateTestWorkflow(add("guarded", 1, 2, testutil.WithCondition("x > 10")))

			execution := f.engine.Execute(context.Background(), wf, map[string]any{"x": tt.x})

			assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
			assert.Equal(t, tt.expected, stepStatus(execution, "guarded"))
			assert.Empty(t, execution.Summary().Steps[0].Error)

			_, ran := execution.StepResults["guarded"]
			assert.Equal(t, tt.expected == models.StepStatusCompleted, ran)
		})
	}
}

func TestEngine_MalformedConditionIsFalse(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(add("guarded", 1, 2, testutil.WithCondition("x >>> 1")))

	execution := f.engine.Execute(context.Background(), wf, map[string]any{"x": 3})

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, models.StepStatusSkipped, stepStatus(execution, "guarded"))
}

func TestEngine_RetryExhausted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(
		testutil.ToolStep("unstable", "flaky", nil,
			testutil.WithOnError(models.ErrorPolicyRetry), testutil.WithMaxRetries(3)),
		add("after", 1, 1),
	)

	execution := f.engine.Execute(context.Background(), wf, nil)

	assert.Equal(t, 4, f.failing.Calls())
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, models.StepStatusFailed, stepStatus(execution, "unstable"))
	assert.Equal(t, models.StepStatusPending, stepStatus(execution, "after"))
	assert.Contains(t, execution.Error, "service unavailable")
	assert.Equal(t, 4, execution.Summary().Steps[0].Attempts)
	assert.Equal(t, 3, f.events.count(events.StepRetry))
}

func TestEngine_RetrySucceedsEventually(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	var calls int

	f.registry.RegisterTool(&testutil.CountingTool{
		ToolName: "eventually",
		Fn: func(context.Context, map[string]any) (*models.ToolResult, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("not yet")
			}

			return models.NewToolResult("ok"), nil
		},
	})

	wf := testutil.CreateTestWorkflow(testutil.ToolStep("s", "eventually", nil,
		testutil.WithOnError(models.ErrorPolicyRetry), testutil.WithMaxRetries(5)))

	execution := f.engine.Execute(context.Background(), wf, nil)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, f.events.count(events.StepRetry))
}

func TestEngine_FailPolicyDoesNotRetry(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(testutil.ToolStep("unstable", "flaky", nil, testutil.WithMaxRetries(3)))

	execution := f.engine.Execute(context.Background(), wf, nil)

	assert.Equal(t, 1, f.failing.Calls())
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, 1, f.events.count(events.StepFailed))
	assert.Equal(t, 1, f.events.count(events.WorkflowFailed))
}

func TestEngine_SkipPolicy(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(
		testutil.ToolStep("optional", "flaky", nil, testutil.WithOnError(models.ErrorPolicySkip)),
		add("next", 1, 1),
	)

	execution := f.engine.Execute(context.Background(), wf, nil)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, models.StepStatusSkipped, stepStatus(execution, "optional"))
	assert.Equal(t, models.StepStatusCompleted, stepStatus(execution, "next"))
	assert.Contains(t, execution.Summary().Steps[0].Error, "service unavailable")
	assert.Equal(t, []string{"next"}, execution.ResultOrder)
}

func TestEngine_UnknownCapabilityIsNotRetried(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(testutil.ToolStep("ghost", "teleport", nil,
		testutil.WithOnError(models.ErrorPolicyRetry), testutil.WithMaxRetries(3)))

	execution := f.engine.Execute(context.Background(), wf, nil)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.Error, "unknown tool: teleport")
	assert.Equal(t, 1, execution.Summary().Steps[0].Attempts)
	assert.Zero(t, f.events.count(events.StepRetry))
}

func TestEngine_PanickingToolFailsStep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(testutil.ToolStep("bad", "explode", nil))

	execution := f.engine.Execute(context.Background(), wf, nil)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.Error, "boom")
}

func TestEngine_InvalidWorkflowFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(add("a", 1, 1), add("a", 2, 2))

	execution := f.engine.Execute(context.Background(), wf, nil)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.Error, "duplicate step id")
	assert.Empty(t, execution.StepResults)
}

func TestEngine_DefinitionIsNotMutated(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(add("s1", 2, 3))

	execution := f.engine.Execute(context.Background(), wf, nil)

	require.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, models.StepStatusPending, wf.Steps[0].Status)
	assert.Nil(t, wf.Steps[0].Result)
}

func TestEngine_InputsAndPlaceholders(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(
		add("s1", 2, 3),
		testutil.ToolStep("s2", "calculator",
			map[string]any{"operation": "multiply", "a": "{total}", "b": "{factor}"},
			testutil.WithInputs(map[string]string{"total": "s1_output.output"})),
		testutil.ToolStep("s3", "echo", map[string]any{"message": "result is {s2_output.output}"}),
	)
	wf.Variables = map[string]any{"factor": 10}

	execution := f.engine.Execute(context.Background(), wf, nil)

	require.Equal(t, models.ExecutionStatusCompleted, execution.Status, execution.Error)
	assert.Equal(t, "50", execution.StepResults["s2"].(map[string]any)["output"])
	assert.Equal(t, "result is 50", execution.StepResults["s3"].(map[string]any)["output"])
}

func TestEngine_InitialContextOverridesVariables(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(testutil.ToolStep("s", "echo", map[string]any{"message": "{who}"}))
	wf.Variables = map[string]any{"who": "default"}

	execution := f.engine.Execute(context.Background(), wf, map[string]any{"who": "override"})

	assert.Equal(t, "override", execution.StepResults["s"].(map[string]any)["output"])
}

type recorder struct {
	summaries []*models.ExecutionSummary
}

func (r *recorder) Record(_ context.Context, summary *models.ExecutionSummary) error {
	r.summaries = append(r.summaries, summary)

	return nil
}

func TestEngine_RecordsHistory(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	f := newFixture(t, workflow.WithRecorder(rec))

	execution := f.engine.Execute(context.Background(), testutil.CreateTestWorkflow(add("s1", 1, 1)), nil)

	require.Len(t, rec.summaries, 1)
	assert.Equal(t, execution.ID, rec.summaries[0].ExecutionID)
	assert.Equal(t, models.ExecutionStatusCompleted, rec.summaries[0].Status)

	_, err := f.engine.Execution(execution.ID)
	assert.ErrorIs(t, err, workflow.ErrExecutionNotFound)
}

func TestEngine_CancelStopsBeforeNextStep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	release := make(chan struct{})
	started := make(chan struct{})

	f.registry.RegisterTool(&testutil.CountingTool{
		ToolName: "block",
		Fn: func(context.Context, map[string]any) (*models.ToolResult, error) {
			close(started)
			<-release

			return models.NewToolResult("released"), nil
		},
	})

	wf := testutil.CreateTestWorkflow(testutil.ToolStep("slow", "block", nil), add("never", 1, 1))

	execution, done := f.engine.Start(context.Background(), wf, nil)

	<-started
	assert.True(t, f.engine.Cancel(execution.ID))
	assert.False(t, f.engine.Cancel(execution.ID))
	close(release)
	<-done

	assert.Equal(t, models.ExecutionStatusCancelled, execution.CurrentStatus())
	assert.Equal(t, models.StepStatusCompleted, stepStatus(execution, "slow"))
	assert.Equal(t, models.StepStatusPending, stepStatus(execution, "never"))
	assert.Equal(t, 1, f.events.count(events.WorkflowCancelled))
	assert.False(t, f.engine.Cancel("unknown"))
}

func TestEngine_AgentStep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := testutil.CreateTestWorkflow(testutil.CreateTestStep("draft",
		testutil.WithType(models.StepTypeAgent),
		testutil.WithConfig(map[string]any{"agent": "writer", "task": "write about {topic}"})))

	execution := f.engine.Execute(context.Background(), wf, map[string]any{"topic": "go"})

	require.Equal(t, models.ExecutionStatusCompleted, execution.Status, execution.Error)

	result := execution.StepResults["draft"].(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "draft", result["output"])
}
