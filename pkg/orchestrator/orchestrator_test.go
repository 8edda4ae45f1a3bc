package orchestrator_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dukex/conductor/pkg/events"
	"github.com/dukex/conductor/pkg/llm"
	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/orchestrator"
	"github.com/dukex/conductor/pkg/protocol"
	"github.com/dukex/conductor/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plannerClient answers the first call with plan and every later call with
// the synthesis text.
type plannerClient struct {
	mu        sync.Mutex
	plan      string
	planErr   error
	synthesis string
	synthErr  error
	calls     [][]llm.Message
}

func (c *plannerClient) Chat(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition) (*llm.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, messages)

	if len(c.calls) == 1 {
		if c.planErr != nil {
			return nil, c.planErr
		}

		return &llm.Message{Role: llm.RoleAssistant, Content: c.plan}, nil
	}

	if c.synthErr != nil {
		return nil, c.synthErr
	}

	return &llm.Message{Role: llm.RoleAssistant, Content: c.synthesis}, nil
}

// roleAgent answers per task description and records what it saw.
type roleAgent struct {
	role    string
	mu      sync.Mutex
	tasks   []string
	seen    []map[string]any
	fail    map[string]bool
	panicOn string
}

func (a *roleAgent) Name() string        { return a.role }
func (a *roleAgent) Description() string { return a.role }

func (a *roleAgent) Execute(_ context.Context, task string, taskContext map[string]any) (*models.AgentResult, error) {
	a.mu.Lock()
	a.tasks = append(a.tasks, task)
	a.seen = append(a.seen, taskContext)
	a.mu.Unlock()

	if task == a.panicOn {
		panic("agent exploded")
	}

	if a.fail[task] {
		return &models.AgentResult{Success: false, Error: task + " failed"}, nil
	}

	return &models.AgentResult{Success: true, Output: strings.ToUpper(task)}, nil
}

type collector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collector) Emit(_ context.Context, event events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)
}

func (c *collector) types() []events.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()

	types := make([]events.EventType, 0, len(c.events))
	for _, event := range c.events {
		types = append(types, event.Type)
	}

	return types
}

func decomposition(t *testing.T, result *models.AgentResult) *orchestrator.Decomposition {
	t.Helper()

	d, ok := result.Artifacts["decomposition"].(*orchestrator.Decomposition)
	require.True(t, ok)

	return d
}

func TestOrchestrator_DependencyWaves(t *testing.T) {
	t.Parallel()

	client := &plannerClient{
		plan: "Plan:\n```json\n" + `{"analysis": "two steps", "subtasks": [
			{"id": "find", "description": "find", "agent": "researcher", "dependencies": []},
			{"id": "crunch", "description": "crunch", "agent": "analyst", "dependencies": ["find"]},
			{"id": "side", "description": "side", "agent": "coder"}
		]}` + "\n```",
		synthesis: "final answer",
	}

	researcher := &roleAgent{role: "researcher"}
	analyst := &roleAgent{role: "analyst"}
	coder := &roleAgent{role: "coder"}
	sink := &collector{}

	o := orchestrator.New(client, []protocol.Agent{researcher, analyst, coder}, testutil.DiscardLogger())
	result := o.Run(context.Background(), "big task", map[string]any{"user": "ada"}, sink)

	require.True(t, result.Success)
	assert.Equal(t, "final answer", result.Output)
	assert.Equal(t, 2, result.Artifacts["waves"])

	d := decomposition(t, result)
	assert.Equal(t, "two steps", d.Analysis)
	assert.Len(t, d.Completed, 3)

	require.Len(t, analyst.seen, 1)
	assert.Equal(t, "FIND", analyst.seen[0]["result_find"])
	assert.Equal(t, "ada", analyst.seen[0]["user"])

	require.Len(t, coder.seen, 1)
	assert.NotContains(t, coder.seen[0], "result_find")

	require.Len(t, client.calls, 2)
	assert.Contains(t, client.calls[1][1].Content, "CRUNCH")

	types := sink.types()
	assert.Equal(t, events.OrchestratorStart, types[0])
	assert.Equal(t, events.TaskDecomposed, types[1])
	assert.Equal(t, events.OrchestratorComplete, types[len(types)-1])
	assert.NotContains(t, types, events.ExecutionBlocked)
}

func TestOrchestrator_FailedDependencyStillRuns(t *testing.T) {
	t.Parallel()

	client := &plannerClient{
		plan: `{"subtasks": [
			{"id": "a", "description": "a", "agent": "researcher"},
			{"id": "b", "description": "b", "agent": "researcher", "dependencies": ["a"]},
			{"id": "c", "description": "c", "agent": "researcher"}
		]}`,
		synthesis: "partial",
	}

	researcher := &roleAgent{role: "researcher", fail: map[string]bool{"a": true}}
	sink := &collector{}

	result := orchestrator.New(client, []protocol.Agent{researcher}, testutil.DiscardLogger()).
		Run(context.Background(), "task", nil, sink)

	require.True(t, result.Success)
	assert.Equal(t, "partial", result.Output)
	assert.Equal(t, 2, result.Artifacts["waves"])

	d := decomposition(t, result)
	assert.Len(t, d.Completed, 3)
	assert.Len(t, d.Failed, 1)
	assert.Contains(t, d.Failed, "a")
	assert.Equal(t, orchestrator.SubtaskFailed, d.Subtasks[0].Status)
	assert.Equal(t, orchestrator.SubtaskCompleted, d.Subtasks[1].Status)
	assert.Equal(t, 0, d.Pending())
	require.Len(t, researcher.tasks, 3)
	assert.ElementsMatch(t, []string{"a", "c"}, researcher.tasks[:2])
	assert.Equal(t, "b", researcher.tasks[2])
	assert.Contains(t, researcher.seen[2], "result_a")
	assert.NotContains(t, sink.types(), events.ExecutionBlocked)

	synthesisInput := client.calls[1][1].Content
	assert.Contains(t, synthesisInput, "a failed")
	assert.Contains(t, synthesisInput, `"task": "b"`)
}

func TestOrchestrator_GeneratedIDsDoNotCollide(t *testing.T) {
	t.Parallel()

	client := &plannerClient{
		plan: `{"subtasks": [
			{"id": "task_2", "description": "alpha", "agent": "researcher"},
			{"description": "beta", "agent": "researcher"}
		]}`,
		synthesis: "done",
	}

	researcher := &roleAgent{role: "researcher"}

	result := orchestrator.New(client, []protocol.Agent{researcher}, testutil.DiscardLogger()).
		Run(context.Background(), "task", nil, nil)

	require.True(t, result.Success)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, researcher.tasks)
	assert.Equal(t, 1, result.Artifacts["waves"])

	d := decomposition(t, result)
	require.Len(t, d.Subtasks, 2)
	assert.Equal(t, "task_2", d.Subtasks[0].ID)
	assert.Equal(t, "task_3", d.Subtasks[1].ID)
	assert.Len(t, d.Completed, 2)
	assert.Equal(t, 0, d.Pending())
}

func TestOrchestrator_MissingDependencyDeadlocks(t *testing.T) {
	t.Parallel()

	client := &plannerClient{
		plan:      `{"subtasks": [{"id": "x", "description": "x", "agent": "coder", "dependencies": ["ghost"]}]}`,
		synthesis: "nothing done",
	}

	coder := &roleAgent{role: "coder"}

	result := orchestrator.New(client, []protocol.Agent{coder}, testutil.DiscardLogger()).
		Run(context.Background(), "task", nil, nil)

	require.True(t, result.Success)
	assert.Empty(t, coder.tasks)
	assert.Equal(t, 0, result.Artifacts["waves"])
}

func TestOrchestrator_CyclicDependenciesTerminate(t *testing.T) {
	t.Parallel()

	client := &plannerClient{
		plan: `{"subtasks": [
			{"id": "a", "description": "a", "agent": "researcher", "dependencies": ["b"]},
			{"id": "b", "description": "b", "agent": "researcher", "dependencies": ["a"]},
			{"id": "c", "description": "c", "agent": "researcher"}
		]}`,
		synthesis: "partial",
	}

	researcher := &roleAgent{role: "researcher"}
	sink := &collector{}

	result := orchestrator.New(client, []protocol.Agent{researcher}, testutil.DiscardLogger()).
		Run(context.Background(), "task", nil, sink)

	require.True(t, result.Success)
	assert.Equal(t, "partial", result.Output)
	assert.Equal(t, []string{"c"}, researcher.tasks)

	d := decomposition(t, result)
	assert.Len(t, d.Completed, 1)
	assert.Contains(t, sink.types(), events.ExecutionBlocked)
}

func TestOrchestrator_FallbackDecomposition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		plan    string
		planErr error
	}{
		{name: "prose", plan: "I would simply search the web."},
		{name: "broken json", plan: `{"subtasks": [ {"id": }`},
		{name: "empty plan", plan: `{"subtasks": []}`},
		{name: "llm error", planErr: errors.New("provider down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &plannerClient{plan: tt.plan, planErr: tt.planErr, synthesis: "done"}
			researcher := &roleAgent{role: "researcher"}

			result, err := orchestrator.New(client, []protocol.Agent{researcher}, testutil.DiscardLogger()).
				Execute(context.Background(), "what is go", nil)
			require.NoError(t, err)

			require.True(t, result.Success)
			assert.Equal(t, []string{"what is go"}, researcher.tasks)

			d := decomposition(t, result)
			require.Len(t, d.Subtasks, 1)
			assert.Equal(t, "task_1", d.Subtasks[0].ID)
		})
	}
}

func TestOrchestrator_AgentFailuresStayLocal(t *testing.T) {
	t.Parallel()

	client := &plannerClient{
		plan: `{"subtasks": [
			{"id": "boom", "description": "boom", "agent": "executor"},
			{"id": "nobody", "description": "nobody", "agent": "analyst"},
			{"id": "fine", "description": "fine", "agent": "executor"}
		]}`,
		synthesis: "ok",
	}

	executor := &roleAgent{role: "executor", panicOn: "boom"}

	result := orchestrator.New(client, []protocol.Agent{executor}, testutil.DiscardLogger()).
		Run(context.Background(), "task", nil, nil)

	require.True(t, result.Success)

	d := decomposition(t, result)
	assert.Contains(t, d.Failed["boom"].Error, "agent panicked")
	assert.Equal(t, "no agent available for role: analyst", d.Failed["nobody"].Error)
	assert.Contains(t, d.Completed, "fine")
}

func TestOrchestrator_UnknownRoleMapsToResearcher(t *testing.T) {
	t.Parallel()

	client := &plannerClient{
		plan:      `{"subtasks": [{"id": "p", "description": "poem", "agent": "poet"}]}`,
		synthesis: "ok",
	}

	researcher := &roleAgent{role: "researcher"}

	orchestrator.New(client, []protocol.Agent{researcher}, testutil.DiscardLogger()).
		Run(context.Background(), "task", nil, nil)

	assert.Equal(t, []string{"poem"}, researcher.tasks)
}

func TestOrchestrator_SynthesisFailure(t *testing.T) {
	t.Parallel()

	client := &plannerClient{
		plan:     `{"subtasks": [{"id": "a", "description": "a", "agent": "researcher"}]}`,
		synthErr: errors.New("rate limited"),
	}
	sink := &collector{}

	result := orchestrator.New(client, []protocol.Agent{&roleAgent{role: "researcher"}}, testutil.DiscardLogger()).
		Run(context.Background(), "task", nil, sink)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "rate limited")
	assert.Contains(t, sink.types(), events.OrchestratorError)
}

func TestOrchestrator_WaveCap(t *testing.T) {
	t.Parallel()

	client := &plannerClient{
		plan: `{"subtasks": [
			{"id": "1", "description": "1", "agent": "coder"},
			{"id": "2", "description": "2", "agent": "coder", "dependencies": ["1"]},
			{"id": "3", "description": "3", "agent": "coder", "dependencies": ["2"]}
		]}`,
		synthesis: "ok",
	}

	coder := &roleAgent{role: "coder"}

	result := orchestrator.New(client, []protocol.Agent{coder}, testutil.DiscardLogger(), orchestrator.WithMaxWaves(2)).
		Run(context.Background(), "task", nil, nil)

	assert.Equal(t, []string{"1", "2"}, coder.tasks)
	assert.Equal(t, 2, result.Artifacts["waves"])
}

func TestOrchestrator_TruncatesSynthesisInput(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 1500)
	client := &plannerClient{
		plan:      `{"subtasks": [{"id": "a", "description": "` + long + `", "agent": "researcher"}]}`,
		synthesis: "ok",
	}

	orchestrator.New(client, []protocol.Agent{&roleAgent{role: "researcher"}}, testutil.DiscardLogger()).
		Run(context.Background(), "task", nil, nil)

	synthesisInput := client.calls[1][1].Content
	assert.Contains(t, synthesisInput, strings.Repeat("X", 1000))
	assert.NotContains(t, synthesisInput, strings.Repeat("X", 1001))
}
