package orchestrator_test

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/orchestrator"
	"github.com/dukex/conductor/pkg/protocol"
	"github.com/dukex/conductor/pkg/testutil"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// causalAgent fails the run if a subtask starts before one of its
// dependencies finished.
type causalAgent struct {
	deps      map[string][]string
	fail      map[string]bool
	mu        sync.Mutex
	finished  map[string]bool
	started   []string
	violation string
}

func (a *causalAgent) Name() string        { return "researcher" }
func (a *causalAgent) Description() string { return "causal" }

func (a *causalAgent) Execute(_ context.Context, task string, _ map[string]any) (*models.AgentResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.started = append(a.started, task)

	for _, dep := range a.deps[task] {
		if !a.finished[dep] {
			a.violation = fmt.Sprintf("%s started before %s finished", task, dep)
		}
	}

	a.finished[task] = true

	if a.fail[task] {
		return &models.AgentResult{Success: false, Error: "failed"}, nil
	}

	return &models.AgentResult{Success: true, Output: task}, nil
}

func TestOrchestrator_ReadySetProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "subtasks")

		deps := make(map[string][]string, n)
		fail := make(map[string]bool, n)

		type subtaskPlan struct {
			ID           string   `json:"id"`
			Description  string   `json:"description"`
			Agent        string   `json:"agent"`
			Dependencies []string `json:"dependencies"`
		}

		plan := struct {
			Subtasks []subtaskPlan `json:"subtasks"`
		}{}

		for i := range n {
			id := fmt.Sprintf("t%d", i)

			for j := range i {
				if rapid.Bool().Draw(rt, fmt.Sprintf("dep_%d_%d", i, j)) {
					deps[id] = append(deps[id], fmt.Sprintf("t%d", j))
				}
			}

			fail[id] = rapid.IntRange(0, 3).Draw(rt, "fail_"+id) == 0
			plan.Subtasks = append(plan.Subtasks, subtaskPlan{ID: id, Description: id, Agent: "researcher", Dependencies: deps[id]})
		}

		encoded, err := json.Marshal(plan)
		if err != nil {
			rt.Fatal(err)
		}

		agent := &causalAgent{deps: deps, fail: fail, finished: map[string]bool{}}
		client := &plannerClient{plan: string(encoded), synthesis: "ok"}

		result := orchestrator.New(client, []protocol.Agent{agent}, testutil.DiscardLogger()).
			Run(context.Background(), "task", nil, nil)

		if agent.violation != "" {
			rt.Fatal(agent.violation)
		}

		// Dependencies always point to earlier subtasks and failures do not
		// block dependants, so every subtask runs exactly once.
		if len(agent.started) != n {
			rt.Fatalf("started %v, expected %d subtasks", agent.started, n)
		}

		sorted := slices.Clone(agent.started)
		slices.Sort(sorted)

		if len(slices.Compact(sorted)) != n {
			rt.Fatalf("a subtask ran twice: %v", agent.started)
		}

		d, ok := result.Artifacts["decomposition"].(*orchestrator.Decomposition)
		if !ok {
			rt.Fatal("missing decomposition")
		}

		if d.Pending() != 0 || len(d.Completed) != n {
			rt.Fatalf("pending %d, completed %d, want 0 and %d", d.Pending(), len(d.Completed), n)
		}

		failed := 0

		for _, f := range fail {
			if f {
				failed++
			}
		}

		if len(d.Failed) != failed {
			rt.Fatalf("failed %d, want %d", len(d.Failed), failed)
		}
	})
}

func TestDecomposition_AddGeneratesIDs(t *testing.T) {
	t.Parallel()

	d := orchestrator.NewDecomposition("task")
	first := d.Add("", "a", "researcher", nil)
	second := d.Add("task_1", "b", "researcher", nil)

	require.Equal(t, "task_1", first.ID)
	require.Equal(t, "task_2", second.ID)

	d = orchestrator.NewDecomposition("task")
	named := d.Add("task_2", "alpha", "researcher", nil)
	generated := d.Add("", "beta", "researcher", nil)
	next := d.Add("", "gamma", "researcher", nil)

	require.Equal(t, "task_2", named.ID)
	require.Equal(t, "task_3", generated.ID)
	require.Equal(t, "task_4", next.ID)
}
