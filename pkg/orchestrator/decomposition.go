package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/dukex/conductor/pkg/agents"
	"github.com/dukex/conductor/pkg/llm"
	"github.com/dukex/conductor/pkg/models"
)

type SubtaskStatus string

const (
	SubtaskPending   SubtaskStatus = "pending"
	SubtaskCompleted SubtaskStatus = "completed"
	SubtaskFailed    SubtaskStatus = "failed"
)

type Subtask struct {
	ID           string        `json:"id"`
	Description  string        `json:"description"`
	Agent        agents.Role   `json:"agent"`
	Dependencies []string      `json:"dependencies"`
	Status       SubtaskStatus `json:"status"`
}

// Decomposition is the plan for one orchestrated task. Completed holds every
// finished subtask, successful or not, and Failed repeats the failures. A
// subtask becomes ready once every dependency is in Completed.
type Decomposition struct {
	Task      string                         `json:"task"`
	Analysis  string                         `json:"analysis,omitempty"`
	Subtasks  []*Subtask                     `json:"subtasks"`
	Completed map[string]*models.AgentResult `json:"completed"`
	Failed    map[string]*models.AgentResult `json:"failed"`
}

func NewDecomposition(task string) *Decomposition {
	return &Decomposition{
		Task:      task,
		Subtasks:  make([]*Subtask, 0),
		Completed: make(map[string]*models.AgentResult),
		Failed:    make(map[string]*models.AgentResult),
	}
}

// Add appends a subtask. Empty or repeated ids get a generated one.
func (d *Decomposition) Add(id, description string, role agents.Role, dependencies []string) *Subtask {
	if id == "" || d.subtask(id) != nil {
		n := len(d.Subtasks) + 1
		for d.subtask(fmt.Sprintf("task_%d", n)) != nil {
			n++
		}

		id = fmt.Sprintf("task_%d", n)
	}

	if dependencies == nil {
		dependencies = []string{}
	}

	subtask := &Subtask{
		ID:           id,
		Description:  description,
		Agent:        role,
		Dependencies: dependencies,
		Status:       SubtaskPending,
	}
	d.Subtasks = append(d.Subtasks, subtask)

	return subtask
}

// Ready lists the pending subtasks whose dependencies have all finished.
func (d *Decomposition) Ready() []*Subtask {
	var ready []*Subtask

	for _, subtask := range d.Subtasks {
		if subtask.Status != SubtaskPending {
			continue
		}

		satisfied := true

		for _, dep := range subtask.Dependencies {
			if _, ok := d.Completed[dep]; !ok {
				satisfied = false

				break
			}
		}

		if satisfied {
			ready = append(ready, subtask)
		}
	}

	return ready
}

// Record stores the outcome of a subtask.
func (d *Decomposition) Record(id string, result *models.AgentResult) {
	subtask := d.subtask(id)
	if subtask == nil {
		return
	}

	d.Completed[id] = result

	if result.Success {
		subtask.Status = SubtaskCompleted

		return
	}

	subtask.Status = SubtaskFailed
	d.Failed[id] = result
}

// Finished reports whether no subtask is still pending.
func (d *Decomposition) Finished() bool {
	return d.Pending() == 0
}

func (d *Decomposition) Pending() int {
	pending := 0

	for _, subtask := range d.Subtasks {
		if subtask.Status == SubtaskPending {
			pending++
		}
	}

	return pending
}

// Result returns the recorded outcome of a subtask, successful or not.
func (d *Decomposition) Result(id string) (*models.AgentResult, bool) {
	result, ok := d.Completed[id]

	return result, ok
}

func (d *Decomposition) subtask(id string) *Subtask {
	for _, subtask := range d.Subtasks {
		if subtask.ID == id {
			return subtask
		}
	}

	return nil
}

type plan struct {
	Analysis string `json:"analysis"`
	Subtasks []struct {
		ID           string   `json:"id"`
		Description  string   `json:"description"`
		Agent        string   `json:"agent"`
		Dependencies []string `json:"dependencies"`
	} `json:"subtasks"`
}

// ParseDecomposition reads the model's JSON plan. Anything unusable yields a
// single researcher subtask covering the whole task.
func ParseDecomposition(task, content string) (*Decomposition, bool) {
	decomposition := NewDecomposition(task)

	var p plan

	raw, ok := llm.ExtractJSONObject(content)
	if ok {
		ok = json.Unmarshal([]byte(raw), &p) == nil && len(p.Subtasks) > 0
	}

	if !ok {
		decomposition.Add("task_1", task, agents.RoleResearcher, nil)

		return decomposition, false
	}

	decomposition.Analysis = p.Analysis

	for _, s := range p.Subtasks {
		description := s.Description
		if description == "" {
			description = task
		}

		decomposition.Add(s.ID, description, agents.ParseRole(s.Agent), s.Dependencies)
	}

	return decomposition, true
}
