package models

import (
	"maps"
	"sync"
	"time"
)

type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

func (s ExecutionStatus) Terminal() bool {
	return s != ExecutionStatusRunning && s != ""
}

// WorkflowExecution is one run of a workflow. The engine's execution loop is
// the only writer; every other reader goes through Summary or the accessors.
type WorkflowExecution struct {
	mu sync.RWMutex

	ID           string
	WorkflowID   string
	WorkflowName string
	Status       ExecutionStatus
	CurrentStep  int
	Context      map[string]any
	StepResults  map[string]any
	ResultOrder  []string
	Steps        []*WorkflowStep
	Error        string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// NewWorkflowExecution seeds the context with the workflow variables overridden
// by the caller supplied values.
func NewWorkflowExecution(id string, workflow *Workflow, initial map[string]any) *WorkflowExecution {
	context := make(map[string]any, len(workflow.Variables)+len(initial))
	maps.Copy(context, workflow.Variables)
	maps.Copy(context, initial)

	return &WorkflowExecution{
		ID:           id,
		WorkflowID:   workflow.ID,
		WorkflowName: workflow.Name,
		Status:       ExecutionStatusRunning,
		Context:      context,
		StepResults:  make(map[string]any),
		Steps:        workflow.Steps,
		StartedAt:    time.Now().UTC(),
	}
}

func (e *WorkflowExecution) CurrentStatus() ExecutionStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.Status
}

// Cancel marks a running execution cancelled and reports whether it did.
func (e *WorkflowExecution) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Status != ExecutionStatusRunning {
		return false
	}

	e.Status = ExecutionStatusCancelled

	return true
}

// Finish moves a running execution to status. A cancelled execution stays cancelled.
func (e *WorkflowExecution) Finish(status ExecutionStatus, errMsg string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	e.CompletedAt = &now

	if e.Status == ExecutionStatusRunning {
		e.Status = status
		e.Error = errMsg
	}
}

func (e *WorkflowExecution) SetCurrentStep(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.CurrentStep = index
}

// RecordResult stores the result of a step and exposes it as "{step_id}_output".
func (e *WorkflowExecution) RecordResult(stepID string, result any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.StepResults[stepID]; !exists {
		e.ResultOrder = append(e.ResultOrder, stepID)
	}

	e.StepResults[stepID] = result
	e.Context[stepID+"_output"] = result
}

func (e *WorkflowExecution) SetVariable(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Context[key] = value
}

// ContextSnapshot returns a shallow copy of the context safe to hand to
// concurrently running capabilities.
func (e *WorkflowExecution) ContextSnapshot() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return maps.Clone(e.Context)
}

// UpdateStep runs fn with the execution lock held so readers never observe a
// half-written step.
func (e *WorkflowExecution) UpdateStep(step *WorkflowStep, fn func(step *WorkflowStep)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn(step)
}

type StepSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        StepType   `json:"type"`
	Status      StepStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ExecutionSummary is the caller visible snapshot of an execution.
type ExecutionSummary struct {
	ExecutionID    string          `json:"execution_id"`
	WorkflowID     string          `json:"workflow_id"`
	WorkflowName   string          `json:"workflow_name"`
	Status         ExecutionStatus `json:"status"`
	CurrentStep    int             `json:"current_step"`
	StepsCompleted int             `json:"steps_completed"`
	Steps          []StepSummary   `json:"steps"`
	StepResults    map[string]any  `json:"step_results,omitempty"`
	ResultOrder    []string        `json:"result_order,omitempty"`
	Error          string          `json:"error,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Duration       float64         `json:"duration"`
}

func (e *WorkflowExecution) Summary() *ExecutionSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	summary := &ExecutionSummary{
		ExecutionID:    e.ID,
		WorkflowID:     e.WorkflowID,
		WorkflowName:   e.WorkflowName,
		Status:         e.Status,
		CurrentStep:    e.CurrentStep,
		StepsCompleted: len(e.StepResults),
		Steps:          make([]StepSummary, 0, len(e.Steps)),
		StepResults:    maps.Clone(e.StepResults),
		ResultOrder:    append([]string(nil), e.ResultOrder...),
		Error:          e.Error,
		StartedAt:      e.StartedAt,
		CompletedAt:    e.CompletedAt,
	}

	end := time.Now().UTC()
	if e.CompletedAt != nil {
		end = *e.CompletedAt
	}

	summary.Duration = end.Sub(e.StartedAt).Seconds()

	for _, step := range e.Steps {
		summary.Steps = append(summary.Steps, StepSummary{
			ID:          step.ID,
			Name:        step.Name,
			Type:        step.Type,
			Status:      step.Status,
			Error:       step.Error,
			Attempts:    step.Attempts,
			StartedAt:   step.StartedAt,
			CompletedAt: step.CompletedAt,
		})
	}

	return summary
}
