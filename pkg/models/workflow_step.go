package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type StepType string

const (
	StepTypeTool      StepType = "tool"
	StepTypeAgent     StepType = "agent"
	StepTypeCondition StepType = "condition"
	StepTypeLoop      StepType = "loop"
	StepTypeParallel  StepType = "parallel"
	StepTypeWait      StepType = "wait"
	StepTypeTransform StepType = "transform"
)

func (t StepType) Valid() bool {
	switch t {
	case StepTypeTool, StepTypeAgent, StepTypeCondition, StepTypeLoop,
		StepTypeParallel, StepTypeWait, StepTypeTransform:
		return true
	}

	return false
}

type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// CanTransitionTo enforces pending -> running -> {completed|failed|skipped}.
// A pending step may also be skipped directly when its guard is false.
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	switch s {
	case StepStatusPending:
		return next == StepStatusRunning || next == StepStatusSkipped
	case StepStatusRunning:
		return next == StepStatusCompleted || next == StepStatusFailed || next == StepStatusSkipped
	default:
		return false
	}
}

func (s StepStatus) Terminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

type ErrorPolicy string

const (
	ErrorPolicyFail  ErrorPolicy = "fail"
	ErrorPolicySkip  ErrorPolicy = "skip"
	ErrorPolicyRetry ErrorPolicy = "retry"
)

func (p ErrorPolicy) Valid() bool {
	return p == ErrorPolicyFail || p == ErrorPolicySkip || p == ErrorPolicyRetry
}

const (
	DefaultMaxRetries         = 3
	DefaultStepTimeoutSeconds = 300
)

// WorkflowStep is one typed unit of work. The fields after Timeout are runtime
// state owned by the engine and are empty in stored definitions.
type WorkflowStep struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       StepType          `json:"type"`
	Config     map[string]any    `json:"config"`
	Inputs     map[string]string `json:"inputs,omitempty"`
	Condition  string            `json:"condition,omitempty"`
	OnError    ErrorPolicy       `json:"on_error"`
	MaxRetries int               `json:"max_retries"`
	Timeout    int               `json:"timeout"`

	Status      StepStatus `json:"status,omitempty"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewWorkflowStep returns a pending step with the default error policy,
// retry budget and timeout.
func NewWorkflowStep(id, name string, stepType StepType) *WorkflowStep {
	return &WorkflowStep{
		ID:         id,
		Name:       name,
		Type:       stepType,
		Config:     map[string]any{},
		OnError:    ErrorPolicyFail,
		MaxRetries: DefaultMaxRetries,
		Timeout:    DefaultStepTimeoutSeconds,
		Status:     StepStatusPending,
	}
}

// UnmarshalJSON applies the step defaults for fields absent from the document.
func (s *WorkflowStep) UnmarshalJSON(data []byte) error {
	type alias WorkflowStep

	aux := alias{
		OnError:    ErrorPolicyFail,
		MaxRetries: DefaultMaxRetries,
		Timeout:    DefaultStepTimeoutSeconds,
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*s = WorkflowStep(aux)

	if s.OnError == "" {
		s.OnError = ErrorPolicyFail
	}

	if s.Name == "" {
		s.Name = s.ID
	}

	return nil
}

func (s *WorkflowStep) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("step %s: unknown step type %q", s.ID, s.Type)
	}

	if s.OnError != "" && !s.OnError.Valid() {
		return fmt.Errorf("step %s: unknown error policy %q", s.ID, s.OnError)
	}

	if s.MaxRetries < 0 {
		return fmt.Errorf("step %s: max_retries must not be negative", s.ID)
	}

	if s.Timeout < 0 {
		return fmt.Errorf("step %s: timeout must not be negative", s.ID)
	}

	return nil
}

// Transition moves the step to next, refusing moves that would revert a status.
func (s *WorkflowStep) Transition(next StepStatus) error {
	current := s.Status
	if current == "" {
		current = StepStatusPending
	}

	if !current.CanTransitionTo(next) {
		return fmt.Errorf("step %s: invalid status transition %s -> %s", s.ID, current, next)
	}

	s.Status = next

	return nil
}

func (s *WorkflowStep) TimeoutDuration() time.Duration {
	if s.Timeout <= 0 {
		return DefaultStepTimeoutSeconds * time.Second
	}

	return time.Duration(s.Timeout) * time.Second
}

// Reset clears runtime state so the step can be executed from scratch.
func (s *WorkflowStep) Reset() {
	s.Status = StepStatusPending
	s.Result = nil
	s.Error = ""
	s.Attempts = 0
	s.StartedAt = nil
	s.CompletedAt = nil
}

// Definition returns a copy of the step without runtime state.
func (s *WorkflowStep) Definition() *WorkflowStep {
	clone := *s
	clone.Status = ""
	clone.Result = nil
	clone.Error = ""
	clone.Attempts = 0
	clone.StartedAt = nil
	clone.CompletedAt = nil

	return &clone
}
