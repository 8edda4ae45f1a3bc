// Package models defines the domain types shared by the engine, the scheduler and the orchestrator.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const InitialVersion = "1.0"

var (
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrDuplicateStepID      = errors.New("duplicate step id")
	ErrStepIDRequired       = errors.New("step id is required")
)

// Workflow is an ordered list of steps plus the default variables of a run.
// Execution order is declaration order; branching lives inside step configs.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Version     string          `json:"version"`
	Steps       []*WorkflowStep `json:"steps"`
	Variables   map[string]any  `json:"variables"`
	Tags        []string        `json:"tags"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate checks the structural rules every stored or executed workflow must satisfy.
func (w *Workflow) Validate() error {
	var errs []error

	if strings.TrimSpace(w.Name) == "" {
		errs = append(errs, ErrWorkflowNameRequired)
	}

	seen := make(map[string]struct{}, len(w.Steps))

	for i, step := range w.Steps {
		if step == nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i, ErrStepIDRequired))

			continue
		}

		if step.ID == "" {
			errs = append(errs, fmt.Errorf("step %d: %w", i, ErrStepIDRequired))
		} else if _, dup := seen[step.ID]; dup {
			errs = append(errs, fmt.Errorf("step %s: %w", step.ID, ErrDuplicateStepID))
		}

		seen[step.ID] = struct{}{}

		if err := step.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Clone returns a deep copy with the step runtime state reset, which is the
// read-only snapshot an execution works on.
func (w *Workflow) Clone() *Workflow {
	data, err := json.Marshal(w)
	if err != nil {
		return nil
	}

	var clone Workflow
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil
	}

	for _, step := range clone.Steps {
		step.Reset()
	}

	return &clone
}

// StepByID returns the step with the given id, if present.
func (w *Workflow) StepByID(id string) (*WorkflowStep, bool) {
	for _, step := range w.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return nil, false
}

// HasTag reports whether any of tags is attached to the workflow.
func (w *Workflow) HasTag(tags ...string) bool {
	for _, want := range tags {
		for _, tag := range w.Tags {
			if tag == want {
				return true
			}
		}
	}

	return false
}

// NextVersion increments the minor part of a "major.minor" version.
func NextVersion(version string) string {
	if version == "" {
		return InitialVersion
	}

	idx := strings.LastIndex(version, ".")
	if idx < 0 {
		return version + ".1"
	}

	minor, err := strconv.Atoi(version[idx+1:])
	if err != nil {
		return version + ".1"
	}

	return version[:idx+1] + strconv.Itoa(minor+1)
}
