package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrUnknownStepType   = errors.New("unknown step type")
	ErrCapabilityFailed  = errors.New("capability reported failure")
	ErrInvalidStepConfig = errors.New("invalid step config")
)

// StepError is the unrecovered failure of a step that ends an execution.
type StepError struct {
	StepID   string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.StepID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// CapabilityError is a tool or agent returning success=false.
type CapabilityError struct {
	Kind    string
	Name    string
	Message string
}

func (e *CapabilityError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s failed", e.Kind, e.Name)
	}

	return fmt.Sprintf("%s %s failed: %s", e.Kind, e.Name, e.Message)
}

func (e *CapabilityError) Unwrap() error {
	return ErrCapabilityFailed
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidStepConfig, fmt.Sprintf(format, args...))
}
