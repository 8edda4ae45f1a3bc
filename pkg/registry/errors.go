package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCapability is returned when a tool or agent name is not registered.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrInvalidParams is returned when tool parameters fail schema validation.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrCapabilityPanic is returned when a capability panics while executing.
	ErrCapabilityPanic = errors.New("capability panicked")
)

type Kind string

const (
	KindTool  Kind = "tool"
	KindAgent Kind = "agent"
)

// UnknownCapabilityError names the capability that could not be resolved.
type UnknownCapabilityError struct {
	Kind Kind
	Name string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("unknown %s: %s", e.Kind, e.Name)
}

func (e *UnknownCapabilityError) Unwrap() error {
	return ErrUnknownCapability
}

func IsUnknownCapability(err error) bool {
	return errors.Is(err, ErrUnknownCapability)
}
