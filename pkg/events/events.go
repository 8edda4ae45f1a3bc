// Package events defines the progress events emitted by the workflow engine,
// the scheduler and the orchestrator.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the bus topic every event is published on.
const Topic = "conductor.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

// AnyEvent subscribes a bus handler to every event type.
const AnyEvent EventType = "*"

const (
	SourceEngine       = "engine"
	SourceScheduler    = "scheduler"
	SourceOrchestrator = "orchestrator"
)

const (
	// Execution engine.
	WorkflowStarted   EventType = "workflow_started"
	WorkflowCompleted EventType = "workflow_completed"
	WorkflowFailed    EventType = "workflow_failed"
	WorkflowCancelled EventType = "workflow_cancelled"
	StepStarted       EventType = "step_started"
	StepCompleted     EventType = "step_completed"
	StepSkipped       EventType = "step_skipped"
	StepFailed        EventType = "step_failed"
	StepRetry         EventType = "step_retry"

	// Scheduler.
	TaskScheduled         EventType = "task_scheduled"
	TaskPaused            EventType = "task_paused"
	TaskResumed           EventType = "task_resumed"
	TaskCancelled         EventType = "task_cancelled"
	ScheduledRunStarted   EventType = "scheduled_run_started"
	ScheduledRunCompleted EventType = "scheduled_run_completed"
	ScheduledRunFailed    EventType = "scheduled_run_failed"

	// Orchestrator.
	OrchestratorStart    EventType = "orchestrator_start"
	TaskDecomposed       EventType = "task_decomposed"
	SubtaskStart         EventType = "subtask_start"
	SubtaskComplete      EventType = "subtask_complete"
	ExecutionBlocked     EventType = "execution_blocked"
	Synthesizing         EventType = "synthesizing"
	OrchestratorComplete EventType = "orchestrator_complete"
	OrchestratorError    EventType = "orchestrator_error"
)

type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Source      string         `json:"source"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	StepID      string         `json:"step_id,omitempty"`
	TaskID      string         `json:"task_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

func New(source string, eventType EventType, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func (e Event) GetType() EventType {
	return e.Type
}

// Key is the partition key used when the event is published on a bus.
func (e Event) Key() string {
	switch {
	case e.ExecutionID != "":
		return e.ExecutionID
	case e.TaskID != "":
		return e.TaskID
	case e.WorkflowID != "":
		return e.WorkflowID
	default:
		return e.ID
	}
}

// Emitter receives events. Implementations must not block the caller for
// long and must never fail it.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, event Event)

func (f EmitterFunc) Emit(ctx context.Context, event Event) {
	f(ctx, event)
}

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(context.Context, Event) {})
