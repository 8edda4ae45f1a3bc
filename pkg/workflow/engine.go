// Package workflow executes workflow definitions step by step against the
// registered tools and agents.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/conductor/pkg/events"
	"github.com/dukex/conductor/pkg/expression"
	"github.com/dukex/conductor/pkg/log"
	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Capabilities resolves and runs tools and agents by name.
type Capabilities interface {
	ExecuteTool(ctx context.Context, name string, params map[string]any) (*models.ToolResult, error)
	ExecuteAgent(ctx context.Context, name string, task string, taskContext map[string]any) (*models.AgentResult, error)
}

type Metrics interface {
	RecordExecution(status string, duration time.Duration)
	RecordStep(stepType, status string)
	RecordRetry(stepType string)
}

// Recorder keeps the summaries of finished executions.
type Recorder interface {
	Record(ctx context.Context, summary *models.ExecutionSummary) error
}

type Engine struct {
	capabilities   Capabilities
	evaluator      *expression.Evaluator
	logger         *slog.Logger
	emitter        events.Emitter
	tracer         trace.Tracer
	metrics        Metrics
	recorder       Recorder
	retryBaseDelay time.Duration
	defaultTimeout time.Duration

	mu         sync.RWMutex
	executions map[string]*models.WorkflowExecution
}

type Option func(*Engine)

func WithEmitter(emitter events.Emitter) Option {
	return func(e *Engine) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

func WithRetryBaseDelay(delay time.Duration) Option {
	return func(e *Engine) {
		if delay > 0 {
			e.retryBaseDelay = delay
		}
	}
}

// WithDefaultTimeout bounds steps that do not set their own timeout.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.defaultTimeout = timeout
		}
	}
}

func NewEngine(capabilities Capabilities, logger *slog.Logger, opts ...Option) *Engine {
	engine := &Engine{
		capabilities:   capabilities,
		evaluator:      expression.NewEvaluator(logger),
		logger:         logger.With("module", "workflow_engine"),
		emitter:        events.Discard,
		tracer:         otelhelper.NoopTracer(),
		retryBaseDelay: DefaultRetryBaseDelay,
		defaultTimeout: models.DefaultStepTimeoutSeconds * time.Second,
		executions:     make(map[string]*models.WorkflowExecution),
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Execute runs workflow against initial and returns the finished execution.
// Failures are reported on the execution, never as a Go error or panic.
func (e *Engine) Execute(ctx context.Context, workflow *models.Workflow, initial map[string]any) *models.WorkflowExecution {
	snapshot, execution := e.prepare(workflow, initial)
	e.execute(ctx, snapshot, execution)

	return execution
}

// Start runs the workflow in the background. The execution is visible through
// Execution and Cancel as soon as Start returns; done is closed when it finishes.
func (e *Engine) Start(
	ctx context.Context,
	workflow *models.Workflow,
	initial map[string]any,
) (*models.WorkflowExecution, <-chan struct{}) {
	snapshot, execution := e.prepare(workflow, initial)
	finished := make(chan struct{})

	go func() {
		defer close(finished)

		e.execute(context.WithoutCancel(ctx), snapshot, execution)
	}()

	return execution, finished
}

// prepare snapshots the definition. A definition that cannot be copied runs
// as an empty snapshot and fails validation.
func (e *Engine) prepare(workflow *models.Workflow, initial map[string]any) (*models.Workflow, *models.WorkflowExecution) {
	snapshot := workflow.Clone()
	if snapshot == nil {
		snapshot = &models.Workflow{ID: workflow.ID}
	}

	execution := models.NewWorkflowExecution(uuid.NewString(), snapshot, initial)

	e.track(execution)

	return snapshot, execution
}

func (e *Engine) execute(ctx context.Context, workflow *models.Workflow, execution *models.WorkflowExecution) {
	defer e.untrack(execution.ID)

	logger := e.logger.With("execution_id", execution.ID, "workflow_id", workflow.ID)
	ctx = log.WithContext(ctx, logger)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
	)
	defer span.End()

	logger.InfoContext(ctx, "Starting workflow execution", "steps", len(workflow.Steps))
	e.emit(ctx, execution, events.WorkflowStarted, "", map[string]any{"workflow_name": workflow.Name})

	err := workflow.Validate()
	if err == nil {
		err = e.run(ctx, execution)
	}

	e.finish(ctx, execution, err)

	summary := execution.Summary()

	switch summary.Status {
	case models.ExecutionStatusCompleted:
		logger.InfoContext(ctx, "Workflow execution completed", "duration", summary.Duration)
		e.emit(ctx, execution, events.WorkflowCompleted, "", map[string]any{"duration": summary.Duration})
	case models.ExecutionStatusCancelled:
		logger.InfoContext(ctx, "Workflow execution cancelled", "current_step", summary.CurrentStep)
		e.emit(ctx, execution, events.WorkflowCancelled, "", map[string]any{"current_step": summary.CurrentStep})
	default:
		otelhelper.SetFailure(span, summary.Error)
		logger.ErrorContext(ctx, "Workflow execution failed", "error", summary.Error)
		e.emit(ctx, execution, events.WorkflowFailed, "", map[string]any{"error": summary.Error})
	}

	if e.metrics != nil {
		e.metrics.RecordExecution(string(summary.Status), time.Duration(summary.Duration*float64(time.Second)))
	}

	if e.recorder != nil {
		if err := e.recorder.Record(ctx, summary); err != nil {
			logger.WarnContext(ctx, "Failed to record execution history", "error", err)
		}
	}
}

func (e *Engine) run(ctx context.Context, execution *models.WorkflowExecution) error {
	for i, step := range execution.Steps {
		if execution.CurrentStatus() == models.ExecutionStatusCancelled {
			return nil
		}

		if ctx.Err() != nil {
			execution.Cancel()

			return nil
		}

		execution.SetCurrentStep(i)

		if err := e.runStep(ctx, execution, step); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) finish(ctx context.Context, execution *models.WorkflowExecution, err error) {
	if err != nil {
		execution.Finish(models.ExecutionStatusFailed, err.Error())

		return
	}

	if ctx.Err() != nil {
		execution.Cancel()
	}

	execution.Finish(models.ExecutionStatusCompleted, "")
}

// Cancel marks a running execution cancelled. The step in flight finishes;
// no further step starts.
func (e *Engine) Cancel(executionID string) bool {
	execution, err := e.Execution(executionID)
	if err != nil {
		return false
	}

	if !execution.Cancel() {
		return false
	}

	e.logger.Info("Workflow execution cancellation requested", "execution_id", executionID)

	return true
}

// Execution returns a running execution.
func (e *Engine) Execution(executionID string) (*models.WorkflowExecution, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	execution, ok := e.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	return execution, nil
}

// Running returns the ids of executions currently in progress.
func (e *Engine) Running() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.executions))
	for id := range e.executions {
		ids = append(ids, id)
	}

	return ids
}

func (e *Engine) track(execution *models.WorkflowExecution) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.executions[execution.ID] = execution
}

func (e *Engine) untrack(executionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.executions, executionID)
}

func (e *Engine) emit(
	ctx context.Context,
	execution *models.WorkflowExecution,
	eventType events.EventType,
	stepID string,
	data map[string]any,
) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.ErrorContext(ctx, "Event emitter panicked", "event_type", eventType, "panic", p)
		}
	}()

	event := events.New(events.SourceEngine, eventType, data)
	event.WorkflowID = execution.WorkflowID
	event.ExecutionID = execution.ID
	event.StepID = stepID

	e.emitter.Emit(ctx, event)
}
