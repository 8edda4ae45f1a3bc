package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/conductor/pkg/events"
	"github.com/dukex/conductor/pkg/log"
	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/otelhelper"
	"github.com/dukex/conductor/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
)

const resultPreviewLength = 200

// runStep applies the guard, runs the step under its error policy and
// records the outcome. Only an unrecovered failure is returned.
func (e *Engine) runStep(ctx context.Context, execution *models.WorkflowExecution, step *models.WorkflowStep) error {
	logger := log.FromContext(ctx).With("step_id", step.ID, "step_type", step.Type)
	ctx = log.WithContext(ctx, logger)

	if step.Condition != "" && !e.evaluator.IsTrue(ctx, step.Condition, execution.ContextSnapshot()) {
		e.transition(ctx, execution, step, models.StepStatusSkipped, "")
		logger.InfoContext(ctx, "Step skipped, condition not met", "condition", step.Condition)
		e.emit(ctx, execution, events.StepSkipped, step.ID, map[string]any{"reason": "condition_not_met"})

		return nil
	}

	e.transition(ctx, execution, step, models.StepStatusRunning, "")
	e.emit(ctx, execution, events.StepStarted, step.ID, map[string]any{
		"step_name": step.Name,
		"step_type": step.Type,
	})

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepTypeKey, string(step.Type)),
	)
	defer span.End()

	result, attempts, err := e.attempt(ctx, execution, step)

	execution.UpdateStep(step, func(s *models.WorkflowStep) { s.Attempts = attempts })

	if err == nil {
		execution.UpdateStep(step, func(s *models.WorkflowStep) { s.Result = result })
		execution.RecordResult(step.ID, result)
		e.transition(ctx, execution, step, models.StepStatusCompleted, "")
		logger.InfoContext(ctx, "Step completed", "attempts", attempts)
		e.emit(ctx, execution, events.StepCompleted, step.ID, map[string]any{
			"result_preview": preview(result),
		})

		return nil
	}

	otelhelper.SetError(span, err, attribute.Int(otelhelper.StepAttemptKey, attempts))

	if step.OnError == models.ErrorPolicySkip {
		e.transition(ctx, execution, step, models.StepStatusSkipped, err.Error())
		logger.WarnContext(ctx, "Step failed, skipping", "error", err)
		e.emit(ctx, execution, events.StepSkipped, step.ID, map[string]any{"reason": err.Error()})

		return nil
	}

	e.transition(ctx, execution, step, models.StepStatusFailed, err.Error())
	logger.ErrorContext(ctx, "Step failed", "error", err, "attempts", attempts)
	e.emit(ctx, execution, events.StepFailed, step.ID, map[string]any{
		"error":    err.Error(),
		"attempts": attempts,
	})

	return &StepError{StepID: step.ID, Attempts: attempts, Err: err}
}

// attempt runs the step once, plus up to max_retries more times when the
// policy is retry. Unknown capabilities and malformed configs are not retried.
func (e *Engine) attempt(
	ctx context.Context,
	execution *models.WorkflowExecution,
	step *models.WorkflowStep,
) (any, int, error) {
	retries := 0
	if step.OnError == models.ErrorPolicyRetry {
		retries = step.MaxRetries
	}

	var (
		result   any
		attempts int
	)

	operation := func() error {
		attempts++

		var err error

		result, err = e.dispatchWithTimeout(ctx, execution, step)
		if err != nil && permanent(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, delay time.Duration) {
		log.FromContext(ctx).WarnContext(ctx, "Step attempt failed, retrying",
			"attempt", attempts, "max_retries", retries, "delay", delay, "error", err)
		e.emit(ctx, execution, events.StepRetry, step.ID, map[string]any{
			"attempt":  attempts,
			"delay":    delay.Seconds(),
			"error":    err.Error(),
			"retrying": attempts + 1,
		})

		if e.metrics != nil {
			e.metrics.RecordRetry(string(step.Type))
		}
	}

	err := backoff.RetryNotify(operation, newRetryPolicy(ctx, e.retryBaseDelay, retries), notify)

	return result, attempts, err
}

func permanent(err error) bool {
	return errors.Is(err, registry.ErrUnknownCapability) ||
		errors.Is(err, registry.ErrInvalidParams) ||
		errors.Is(err, ErrUnknownStepType) ||
		errors.Is(err, ErrInvalidStepConfig)
}

func (e *Engine) dispatchWithTimeout(
	ctx context.Context,
	execution *models.WorkflowExecution,
	step *models.WorkflowStep,
) (result any, err error) {
	timeout := e.defaultTimeout
	if step.Timeout > 0 {
		timeout = step.TimeoutDuration()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			log.FromContext(ctx).ErrorContext(ctx, "Step panicked", "panic", p, "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("step panicked: %v", p)
		}
	}()

	result, err = e.dispatch(ctx, execution, step)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("step timed out after %s: %w", timeout, err)
	}

	return result, err
}

func (e *Engine) transition(
	ctx context.Context,
	execution *models.WorkflowExecution,
	step *models.WorkflowStep,
	next models.StepStatus,
	errMsg string,
) {
	now := time.Now().UTC()

	execution.UpdateStep(step, func(s *models.WorkflowStep) {
		if err := s.Transition(next); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Ignoring step status change", "error", err)

			return
		}

		switch next {
		case models.StepStatusRunning:
			s.StartedAt = &now
		case models.StepStatusCompleted, models.StepStatusFailed, models.StepStatusSkipped:
			s.CompletedAt = &now
			s.Error = errMsg
		}
	})

	if next.Terminal() && e.metrics != nil {
		e.metrics.RecordStep(string(step.Type), string(next))
	}
}

func preview(result any) string {
	text := fmt.Sprintf("%v", result)
	if len(text) > resultPreviewLength {
		return text[:resultPreviewLength]
	}

	return text
}
