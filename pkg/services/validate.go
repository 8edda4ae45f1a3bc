package services

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/conductor/pkg/expression"
	"github.com/dukex/conductor/pkg/models"
)

// Validate checks the structure of workflow and the syntax of every guard and
// CONDITION/WAIT expression it carries. Unknown variable names are not errors.
func Validate(logger *slog.Logger, workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	errs := []error{workflow.Validate()}
	evaluator := expression.NewEvaluator(logger)

	for _, step := range workflow.Steps {
		if step == nil {
			continue
		}

		if step.Condition != "" {
			if err := evaluator.Check(step.Condition); err != nil {
				errs = append(errs, fmt.Errorf("step %s: condition: %w", step.ID, err))
			}
		}

		if step.Type != models.StepTypeCondition && step.Type != models.StepTypeWait {
			continue
		}

		condition, ok := step.Config["condition"].(string)
		if !ok {
			if step.Type == models.StepTypeCondition {
				errs = append(errs, fmt.Errorf("step %s: condition step requires a condition", step.ID))
			}

			continue
		}

		if err := evaluator.Check(condition); err != nil {
			errs = append(errs, fmt.Errorf("step %s: config condition: %w", step.ID, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return NewValidationError("Validate", "INVALID_WORKFLOW", err.Error(), errors.Join(ErrInvalidWorkflow, err))
	}

	return nil
}
