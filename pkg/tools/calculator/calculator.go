// Package calculator provides an arithmetic tool.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/dukex/conductor/pkg/expression"
	"github.com/dukex/conductor/pkg/models"
)

const Name = "calculator"

var (
	ErrDivisionByZero   = errors.New("division by zero")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidOperand   = errors.New("invalid operand")
)

// Tool performs a binary arithmetic operation on a and b, or evaluates an
// arithmetic expression when the expression parameter is given.
type Tool struct {
	evaluator *expression.Evaluator
}

func New(logger *slog.Logger) *Tool {
	return &Tool{evaluator: expression.NewEvaluator(logger)}
}

func (t *Tool) Name() string {
	return Name
}

func (t *Tool) Description() string {
	return "Performs arithmetic: add, subtract, multiply, divide, power, modulo, or evaluates an expression."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []any{"add", "subtract", "multiply", "divide", "power", "modulo"},
			},
			"a":          map[string]any{"type": []any{"number", "string"}},
			"b":          map[string]any{"type": []any{"number", "string"}},
			"expression": map[string]any{"type": "string", "description": "Arithmetic expression such as (2 + 3) * 4"},
		},
	}
}

func (t *Tool) Execute(_ context.Context, params map[string]any) (*models.ToolResult, error) {
	if expr, ok := params["expression"].(string); ok && expr != "" {
		value, err := t.evaluator.Eval(expr, nil)
		if err != nil {
			return models.NewToolError(err.Error()), nil
		}

		number, err := toFloat(value)
		if err != nil {
			return models.NewToolError(fmt.Sprintf("expression did not produce a number: %v", value)), nil
		}

		return models.NewToolResult(format(number)), nil
	}

	operation, _ := params["operation"].(string)

	a, err := toFloat(params["a"])
	if err != nil {
		return models.NewToolError(fmt.Sprintf("a: %v", err)), nil
	}

	b, err := toFloat(params["b"])
	if err != nil {
		return models.NewToolError(fmt.Sprintf("b: %v", err)), nil
	}

	result, err := Calculate(operation, a, b)
	if err != nil {
		return models.NewToolError(err.Error()), nil
	}

	return models.NewToolResult(format(result)), nil
}

func Calculate(operation string, a, b float64) (float64, error) {
	switch operation {
	case "add":
		return a + b, nil
	case "subtract":
		return a - b, nil
	case "multiply":
		return a * b, nil
	case "divide":
		if b == 0 {
			return 0, ErrDivisionByZero
		}

		return a / b, nil
	case "power":
		return math.Pow(a, b), nil
	case "modulo":
		if b == 0 {
			return 0, ErrDivisionByZero
		}

		return math.Mod(a, b), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOperation, operation)
	}
}

func format(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidOperand, v)
		}

		return f, nil
	case nil:
		return 0, fmt.Errorf("%w: missing", ErrInvalidOperand)
	default:
		return 0, fmt.Errorf("%w: %T", ErrInvalidOperand, value)
	}
}
