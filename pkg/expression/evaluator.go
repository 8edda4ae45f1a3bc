// Package expression evaluates guard expressions against a run context.
//
// Expressions are restricted to literals, comparisons, boolean and arithmetic
// operators, and member/index access on the context values. The environment
// only ever contains plain data, so an expression cannot reach the file
// system, the network, or arbitrary functions.
package expression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"strings"

	"github.com/expr-lang/expr"
)

const maxExpressionLength = 2048

var (
	ErrEmptyExpression   = errors.New("empty expression")
	ErrExpressionTooLong = errors.New("expression too long")
)

// Error reports a malformed or unevaluable expression.
type Error struct {
	Expression string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("evaluate %q: %v", e.Expression, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Capitalised literal aliases, so guards like "x and True" evaluate.
var aliases = map[string]any{
	"True":  true,
	"False": false,
	"None":  nil,
}

type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger.With("module", "expression")}
}

// Eval returns the raw value of expression evaluated against vars.
func (e *Evaluator) Eval(expression string, vars map[string]any) (any, error) {
	expression = strings.TrimSpace(expression)

	if expression == "" {
		return nil, &Error{Expression: expression, Err: ErrEmptyExpression}
	}

	if len(expression) > maxExpressionLength {
		return nil, &Error{Expression: expression[:32] + "...", Err: ErrExpressionTooLong}
	}

	env := make(map[string]any, len(vars)+len(aliases))
	maps.Copy(env, aliases)
	maps.Copy(env, vars)

	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return nil, &Error{Expression: expression, Err: err}
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return nil, &Error{Expression: expression, Err: err}
	}

	return out, nil
}

// Evaluate returns the truthiness of expression. Errors are returned to the caller.
func (e *Evaluator) Evaluate(expression string, vars map[string]any) (bool, error) {
	out, err := e.Eval(expression, vars)
	if err != nil {
		return false, err
	}

	return Truthy(out), nil
}

// IsTrue evaluates a guard. Any evaluation failure counts as false and is logged.
func (e *Evaluator) IsTrue(ctx context.Context, expression string, vars map[string]any) bool {
	ok, err := e.Evaluate(expression, vars)
	if err != nil {
		e.logger.WarnContext(ctx, "Condition evaluation failed, treating as false",
			"condition", expression,
			"error", err,
		)

		return false
	}

	return ok
}

// Check parses expression without an environment, so unknown names are not
// reported; only syntax errors are.
func (e *Evaluator) Check(expression string) error {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return &Error{Expression: expression, Err: ErrEmptyExpression}
	}

	if _, err := expr.Compile(expression); err != nil {
		return &Error{Expression: expression, Err: err}
	}

	return nil
}

// Truthy follows the usual dynamic-language rules: zero values and empty
// collections are false, everything else is true.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}
