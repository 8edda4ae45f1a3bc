package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"time"

	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/template"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLoopVariable = "item"
	defaultWaitSeconds  = 1.0
	defaultWaitTimeout  = 60.0
	defaultWaitInterval = 1.0
	waitModeTime        = "time"
	waitModeCondition   = "condition"
	capabilityTypeTool  = "tool"
	capabilityTypeAgent = "agent"
	transformJSONParse  = "json_parse"
	transformJSONString = "json_stringify"
	transformExtract    = "extract"
	transformTemplate   = "template"
)

// dispatch runs one attempt of step. Inputs are resolved against the current
// context, merged over the step config and visible to placeholders.
func (e *Engine) dispatch(ctx context.Context, execution *models.WorkflowExecution, step *models.WorkflowStep) (any, error) {
	vars := execution.ContextSnapshot()

	config := maps.Clone(step.Config)
	if config == nil {
		config = map[string]any{}
	}

	inputs := template.ResolveInputs(step.Inputs, vars)
	maps.Copy(config, inputs)
	maps.Copy(vars, inputs)

	switch step.Type {
	case models.StepTypeTool:
		return e.runTool(ctx, config, vars)
	case models.StepTypeAgent:
		return e.runAgent(ctx, config, vars)
	case models.StepTypeParallel:
		return e.runParallel(ctx, config, vars)
	case models.StepTypeLoop:
		return e.runLoop(ctx, execution, config, vars)
	case models.StepTypeCondition:
		return e.runCondition(ctx, config, vars)
	case models.StepTypeTransform:
		return e.runTransform(config, vars)
	case models.StepTypeWait:
		return e.runWait(ctx, execution, config)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepType, step.Type)
	}
}

func (e *Engine) runTool(ctx context.Context, config map[string]any, vars map[string]any) (map[string]any, error) {
	name, _ := config["tool"].(string)
	if name == "" {
		return nil, invalidConfig("tool name is required")
	}

	params, _ := template.Interpolate(config["params"], vars).(map[string]any)
	if params == nil {
		params = map[string]any{}
	}

	result, err := e.capabilities.ExecuteTool(ctx, name, params)
	if err != nil {
		return nil, err
	}

	if !result.Success {
		return nil, &CapabilityError{Kind: capabilityTypeTool, Name: name, Message: result.Error}
	}

	return result.ToMap(), nil
}

func (e *Engine) runAgent(ctx context.Context, config map[string]any, vars map[string]any) (map[string]any, error) {
	name, _ := config["agent"].(string)
	if name == "" {
		return nil, invalidConfig("agent name is required")
	}

	task, _ := config["task"].(string)
	task = fmt.Sprintf("%v", template.InterpolateString(task, vars))

	result, err := e.capabilities.ExecuteAgent(ctx, name, task, vars)
	if err != nil {
		return nil, err
	}

	if !result.Success {
		return nil, &CapabilityError{Kind: capabilityTypeAgent, Name: name, Message: result.Error}
	}

	return result.ToMap(), nil
}

// runCapability runs a TOOL- or AGENT-shaped sub-config as used by PARALLEL
// tasks, LOOP bodies and CONDITION branches.
func (e *Engine) runCapability(ctx context.Context, config map[string]any, vars map[string]any) (map[string]any, error) {
	kind, _ := config["type"].(string)
	if kind == "" {
		if _, ok := config["agent"]; ok {
			kind = capabilityTypeAgent
		} else {
			kind = capabilityTypeTool
		}
	}

	switch kind {
	case capabilityTypeTool:
		return e.runTool(ctx, config, vars)
	case capabilityTypeAgent:
		return e.runAgent(ctx, config, vars)
	default:
		return nil, invalidConfig("unknown task type %q", kind)
	}
}

// runParallel waits for every task. Failures are captured per task and never
// fail the step.
func (e *Engine) runParallel(ctx context.Context, config map[string]any, vars map[string]any) (map[string]any, error) {
	tasks, ok := config["tasks"].([]any)
	if !ok && config["tasks"] != nil {
		return nil, invalidConfig("parallel tasks must be a list")
	}

	results := make([]any, len(tasks))

	group, groupCtx := errgroup.WithContext(ctx)
	if limit, ok := number(config["max_concurrency"]); ok && limit > 0 {
		group.SetLimit(int(limit))
	}

	for i, raw := range tasks {
		group.Go(func() error {
			task, ok := raw.(map[string]any)
			if !ok {
				results[i] = failure(invalidConfig("parallel task %d is not an object", i))

				return nil
			}

			result, err := e.runCapability(groupCtx, task, vars)
			if err != nil {
				results[i] = failure(err)

				return nil
			}

			results[i] = result

			return nil
		})
	}

	_ = group.Wait()

	return map[string]any{"results": results}, nil
}

// runLoop executes the body once per item, binding the item to the loop
// variable in the execution context. The first failing iteration fails the step.
func (e *Engine) runLoop(
	ctx context.Context,
	execution *models.WorkflowExecution,
	config map[string]any,
	vars map[string]any,
) (map[string]any, error) {
	items, err := listOf(template.Interpolate(config["items"], vars))
	if err != nil {
		return nil, err
	}

	variable, _ := config["variable"].(string)
	if variable == "" {
		variable = defaultLoopVariable
	}

	body, ok := config["body"].(map[string]any)
	if !ok {
		return nil, invalidConfig("loop body is required")
	}

	results := make([]any, 0, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		execution.SetVariable(variable, item)

		result, err := e.runCapability(ctx, body, execution.ContextSnapshot())
		if err != nil {
			return nil, fmt.Errorf("loop iteration %d: %w", i, err)
		}

		results = append(results, result)
	}

	return map[string]any{"results": results}, nil
}

func (e *Engine) runCondition(ctx context.Context, config map[string]any, vars map[string]any) (map[string]any, error) {
	condition, _ := config["condition"].(string)

	if e.evaluator.IsTrue(ctx, condition, vars) {
		then, _ := config["then"].(map[string]any)
		if len(then) == 0 {
			return map[string]any{"skipped": true}, nil
		}

		return e.runCapability(ctx, then, vars)
	}

	if otherwise, ok := config["else"].(map[string]any); ok && len(otherwise) > 0 {
		return e.runCapability(ctx, otherwise, vars)
	}

	return map[string]any{"skipped": true}, nil
}

func (e *Engine) runTransform(config map[string]any, vars map[string]any) (map[string]any, error) {
	kind, _ := config["transform"].(string)
	input := template.Interpolate(config["input"], vars)

	switch kind {
	case transformJSONParse:
		text, ok := input.(string)
		if !ok {
			return map[string]any{"result": input}, nil
		}

		var parsed any
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			return nil, fmt.Errorf("json_parse: %w", err)
		}

		return map[string]any{"result": parsed}, nil
	case transformJSONString:
		encoded, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("json_stringify: %w", err)
		}

		return map[string]any{"result": string(encoded)}, nil
	case transformExtract:
		key, _ := config["key"].(string)
		if data, ok := input.(map[string]any); ok {
			return map[string]any{"result": data[key]}, nil
		}
	case transformTemplate:
		text, _ := config["template"].(string)

		rendered, err := template.Render(text, vars)
		if err != nil {
			return nil, fmt.Errorf("template: %w", err)
		}

		return map[string]any{"result": rendered}, nil
	}

	return map[string]any{"result": input}, nil
}

func (e *Engine) runWait(ctx context.Context, execution *models.WorkflowExecution, config map[string]any) (map[string]any, error) {
	mode, _ := config["mode"].(string)
	if mode == "" {
		mode, _ = config["type"].(string)
	}

	if mode == "" {
		mode = waitModeTime
	}

	switch mode {
	case waitModeTime:
		seconds := numberOr(config["seconds"], defaultWaitSeconds)
		if err := sleep(ctx, seconds); err != nil {
			return nil, err
		}

		return map[string]any{"waited": seconds}, nil
	case waitModeCondition:
		condition, _ := config["condition"].(string)
		timeout := numberOr(config["timeout"], defaultWaitTimeout)

		interval := numberOr(config["interval"], defaultWaitInterval)
		if interval <= 0 {
			interval = defaultWaitInterval
		}

		for elapsed := 0.0; elapsed < timeout; elapsed += interval {
			if e.evaluator.IsTrue(ctx, condition, execution.ContextSnapshot()) {
				return map[string]any{"condition_met": true, "elapsed": elapsed}, nil
			}

			if err := sleep(ctx, interval); err != nil {
				return nil, err
			}
		}

		return map[string]any{"condition_met": false, "timeout": true}, nil
	default:
		return nil, invalidConfig("unknown wait mode %q", mode)
	}
}

func sleep(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return nil
	}

	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func failure(err error) map[string]any {
	return map[string]any{"success": false, "output": "", "error": err.Error()}
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func numberOr(value any, fallback float64) float64 {
	if n, ok := number(value); ok {
		return n
	}

	return fallback
}

// listOf accepts any slice so that items bound from Go callers and items
// decoded from JSON are handled alike.
func listOf(value any) ([]any, error) {
	if value == nil {
		return nil, nil
	}

	if items, ok := value.([]any); ok {
		return items, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, invalidConfig("loop items must be a list, got %T", value)
	}

	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}

	return items, nil
}
