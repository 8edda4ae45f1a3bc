// Package agents provides the LLM-backed specialized agents. Each agent runs a
// thought/action/observation loop, calling tools from its role's allow-list
// until the model gives a final answer.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conductor/pkg/llm"
	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/registry"
)

const (
	DefaultMaxSteps = 10

	finalAnswerAction   = "final_answer"
	observationPreview  = 300
	maxObservationChars = 4000
)

// ToolExecutor runs a registered tool by name.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, name string, params map[string]any) (*models.ToolResult, error)
	Tools() []registry.CapabilityInfo
}

// Thought is one recorded iteration of the agent loop.
type Thought struct {
	Step        int            `json:"step"`
	Thought     string         `json:"thought"`
	Action      string         `json:"action"`
	ActionInput map[string]any `json:"action_input,omitempty"`
	Observation string         `json:"observation,omitempty"`
}

type Agent struct {
	role     Role
	client   llm.Client
	tools    ToolExecutor
	maxSteps int
	logger   *slog.Logger
}

type Option func(*Agent)

func WithMaxSteps(steps int) Option {
	return func(a *Agent) {
		if steps > 0 {
			a.maxSteps = steps
		}
	}
}

func New(role Role, client llm.Client, tools ToolExecutor, logger *slog.Logger, opts ...Option) *Agent {
	agent := &Agent{
		role:     role,
		client:   client,
		tools:    tools,
		maxSteps: DefaultMaxSteps,
		logger:   logger.With("module", "agent", "role", string(role)),
	}

	for _, opt := range opts {
		opt(agent)
	}

	return agent
}

func (a *Agent) Name() string {
	return string(a.role)
}

func (a *Agent) Description() string {
	return profiles[a.role].description
}

func (a *Agent) allowed(tool string) bool {
	for _, name := range profiles[a.role].tools {
		if name == tool {
			return true
		}
	}

	return false
}

func (a *Agent) toolDescriptions() []string {
	var lines []string

	if a.tools == nil {
		return lines
	}

	for _, info := range a.tools.Tools() {
		if !a.allowed(info.Name) {
			continue
		}

		line := info.Name + ": " + info.Description
		if info.Schema != nil {
			if schema, err := json.Marshal(info.Schema); err == nil {
				line += " Parameters: " + string(schema)
			}
		}

		lines = append(lines, line)
	}

	return lines
}

type decision struct {
	Thought     string         `json:"thought"`
	Action      string         `json:"action"`
	ActionInput map[string]any `json:"action_input"`
}

func parseDecision(content string) decision {
	raw, ok := llm.ExtractJSONObject(content)
	if !ok {
		return decision{Action: finalAnswerAction, ActionInput: map[string]any{"answer": content}}
	}

	var d decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil || d.Action == "" {
		return decision{Action: finalAnswerAction, ActionInput: map[string]any{"answer": content}}
	}

	return d
}

func (a *Agent) Execute(ctx context.Context, task string, taskContext map[string]any) (*models.AgentResult, error) {
	start := time.Now()

	contextJSON := "None"
	if len(taskContext) > 0 {
		if encoded, err := json.Marshal(taskContext); err == nil {
			contextJSON = string(encoded)
		}
	}

	messages := []llm.Message{
		llm.System(systemPrompt(a.role, a.toolDescriptions())),
		llm.User(fmt.Sprintf("Task: %s\n\nContext: %s", task, contextJSON)),
	}

	var thoughts []Thought

	for step := 1; step <= a.maxSteps; step++ {
		reply, err := a.client.Chat(ctx, messages, nil)
		if err != nil {
			return &models.AgentResult{
				Success:       false,
				Error:         fmt.Sprintf("llm call failed: %v", err),
				Artifacts:     map[string]any{"thoughts": thoughts},
				ExecutionTime: time.Since(start).Seconds(),
			}, nil
		}

		d := parseDecision(reply.Content)
		thought := Thought{Step: step, Thought: d.Thought, Action: d.Action, ActionInput: d.ActionInput}

		a.logger.DebugContext(ctx, "Agent decided", "step", step, "action", d.Action)

		if d.Action == finalAnswerAction {
			answer, ok := d.ActionInput["answer"].(string)
			if !ok {
				answer = reply.Content
			}

			thought.Observation = "Task completed"
			thoughts = append(thoughts, thought)

			return &models.AgentResult{
				Success:       true,
				Output:        answer,
				Artifacts:     map[string]any{"thoughts": thoughts, "steps": step},
				ExecutionTime: time.Since(start).Seconds(),
			}, nil
		}

		thought.Observation = a.observe(ctx, d)
		thoughts = append(thoughts, thought)

		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: reply.Content},
			llm.User("Observation: "+thought.Observation+"\n\nContinue with the task."),
		)
	}

	return &models.AgentResult{
		Success:       false,
		Error:         fmt.Sprintf("no final answer after %d steps", a.maxSteps),
		Artifacts:     map[string]any{"thoughts": thoughts, "steps": a.maxSteps},
		ExecutionTime: time.Since(start).Seconds(),
	}, nil
}

func (a *Agent) observe(ctx context.Context, d decision) string {
	if !a.allowed(d.Action) || a.tools == nil {
		return "Unknown tool: " + d.Action
	}

	result, err := a.tools.ExecuteTool(ctx, d.Action, d.ActionInput)
	if err != nil {
		return "Tool error: " + err.Error()
	}

	observation := result.Output
	if !result.Success {
		observation = "Error: " + result.Error
	}

	a.logger.DebugContext(ctx, "Tool observed", "tool", d.Action, "success", result.Success,
		"preview", truncate(observation, observationPreview))

	return truncate(observation, maxObservationChars)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
