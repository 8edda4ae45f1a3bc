// Package orchestrator splits a free-form request into subtasks, runs them on
// the specialized agents in dependency waves and synthesizes one answer.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/dukex/conductor/pkg/agents"
	"github.com/dukex/conductor/pkg/events"
	"github.com/dukex/conductor/pkg/llm"
	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/otelhelper"
	"github.com/dukex/conductor/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	Name            = "orchestrator"
	DefaultMaxWaves = 15

	synthesisOutputChars = 1000
	previewChars         = 200
)

type Metrics interface {
	RecordSubtask(role string, success bool)
}

type Orchestrator struct {
	client   llm.Client
	agents   map[agents.Role]protocol.Agent
	logger   *slog.Logger
	emitter  events.Emitter
	tracer   trace.Tracer
	metrics  Metrics
	maxWaves int
}

type Option func(*Orchestrator)

// WithMaxWaves caps how many ready-set waves one request may run.
func WithMaxWaves(waves int) Option {
	return func(o *Orchestrator) {
		if waves > 0 {
			o.maxWaves = waves
		}
	}
}

func WithEmitter(emitter events.Emitter) Option {
	return func(o *Orchestrator) {
		if emitter != nil {
			o.emitter = emitter
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// New binds each agent to the role it is named after.
func New(client llm.Client, workers []protocol.Agent, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:   client,
		agents:   make(map[agents.Role]protocol.Agent, len(workers)),
		logger:   logger.With("module", "orchestrator"),
		emitter:  events.Discard,
		tracer:   otelhelper.NoopTracer(),
		maxWaves: DefaultMaxWaves,
	}

	for _, worker := range workers {
		o.agents[agents.Role(worker.Name())] = worker
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

func (o *Orchestrator) Name() string {
	return Name
}

func (o *Orchestrator) Description() string {
	return "Decomposes complex tasks and coordinates the specialized agents."
}

// Execute satisfies protocol.Agent so a workflow AGENT step can delegate to
// the orchestrator.
func (o *Orchestrator) Execute(ctx context.Context, task string, taskContext map[string]any) (*models.AgentResult, error) {
	return o.Run(ctx, task, taskContext, nil), nil
}

// Run orchestrates task. Progress events go to the configured emitter and to
// sink when it is not nil. Failures are reported on the result.
func (o *Orchestrator) Run(
	ctx context.Context,
	task string,
	taskContext map[string]any,
	sink events.Emitter,
) *models.AgentResult {
	start := time.Now()
	run := &run{orchestrator: o, sink: sink}

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.execute")
	defer span.End()

	shared := maps.Clone(taskContext)
	if shared == nil {
		shared = map[string]any{}
	}

	run.emit(ctx, events.OrchestratorStart, map[string]any{
		"task":             task,
		"available_agents": o.roles(),
	})

	decomposition := o.decompose(ctx, task, shared)

	run.emit(ctx, events.TaskDecomposed, map[string]any{"subtasks": subtaskSummaries(decomposition)})

	waves := 0
	for ; waves < o.maxWaves; waves++ {
		ready := decomposition.Ready()
		if len(ready) == 0 {
			break
		}

		results := run.wave(ctx, ready, maps.Clone(shared))

		for i, subtask := range ready {
			decomposition.Record(subtask.ID, results[i])
			shared["result_"+subtask.ID] = results[i].Output
		}
	}

	if !decomposition.Finished() {
		o.logger.WarnContext(ctx, "Orchestration blocked",
			"completed", len(decomposition.Completed),
			"failed", len(decomposition.Failed),
			"total", len(decomposition.Subtasks),
			"waves", waves)

		run.emit(ctx, events.ExecutionBlocked, map[string]any{
			"completed": len(decomposition.Completed),
			"failed":    len(decomposition.Failed),
			"total":     len(decomposition.Subtasks),
		})
	}

	run.emit(ctx, events.Synthesizing, map[string]any{"task": task})

	output, err := o.synthesize(ctx, task, decomposition)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		o.logger.ErrorContext(ctx, "Synthesis failed", "error", err)
		run.emit(ctx, events.OrchestratorError, map[string]any{"error": err.Error()})

		return &models.AgentResult{
			Success:       false,
			Error:         err.Error(),
			Artifacts:     map[string]any{"decomposition": decomposition, "waves": waves},
			ExecutionTime: time.Since(start).Seconds(),
		}
	}

	elapsed := time.Since(start).Seconds()

	run.emit(ctx, events.OrchestratorComplete, map[string]any{
		"success":            true,
		"subtasks_completed": len(decomposition.Completed),
		"execution_time":     elapsed,
	})

	return &models.AgentResult{
		Success:       true,
		Output:        output,
		Artifacts:     map[string]any{"decomposition": decomposition, "waves": waves},
		ExecutionTime: elapsed,
	}
}

func (o *Orchestrator) roles() []string {
	roles := make([]string, 0, len(o.agents))

	for _, role := range agents.Roles {
		if _, ok := o.agents[role]; ok {
			roles = append(roles, string(role))
		}
	}

	return roles
}

func (o *Orchestrator) decompose(ctx context.Context, task string, taskContext map[string]any) *Decomposition {
	contextJSON := "None"
	if len(taskContext) > 0 {
		if encoded, err := json.Marshal(taskContext); err == nil {
			contextJSON = string(encoded)
		}
	}

	messages := []llm.Message{
		llm.System(decompositionPrompt(o.roles())),
		llm.User(fmt.Sprintf(
			"Decompose this task into subtasks for the specialized agents:\n\nTask: %s\n\nContext: %s\n\n"+
				"Respond with the JSON decomposition.", task, contextJSON)),
	}

	reply, err := o.client.Chat(ctx, messages, nil)
	if err != nil {
		o.logger.WarnContext(ctx, "Decomposition call failed, using a single subtask", "error", err)

		decomposition, _ := ParseDecomposition(task, "")

		return decomposition
	}

	decomposition, parsed := ParseDecomposition(task, reply.Content)
	if !parsed {
		o.logger.InfoContext(ctx, "No usable decomposition, using a single subtask")
	}

	return decomposition
}

func (o *Orchestrator) synthesize(ctx context.Context, task string, decomposition *Decomposition) (string, error) {
	type summary struct {
		Task    string `json:"task"`
		Agent   string `json:"agent"`
		Success bool   `json:"success"`
		Output  string `json:"output"`
	}

	summaries := make([]summary, 0, len(decomposition.Subtasks))

	for _, subtask := range decomposition.Subtasks {
		result, ok := decomposition.Result(subtask.ID)
		if !ok {
			continue
		}

		output := result.Output
		if output == "" {
			output = result.Error
		}

		summaries = append(summaries, summary{
			Task:    subtask.Description,
			Agent:   string(subtask.Agent),
			Success: result.Success,
			Output:  truncate(output, synthesisOutputChars),
		})
	}

	encoded, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode subtask results: %w", err)
	}

	messages := []llm.Message{
		llm.System(synthesisPrompt),
		llm.User(fmt.Sprintf(
			"Original Task: %s\n\nSubtask Results:\n%s\n\nSynthesize these results into a clear, actionable response.",
			task, encoded)),
	}

	reply, err := o.client.Chat(ctx, messages, nil)
	if err != nil {
		return "", fmt.Errorf("synthesis failed: %w", err)
	}

	return reply.Content, nil
}

// run carries the per-request event sink.
type run struct {
	orchestrator *Orchestrator
	sink         events.Emitter
}

// wave runs every ready subtask concurrently and waits for all of them. A
// failing or panicking agent only fails its own subtask.
func (r *run) wave(ctx context.Context, ready []*Subtask, snapshot map[string]any) []*models.AgentResult {
	results := make([]*models.AgentResult, len(ready))

	var group errgroup.Group

	for i, subtask := range ready {
		group.Go(func() error {
			results[i] = r.subtask(ctx, subtask, snapshot)

			return nil
		})
	}

	_ = group.Wait()

	return results
}

func (r *run) subtask(ctx context.Context, subtask *Subtask, snapshot map[string]any) (result *models.AgentResult) {
	o := r.orchestrator

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.subtask",
		attribute.String(otelhelper.SubtaskIDKey, subtask.ID),
		attribute.String(otelhelper.AgentRoleKey, string(subtask.Agent)),
	)
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			o.logger.ErrorContext(ctx, "Agent panicked", "subtask_id", subtask.ID, "panic", p)
			result = &models.AgentResult{Success: false, Error: fmt.Sprintf("agent panicked: %v", p)}
		}

		if !result.Success {
			span.SetStatus(codes.Error, result.Error)
		}

		if o.metrics != nil {
			o.metrics.RecordSubtask(string(subtask.Agent), result.Success)
		}

		r.emit(ctx, events.SubtaskComplete, map[string]any{
			"task_id":        subtask.ID,
			"success":        result.Success,
			"output_preview": truncate(result.Output, previewChars),
			"error":          result.Error,
		})
	}()

	agent, ok := o.agents[subtask.Agent]
	if !ok {
		return &models.AgentResult{
			Success: false,
			Error:   fmt.Sprintf("no agent available for role: %s", subtask.Agent),
		}
	}

	r.emit(ctx, events.SubtaskStart, map[string]any{
		"task_id":     subtask.ID,
		"description": subtask.Description,
		"agent":       string(subtask.Agent),
	})

	result, err := agent.Execute(ctx, subtask.Description, snapshot)
	if err != nil {
		return &models.AgentResult{Success: false, Error: err.Error()}
	}

	if result == nil {
		return &models.AgentResult{Success: false, Error: "agent returned no result"}
	}

	return result
}

func (r *run) emit(ctx context.Context, eventType events.EventType, data map[string]any) {
	o := r.orchestrator

	defer func() {
		if p := recover(); p != nil {
			o.logger.ErrorContext(ctx, "Event emitter panicked", "event_type", eventType, "panic", p)
		}
	}()

	event := events.New(events.SourceOrchestrator, eventType, data)

	o.emitter.Emit(ctx, event)

	if r.sink != nil {
		r.sink.Emit(ctx, event)
	}
}

func subtaskSummaries(decomposition *Decomposition) []map[string]any {
	summaries := make([]map[string]any, 0, len(decomposition.Subtasks))

	for _, subtask := range decomposition.Subtasks {
		summaries = append(summaries, map[string]any{
			"id":           subtask.ID,
			"description":  subtask.Description,
			"agent":        string(subtask.Agent),
			"dependencies": subtask.Dependencies,
		})
	}

	return summaries
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}

const synthesisPrompt = `You are synthesizing results from multiple AI agents.
Create a coherent, well-structured response that addresses the original task.
Be concise but comprehensive. Use markdown formatting.`

func decompositionPrompt(roles []string) string {
	return `You are an Orchestrator Agent, the central coordinator of a multi-agent system.

You decompose complex tasks into subtasks and delegate them to specialized agents:
- researcher: information gathering, reading websites and documents
- coder: writing, executing and debugging code
- analyst: data analysis and generating insights
- executor: system commands, API calls and automation

Available agents: ` + strings.Join(roles, ", ") + `

Respond with JSON:
{
  "analysis": "Brief analysis of the task",
  "subtasks": [
    {
      "id": "task_1",
      "description": "Clear description of subtask",
      "agent": "researcher|coder|analyst|executor",
      "dependencies": []
    }
  ]
}

Prefer independent subtasks so they can run in parallel. List a dependency
only when a subtask needs another subtask's result.

Current date: ` + time.Now().Format(time.DateOnly)
}
