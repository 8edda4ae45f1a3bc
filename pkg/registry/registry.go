// Package registry maps capability names to the tools and agents that implement them.
// It is populated once at startup and read concurrently afterwards.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strconv"
	"sync"

	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/protocol"
)

type Registry struct {
	logger *slog.Logger
	mu     sync.RWMutex
	tools  map[string]protocol.Tool
	agents map[string]protocol.Agent
}

// CapabilityInfo describes a registered capability for listings.
type CapabilityInfo struct {
	Name        string         `json:"name"`
	Kind        Kind           `json:"kind"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger: log.With("module", "registry"),
		tools:  make(map[string]protocol.Tool),
		agents: make(map[string]protocol.Agent),
	}
}

func (r *Registry) RegisterTool(tool protocol.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; exists {
		r.logger.Warn("Replacing registered tool", "tool", tool.Name())
	}

	r.tools[tool.Name()] = tool
}

func (r *Registry) RegisterAgent(agent protocol.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agent.Name()]; exists {
		r.logger.Warn("Replacing registered agent", "agent", agent.Name())
	}

	r.agents[agent.Name()] = agent
}

func (r *Registry) Tool(name string) (protocol.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, &UnknownCapabilityError{Kind: KindTool, Name: name}
	}

	return tool, nil
}

func (r *Registry) Agent(name string) (protocol.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[name]
	if !ok {
		return nil, &UnknownCapabilityError{Kind: KindAgent, Name: name}
	}

	return agent, nil
}

// ExecuteTool resolves, validates and runs a tool. A panic inside the tool is
// returned as an error wrapping ErrCapabilityPanic.
func (r *Registry) ExecuteTool(ctx context.Context, name string, params map[string]any) (result *models.ToolResult, err error) {
	tool, err := r.Tool(name)
	if err != nil {
		return nil, err
	}

	if provider, ok := tool.(protocol.SchemaProvider); ok {
		if err := ValidateParams(provider.Schema(), params); err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "Tool panicked", "tool", name, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("tool %s: %w: %v", name, ErrCapabilityPanic, p)
		}
	}()

	return tool.Execute(ctx, params)
}

// ExecuteAgent resolves and runs an agent, recovering panics like ExecuteTool.
func (r *Registry) ExecuteAgent(
	ctx context.Context,
	name string,
	task string,
	taskContext map[string]any,
) (result *models.AgentResult, err error) {
	agent, err := r.Agent(name)
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "Agent panicked", "agent", name, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("agent %s: %w: %v", name, ErrCapabilityPanic, p)
		}
	}()

	return agent.Execute(ctx, task, taskContext)
}

// Tools lists registered tools sorted by name.
func (r *Registry) Tools() []CapabilityInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]CapabilityInfo, 0, len(r.tools))

	for _, tool := range r.tools {
		info := CapabilityInfo{Name: tool.Name(), Kind: KindTool, Description: tool.Description()}
		if provider, ok := tool.(protocol.SchemaProvider); ok {
			info.Schema = provider.Schema()
		}

		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

// Agents lists registered agents sorted by name.
func (r *Registry) Agents() []CapabilityInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]CapabilityInfo, 0, len(r.agents))
	for _, agent := range r.agents {
		infos = append(infos, CapabilityInfo{Name: agent.Name(), Kind: KindAgent, Description: agent.Description()})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return strconv.Itoa(len(r.tools)) + " tools and " + strconv.Itoa(len(r.agents)) + " agents registered", true
}
