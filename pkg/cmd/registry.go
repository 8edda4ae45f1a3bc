// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/conductor/pkg/agents"
	"github.com/dukex/conductor/pkg/llm"
	"github.com/dukex/conductor/pkg/orchestrator"
	"github.com/dukex/conductor/pkg/protocol"
	"github.com/dukex/conductor/pkg/registry"
	"github.com/dukex/conductor/pkg/tools/calculator"
	"github.com/dukex/conductor/pkg/tools/httprequest"
	"github.com/dukex/conductor/pkg/tools/logtool"
)

func registerNativeTools(reg *registry.Registry, logger *slog.Logger) {
	reg.RegisterTool(calculator.New(logger))
	reg.RegisterTool(httprequest.New(logger, nil))
	reg.RegisterTool(logtool.New(logger))
}

// NewRegistry returns a registry holding the built-in tools.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	registerNativeTools(reg, logger)

	return reg
}

// RegisterAgents adds one LLM agent per role and the orchestrator, which
// coordinates them and is itself callable from AGENT steps.
func RegisterAgents(
	reg *registry.Registry,
	client llm.Client,
	logger *slog.Logger,
	opts ...orchestrator.Option,
) *orchestrator.Orchestrator {
	workers := agents.NewAll(client, reg, logger)

	for _, agent := range workers {
		reg.RegisterAgent(agent)
	}

	orch := orchestrator.New(client, agentList(workers), logger, opts...)
	reg.RegisterAgent(orch)

	return orch
}

func agentList(workers []*agents.Agent) []protocol.Agent {
	list := make([]protocol.Agent, 0, len(workers))
	for _, worker := range workers {
		list = append(list, worker)
	}

	return list
}
