package agents

import (
	"log/slog"

	"github.com/dukex/conductor/pkg/llm"
)

// NewAll builds one agent per role.
func NewAll(client llm.Client, tools ToolExecutor, logger *slog.Logger, opts ...Option) []*Agent {
	all := make([]*Agent, 0, len(Roles))
	for _, role := range Roles {
		all = append(all, New(role, client, tools, logger, opts...))
	}

	return all
}
