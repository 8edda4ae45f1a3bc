package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Provider is a named Client taking part in a fallback chain.
type Provider struct {
	Name   string
	Client Client
}

// Fallback tries each provider in order and returns the first successful reply.
type Fallback struct {
	providers []Provider
	logger    *slog.Logger
}

func NewFallback(logger *slog.Logger, providers ...Provider) *Fallback {
	return &Fallback{providers: providers, logger: logger.With("module", "llm_fallback")}
}

func (f *Fallback) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Message, error) {
	if len(f.providers) == 0 {
		return nil, ErrNoProviders
	}

	var errs []error

	for _, provider := range f.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		reply, err := provider.Client.Chat(ctx, messages, tools)
		if err == nil {
			return reply, nil
		}

		f.logger.WarnContext(ctx, "LLM provider failed, trying next", "provider", provider.Name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", provider.Name, err))
	}

	return nil, fmt.Errorf("all llm providers failed: %w", errors.Join(errs...))
}
