package cmd

import (
	"log/slog"
	"strings"

	"github.com/dukex/conductor/pkg/llm"
)

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	FallbackModels []string
}

// ParseModels splits a comma separated model list.
func ParseModels(raw string) []string {
	var models []string

	for model := range strings.SplitSeq(raw, ",") {
		if model = strings.TrimSpace(model); model != "" {
			models = append(models, model)
		}
	}

	return models
}

// NewLLMClient chains the primary model with the fallback models, all served
// by the same OpenAI-compatible endpoint.
func NewLLMClient(logger *slog.Logger, cfg LLMConfig) *llm.Fallback {
	models := append([]string{cfg.Model}, cfg.FallbackModels...)
	providers := make([]llm.Provider, 0, len(models))

	for _, model := range models {
		if model == "" {
			continue
		}

		providers = append(providers, llm.Provider{
			Name:   model,
			Client: llm.NewOpenAI(llm.OpenAIConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: model}),
		})
	}

	return llm.NewFallback(logger, providers...)
}
