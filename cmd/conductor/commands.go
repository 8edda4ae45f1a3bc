package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dukex/conductor/pkg/cmd"
	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/services"
	"github.com/dukex/conductor/pkg/workflow"
	cli "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

var (
	ErrWorkflowFailed = errors.New("workflow did not complete")
	ErrInvalidVar     = errors.New("variables must be written as key=value")
)

func RunCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Execute a workflow file and print the execution summary",
		ArgsUsage: "<workflow.json|workflow.yaml>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "var",
				Usage: "Initial variable as key=value, repeatable",
			},
			&cli.StringFlag{
				Name:    "llm-base-url",
				Usage:   "OpenAI-compatible endpoint for agent steps",
				Sources: cli.EnvVars("LLM_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "llm-api-key",
				Usage:   "API key for the LLM endpoint",
				Sources: cli.EnvVars("LLM_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "llm-model",
				Usage:   "Model used by agent steps",
				Value:   "gpt-4o-mini",
				Sources: cli.EnvVars("LLM_MODEL"),
			},
			&cli.DurationFlag{
				Name:  "retry-base-delay",
				Usage: "Base delay of the exponential step retry",
				Value: time.Second,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			variables, err := parseVars(command.StringSlice("var"))
			if err != nil {
				return err
			}

			engine := newEngine(logger, cmd.LLMConfig{
				BaseURL: command.String("llm-base-url"),
				APIKey:  command.String("llm-api-key"),
				Model:   command.String("llm-model"),
			}, command.Duration("retry-base-delay"))

			return runWorkflowFile(ctx, command.Root().Writer, engine, command.Args().First(), variables)
		},
	}
}

func ValidateCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a workflow file without running it",
		ArgsUsage: "<workflow.json|workflow.yaml>",
		Action: func(_ context.Context, command *cli.Command) error {
			return validateWorkflowFile(command.Root().Writer, logger, command.Args().First())
		},
	}
}

func TemplatesCommand() *cli.Command {
	return &cli.Command{
		Name:  "templates",
		Usage: "List the built-in workflow templates",
		Action: func(_ context.Context, command *cli.Command) error {
			return listTemplates(command.Root().Writer)
		},
	}
}

func newEngine(logger *slog.Logger, llmConfig cmd.LLMConfig, retryBaseDelay time.Duration) *workflow.Engine {
	reg := cmd.NewRegistry(logger)
	cmd.RegisterAgents(reg, cmd.NewLLMClient(logger, llmConfig), logger)

	return workflow.NewEngine(reg, logger, workflow.WithRetryBaseDelay(retryBaseDelay))
}

func runWorkflowFile(
	ctx context.Context,
	out io.Writer,
	engine *workflow.Engine,
	path string,
	variables map[string]any,
) error {
	wf, err := readWorkflowFile(path)
	if err != nil {
		return err
	}

	if wf.ID == "" {
		wf.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	execution := engine.Execute(ctx, wf, variables)
	summary := execution.Summary()

	if err := printJSON(out, summary); err != nil {
		return err
	}

	if summary.Status != models.ExecutionStatusCompleted {
		return fmt.Errorf("%w: %s %s", ErrWorkflowFailed, summary.Status, summary.Error)
	}

	return nil
}

func validateWorkflowFile(out io.Writer, logger *slog.Logger, path string) error {
	wf, err := readWorkflowFile(path)
	if err != nil {
		return err
	}

	if err := services.Validate(logger, wf); err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "%s: %d steps, valid\n", wf.Name, len(wf.Steps))

	return err
}

func listTemplates(out io.Writer) error {
	for _, template := range services.BuiltinTemplates() {
		if _, err := fmt.Fprintf(out, "%-20s %s\n", template.ID, template.Description); err != nil {
			return err
		}
	}

	return nil
}

// readWorkflowFile decodes a workflow document, picking YAML for .yaml and
// .yml files and JSON otherwise.
func readWorkflowFile(path string) (*models.Workflow, error) {
	if path == "" {
		return nil, errors.New("a workflow file is required")
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	format, err := services.ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		format = services.FormatJSON
	}

	return services.Decode(data, format)
}

// parseVars turns key=value pairs into variables. Values are read as YAML
// scalars, so numbers and booleans keep their type.
func parseVars(pairs []string) (map[string]any, error) {
	variables := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		key, raw, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidVar, pair)
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}

		variables[key] = value
	}

	return variables, nil
}

func printJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}
