package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/conductor/pkg/cmd"
	"github.com/dukex/conductor/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort            = 9091
	defaultRetryBaseDelay  = time.Second
	defaultShutdownTimeout = 30 * time.Second
)

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "conductor-api",
		Usage:                 "Serve the workflow, schedule and orchestrator API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Workflow store URL (postgres://... or a directory)",
				Value:   "./data/workflows",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "scheduler-persistence-url",
				Usage:   "Scheduled task store URL (file://, sqlite:// or postgres://)",
				Value:   "file://./data/scheduler",
				Sources: cli.EnvVars("SCHEDULER_PERSISTENCE_URL"),
			},
			&cli.StringFlag{
				Name:    "scheduler-timezone",
				Usage:   "IANA time zone used to evaluate cron triggers",
				Value:   "UTC",
				Sources: cli.EnvVars("SCHEDULER_TIMEZONE"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "history-url",
				Usage:   "Execution history backend (memory or redis://...)",
				Value:   "memory",
				Sources: cli.EnvVars("HISTORY_URL"),
			},
			&cli.StringFlag{
				Name:    "llm-base-url",
				Usage:   "OpenAI-compatible endpoint serving the models",
				Sources: cli.EnvVars("LLM_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "llm-api-key",
				Usage:   "API key for the LLM endpoint",
				Sources: cli.EnvVars("LLM_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "llm-model",
				Usage:   "Primary model",
				Value:   "gpt-4o-mini",
				Sources: cli.EnvVars("LLM_MODEL"),
			},
			&cli.StringFlag{
				Name:    "llm-fallback-models",
				Usage:   "Comma separated models tried when the primary one fails",
				Sources: cli.EnvVars("LLM_FALLBACK_MODELS"),
			},
			&cli.DurationFlag{
				Name:    "retry-base-delay",
				Usage:   "Base delay of the exponential step retry",
				Value:   defaultRetryBaseDelay,
				Sources: cli.EnvVars("RETRY_BASE_DELAY"),
			},
			&cli.DurationFlag{
				Name:    "step-timeout",
				Usage:   "Timeout applied to steps that do not set their own",
				Sources: cli.EnvVars("STEP_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Conductor API")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			components, err := cmd.NewComponents(ctx, configFromCommand(command), logger)
			if err != nil {
				return err
			}

			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
				defer cancel()

				if err := components.Close(shutdownCtx); err != nil {
					logger.ErrorContext(shutdownCtx, "Failed to close components", "error", err)
				}
			}()

			if err := components.Start(ctx); err != nil {
				return err
			}

			return NewAPI(logger, components).Start(ctx, command.Int("port"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func configFromCommand(command *cli.Command) cmd.Config {
	return cmd.Config{
		DatabaseURL:             command.String("database-url"),
		SchedulerPersistenceURL: command.String("scheduler-persistence-url"),
		SchedulerTimezone:       command.String("scheduler-timezone"),
		EventBusType:            command.String("event-bus"),
		KafkaBrokers:            command.String("kafka-brokers"),
		HistoryURL:              command.String("history-url"),
		LLM: cmd.LLMConfig{
			BaseURL:        command.String("llm-base-url"),
			APIKey:         command.String("llm-api-key"),
			Model:          command.String("llm-model"),
			FallbackModels: cmd.ParseModels(command.String("llm-fallback-models")),
		},
		RetryBaseDelay: command.Duration("retry-base-delay"),
		StepTimeout:    command.Duration("step-timeout"),
		OtelEnabled:    command.Bool("otel-enabled"),
	}
}
