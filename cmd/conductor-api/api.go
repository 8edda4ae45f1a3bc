// Package main provides the Conductor API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/dukex/conductor/pkg/cmd"
	"github.com/dukex/conductor/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger     *slog.Logger
	components *cmd.Components
	validate   *validator.Validate
}

func NewAPI(logger *slog.Logger, components *cmd.Components) *API {
	return &API{
		logger:     logger,
		components: components,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	c := a.components

	handlers := web.NewAPIHandlers(
		c.Workflows,
		c.Engine,
		c.History,
		c.Scheduler,
		c.Registry,
		c.Orchestrator,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))
	app.Use(web.RequestMetrics(c.Metrics))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Conductor API")
	})

	app.Get("/metrics", adaptor.HTTPHandler(c.Metrics.Handler()))

	handlers.Register(app)

	return app
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	errs := make(chan error, 1)

	go func() {
		errs <- app.Listen(":" + strconv.Itoa(port))
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "Shutting down API server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			return errors.Join(err, <-errs)
		}

		return <-errs
	}
}
