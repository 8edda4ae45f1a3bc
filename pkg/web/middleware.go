package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
)

type HTTPMetrics interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// RequestMetrics records every request under its route pattern, so /workflows/:id
// is one series regardless of the id.
func RequestMetrics(metrics HTTPMetrics) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
		}

		metrics.RecordHTTPRequest(c.Method(), c.Route().Path, status, time.Since(start))

		return err
	}
}
