// Package history keeps the summaries of finished workflow executions.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/conductor/pkg/models"
	"github.com/redis/go-redis/v9"
)

var ErrExecutionNotFound = errors.New("execution not found in history")

// Store records finished executions and reads them back.
type Store interface {
	Record(ctx context.Context, summary *models.ExecutionSummary) error
	Get(ctx context.Context, executionID string) (*models.ExecutionSummary, error)
	// ByWorkflow returns the most recent executions of a workflow, newest first.
	ByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionSummary, error)
	Close() error
}

// NewStore picks the backend from url: "" or "memory" for the in-process
// ring, redis:// or rediss:// for redis.
//
// nolint:ireturn
func NewStore(ctx context.Context, logger *slog.Logger, url string) (Store, error) {
	switch {
	case url == "" || url == "memory":
		logger.InfoContext(ctx, "Using in-memory execution history")

		return NewMemory(DefaultCapacity), nil
	case strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://"):
		options, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}

		client := redis.NewClient(options)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()

			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		logger.InfoContext(ctx, "Using redis execution history", "addr", options.Addr)

		return NewRedis(client, logger), nil
	default:
		return nil, fmt.Errorf("unsupported history url %q (supported: memory, redis://)", url)
	}
}
