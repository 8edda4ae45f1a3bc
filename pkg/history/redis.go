package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conductor/pkg/models"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL         = 7 * 24 * time.Hour
	DefaultPerWorkflow = 100
	defaultRedisPrefix = "conductor:history:"
)

// Redis stores each summary as a JSON string with a TTL and indexes it in a
// per-workflow sorted set scored by start time.
type Redis struct {
	client      *redis.Client
	logger      *slog.Logger
	prefix      string
	ttl         time.Duration
	perWorkflow int64
}

type RedisOption func(*Redis)

func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithPerWorkflow caps how many executions are indexed per workflow.
func WithPerWorkflow(n int) RedisOption {
	return func(r *Redis) {
		if n > 0 {
			r.perWorkflow = int64(n)
		}
	}
}

func NewRedis(client *redis.Client, logger *slog.Logger, opts ...RedisOption) *Redis {
	r := &Redis{
		client:      client,
		logger:      logger.With("module", "redis_history"),
		prefix:      defaultRedisPrefix,
		ttl:         DefaultTTL,
		perWorkflow: DefaultPerWorkflow,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Redis) executionKey(executionID string) string {
	return r.prefix + "execution:" + executionID
}

func (r *Redis) workflowKey(workflowID string) string {
	return r.prefix + "workflow:" + workflowID
}

func (r *Redis) Record(ctx context.Context, summary *models.ExecutionSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal execution summary: %w", err)
	}

	index := r.workflowKey(summary.WorkflowID)

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.executionKey(summary.ExecutionID), data, r.ttl)
	pipe.ZAdd(ctx, index, redis.Z{Score: float64(summary.StartedAt.UnixNano()), Member: summary.ExecutionID})
	pipe.ZRemRangeByRank(ctx, index, 0, -r.perWorkflow-1)
	pipe.Expire(ctx, index, r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to record execution", "execution_id", summary.ExecutionID, "error", err)

		return fmt.Errorf("failed to record execution: %w", err)
	}

	return nil
}

func (r *Redis) Get(ctx context.Context, executionID string) (*models.ExecutionSummary, error) {
	data, err := r.client.Get(ctx, r.executionKey(executionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrExecutionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read execution: %w", err)
	}

	var summary models.ExecutionSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution summary: %w", err)
	}

	return &summary, nil
}

func (r *Redis) ByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionSummary, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := r.client.ZRevRange(ctx, r.workflowKey(workflowID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow index: %w", err)
	}

	summaries := make([]*models.ExecutionSummary, 0, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.executionKey(id))
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read executions: %w", err)
	}

	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			// expired since it was indexed
			continue
		}

		var summary models.ExecutionSummary
		if err := json.Unmarshal([]byte(raw), &summary); err != nil {
			r.logger.WarnContext(ctx, "Skipping unreadable execution summary", "error", err)

			continue
		}

		summaries = append(summaries, &summary)
	}

	return summaries, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
