package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/picthaisky/english-speaking-coach/internal/metrics"
	"github.com/picthaisky/english-speaking-coach/internal/models"
	"github.com/picthaisky/english-speaking-coach/internal/services"
)

const AnalysisQueue = "queue:recording-analysis"

// listClient is the subset of the Redis client the queue uses.
type listClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// RedisQueue is a FIFO list of analysis jobs with a depth limit.
type RedisQueue struct {
	redis    listClient
	key      string
	maxDepth int64
}

func NewRedisQueue(client *redis.Client, maxDepth int64) *RedisQueue {
	return newRedisQueue(client, AnalysisQueue, maxDepth)
}

func newRedisQueue(client listClient, key string, maxDepth int64) *RedisQueue {
	return &RedisQueue{redis: client, key: key, maxDepth: maxDepth}
}

// CheckCapacity returns a *services.QueueFullError once the list holds
// maxDepth jobs. A non-positive maxDepth disables the limit.
func (q *RedisQueue) CheckCapacity(ctx context.Context) error {
	if q.maxDepth <= 0 {
		return nil
	}
	depth, err := q.redis.LLen(ctx, q.key).Result()
	if err != nil {
		return fmt.Errorf("failed to read queue depth: %w", err)
	}
	metrics.QueueDepth.Set(float64(depth))
	if depth >= q.maxDepth {
		metrics.QueueRejections.Inc()
		return &services.QueueFullError{Depth: depth, Max: q.maxDepth}
	}
	return nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job models.AnalysisJob) error {
	if err := q.CheckCapacity(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	depth, err := q.redis.RPush(ctx, q.key, string(data)).Result()
	if err != nil {
		return fmt.Errorf("failed to push job: %w", err)
	}
	metrics.QueueDepth.Set(float64(depth))
	return nil
}

// Dequeue blocks for up to timeout waiting for a job. It returns nil, nil
// when the wait times out.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.AnalysisJob, error) {
	result, err := q.redis.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}

	var job models.AnalysisJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	return &job, nil
}
