package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// TaskDefCacheTTL bounds how long a worker trusts a cached task
	// definition before falling back to the scheduler's HTTP lookup again.
	TaskDefCacheTTL = 1 * time.Hour

	taskDefCacheKeyPrefix = "taskdef"
)

// CachedTaskDef is the worker-side read model of a task definition, fetched
// from `GET /int-api/tasks/{id}` and cached to survive a config-fanout
// invalidation storm without re-hitting the scheduler for every task.
type CachedTaskDef struct {
	ID               uuid.UUID `json:"id"`
	Image            string    `json:"image"`
	Args             []string  `json:"args"`
	Env              []string  `json:"env"`
	TimeoutSecs      int       `json:"timeout_secs"`
	RetryMaxAttempts int       `json:"retry_max_attempts"`
}

// TaskDefCache caches task definitions, keyed by task id.
type TaskDefCache struct {
	client *RedisClient
}

// NewTaskDefCache constructs a TaskDefCache backed by r.
func NewTaskDefCache(r *RedisClient) *TaskDefCache {
	return &TaskDefCache{client: r}
}

// Get retrieves a cached task definition. Returns redis.Nil when absent.
func (c *TaskDefCache) Get(ctx context.Context, taskID uuid.UUID) (*CachedTaskDef, error) {
	raw, err := c.client.Client().Get(ctx, c.key(taskID)).Bytes()
	if err != nil {
		return nil, err // redis.Nil propagates for cache-miss callers to check
	}
	var def CachedTaskDef
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("taskdef cache: unmarshal: %w", err)
	}
	return &def, nil
}

// Set writes a task definition with TaskDefCacheTTL.
func (c *TaskDefCache) Set(ctx context.Context, def *CachedTaskDef) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("taskdef cache: marshal: %w", err)
	}
	if err := c.client.Client().Set(ctx, c.key(def.ID), raw, TaskDefCacheTTL).Err(); err != nil {
		return fmt.Errorf("taskdef cache: set: %w", err)
	}
	return nil
}

// Invalidate drops a cached task definition, called from the config fanout
// consumer on a TaskDef update.
func (c *TaskDefCache) Invalidate(ctx context.Context, taskID uuid.UUID) error {
	if err := c.client.Client().Del(ctx, c.key(taskID)).Err(); err != nil {
		return fmt.Errorf("taskdef cache: invalidate: %w", err)
	}
	return nil
}

func (c *TaskDefCache) key(taskID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", taskDefCacheKeyPrefix, taskID)
}

// IsMiss reports whether err is the Redis cache-miss sentinel.
func IsMiss(err error) bool {
	return err == redis.Nil
}
