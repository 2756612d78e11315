package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// ProjectConfigCacheTTL mirrors TaskDefCacheTTL; project config changes
	// rarely enough that an hour-long staleness window is acceptable.
	ProjectConfigCacheTTL = 1 * time.Hour

	projectConfigCacheKeyPrefix = "projectconfig"
)

// ProjectConfigCache caches the raw project config blob a worker's engine
// passes through to the container (env vars, registry credentials, etc.),
// keyed by project id.
type ProjectConfigCache struct {
	client *RedisClient
}

// NewProjectConfigCache constructs a ProjectConfigCache backed by r.
func NewProjectConfigCache(r *RedisClient) *ProjectConfigCache {
	return &ProjectConfigCache{client: r}
}

// Get retrieves a cached project config blob. Returns redis.Nil when absent.
func (c *ProjectConfigCache) Get(ctx context.Context, projectID uuid.UUID) ([]byte, error) {
	raw, err := c.client.Client().Get(ctx, c.key(projectID)).Bytes()
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Set writes a project's config blob with ProjectConfigCacheTTL.
func (c *ProjectConfigCache) Set(ctx context.Context, projectID uuid.UUID, config []byte) error {
	if err := c.client.Client().Set(ctx, c.key(projectID), config, ProjectConfigCacheTTL).Err(); err != nil {
		return fmt.Errorf("project config cache: set: %w", err)
	}
	return nil
}

// Invalidate drops a cached project config. The config fanout consumer
// (configcache.Resolver.RunInvalidation) acts only on task_def updates and
// does not call it.
func (c *ProjectConfigCache) Invalidate(ctx context.Context, projectID uuid.UUID) error {
	if err := c.client.Client().Del(ctx, c.key(projectID)).Err(); err != nil {
		return fmt.Errorf("project config cache: invalidate: %w", err)
	}
	return nil
}

func (c *ProjectConfigCache) key(projectID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", projectConfigCacheKeyPrefix, projectID)
}
