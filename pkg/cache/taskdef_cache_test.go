package cache

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func TestTaskDefCacheKeyFormat(t *testing.T) {
	id := uuid.New()
	c := &TaskDefCache{}
	want := "taskdef:" + id.String()
	if got := c.key(id); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestProjectConfigCacheKeyFormat(t *testing.T) {
	id := uuid.New()
	c := &ProjectConfigCache{}
	want := "projectconfig:" + id.String()
	if got := c.key(id); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTaskDefCacheRoundTripIntegration(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set; skipping integration test")
	}

	rc, err := NewRedisClient(newTestConfig(redisURL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close() //nolint:errcheck

	cache := NewTaskDefCache(rc)
	ctx := context.Background()
	def := &CachedTaskDef{ID: uuid.New(), Image: "alpine:3", Args: []string{"echo", "hi"}, TimeoutSecs: 30}

	if err := cache.Set(ctx, def); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := cache.Get(ctx, def.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Image != def.Image {
		t.Fatalf("got image %q, want %q", got.Image, def.Image)
	}

	if err := cache.Invalidate(ctx, def.ID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := cache.Get(ctx, def.ID); !IsMiss(err) {
		t.Fatalf("expected cache miss after invalidate, got %v", err)
	}
}
