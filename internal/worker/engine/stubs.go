package engine

import (
	"context"
	"fmt"

	"github.com/waterwheel-project/waterwheel/pkg/cache"
)

// Docker, KubernetesPod, and KubernetesJob are the tagged-variant stubs
// spec.md §4.10 calls for: the container backend itself is an explicit
// Non-goal, but the engine-selection switch must still exist so an
// operator can name `task_engine=docker` in config without the process
// refusing to start. Each returns OutcomeError with a descriptive message
// rather than silently no-op'ing — a configuration mistake should surface
// as a task failure, not a false success.

// Docker runs a task's image via the local Docker daemon. Not implemented.
type Docker struct{}

func (d *Docker) RunTask(ctx context.Context, def *cache.CachedTaskDef, projectConfig []byte) (Outcome, error) {
	return OutcomeError, fmt.Errorf("engine: docker backend not implemented in this build")
}

// KubernetesPod runs a task as a bare Pod. Not implemented.
type KubernetesPod struct{}

func (k *KubernetesPod) RunTask(ctx context.Context, def *cache.CachedTaskDef, projectConfig []byte) (Outcome, error) {
	return OutcomeError, fmt.Errorf("engine: kubernetes_pod backend not implemented in this build")
}

// KubernetesJob runs a task as a Job resource. Not implemented.
type KubernetesJob struct{}

func (k *KubernetesJob) RunTask(ctx context.Context, def *cache.CachedTaskDef, projectConfig []byte) (Outcome, error) {
	return OutcomeError, fmt.Errorf("engine: kubernetes_job backend not implemented in this build")
}

var (
	_ Engine = (*Docker)(nil)
	_ Engine = (*KubernetesPod)(nil)
	_ Engine = (*KubernetesJob)(nil)
)
