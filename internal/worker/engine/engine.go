// Package engine defines the worker's pluggable task-execution capability
// (spec.md §4.10, Design Notes §9 "polymorphic engine as tagged variant").
// Container orchestration itself is a Non-goal; only the interface and the
// engine-selection switch are in scope, so Docker/KubernetesPod/
// KubernetesJob are thin adapters rather than full drivers. Grounded on
// original_source/src/worker/engine/mod.rs.
package engine

import (
	"context"
	"fmt"

	"github.com/waterwheel-project/waterwheel/pkg/cache"
)

// Outcome is the terminal result of RunTask, mapped onto a progress
// message's result field by the worker dispatch loop.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "error"
	}
}

// Engine runs one task definition to completion. Implementations must
// respect ctx's deadline: the worker dispatch loop maps a context timeout
// to OutcomeError, per spec.md §4.10 step 4 ("Engine error or timeout maps
// to error").
type Engine interface {
	RunTask(ctx context.Context, def *cache.CachedTaskDef, projectConfig []byte) (Outcome, error)
}

// Kind selects which Engine implementation a worker process runs, the
// `task_engine` configuration enum of spec.md §6.
type Kind string

const (
	KindNull           Kind = "null"
	KindDocker         Kind = "docker"
	KindKubernetesPod  Kind = "kubernetes_pod"
	KindKubernetesJob  Kind = "kubernetes_job"
)

// New resolves a Kind to its Engine implementation.
func New(kind Kind) (Engine, error) {
	switch kind {
	case KindNull, "":
		return &Null{}, nil
	case KindDocker:
		return &Docker{}, nil
	case KindKubernetesPod:
		return &KubernetesPod{}, nil
	case KindKubernetesJob:
		return &KubernetesJob{}, nil
	default:
		return nil, fmt.Errorf("engine: unknown task_engine %q", kind)
	}
}
