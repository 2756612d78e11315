package engine

import (
	"context"

	"github.com/waterwheel-project/waterwheel/pkg/cache"
)

// Null runs nothing and touches no container runtime. It backs
// `task_engine=null` (spec.md §4.10).
type Null struct{}

// RunTask reports success immediately, matching a task with no image
// (spec.md §4.10 step 3 "no image ⇒ completes immediately"). If ctx is
// already done it reports OutcomeError with ctx's error instead.
func (n *Null) RunTask(ctx context.Context, def *cache.CachedTaskDef, projectConfig []byte) (Outcome, error) {
	select {
	case <-ctx.Done():
		return OutcomeError, ctx.Err()
	default:
		return OutcomeSuccess, nil
	}
}

var _ Engine = (*Null)(nil)
