// Package requeue implements the requeue watchdog of spec.md §4.8: every
// requeue_interval it sweeps task_runs stuck in 'running' past the stall
// threshold, transitions them to 'error', and re-dispatches each by
// emitting a fresh Execute — preserving monotonic token progress by moving
// the token itself to 'running' first. Grounded on
// original_source/src/server/requeue.rs.
package requeue

import (
	"context"
	"database/sql"
	"time"

	"github.com/waterwheel-project/waterwheel/internal/messages"
	"github.com/waterwheel-project/waterwheel/internal/model"
	"github.com/waterwheel-project/waterwheel/internal/postoffice"
	"github.com/waterwheel-project/waterwheel/internal/store"
	"github.com/waterwheel-project/waterwheel/pkg/logger"
)

// Watchdog periodically reclaims stalled task runs.
type Watchdog struct {
	store    *store.Store
	po       *postoffice.PostOffice
	log      logger.Logger
	interval time.Duration
	// staleAfter must be safely larger than the worker heartbeat interval
	// times its missed-heartbeat tolerance (spec.md §4.8).
	staleAfter time.Duration
}

// New constructs a Watchdog sweeping every interval for runs stale for
// longer than staleAfter.
func New(st *store.Store, po *postoffice.PostOffice, log logger.Logger, interval, staleAfter time.Duration) *Watchdog {
	return &Watchdog{store: st, po: po, log: log, interval: interval, staleAfter: staleAfter}
}

// Run sweeps on a ticker until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				w.log.Error("requeue: sweep failed", "error", err)
			}
		}
	}
}

func (w *Watchdog) sweep(ctx context.Context) error {
	stalled, err := w.store.RequeueStalledRuns(ctx, w.staleAfter)
	if err != nil {
		return err
	}
	for _, run := range stalled {
		attempt, err := w.store.NextAttempt(ctx, run.TaskID, run.TriggerDatetime)
		if err != nil {
			w.log.Warn("requeue: failed to compute next attempt", "task_id", run.TaskID, "error", err)
		}
		txErr := w.store.WithTx(ctx, func(tx *sql.Tx) error {
			return w.store.SetTokenState(ctx, tx, run.TaskID, run.TriggerDatetime, model.TokenRunning)
		})
		if txErr != nil {
			w.log.Warn("requeue: failed to preserve token running state", "task_id", run.TaskID, "error", txErr)
		}
		postoffice.Post(w.po, messages.Execute{
			Token: messages.TokenRef{
				TaskID:          run.TaskID,
				TriggerDatetime: run.TriggerDatetime,
			},
			Priority: run.Priority,
			Attempt:  attempt,
		})
	}
	return nil
}
