// Package dispatch implements the dispatcher of spec.md §4.5: it turns an
// Execute message into a dispatched TaskRun, writing the TaskRun row before
// publishing its task message so a mid-crash leaves detectable state for
// the requeue watchdog (§4.8) to resolve. Grounded on
// original_source/src/server/dispatch.rs.
package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/internal/bus"
	"github.com/waterwheel-project/waterwheel/internal/messages"
	"github.com/waterwheel-project/waterwheel/internal/model"
	"github.com/waterwheel-project/waterwheel/internal/postoffice"
	"github.com/waterwheel-project/waterwheel/internal/store"
	"github.com/waterwheel-project/waterwheel/pkg/logger"
)

// amqpPriority maps a model.Priority onto the tasks queue's 0..3 header,
// matching bus.MaxPriority.
func amqpPriority(p model.Priority) uint8 {
	switch p {
	case model.PriorityLow:
		return 0
	case model.PriorityHigh:
		return 2
	case model.PriorityUrgent:
		return 3
	default:
		return 1
	}
}

// Dispatcher consumes Execute messages and dispatches TaskRuns.
type Dispatcher struct {
	store *store.Store
	bus   *bus.Bus
	po    *postoffice.PostOffice
	log   logger.Logger
}

// New constructs a Dispatcher.
func New(st *store.Store, b *bus.Bus, po *postoffice.PostOffice, log logger.Logger) *Dispatcher {
	return &Dispatcher{store: st, bus: b, po: po, log: log}
}

// Run consumes Execute messages until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	executes := postoffice.Mailbox[messages.Execute](d.po)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ex := <-executes:
			if err := d.dispatch(ctx, ex); err != nil {
				d.log.Error("dispatch: failed to dispatch execute",
					"task_id", ex.Token.TaskID, "trigger_datetime", ex.Token.TriggerDatetime, "error", err)
			}
		}
	}
}

// dispatch implements spec.md §4.5's five steps.
func (d *Dispatcher) dispatch(ctx context.Context, ex messages.Execute) error {
	task, err := d.store.GetTask(ctx, ex.Token.TaskID)
	if err != nil {
		return fmt.Errorf("dispatch: look up task: %w", err)
	}
	threshold := task.Threshold
	if threshold < 1 {
		threshold = 1
	}

	runID := uuid.New()
	now := time.Now()

	err = d.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := d.store.DispatchToken(ctx, tx, ex.Token.TaskID, ex.Token.TriggerDatetime, threshold); err != nil {
			return err
		}
		return d.store.InsertTaskRun(ctx, tx, &model.TaskRun{
			ID:              runID,
			TaskID:          ex.Token.TaskID,
			TriggerDatetime: ex.Token.TriggerDatetime,
			Attempt:         ex.Attempt,
			QueuedAt:        now,
			State:           model.TaskRunActive,
			Priority:        ex.Priority,
			UpdatedAt:       now,
		})
	})
	if err != nil {
		return fmt.Errorf("dispatch: transaction: %w", err)
	}

	// Write-then-publish: a crash here leaves an active TaskRun with no bus
	// message, which the requeue watchdog resolves (spec.md §4.5, §4.8).
	err = d.bus.Publish(ctx, bus.ExchangeTasks, "", amqpPriority(ex.Priority), messages.TaskMessage{
		TaskRunID:       runID,
		TaskID:          ex.Token.TaskID,
		TriggerDatetime: ex.Token.TriggerDatetime,
		Priority:        ex.Priority.String(),
	})
	if err != nil {
		return fmt.Errorf("dispatch: publish task message: %w", err)
	}
	return nil
}
