// Package progress implements the progress processor of spec.md §4.6: it
// consumes the results queue, propagates terminal completions along
// TaskEdges, advances token and TaskRun state, schedules retries, and
// notifies the token processor of every child token it incremented.
// Grounded on original_source/src/server/progress.rs.
package progress

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/waterwheel-project/waterwheel/internal/bus"
	"github.com/waterwheel-project/waterwheel/internal/messages"
	"github.com/waterwheel-project/waterwheel/internal/model"
	"github.com/waterwheel-project/waterwheel/internal/postoffice"
	"github.com/waterwheel-project/waterwheel/internal/store"
	"github.com/waterwheel-project/waterwheel/pkg/logger"
)

// Processor consumes the results queue and applies each progress message.
type Processor struct {
	store *store.Store
	bus   *bus.Bus
	po    *postoffice.PostOffice
	log   logger.Logger
}

// New constructs a Processor.
func New(st *store.Store, b *bus.Bus, po *postoffice.PostOffice, log logger.Logger) *Processor {
	return &Processor{store: st, bus: b, po: po, log: log}
}

// Run opens the results consumer and applies each delivery until ctx is
// cancelled, at the prefetch count spec.md §4.2 mandates for this role.
func (p *Processor) Run(ctx context.Context) error {
	ch, deliveries, err := p.bus.Consume(bus.ExchangeResults, bus.PrefetchProgress)
	if err != nil {
		return fmt.Errorf("progress: consume results: %w", err)
	}
	defer ch.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("progress: results consumer channel closed")
			}
			p.handleDelivery(ctx, d)
		}
	}
}

func (p *Processor) handleDelivery(ctx context.Context, d amqp.Delivery) {
	msg, err := bus.Decode[messages.ProgressMessage](d)
	if err != nil {
		p.log.Error("progress: failed to decode delivery, dropping", "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := p.apply(ctx, msg); err != nil {
		p.log.Error("progress: failed to apply message, requeueing",
			"task_run_id", msg.TaskRunID, "result", msg.Result, "error", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// apply implements spec.md §4.6's per-message steps.
func (p *Processor) apply(ctx context.Context, msg messages.ProgressMessage) error {
	state, err := model.ParseTaskRunState(msg.Result)
	if err != nil {
		return fmt.Errorf("progress: unknown result %q: %w", msg.Result, err)
	}

	run, err := p.store.GetTaskRun(ctx, msg.TaskRunID)
	if err != nil {
		return fmt.Errorf("progress: look up task run: %w", err)
	}
	task, err := p.store.GetTask(ctx, msg.TaskID)
	if err != nil {
		return fmt.Errorf("progress: look up task: %w", err)
	}

	var childTokens []messages.TokenRef

	err = p.store.WithTx(ctx, func(tx *sql.Tx) error {
		if state.IsTerminal() {
			kind := model.EdgeSuccess
			if state == model.TaskRunFailure {
				kind = model.EdgeFailure
			}
			if state == model.TaskRunSuccess || state == model.TaskRunFailure {
				edges, err := p.store.ListTaskEdgesByParent(ctx, msg.TaskID, kind)
				if err != nil {
					return err
				}
				for _, edge := range edges {
					at := msg.TriggerDatetime.Add(time.Duration(edge.EdgeOffsetSecs) * time.Second)
					if _, _, err := p.store.IncrementToken(ctx, tx, edge.ChildTaskID, at, 1); err != nil {
						return err
					}
					childTokens = append(childTokens, messages.TokenRef{TaskID: edge.ChildTaskID, TriggerDatetime: at})
				}
			}
			// error propagates to nothing: a swallowed failure the requeue
			// watchdog may later retry.
		}

		if err := p.store.SetTokenState(ctx, tx, msg.TaskID, msg.TriggerDatetime, tokenStateFor(state)); err != nil {
			return err
		}

		if err := p.store.UpdateTaskRunProgress(ctx, tx, msg.TaskRunID, state, msg.StartedDatetime, msg.FinishedDatetime, &msg.WorkerID); err != nil {
			return err
		}

		if state == model.TaskRunFailure && run.Attempt < task.RetryMaxAttempts {
			retryAt := time.Now().Add(time.Duration(task.RetryDelaySecs) * time.Second)
			if err := p.store.InsertRetry(ctx, tx, msg.TaskRunID, retryAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, ref := range childTokens {
		postoffice.Post(p.po, messages.Increment{Token: ref, Priority: run.Priority, Delta: 1})
	}
	return nil
}

// tokenStateFor maps a terminal/intermediate TaskRunState onto the token
// state it advances to; "running" is the only non-terminal state a
// progress message carries (spec.md §4.6).
func tokenStateFor(s model.TaskRunState) model.TokenState {
	switch s {
	case model.TaskRunRunning:
		return model.TokenRunning
	case model.TaskRunSuccess:
		return model.TokenSuccess
	case model.TaskRunFailure:
		return model.TokenFailure
	case model.TaskRunError:
		return model.TokenError
	default:
		return model.TokenActive
	}
}
