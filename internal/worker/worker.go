// Package worker implements the worker dispatch loop of spec.md §4.10: pull
// one task at a time from the tasks queue, resolve its definition through
// the config cache, run it under the configured engine with a bounded
// timeout, and publish progress events before acking. Grounded on
// original_source/src/worker/mod.rs.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/internal/bus"
	"github.com/waterwheel-project/waterwheel/internal/messages"
	"github.com/waterwheel-project/waterwheel/internal/worker/engine"
	"github.com/waterwheel-project/waterwheel/pkg/cache"
	"github.com/waterwheel-project/waterwheel/pkg/logger"
)

// defaultTaskTimeout is the ceiling spec.md §4.10 step 4 applies when a
// task's own TimeoutSecs is zero or exceeds it.
const defaultTaskTimeout = 29 * time.Minute

// TaskDefResolver looks up a task's definition, consulting the worker's
// local cache before the scheduler's HTTP API.
type TaskDefResolver interface {
	Resolve(ctx context.Context, taskID uuid.UUID) (*cache.CachedTaskDef, error)
}

// Worker drives up to maxTasks deliveries through an Engine concurrently.
type Worker struct {
	id       uuid.UUID
	bus      *bus.Bus
	resolver TaskDefResolver
	eng      engine.Engine
	log      logger.Logger
	counter  *Counter
	maxTasks int
}

// New constructs a Worker with a stable identity (carried on progress
// messages). maxTasks bounds how many deliveries this worker runs
// concurrently (spec.md §6 "max_tasks"); values below 1 fall back to 1.
func New(id uuid.UUID, b *bus.Bus, resolver TaskDefResolver, eng engine.Engine, log logger.Logger, maxTasks int) *Worker {
	if maxTasks < 1 {
		maxTasks = 1
	}
	return &Worker{id: id, bus: b, resolver: resolver, eng: eng, log: log, counter: &Counter{}, maxTasks: maxTasks}
}

// Counter exposes the running-task gauge.
func (w *Worker) Counter() *Counter { return w.counter }

// Run consumes the tasks queue at prefetch=maxTasks and fans deliveries out
// across maxTasks concurrent handler goroutines (spec.md §4.2/§4.10) until
// ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ch, deliveries, err := w.bus.Consume(bus.QueueTasks, w.maxTasks)
	if err != nil {
		return fmt.Errorf("worker: consume tasks: %w", err)
	}
	defer ch.Close()

	var wg sync.WaitGroup
	for i := 0; i < w.maxTasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					w.handle(ctx, d)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// handle implements spec.md §4.10's five steps for one delivery.
func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	release := w.counter.Boost()
	defer release()

	msg, err := bus.Decode[messages.TaskMessage](d)
	if err != nil {
		w.log.Error("worker: failed to decode task message, dropping", "error", err)
		_ = d.Nack(false, false)
		return
	}

	w.publishProgress(ctx, msg, "running", nil, nil)

	def, err := w.resolver.Resolve(ctx, msg.TaskID)
	if err != nil {
		w.log.Error("worker: failed to resolve task definition", "task_id", msg.TaskID, "error", err)
		started := time.Now()
		w.publishProgress(ctx, msg, "error", &started, ptr(time.Now()))
		_ = d.Ack(false)
		return
	}

	started := time.Now()
	var outcome engine.Outcome
	if def.Image == "" {
		// No image ⇒ completes immediately (spec.md §4.10 step 3).
		outcome = engine.OutcomeSuccess
	} else {
		runCtx, cancel := context.WithTimeout(ctx, effectiveTimeout(def.TimeoutSecs))
		outcome, err = w.eng.RunTask(runCtx, def, nil)
		cancel()
		if err != nil {
			outcome = engine.OutcomeError
		}
	}
	finished := time.Now()

	w.publishProgress(ctx, msg, outcome.String(), &started, &finished)
	// Publish-before-ack: the scheduler must observe the terminal event
	// before this delivery is acknowledged (spec.md §4.10 step 5).
	_ = d.Ack(false)
}

func (w *Worker) publishProgress(ctx context.Context, msg messages.TaskMessage, result string, started, finished *time.Time) {
	err := w.bus.Publish(ctx, bus.ExchangeResults, "", 0, messages.ProgressMessage{
		TaskRunID:        msg.TaskRunID,
		TaskID:           msg.TaskID,
		TriggerDatetime:  msg.TriggerDatetime,
		StartedDatetime:  started,
		FinishedDatetime: finished,
		Result:           result,
		WorkerID:         w.id,
		Priority:         msg.Priority,
	})
	if err != nil {
		w.log.Error("worker: failed to publish progress", "task_run_id", msg.TaskRunID, "result", result, "error", err)
	}
}

func ptr[T any](v T) *T { return &v }

// effectiveTimeout is min(task timeout, defaultTaskTimeout), per spec.md
// §4.10 step 4; a zero or negative task timeout means "use the default".
func effectiveTimeout(taskTimeoutSecs int) time.Duration {
	timeout := time.Duration(taskTimeoutSecs) * time.Second
	if timeout <= 0 || timeout > defaultTaskTimeout {
		return defaultTaskTimeout
	}
	return timeout
}
