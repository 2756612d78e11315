// Package trigger implements the trigger engine of spec.md §4.3: a min-heap
// of upcoming fire instants for the triggers this node owns, catching up
// missed periods at boot and activating triggers — incrementing the tokens
// downstream of them — at their scheduled instant. Grounded on
// original_source/src/server/trigger.rs.
package trigger

import (
	"container/heap"
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/internal/messages"
	"github.com/waterwheel-project/waterwheel/internal/model"
	"github.com/waterwheel-project/waterwheel/internal/postoffice"
	"github.com/waterwheel-project/waterwheel/internal/store"
	"github.com/waterwheel-project/waterwheel/pkg/logger"
)

// lateWakeTolerance is how far past scheduledAt a wake may drift before the
// engine logs it as late; per spec.md §4.3 the instant still activates
// regardless ("no instant is ever skipped").
const lateWakeTolerance = 5 * time.Second

// Engine owns the heap of pending fire instants for the triggers this node
// currently owns.
type Engine struct {
	store *store.Store
	po    *postoffice.PostOffice
	log   logger.Logger

	h        fireHeap
	triggers map[uuid.UUID]model.Trigger
	schedules map[uuid.UUID]*schedule
}

// New constructs an empty Engine; call Boot to load the owned trigger set.
func New(st *store.Store, po *postoffice.PostOffice, log logger.Logger) *Engine {
	return &Engine{
		store:     st,
		po:        po,
		log:       log,
		triggers:  make(map[uuid.UUID]model.Trigger),
		schedules: make(map[uuid.UUID]*schedule),
	}
}

// Boot loads every non-paused trigger and runs catch-up for each
// (spec.md §4.3 "Boot"). Single-instance deployments own every trigger;
// clustered deployments should instead call LoadOwned with the cluster's
// initial owned set.
func (e *Engine) Boot(ctx context.Context) error {
	triggers, err := e.store.ListNonPausedTriggers(ctx)
	if err != nil {
		return err
	}
	return e.loadAndCatchUp(ctx, triggers)
}

// LoadOwned loads exactly the triggers in ids and runs catch-up for each —
// used by clustered deployments in place of Boot, and by the TriggerAdd
// handler when ownership changes mid-run.
func (e *Engine) LoadOwned(ctx context.Context, ids []uuid.UUID) error {
	triggers, err := e.store.ListTriggersByIDs(ctx, ids)
	if err != nil {
		return err
	}
	return e.loadAndCatchUp(ctx, triggers)
}

func (e *Engine) loadAndCatchUp(ctx context.Context, triggers []model.Trigger) error {
	for _, t := range triggers {
		if err := t.Validate(); err != nil {
			e.log.Error("trigger: skipping invalid trigger at boot", "trigger_id", t.ID, "error", err)
			continue
		}
		sched, err := newSchedule(t)
		if err != nil {
			e.log.Error("trigger: skipping trigger with unparseable schedule", "trigger_id", t.ID, "error", err)
			continue
		}
		e.triggers[t.ID] = t
		e.schedules[t.ID] = sched

		if err := e.catchUp(ctx, t, sched); err != nil {
			e.log.Error("trigger: catch-up failed", "trigger_id", t.ID, "error", err)
		}
	}
	return nil
}

// catchUp implements spec.md §4.3's three-step boot sequence.
func (e *Engine) catchUp(ctx context.Context, t model.Trigger, sched *schedule) error {
	now := time.Now()
	end := now
	if t.End != nil && t.End.Before(end) {
		end = *t.End
	}

	// Step 1: user moved start backwards past earliest_fired.
	if t.EarliestFired != nil && t.Start.Before(*t.EarliestFired) {
		for instant := t.Start; instant.Before(*t.EarliestFired); instant = sched.next(instant) {
			if err := e.activate(ctx, &t, instant); err != nil {
				return err
			}
		}
	}

	// Step 2: fire every instant missed between the last recorded firing
	// and now (or the trigger's end), end-exclusive.
	next := t.Start
	if t.LatestFired != nil {
		next = sched.next(*t.LatestFired)
	}
	for next.Before(end) {
		if err := e.activate(ctx, &t, next); err != nil {
			return err
		}
		next = sched.next(next)
	}

	// Step 3: enqueue a single heap entry for the first future instant.
	if t.End == nil || next.Before(*t.End) {
		e.push(t, next)
	}
	return nil
}

func (e *Engine) push(t model.Trigger, triggerDatetime time.Time) {
	scheduledAt := triggerDatetime.Add(time.Duration(t.OffsetSecs) * time.Second)
	heap.Push(&e.h, entry{scheduledAt: scheduledAt, triggerID: t.ID, triggerDatetime: triggerDatetime})
}

// activate runs one trigger firing: increments the token downstream of
// every TriggerEdge, advances earliest/latest_fired, commits, then notifies
// the token processor (spec.md §4.3 "activate").
func (e *Engine) activate(ctx context.Context, t *model.Trigger, instant time.Time) error {
	edges, err := e.store.ListTriggerEdges(ctx, t.ID)
	if err != nil {
		return err
	}

	type incremented struct {
		taskID uuid.UUID
		at     time.Time
	}
	var fired []incremented

	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, edge := range edges {
			at := instant.Add(time.Duration(edge.EdgeOffsetSecs) * time.Second)
			if _, _, err := e.store.IncrementToken(ctx, tx, edge.TaskID, at, 1); err != nil {
				return err
			}
			fired = append(fired, incremented{taskID: edge.TaskID, at: at})
		}
		return e.store.UpdateTriggerFired(ctx, tx, t.ID, instant)
	})
	if err != nil {
		return err
	}

	if t.EarliestFired == nil || instant.Before(*t.EarliestFired) {
		t.EarliestFired = &instant
	}
	if t.LatestFired == nil || instant.After(*t.LatestFired) {
		t.LatestFired = &instant
	}

	for _, f := range fired {
		postoffice.Post(e.po, messages.Increment{
			Token:    messages.TokenRef{TaskID: f.taskID, TriggerDatetime: f.at},
			Priority: model.PriorityNormal,
			Delta:    1,
		})
	}
	return nil
}

// Run is the steady-state loop (spec.md §4.3 "Steady state"): block on
// TriggerChange when the heap is empty, otherwise sleep until the head
// instant and activate on wake.
func (e *Engine) Run(ctx context.Context) error {
	adds := postoffice.Mailbox[messages.TriggerAdd](e.po)
	removes := postoffice.Mailbox[messages.TriggerRemove](e.po)

	for {
		if e.h.Len() == 0 {
			select {
			case <-ctx.Done():
				return nil
			case add := <-adds:
				if err := e.LoadOwned(ctx, add.TriggerIDs); err != nil {
					e.log.Error("trigger: failed to load added triggers", "error", err)
				}
			case rem := <-removes:
				e.handleRemove(rem)
			}
			continue
		}

		head := e.h[0]
		wait := time.Until(head.scheduledAt)

		var timer *time.Timer
		var timerC <-chan time.Time
		if wait > 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		} else {
			// Already due; fire immediately without racing a zero/negative timer.
			ch := make(chan time.Time, 1)
			ch <- time.Now()
			timerC = ch
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case add := <-adds:
			if timer != nil {
				timer.Stop()
			}
			if err := e.LoadOwned(ctx, add.TriggerIDs); err != nil {
				e.log.Error("trigger: failed to load added triggers", "error", err)
			}
		case rem := <-removes:
			if timer != nil {
				timer.Stop()
			}
			e.handleRemove(rem)
		case woke := <-timerC:
			e.wake(ctx, woke)
		}
	}
}

func (e *Engine) handleRemove(rem messages.TriggerRemove) {
	for _, id := range rem.TriggerIDs {
		removeTrigger(&e.h, id)
		delete(e.triggers, id)
		delete(e.schedules, id)
	}
}

func (e *Engine) wake(ctx context.Context, now time.Time) {
	head := heap.Pop(&e.h).(entry)

	if lateness := now.Sub(head.scheduledAt); lateness > lateWakeTolerance {
		e.log.Warn("trigger: woke late, activating anyway", "trigger_id", head.triggerID,
			"scheduled_at", head.scheduledAt, "lateness", lateness)
	}

	t, ok := e.triggers[head.triggerID]
	sched, schedOK := e.schedules[head.triggerID]
	if !ok || !schedOK {
		return // removed between scheduling and wake
	}

	if next := sched.next(head.triggerDatetime); t.End == nil || next.Before(*t.End) {
		e.push(t, next)
	}

	if err := e.activate(ctx, &t, head.triggerDatetime); err != nil {
		e.log.Error("trigger: activation failed", "trigger_id", head.triggerID, "error", err)
		return
	}
	e.triggers[head.triggerID] = t
}
