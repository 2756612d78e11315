// Package retry implements the retry scheduler of spec.md §4.7: a min-heap
// keyed by retry_at, restoring pending retries at boot and re-dispatching
// each as an Execute with its attempt incremented once its wake time
// arrives. Grounded on original_source/src/server/retry.rs.
package retry

import (
	"container/heap"
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/internal/messages"
	"github.com/waterwheel-project/waterwheel/internal/postoffice"
	"github.com/waterwheel-project/waterwheel/internal/store"
	"github.com/waterwheel-project/waterwheel/pkg/logger"
)

// retryEntry is one pending retry, ordered by retryAt.
type retryEntry struct {
	retryAt   time.Time
	taskRunID uuid.UUID
}

type retryHeap []retryEntry

func (h retryHeap) Len() int            { return len(h) }
func (h retryHeap) Less(i, j int) bool  { return h[i].retryAt.Before(h[j].retryAt) }
func (h retryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x any)         { *h = append(*h, x.(retryEntry)) }
func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler owns the min-heap of pending retries.
type Scheduler struct {
	store *store.Store
	po    *postoffice.PostOffice
	log   logger.Logger
	h     retryHeap
}

// New constructs a Scheduler; call Boot before Run.
func New(st *store.Store, po *postoffice.PostOffice, log logger.Logger) *Scheduler {
	return &Scheduler{store: st, po: po, log: log}
}

// Boot restores every pending Retry row into the heap (spec.md §4.7 "Boot
// restores all Retry rows").
func (s *Scheduler) Boot(ctx context.Context) error {
	retries, err := s.store.ListAllRetries(ctx)
	if err != nil {
		return err
	}
	for _, r := range retries {
		heap.Push(&s.h, retryEntry{retryAt: r.RetryAt, taskRunID: r.TaskRunID})
	}
	return nil
}

// Run is the main loop: block on SubmitRetry when empty, otherwise sleep
// until the head wakes, then emit Execute with the attempt incremented and
// delete the Retry row.
func (s *Scheduler) Run(ctx context.Context) error {
	submits := postoffice.Mailbox[messages.SubmitRetry](s.po)

	for {
		if s.h.Len() == 0 {
			select {
			case <-ctx.Done():
				return nil
			case sub := <-submits:
				heap.Push(&s.h, retryEntry{retryAt: sub.RetryAt, taskRunID: sub.TaskRunID})
			}
			continue
		}

		head := s.h[0]
		wait := time.Until(head.retryAt)

		var timer *time.Timer
		var timerC <-chan time.Time
		if wait > 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		} else {
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
		case sub := <-submits:
			if timer != nil {
				timer.Stop()
			}
			// Arrivals during sleep are merged without losing the head
			// (spec.md §4.7): pushing preserves heap order regardless of
			// whether sub sorts before or after the current head.
			heap.Push(&s.h, retryEntry{retryAt: sub.RetryAt, taskRunID: sub.TaskRunID})
		case <-timerC:
			s.wake(ctx)
		}
	}
}

func (s *Scheduler) wake(ctx context.Context) {
	head := heap.Pop(&s.h).(retryEntry)

	run, err := s.store.GetTaskRun(ctx, head.taskRunID)
	if err != nil {
		s.log.Error("retry: failed to look up task run, dropping retry", "task_run_id", head.taskRunID, "error", err)
		return
	}

	postoffice.Post(s.po, messages.Execute{
		Token: messages.TokenRef{
			TaskID:          run.TaskID,
			TriggerDatetime: run.TriggerDatetime,
		},
		Priority: run.Priority,
		Attempt:  run.Attempt + 1,
	})

	if err := s.store.DeleteRetry(ctx, head.taskRunID); err != nil {
		s.log.Error("retry: failed to delete retry row", "task_run_id", head.taskRunID, "error", err)
	}
}
