package trigger

import (
	"container/heap"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFireHeapOrdersByScheduledAt(t *testing.T) {
	var h fireHeap
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	heap.Push(&h, entry{scheduledAt: base.Add(3 * time.Second), triggerID: uuid.New()})
	heap.Push(&h, entry{scheduledAt: base.Add(1 * time.Second), triggerID: uuid.New()})
	heap.Push(&h, entry{scheduledAt: base.Add(2 * time.Second), triggerID: uuid.New()})

	var order []time.Time
	for h.Len() > 0 {
		order = append(order, heap.Pop(&h).(entry).scheduledAt)
	}

	for i := 1; i < len(order); i++ {
		if order[i].Before(order[i-1]) {
			t.Fatalf("heap did not pop in ascending order: %v", order)
		}
	}
}

func TestRemoveTriggerDropsOnlyMatchingEntries(t *testing.T) {
	keep := uuid.New()
	drop := uuid.New()
	var h fireHeap
	now := time.Now()
	heap.Push(&h, entry{scheduledAt: now, triggerID: keep})
	heap.Push(&h, entry{scheduledAt: now.Add(time.Second), triggerID: drop})
	heap.Push(&h, entry{scheduledAt: now.Add(2 * time.Second), triggerID: keep})

	removeTrigger(&h, drop)

	if h.Len() != 2 {
		t.Fatalf("expected 2 entries remaining, got %d", h.Len())
	}
	for _, e := range h {
		if e.triggerID == drop {
			t.Fatalf("found entry for removed trigger %s", drop)
		}
	}
}
