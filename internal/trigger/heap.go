package trigger

import (
	"container/heap"
	"time"

	"github.com/google/uuid"
)

// entry is one pending fire instant, ordered by (scheduledAt, triggerID,
// triggerDatetime) per spec.md §4.3's heap key.
type entry struct {
	scheduledAt     time.Time
	triggerID       uuid.UUID
	triggerDatetime time.Time
}

// fireHeap is a min-heap of entry ordered by scheduledAt, breaking ties by
// triggerID then triggerDatetime for a total, deterministic order.
type fireHeap []entry

func (h fireHeap) Len() int { return len(h) }

func (h fireHeap) Less(i, j int) bool {
	if !h[i].scheduledAt.Equal(h[j].scheduledAt) {
		return h[i].scheduledAt.Before(h[j].scheduledAt)
	}
	if h[i].triggerID != h[j].triggerID {
		return h[i].triggerID.String() < h[j].triggerID.String()
	}
	return h[i].triggerDatetime.Before(h[j].triggerDatetime)
}

func (h fireHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *fireHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *fireHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*fireHeap)(nil)

// removeTrigger discards every heap entry for triggerID, used when the
// cluster module reports this node has lost ownership.
func removeTrigger(h *fireHeap, triggerID uuid.UUID) {
	kept := (*h)[:0]
	for _, e := range *h {
		if e.triggerID != triggerID {
			kept = append(kept, e)
		}
	}
	*h = kept
	heap.Init(h)
}
