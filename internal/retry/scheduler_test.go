package retry

import (
	"container/heap"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRetryHeapPopsEarliestFirst(t *testing.T) {
	var h retryHeap
	base := time.Now()

	heap.Push(&h, retryEntry{retryAt: base.Add(3 * time.Second), taskRunID: uuid.New()})
	heap.Push(&h, retryEntry{retryAt: base.Add(1 * time.Second), taskRunID: uuid.New()})
	heap.Push(&h, retryEntry{retryAt: base.Add(2 * time.Second), taskRunID: uuid.New()})

	first := heap.Pop(&h).(retryEntry)
	second := heap.Pop(&h).(retryEntry)
	third := heap.Pop(&h).(retryEntry)

	if !first.retryAt.Before(second.retryAt) || !second.retryAt.Before(third.retryAt) {
		t.Fatalf("expected ascending retry_at order, got %v, %v, %v", first.retryAt, second.retryAt, third.retryAt)
	}
}

func TestRetryHeapMergeDuringSleepPreservesHead(t *testing.T) {
	var h retryHeap
	base := time.Now()

	later := uuid.New()
	heap.Push(&h, retryEntry{retryAt: base.Add(10 * time.Second), taskRunID: later})

	earlier := uuid.New()
	heap.Push(&h, retryEntry{retryAt: base.Add(2 * time.Second), taskRunID: earlier})

	head := heap.Pop(&h).(retryEntry)
	if head.taskRunID != earlier {
		t.Fatalf("expected the newly-arrived earlier retry to become the head")
	}
	if next := heap.Pop(&h).(retryEntry); next.taskRunID != later {
		t.Fatalf("expected the previous head to remain queued after the merge")
	}
}
