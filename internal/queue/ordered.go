package queue

import (
	"container/heap"

	"github.com/vk/taskgrid/internal/task"
)

// item wraps a queued task with the bookkeeping container/heap needs: a
// monotonic sequence number for stable ordering within a band, and the
// item's current heap index so Remove can target it directly.
type item struct {
	t     *task.Task
	seq   uint64
	index int
}

// lessFunc ranks two queued items; true means a dequeues before b.
type lessFunc func(a, b *item) bool

// byPriority orders higher priority first, FIFO within a band.
func byPriority(a, b *item) bool {
	if a.t.Priority() != b.t.Priority() {
		return a.t.Priority() > b.t.Priority()
	}
	return a.seq < b.seq
}

// byDeadline orders the earliest declared deadline first. Tasks without a
// deadline sort after every task that declares one; ties fall back to
// arrival order.
func byDeadline(a, b *item) bool {
	da, db := a.t.Deadline(), b.t.Deadline()
	switch {
	case da.IsZero() && db.IsZero():
		return a.seq < b.seq
	case da.IsZero():
		return false
	case db.IsZero():
		return true
	case !da.Equal(db):
		return da.Before(db)
	}
	return a.seq < b.seq
}

// orderedQueue implements the Priority and Deadline policies on a binary
// heap, parameterized by comparator.
type orderedQueue struct {
	h *itemHeap
	// seq assigns insertion order; it only ever grows.
	seq uint64
}

func newOrderedQueue(less lessFunc) *orderedQueue {
	return &orderedQueue{h: &itemHeap{less: less}}
}

func (q *orderedQueue) Push(t *task.Task) {
	q.seq++
	heap.Push(q.h, &item{t: t, seq: q.seq})
}

func (q *orderedQueue) Pop() *task.Task {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(q.h).(*item).t
}

func (q *orderedQueue) Remove(id task.ID) *task.Task {
	for _, it := range q.h.items {
		if it.t.ID() == id {
			heap.Remove(q.h, it.index)
			return it.t
		}
	}
	return nil
}

func (q *orderedQueue) Len() int {
	return q.h.Len()
}

// itemHeap adapts []*item to container/heap.
type itemHeap struct {
	items []*item
	less  lessFunc
}

func (h *itemHeap) Len() int { return len(h.items) }

func (h *itemHeap) Less(i, j int) bool { return h.less(h.items[i], h.items[j]) }

func (h *itemHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.index = len(h.items)
	h.items = append(h.items, it)
}

func (h *itemHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	h.items = old[:n-1]
	return it
}
