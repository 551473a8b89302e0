package queue

import "github.com/vk/taskgrid/internal/task"

// fairQueue implements the Fair policy: one FIFO lane per named task source,
// dequeued round-robin so no source can starve the others.
type fairQueue struct {
	lanes map[string]*listQueue
	// order lists sources in first-seen order; next indexes the source that
	// dequeues next.
	order []string
	next  int
	size  int
}

func newFairQueue() *fairQueue {
	return &fairQueue{lanes: make(map[string]*listQueue)}
}

func (q *fairQueue) Push(t *task.Task) {
	src := t.Source()
	lane, ok := q.lanes[src]
	if !ok {
		lane = &listQueue{}
		q.lanes[src] = lane
		q.order = append(q.order, src)
	}
	lane.Push(t)
	q.size++
}

func (q *fairQueue) Pop() *task.Task {
	if q.size == 0 {
		return nil
	}
	// At least one lane is non-empty, so this terminates within one sweep.
	for range q.order {
		lane := q.lanes[q.order[q.next]]
		q.next = (q.next + 1) % len(q.order)
		if t := lane.Pop(); t != nil {
			q.size--
			return t
		}
	}
	return nil
}

func (q *fairQueue) Remove(id task.ID) *task.Task {
	for _, lane := range q.lanes {
		if t := lane.Remove(id); t != nil {
			q.size--
			return t
		}
	}
	return nil
}

func (q *fairQueue) Len() int {
	return q.size
}
