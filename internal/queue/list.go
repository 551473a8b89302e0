package queue

import "github.com/vk/taskgrid/internal/task"

// listQueue implements the FIFO and LIFO policies over a single slice.
type listQueue struct {
	items []*task.Task
	lifo  bool
}

func (q *listQueue) Push(t *task.Task) {
	q.items = append(q.items, t)
}

func (q *listQueue) Pop() *task.Task {
	if len(q.items) == 0 {
		return nil
	}
	var t *task.Task
	if q.lifo {
		t = q.items[len(q.items)-1]
		q.items[len(q.items)-1] = nil
		q.items = q.items[:len(q.items)-1]
	} else {
		t = q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
	}
	return t
}

func (q *listQueue) Remove(id task.ID) *task.Task {
	for i, t := range q.items {
		if t.ID() == id {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			return t
		}
	}
	return nil
}

func (q *listQueue) Len() int {
	return len(q.items)
}
