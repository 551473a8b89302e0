// Package queue provides the ready-queue implementations behind the
// executor's execution policies. A ready queue holds tasks whose dependencies
// are satisfied and which are waiting for a worker.
//
// Queues are not safe for concurrent use on their own; the executor
// serializes all access under its scheduling mutex.
package queue

import (
	"fmt"

	"github.com/vk/taskgrid/internal/task"
)

// Policy selects the ordering strategy of the ready queue.
type Policy int

const (
	// FIFO dequeues in strict arrival order.
	FIFO Policy = iota
	// LIFO dequeues the most recently arrived task first.
	LIFO
	// Priority dequeues by task priority, FIFO within a priority band.
	Priority
	// Deadline dequeues the earliest declared deadline first. Tasks without
	// a deadline sort after all tasks that declare one.
	Deadline
	// Fair round-robins across named task sources to prevent starvation.
	Fair
	// WorkStealing is a declared extension point (per-worker local queues
	// with cross-worker stealing). It is not implemented; constructing a
	// queue with it returns an error.
	WorkStealing
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	switch p {
	case FIFO:
		return "fifo"
	case LIFO:
		return "lifo"
	case Priority:
		return "priority"
	case Deadline:
		return "deadline"
	case Fair:
		return "fair"
	case WorkStealing:
		return "work_stealing"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "fifo", "":
		return FIFO, nil
	case "lifo":
		return LIFO, nil
	case "priority":
		return Priority, nil
	case "deadline":
		return Deadline, nil
	case "fair":
		return Fair, nil
	case "work_stealing":
		return WorkStealing, nil
	}
	return FIFO, fmt.Errorf("unknown execution policy %q", s)
}

// Queue is the ordering structure contract shared by all policies.
type Queue interface {
	// Push adds a ready task. Capacity is enforced by the executor, not the
	// queue.
	Push(t *task.Task)
	// Pop removes and returns the highest-ranked task, or nil if the queue
	// is empty.
	Pop() *task.Task
	// Remove takes the task with the given ID out of the queue, returning
	// it, or nil if it is not queued.
	Remove(id task.ID) *task.Task
	// Len returns the number of queued tasks.
	Len() int
}

// New constructs the ready queue for the given policy.
func New(p Policy) (Queue, error) {
	switch p {
	case FIFO:
		return &listQueue{}, nil
	case LIFO:
		return &listQueue{lifo: true}, nil
	case Priority:
		return newOrderedQueue(byPriority), nil
	case Deadline:
		return newOrderedQueue(byDeadline), nil
	case Fair:
		return newFairQueue(), nil
	case WorkStealing:
		return nil, fmt.Errorf("execution policy %q is not implemented", p)
	}
	return nil, fmt.Errorf("unknown execution policy %d", int(p))
}
