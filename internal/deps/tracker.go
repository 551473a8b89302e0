// Package deps implements the dependency tracker: bookkeeping that maps
// not-yet-ready tasks to their outstanding dependency sets and promotes a
// task once its last dependency succeeds.
//
// The tracker is not safe for concurrent use on its own; the executor
// serializes all access under its scheduling mutex.
package deps

import (
	"errors"

	"github.com/vk/taskgrid/internal/task"
)

// ErrDuplicateTask is returned when a task ID that is already tracked is
// tracked again. Rejecting the re-submission prevents double bookkeeping.
var ErrDuplicateTask = errors.New("duplicate task submission")

// entry holds a blocked task together with its unmet dependencies.
type entry struct {
	t         *task.Task
	remaining map[task.ID]struct{}
}

// Tracker maps blocked tasks to their outstanding prerequisites. Promotion
// is fail-closed: only a successful completion removes a dependency from the
// remaining set. If a prerequisite fails or is cancelled, its dependents stay
// blocked indefinitely unless the caller cancels them; a task never silently
// starts after a prerequisite failed.
type Tracker struct {
	blocked map[task.ID]*entry
	// dependents is the reverse index: dependency ID -> IDs blocked on it.
	dependents map[task.ID][]task.ID
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{
		blocked:    make(map[task.ID]*entry),
		dependents: make(map[task.ID][]task.ID),
	}
}

// Track registers a task with its unmet dependency set. The caller has
// already filtered out dependencies that succeeded before submission, so
// remaining is non-empty; a task with no unmet dependencies goes straight to
// the ready queue instead.
func (tr *Tracker) Track(t *task.Task, remaining []task.ID) error {
	if _, ok := tr.blocked[t.ID()]; ok {
		return ErrDuplicateTask
	}
	e := &entry{
		t:         t,
		remaining: make(map[task.ID]struct{}, len(remaining)),
	}
	for _, dep := range remaining {
		if _, ok := e.remaining[dep]; ok {
			continue
		}
		e.remaining[dep] = struct{}{}
		tr.dependents[dep] = append(tr.dependents[dep], t.ID())
	}
	tr.blocked[t.ID()] = e
	return nil
}

// IsTracked reports whether the given task is currently blocked.
func (tr *Tracker) IsTracked(id task.ID) bool {
	_, ok := tr.blocked[id]
	return ok
}

// Blocked returns the number of currently blocked tasks.
func (tr *Tracker) Blocked() int {
	return len(tr.blocked)
}

// Completed records the terminal state of the given task and returns the
// dependents that became ready as a result. Only a successful completion
// promotes dependents; any other terminal state leaves them blocked.
func (tr *Tracker) Completed(id task.ID, succeeded bool) []*task.Task {
	waiting := tr.dependents[id]
	delete(tr.dependents, id)
	if !succeeded {
		return nil
	}

	var ready []*task.Task
	for _, depID := range waiting {
		e, ok := tr.blocked[depID]
		if !ok {
			// Dependent was cancelled while blocked.
			continue
		}
		delete(e.remaining, id)
		if len(e.remaining) == 0 {
			delete(tr.blocked, depID)
			ready = append(ready, e.t)
		}
	}
	return ready
}

// Remove takes a blocked task out of the tracker, returning it, or nil if
// the ID is not blocked. Used when a blocked task is cancelled.
func (tr *Tracker) Remove(id task.ID) *task.Task {
	e, ok := tr.blocked[id]
	if !ok {
		return nil
	}
	delete(tr.blocked, id)
	return e.t
}

// Drain removes and returns every blocked task. Used during shutdown, when
// no further completions can ever promote them.
func (tr *Tracker) Drain() []*task.Task {
	if len(tr.blocked) == 0 {
		return nil
	}
	drained := make([]*task.Task, 0, len(tr.blocked))
	for id, e := range tr.blocked {
		drained = append(drained, e.t)
		delete(tr.blocked, id)
	}
	return drained
}
