// Package task defines the schedulable unit of work: its identity, priority,
// dependency set, resource constraints, execution body, and atomically
// managed lifecycle state.
package task

import (
	"context"
	"sync/atomic"
	"time"
)

// ID is a process-unique, monotonically increasing task identifier. It is
// assigned at submission by the owning executor's counter and never changes.
type ID int64

// Meta carries the caller-supplied scheduling metadata for a task.
type Meta struct {
	// Name is an optional human-readable label (e.g. the grid block name).
	Name string
	// Source names the submitter for the fair scheduling policy. Empty is a
	// valid source.
	Source string
	// Priority is the ready-queue tie-break. Defaults to PriorityNormal.
	Priority Priority
	// Deadline is a scheduling hint for the deadline policy. The zero value
	// means no deadline. It is never enforced.
	Deadline time.Time
	// Dependencies lists the task IDs that must succeed before this task
	// becomes ready.
	Dependencies []ID
	// Constraints lists advisory resource requirements.
	Constraints []Constraint
}

// Task is one unit of work tracked by the executor. The state cell and the
// cancellation context are safe for concurrent use; the result fields are
// written by the owning worker before the terminal state is stored, and must
// only be read after observing a terminal state.
type Task struct {
	id   ID
	meta Meta
	body Body

	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time

	value any
	err   error
}

// New creates a task in the Pending state. The executor assigns the ID and
// binds the cancellation context before the task is visible to any worker.
func New(id ID, body Body, meta Meta) *Task {
	return &Task{
		id:          id,
		meta:        meta,
		body:        body,
		submittedAt: time.Now(),
	}
}

// ID returns the task's identifier.
func (t *Task) ID() ID { return t.id }

// Name returns the task's optional human-readable label.
func (t *Task) Name() string { return t.meta.Name }

// Source returns the task's submitter name for fair scheduling.
func (t *Task) Source() string { return t.meta.Source }

// Priority returns the task's scheduling priority.
func (t *Task) Priority() Priority { return t.meta.Priority }

// Deadline returns the task's declared deadline hint. Zero means none.
func (t *Task) Deadline() time.Time { return t.meta.Deadline }

// Dependencies returns the IDs this task waits on.
func (t *Task) Dependencies() []ID { return t.meta.Dependencies }

// Constraints returns the task's declared resource requirements.
func (t *Task) Constraints() []Constraint { return t.meta.Constraints }

// State atomically loads the task's current state.
func (t *Task) State() State {
	return State(t.state.Load())
}

// BindContext attaches the per-task cancellation context. Called once by the
// executor during submission, before the task is published.
func (t *Task) BindContext(ctx context.Context, cancel context.CancelFunc) {
	t.ctx = ctx
	t.cancel = cancel
}

// Context returns the task's cancellation context.
func (t *Task) Context() context.Context { return t.ctx }

// SignalCancel fires the task's cooperative cancellation signal. Running
// bodies are expected to observe it; they are never forcibly terminated.
func (t *Task) SignalCancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

// CancelRequested reports whether the cooperative cancellation signal has
// been fired.
func (t *Task) CancelRequested() bool {
	return t.ctx != nil && t.ctx.Err() != nil
}

// Begin transitions Pending -> Running and records the start timestamp.
// Returns false if the task is no longer pending (e.g. it was cancelled
// while queued).
func (t *Task) Begin() bool {
	if !t.state.CompareAndSwap(int32(Pending), int32(Running)) {
		return false
	}
	t.startedAt = time.Now()
	return true
}

// Finish records the outcome and transitions Running -> Succeeded or Failed.
// The result fields are written before the terminal state is stored, so a
// reader that observes a terminal state also observes the result. The
// compare-and-swap guarantees a task is completed at most once; Finish
// returns false if the task was not running.
func (t *Task) Finish(value any, err error) bool {
	t.value = value
	t.err = err
	t.finishedAt = time.Now()
	next := Succeeded
	if err != nil {
		next = Failed
	}
	return t.state.CompareAndSwap(int32(Running), int32(next))
}

// FinishCancelled transitions Running -> Cancelled for a body that observed
// the cancellation signal and stopped. The causing error is recorded.
func (t *Task) FinishCancelled(err error) bool {
	t.err = err
	t.finishedAt = time.Now()
	return t.state.CompareAndSwap(int32(Running), int32(Cancelled))
}

// CancelPending transitions Pending -> Cancelled. Used for tasks cancelled
// while queued or blocked; cancellation of a queued task is immediate and
// guaranteed.
func (t *Task) CancelPending(err error) bool {
	if !t.state.CompareAndSwap(int32(Pending), int32(Cancelled)) {
		return false
	}
	t.err = err
	t.finishedAt = time.Now()
	return true
}

// Reject transitions Pending -> Rejected at submission time.
func (t *Task) Reject(err error) bool {
	if !t.state.CompareAndSwap(int32(Pending), int32(Rejected)) {
		return false
	}
	t.err = err
	t.finishedAt = time.Now()
	return true
}

// Result returns the recorded value and error. ok is false until the task
// reaches a terminal state; exactly one of value and err is populated on a
// succeeded or failed task.
func (t *Task) Result() (value any, err error, ok bool) {
	if !t.State().Terminal() {
		return nil, nil, false
	}
	return t.value, t.err, true
}

// Err returns the recorded failure cause, or nil. Only meaningful once the
// task is terminal.
func (t *Task) Err() error { return t.err }

// SubmittedAt returns the wall-clock submission timestamp.
func (t *Task) SubmittedAt() time.Time { return t.submittedAt }

// WaitDuration is the time the task spent between submission and execution
// start. Zero until the task has started.
func (t *Task) WaitDuration() time.Duration {
	if t.startedAt.IsZero() {
		return 0
	}
	return t.startedAt.Sub(t.submittedAt)
}

// ExecDuration is the time the task spent executing. Zero until the task has
// finished running.
func (t *Task) ExecDuration() time.Duration {
	if t.startedAt.IsZero() || t.finishedAt.IsZero() {
		return 0
	}
	return t.finishedAt.Sub(t.startedAt)
}

// Run executes the task body through its single polymorphic entry point.
func (t *Task) Run(ctx context.Context) (any, error) {
	return t.body.Run(ctx)
}
