package task

import "fmt"

// State is the execution state of a task, stored in an atomic cell so the
// worker pool (writer) and inspecting callers (readers) never observe a torn
// value. Transitions are monotonic: Pending -> Running -> terminal, and a
// terminal state never changes again.
type State int32

const (
	// Pending indicates the task is blocked on dependencies or waiting in
	// the ready queue.
	Pending State = iota
	// Running indicates the task is being executed by a worker.
	Running
	// Succeeded indicates the task completed and recorded a value.
	Succeeded
	// Failed indicates the task completed and recorded an error.
	Failed
	// Cancelled indicates the task was cancelled before or during execution.
	Cancelled
	// Rejected indicates the task was refused at submission time. A rejected
	// task never transitions again.
	Rejected
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case Succeeded, Failed, Cancelled, Rejected:
		return true
	}
	return false
}

// Priority orders tasks within the ready queue. Higher priority dequeues
// first; among equal priorities insertion order is preserved.
type Priority int

const (
	// PriorityLow sorts below the zero value so that an unset priority
	// defaults to PriorityNormal.
	PriorityLow Priority = iota - 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns the human-readable name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority converts a configuration string into a Priority. The empty
// string maps to the default, PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q: must be 'low', 'normal', 'high', or 'critical'", s)
}

// ConstraintKind names a resource a task declares a requirement on.
type ConstraintKind int

const (
	// ConstraintCPUCores requires N logical CPU cores to be available.
	ConstraintCPUCores ConstraintKind = iota
	// ConstraintMemoryMB requires M megabytes of memory to be available.
	ConstraintMemoryMB
)

// String returns the human-readable name of the constraint kind.
func (k ConstraintKind) String() string {
	switch k {
	case ConstraintCPUCores:
		return "cpu_cores"
	case ConstraintMemoryMB:
		return "memory_mb"
	}
	return fmt.Sprintf("constraint(%d)", int(k))
}

// Constraint is a declared resource requirement attached to a task. It is
// purely advisory: the resource monitor may defer a task whose constraints
// are not currently satisfiable, but nothing enforces the constraint once
// the task starts.
type Constraint struct {
	Kind   ConstraintKind
	Amount int64
}
