package executor

import "fmt"

// RejectionPolicy selects what Submit does when the ready queue is at
// capacity.
type RejectionPolicy int

const (
	// Abort fails the Submit call with ErrQueueFull.
	Abort RejectionPolicy = iota
	// CallerRuns executes the task synchronously on the submitting
	// goroutine.
	CallerRuns
	// Requeue retries the enqueue a bounded number of times with backoff
	// before giving up with ErrQueueFull.
	Requeue
	// Discard silently drops the task, recording it as Rejected.
	Discard
)

// String returns the configuration name of the policy.
func (p RejectionPolicy) String() string {
	switch p {
	case Abort:
		return "abort"
	case CallerRuns:
		return "caller_runs"
	case Requeue:
		return "requeue"
	case Discard:
		return "discard"
	}
	return fmt.Sprintf("rejection(%d)", int(p))
}

// ParseRejectionPolicy converts a configuration string into a RejectionPolicy.
func ParseRejectionPolicy(s string) (RejectionPolicy, error) {
	switch s {
	case "abort", "":
		return Abort, nil
	case "caller_runs":
		return CallerRuns, nil
	case "requeue":
		return Requeue, nil
	case "discard":
		return Discard, nil
	}
	return Abort, fmt.Errorf("unknown rejection policy %q", s)
}

// ShutdownPolicy governs how in-flight and queued work is treated when the
// executor stops accepting new work.
type ShutdownPolicy int

const (
	// AwaitCompletion blocks until the ready queue is drained and no worker
	// is running.
	AwaitCompletion ShutdownPolicy = iota
	// AwaitTermination blocks up to the configured timeout, then forces
	// termination.
	AwaitTermination
	// ForceTermination signals workers to exit after their current task
	// without draining the queue.
	ForceTermination
)

// String returns the configuration name of the policy.
func (p ShutdownPolicy) String() string {
	switch p {
	case AwaitCompletion:
		return "await_completion"
	case AwaitTermination:
		return "await_termination"
	case ForceTermination:
		return "force_termination"
	}
	return fmt.Sprintf("shutdown(%d)", int(p))
}

// ParseShutdownPolicy converts a configuration string into a ShutdownPolicy.
func ParseShutdownPolicy(s string) (ShutdownPolicy, error) {
	switch s {
	case "await_completion", "":
		return AwaitCompletion, nil
	case "await_termination":
		return AwaitTermination, nil
	case "force_termination":
		return ForceTermination, nil
	}
	return AwaitCompletion, fmt.Errorf("unknown shutdown policy %q", s)
}
