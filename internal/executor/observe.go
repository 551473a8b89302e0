package executor

import "time"

// Metrics is an optional sink for executor counters and timings. A nil
// Metrics is a silent no-op; the executor never requires one for
// correctness.
type Metrics interface {
	Increment(name string)
	RecordDuration(name string, d time.Duration)
}

// Publisher is an optional sink for task lifecycle events. A nil Publisher
// is a silent no-op.
type Publisher interface {
	Publish(topic string, payload any)
}

// Event topics fired on the Publisher.
const (
	TopicTaskSubmitted    = "task.submitted"
	TopicTaskStarted      = "task.started"
	TopicTaskCompleted    = "task.completed"
	TopicTaskFailed       = "task.failed"
	TopicTaskCancelled    = "task.cancelled"
	TopicTaskRejected     = "task.rejected"
	TopicExecutorShutdown = "executor.shutdown"
)

// increment guards the optional metrics sink.
func (e *Executor) increment(name string) {
	if e.metrics != nil {
		e.metrics.Increment(name)
	}
}

// recordDuration guards the optional metrics sink.
func (e *Executor) recordDuration(name string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordDuration(name, d)
	}
}

// publish guards the optional event publisher. It must be called outside the
// scheduling mutex so a slow subscriber cannot stall the executor.
func (e *Executor) publish(topic string, payload any) {
	if e.publisher != nil {
		e.publisher.Publish(topic, payload)
	}
}
