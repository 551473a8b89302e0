package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/task"
)

// worker is the core processing loop for a single concurrent worker. It
// blocks on the condition variable while the ready queue is empty, and exits
// when the executor is halted, or when it is draining and the queue has run
// dry.
func (e *Executor) worker(ctx context.Context, workerID int) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)
	logger.Debug("Worker started.")

	for {
		e.mu.Lock()
		// While draining, an idle worker keeps waiting as long as a peer is
		// still running: its completion may promote dependents.
		for !e.halted && e.ready.Len() == 0 && !(e.draining && len(e.running) == 0) {
			e.cond.Wait()
		}
		if e.halted {
			e.mu.Unlock()
			break
		}

		t := e.ready.Pop()
		if t == nil {
			// Draining with nothing queued and nothing running.
			e.mu.Unlock()
			break
		}

		workerLogger := logger.With("taskID", t.ID())

		// Cancellation requested while the task was queued.
		if t.CancelRequested() {
			e.cancelPendingLocked(t)
			e.mu.Unlock()
			workerLogger.Debug("Skipping cancelled task.")
			e.increment("tasks.cancelled")
			e.publish(TopicTaskCancelled, t.ID())
			continue
		}

		// Resource veto: defer the task, yield so a single unsatisfiable
		// constraint cannot spin this worker hot. The veto is advisory and
		// ignored while draining, otherwise shutdown could never complete.
		if !e.draining && !e.mon.CanExecute(t) {
			e.ready.Push(t)
			e.mu.Unlock()
			workerLogger.Debug("Deferring task: resource constraints not satisfiable.")
			time.Sleep(vetoBackoff)
			continue
		}

		if !t.Begin() {
			// The task left Pending between dequeue and start; retire it
			// without promoting dependents.
			e.cancelPendingLocked(t)
			e.mu.Unlock()
			continue
		}
		e.running[t.ID()] = t
		e.mu.Unlock()

		workerLogger.Debug("Worker picked up task for execution.")
		e.execute(ctx, t)
	}
	logger.Debug("Worker finished.")
}

// execute runs a task that is already marked Running and registered in the
// running set, records its terminal state, retires it into the completed
// map, and promotes any dependents that became ready. Shared by the worker
// loop and the CallerRuns rejection path.
func (e *Executor) execute(ctx context.Context, t *task.Task) {
	logger := ctxlog.FromContext(ctx)
	e.increment("tasks.started")
	e.publish(TopicTaskStarted, t.ID())
	e.recordDuration("task.wait", t.WaitDuration())

	value, err := runBody(t)

	var topic string
	switch {
	case err != nil && t.CancelRequested() && errors.Is(err, context.Canceled):
		t.FinishCancelled(err)
		topic = TopicTaskCancelled
		e.increment("tasks.cancelled")
		logger.Debug("Task observed cancellation.", "taskID", t.ID())
	case err != nil:
		t.Finish(nil, err)
		topic = TopicTaskFailed
		e.increment("tasks.failed")
		logger.Error("Task execution failed.", "taskID", t.ID(), "error", err)
	default:
		t.Finish(value, nil)
		topic = TopicTaskCompleted
		e.increment("tasks.succeeded")
		logger.Debug("Task execution succeeded.", "taskID", t.ID())
	}
	e.recordDuration("task.exec", t.ExecDuration())

	e.mu.Lock()
	delete(e.running, t.ID())
	e.completed[t.ID()] = t
	promoted := e.tracker.Completed(t.ID(), t.State() == task.Succeeded)
	for _, p := range promoted {
		// Promotion bypasses the capacity bound: the dependent was accepted
		// at submission and must not be rejected now.
		e.ready.Push(p)
	}
	e.cond.Broadcast()
	e.mu.Unlock()

	for _, p := range promoted {
		logger.Debug("Unlocking dependent task.", "taskID", t.ID(), "dependentID", p.ID())
	}
	e.publish(topic, t.ID())
}

// runBody invokes the task body, converting a panic into an error so a
// misbehaving body never crashes a worker.
func runBody(t *task.Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("task body panicked: %v", r)
		}
	}()
	return t.Run(t.Context())
}
