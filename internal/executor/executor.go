// Package executor implements the bounded worker-pool task executor: it owns
// the ready queue, the dependency tracker, the running set, and the completed
// map, and exposes submit, cancel, inspect, and shutdown operations on top of
// them.
//
// All four collections are guarded by one scheduling mutex paired with a
// condition variable that workers wait on when the ready queue is empty. The
// per-task state cells and the ID counter are atomic because they are read
// far more often than the coarse lock is held.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/taskgrid/internal/deps"
	"github.com/vk/taskgrid/internal/monitor"
	"github.com/vk/taskgrid/internal/queue"
	"github.com/vk/taskgrid/internal/task"
)

// Submission errors surfaced synchronously to the caller of Submit. They are
// never retried automatically.
var (
	// ErrQueueFull is returned when the ready queue is at capacity and the
	// rejection policy aborts the submission.
	ErrQueueFull = errors.New("ready queue is full")
	// ErrShutdown is returned when the executor no longer accepts work.
	ErrShutdown = errors.New("executor is shut down")
	// ErrUnknownDependency is returned when a submission references a task
	// ID that was never submitted.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrTaskNotFound is returned by inspection operations for an unknown ID.
	ErrTaskNotFound = errors.New("task not found")
	// ErrNotCompleted is returned by Result for a task that has not reached
	// a terminal state yet.
	ErrNotCompleted = errors.New("task has not completed")
)

// Requeue backoff parameters: the enqueue is retried with doubling sleeps
// before the submission gives up with ErrQueueFull.
const (
	requeueAttempts = 4
	requeueBackoff  = 5 * time.Millisecond
)

// vetoBackoff is how long a worker sleeps after pushing a resource-vetoed
// task back, so a single unsatisfiable constraint cannot spin a worker hot.
const vetoBackoff = 5 * time.Millisecond

// Config is the construction-time configuration of an Executor.
type Config struct {
	// MaxWorkers is the fixed number of worker goroutines. Defaults to the
	// number of logical CPUs.
	MaxWorkers int
	// Policy selects the ready-queue ordering. Defaults to queue.FIFO.
	Policy queue.Policy
	// RejectionPolicy selects the behavior when the ready queue is at
	// capacity. Defaults to Abort.
	RejectionPolicy RejectionPolicy
	// ShutdownPolicy is the default policy applied by Shutdown. Defaults to
	// AwaitCompletion.
	ShutdownPolicy ShutdownPolicy
	// ShutdownTimeout bounds AwaitTermination drains.
	ShutdownTimeout time.Duration
	// QueueCapacity bounds the ready queue. Defaults to 1024.
	QueueCapacity int
	// MonitorInterval throttles resource sampling. Zero disables the
	// resource monitor entirely.
	MonitorInterval time.Duration

	// Metrics and Publisher are optional side-channel collaborators; nil
	// values are silent no-ops.
	Metrics   Metrics
	Publisher Publisher
}

// withDefaults fills the zero values of the configuration.
func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = runtime.NumCPU()
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 1024
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return c
}

// Executor is the façade over the worker pool, ready queue, dependency
// tracker, and completed map. All exported methods are safe for concurrent
// use.
type Executor struct {
	cfg       Config
	metrics   Metrics
	publisher Publisher
	mon       *monitor.Monitor

	// idSeq assigns process-unique, monotonically increasing task IDs. It
	// belongs to this instance so multiple executors never collide.
	idSeq atomic.Int64

	mu   sync.Mutex
	cond *sync.Cond
	// The four holding collections. A task ID appears in exactly one of
	// {tracker, ready, running, completed} at a time; index holds every task
	// ever accepted, for state lookups.
	ready     queue.Queue
	tracker   *deps.Tracker
	running   map[task.ID]*task.Task
	completed map[task.ID]*task.Task
	index     map[task.ID]*task.Task

	rejected int

	started  bool
	shutdown bool
	// draining tells idle workers to exit once the ready queue is empty;
	// halted tells them to exit immediately after their current task.
	draining bool
	halted   bool

	wg   sync.WaitGroup
	done chan struct{}
}

// New constructs an executor from the given configuration. It fails if the
// configuration requests an unimplemented execution policy.
func New(cfg Config) (*Executor, error) {
	cfg = cfg.withDefaults()
	ready, err := queue.New(cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("failed to construct ready queue: %w", err)
	}

	e := &Executor{
		cfg:       cfg,
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
		ready:     ready,
		tracker:   deps.New(),
		running:   make(map[task.ID]*task.Task),
		completed: make(map[task.ID]*task.Task),
		index:     make(map[task.ID]*task.Task),
		done:      make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	if cfg.MonitorInterval > 0 {
		e.mon = monitor.New(cfg.MonitorInterval)
	}
	return e, nil
}

// Start spins up the fixed worker pool. It is idempotent; only the first
// call starts workers. The context carries the logger and is not used for
// cancellation (shutdown is explicit).
func (e *Executor) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started || e.shutdown {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	for i := 0; i < e.cfg.MaxWorkers; i++ {
		e.wg.Add(1)
		go func(workerID int) {
			defer e.wg.Done()
			e.worker(ctx, workerID)
		}(i)
	}
}

// Submit accepts a unit of work and returns its assigned ID. Dependencies
// must reference already-submitted tasks, which makes dependency cycles
// impossible by construction. When the ready queue is at capacity the
// configured rejection policy decides the outcome.
func (e *Executor) Submit(body task.Body, meta task.Meta) (task.ID, error) {
	if body == nil {
		return 0, errors.New("task body must not be nil")
	}

	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return 0, ErrShutdown
	}

	unmet := make([]task.ID, 0, len(meta.Dependencies))
	for _, dep := range meta.Dependencies {
		dt, ok := e.index[dep]
		if !ok {
			e.mu.Unlock()
			return 0, fmt.Errorf("%w: task %d", ErrUnknownDependency, dep)
		}
		// A dependency that already succeeded is satisfied. Any other state
		// counts as unmet; if it is terminal the submitted task stays
		// blocked until cancelled (fail-closed).
		if dt.State() != task.Succeeded {
			unmet = append(unmet, dep)
		}
	}

	id := task.ID(e.idSeq.Add(1))
	t := task.New(id, body, meta)
	ctx, cancel := context.WithCancel(context.Background())
	t.BindContext(ctx, cancel)
	e.index[id] = t

	if len(unmet) > 0 {
		if err := e.tracker.Track(t, unmet); err != nil {
			delete(e.index, id)
			e.mu.Unlock()
			return 0, err
		}
		e.mu.Unlock()
		e.increment("tasks.submitted")
		e.publish(TopicTaskSubmitted, id)
		return id, nil
	}

	return e.enqueueLocked(t)
}

// enqueueLocked places a ready task into the queue, applying the rejection
// policy when the queue is at capacity. Called with the mutex held; releases
// it on all paths.
func (e *Executor) enqueueLocked(t *task.Task) (task.ID, error) {
	id := t.ID()

	if e.ready.Len() < e.cfg.QueueCapacity {
		e.ready.Push(t)
		e.cond.Signal()
		e.mu.Unlock()
		e.increment("tasks.submitted")
		e.publish(TopicTaskSubmitted, id)
		return id, nil
	}

	switch e.cfg.RejectionPolicy {
	case Discard:
		t.Reject(ErrQueueFull)
		e.completed[id] = t
		e.rejected++
		e.mu.Unlock()
		e.increment("tasks.rejected")
		e.publish(TopicTaskRejected, id)
		return id, nil

	case CallerRuns:
		t.Begin()
		e.running[id] = t
		e.mu.Unlock()
		e.increment("tasks.submitted")
		e.publish(TopicTaskSubmitted, id)
		e.execute(context.Background(), t)
		return id, nil

	case Requeue:
		for attempt := 0; attempt < requeueAttempts; attempt++ {
			e.mu.Unlock()
			time.Sleep(requeueBackoff << attempt)
			e.mu.Lock()
			if e.shutdown {
				delete(e.index, id)
				e.mu.Unlock()
				return 0, ErrShutdown
			}
			if e.ready.Len() < e.cfg.QueueCapacity {
				e.ready.Push(t)
				e.cond.Signal()
				e.mu.Unlock()
				e.increment("tasks.submitted")
				e.publish(TopicTaskSubmitted, id)
				return id, nil
			}
		}
		fallthrough

	default: // Abort
		delete(e.index, id)
		e.rejected++
		e.mu.Unlock()
		e.increment("tasks.rejected")
		e.publish(TopicTaskRejected, id)
		return 0, ErrQueueFull
	}
}

// Cancel requests cancellation of the given task. A queued or blocked task
// is removed and marked Cancelled immediately; for a running task only the
// cooperative cancellation signal is fired and the outcome depends on the
// body observing it. Cancelling a terminal or unknown task is a no-op
// returning false.
func (e *Executor) Cancel(id task.ID) bool {
	e.mu.Lock()
	t, ok := e.index[id]
	if !ok || t.State().Terminal() {
		e.mu.Unlock()
		return false
	}

	if removed := e.ready.Remove(id); removed != nil {
		e.cancelPendingLocked(t)
		e.mu.Unlock()
		e.increment("tasks.cancelled")
		e.publish(TopicTaskCancelled, id)
		return true
	}

	if removed := e.tracker.Remove(id); removed != nil {
		e.cancelPendingLocked(t)
		e.mu.Unlock()
		e.increment("tasks.cancelled")
		e.publish(TopicTaskCancelled, id)
		return true
	}

	if _, isRunning := e.running[id]; isRunning {
		t.SignalCancel()
		e.mu.Unlock()
		return true
	}

	e.mu.Unlock()
	return false
}

// cancelPendingLocked retires a task that was cancelled while queued or
// blocked. Dependents are deliberately not promoted. Called with the mutex
// held.
func (e *Executor) cancelPendingLocked(t *task.Task) {
	t.SignalCancel()
	t.CancelPending(context.Canceled)
	e.completed[t.ID()] = t
	e.tracker.Completed(t.ID(), false)
	e.cond.Broadcast()
}

// State returns the task's current state without blocking.
func (e *Executor) State(id task.ID) (task.State, error) {
	e.mu.Lock()
	t, ok := e.index[id]
	e.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	return t.State(), nil
}

// Result returns the task's recorded value. It fails with ErrNotCompleted
// while the task is non-terminal, and returns the task's own failure cause
// once it is.
func (e *Executor) Result(id task.ID) (any, error) {
	e.mu.Lock()
	t, ok := e.index[id]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	value, err, done := t.Result()
	if !done {
		return nil, fmt.Errorf("%w: %d", ErrNotCompleted, id)
	}
	return value, err
}

// IsShutdown reports whether the executor has stopped accepting work.
func (e *Executor) IsShutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown
}

// Shutdown stops the executor according to the given policy. Submissions
// fail with ErrShutdown from the moment it is called. Once the workers have
// exited, any still-queued or still-blocked tasks are marked Cancelled: no
// future completion can ever promote them. Shutdown is idempotent; late
// callers block until the first shutdown finishes.
func (e *Executor) Shutdown(policy ShutdownPolicy) {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.shutdown = true

	switch policy {
	case AwaitCompletion:
		e.draining = true
		e.cond.Broadcast()
		// Draining can only make progress if workers were ever started.
		for e.started && (e.ready.Len() > 0 || len(e.running) > 0) {
			e.cond.Wait()
		}

	case AwaitTermination:
		e.draining = true
		e.cond.Broadcast()
		deadline := time.Now().Add(e.cfg.ShutdownTimeout)
		// The condition variable has no timed wait; a timer wakes the loop
		// so it can observe the deadline.
		timer := time.AfterFunc(e.cfg.ShutdownTimeout, func() {
			e.mu.Lock()
			e.cond.Broadcast()
			e.mu.Unlock()
		})
		for e.started && (e.ready.Len() > 0 || len(e.running) > 0) && time.Now().Before(deadline) {
			e.cond.Wait()
		}
		timer.Stop()

	case ForceTermination:
		// Workers exit after their current task without draining the queue.
	}

	e.halted = true
	e.draining = true
	// Workers never abandon a running body, so firing the cooperative
	// cancellation signal is the only way a forced or timed-out drain can
	// conclude. After AwaitCompletion the running set is already empty.
	for _, t := range e.running {
		t.SignalCancel()
	}
	e.cond.Broadcast()
	e.mu.Unlock()

	e.wg.Wait()
	abandoned := e.finalizeAbandoned()

	for _, t := range abandoned {
		e.increment("tasks.cancelled")
		e.publish(TopicTaskCancelled, t.ID())
	}
	e.publish(TopicExecutorShutdown, nil)
	close(e.done)
}

// finalizeAbandoned cancels every task still queued or blocked after the
// workers have exited, so that all accepted tasks end in a terminal state.
func (e *Executor) finalizeAbandoned() []*task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	var abandoned []*task.Task
	for {
		t := e.ready.Pop()
		if t == nil {
			break
		}
		abandoned = append(abandoned, t)
	}
	abandoned = append(abandoned, e.tracker.Drain()...)

	for _, t := range abandoned {
		t.SignalCancel()
		t.CancelPending(ErrShutdown)
		e.completed[t.ID()] = t
	}
	return abandoned
}

// Stats is a derived, non-authoritative snapshot of executor state. It is
// computed on demand from the authoritative collections and is never itself
// a source of truth.
type Stats struct {
	Queued    int
	Blocked   int
	Running   int
	Succeeded int
	Failed    int
	Cancelled int
	Rejected  int
	AvgWait   time.Duration
	AvgExec   time.Duration
}

// Stats aggregates counts and rolling average wait/execution times from the
// completed map and the queue lengths.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		Queued:   e.ready.Len(),
		Blocked:  e.tracker.Blocked(),
		Running:  len(e.running),
		Rejected: e.rejected,
	}

	var waitSum, execSum time.Duration
	var executed int
	for _, t := range e.completed {
		switch t.State() {
		case task.Succeeded:
			s.Succeeded++
		case task.Failed:
			s.Failed++
		case task.Cancelled:
			s.Cancelled++
		case task.Rejected:
			// Already counted via the rejected counter.
			continue
		}
		if d := t.ExecDuration(); d > 0 {
			waitSum += t.WaitDuration()
			execSum += d
			executed++
		}
	}
	if executed > 0 {
		s.AvgWait = waitSum / time.Duration(executed)
		s.AvgExec = execSum / time.Duration(executed)
	}
	return s
}
