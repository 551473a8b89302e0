package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgrid/internal/queue"
	"github.com/vk/taskgrid/internal/task"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

// newRunningExecutor constructs and starts an executor, and guarantees it is
// torn down when the test finishes.
func newRunningExecutor(t *testing.T, cfg Config) *Executor {
	t.Helper()
	ex, err := New(cfg)
	require.NoError(t, err)
	ex.Start(context.Background())
	t.Cleanup(func() {
		ex.Shutdown(ForceTermination)
	})
	return ex
}

// waitForState polls until the task reaches the wanted state.
func waitForState(t *testing.T, ex *Executor, id task.ID, want task.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		state, err := ex.State(id)
		return err == nil && state == want
	}, waitFor, tick, "task %d never reached state %s", id, want)
}

// value returns a body resolving immediately to v.
func value(v any) task.Body {
	return task.Func(func(ctx context.Context) (any, error) {
		return v, nil
	})
}

// blocker returns a body that holds its worker until release is closed, and a
// cancellation-aware escape hatch so shutdown can always conclude.
func blocker(release <-chan struct{}) task.Body {
	return task.Func(func(ctx context.Context) (any, error) {
		select {
		case <-release:
			return "released", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// recorder collects the order in which task bodies actually ran.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) body(name string) task.Body {
	return task.Func(func(ctx context.Context) (any, error) {
		r.mu.Lock()
		r.order = append(r.order, name)
		r.mu.Unlock()
		return name, nil
	})
}

func (r *recorder) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func TestSubmitAndRun(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 2})

	id, err := ex.Submit(value("hello"), task.Meta{Name: "greet"})
	require.NoError(t, err)
	require.NotZero(t, id)

	waitForState(t, ex, id, task.Succeeded)

	got, err := ex.Result(id)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestSubmitRejectsNilBody(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 1})
	_, err := ex.Submit(nil, task.Meta{})
	assert.ErrorContains(t, err, "must not be nil")
}

func TestSubmitAssignsUniqueIncreasingIDs(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 2})

	var last task.ID
	for i := 0; i < 10; i++ {
		id, err := ex.Submit(value(i), task.Meta{})
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}

func TestPriorityOrdering(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 1, Policy: queue.Priority})

	release := make(chan struct{})
	blockerID, err := ex.Submit(blocker(release), task.Meta{})
	require.NoError(t, err)
	waitForState(t, ex, blockerID, task.Running)

	// With the single worker occupied, everything below queues up and must
	// dequeue by priority, not submission order.
	rec := &recorder{}
	for _, tc := range []struct {
		name     string
		priority task.Priority
	}{
		{"low", task.PriorityLow},
		{"normal", task.PriorityNormal},
		{"critical", task.PriorityCritical},
		{"high", task.PriorityHigh},
	} {
		_, err := ex.Submit(rec.body(tc.name), task.Meta{Name: tc.name, Priority: tc.priority})
		require.NoError(t, err)
	}

	close(release)
	ex.Shutdown(AwaitCompletion)

	assert.Equal(t, []string{"critical", "high", "normal", "low"}, rec.ran())
}

func TestDependentWaitsForDependency(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 2})

	release := make(chan struct{})
	aID, err := ex.Submit(blocker(release), task.Meta{Name: "a"})
	require.NoError(t, err)
	waitForState(t, ex, aID, task.Running)

	rec := &recorder{}
	bID, err := ex.Submit(rec.body("b"), task.Meta{Name: "b", Dependencies: []task.ID{aID}})
	require.NoError(t, err)

	// b must stay blocked while a runs, even with an idle worker available.
	state, err := ex.State(bID)
	require.NoError(t, err)
	assert.Equal(t, task.Pending, state)
	assert.Equal(t, 1, ex.Stats().Blocked)
	assert.Empty(t, rec.ran())

	_, err = ex.Result(bID)
	assert.ErrorIs(t, err, ErrNotCompleted)

	close(release)
	waitForState(t, ex, bID, task.Succeeded)
	assert.Equal(t, []string{"b"}, rec.ran())
}

func TestDependentNeverOvertakesItsDependency(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 1, Policy: queue.Priority})

	release := make(chan struct{})
	blockerID, err := ex.Submit(blocker(release), task.Meta{})
	require.NoError(t, err)
	waitForState(t, ex, blockerID, task.Running)

	// b outranks a, but it depends on a: the dependency wins and a must
	// still execute first on the single worker.
	rec := &recorder{}
	aID, err := ex.Submit(rec.body("a"), task.Meta{Name: "a", Priority: task.PriorityNormal})
	require.NoError(t, err)
	bID, err := ex.Submit(rec.body("b"), task.Meta{
		Name:         "b",
		Priority:     task.PriorityHigh,
		Dependencies: []task.ID{aID},
	})
	require.NoError(t, err)

	close(release)
	ex.Shutdown(AwaitCompletion)

	assert.Equal(t, []string{"a", "b"}, rec.ran())
	for _, id := range []task.ID{aID, bID} {
		state, err := ex.State(id)
		require.NoError(t, err)
		assert.Equal(t, task.Succeeded, state)
	}
}

func TestDependencyOnSucceededTaskIsSatisfied(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 1})

	aID, err := ex.Submit(value("a"), task.Meta{})
	require.NoError(t, err)
	waitForState(t, ex, aID, task.Succeeded)

	bID, err := ex.Submit(value("b"), task.Meta{Dependencies: []task.ID{aID}})
	require.NoError(t, err)
	waitForState(t, ex, bID, task.Succeeded)
}

func TestSubmitUnknownDependency(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 1})

	_, err := ex.Submit(value("x"), task.Meta{Dependencies: []task.ID{999}})
	assert.ErrorIs(t, err, ErrUnknownDependency)
}

func TestFailedDependencyNeverStartsDependents(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 2})

	boom := errors.New("boom")
	aID, err := ex.Submit(task.Func(func(ctx context.Context) (any, error) {
		return nil, boom
	}), task.Meta{Name: "a"})
	require.NoError(t, err)
	waitForState(t, ex, aID, task.Failed)

	rec := &recorder{}
	bID, err := ex.Submit(rec.body("b"), task.Meta{Name: "b", Dependencies: []task.ID{aID}})
	require.NoError(t, err)

	// a already failed, so b is blocked forever; shutdown resolves it to
	// Cancelled rather than leaving it in limbo.
	state, err := ex.State(bID)
	require.NoError(t, err)
	assert.Equal(t, task.Pending, state)

	ex.Shutdown(AwaitCompletion)

	state, err = ex.State(bID)
	require.NoError(t, err)
	assert.Equal(t, task.Cancelled, state)
	_, err = ex.Result(bID)
	assert.ErrorIs(t, err, ErrShutdown)
	assert.Empty(t, rec.ran(), "dependent of a failed task must never run")
}

func TestCancelQueuedTask(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 1})

	release := make(chan struct{})
	blockerID, err := ex.Submit(blocker(release), task.Meta{})
	require.NoError(t, err)
	waitForState(t, ex, blockerID, task.Running)

	rec := &recorder{}
	queuedID, err := ex.Submit(rec.body("queued"), task.Meta{})
	require.NoError(t, err)

	// Cancellation of a queued task is immediate and guaranteed.
	assert.True(t, ex.Cancel(queuedID))
	state, err := ex.State(queuedID)
	require.NoError(t, err)
	assert.Equal(t, task.Cancelled, state)

	_, err = ex.Result(queuedID)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	ex.Shutdown(AwaitCompletion)
	assert.Empty(t, rec.ran(), "a cancelled queued task must never run")
}

func TestCancelBlockedTask(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 2})

	release := make(chan struct{})
	aID, err := ex.Submit(blocker(release), task.Meta{})
	require.NoError(t, err)

	bID, err := ex.Submit(value("b"), task.Meta{Dependencies: []task.ID{aID}})
	require.NoError(t, err)

	assert.True(t, ex.Cancel(bID))
	state, err := ex.State(bID)
	require.NoError(t, err)
	assert.Equal(t, task.Cancelled, state)
	assert.Equal(t, 0, ex.Stats().Blocked)

	// a is unaffected and still completes normally.
	close(release)
	waitForState(t, ex, aID, task.Succeeded)
}

func TestCancelRunningTaskIsCooperative(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 1})

	id, err := ex.Submit(blocker(nil), task.Meta{})
	require.NoError(t, err)
	waitForState(t, ex, id, task.Running)

	// The body observes its context and stops; the executor records the
	// cancellation once the body returns.
	assert.True(t, ex.Cancel(id))
	waitForState(t, ex, id, task.Cancelled)
	_, err = ex.Result(id)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCancelTerminalOrUnknownTask(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 1})

	id, err := ex.Submit(value("done"), task.Meta{})
	require.NoError(t, err)
	waitForState(t, ex, id, task.Succeeded)

	assert.False(t, ex.Cancel(id), "cancelling a terminal task is a no-op")
	state, err := ex.State(id)
	require.NoError(t, err)
	assert.Equal(t, task.Succeeded, state)

	assert.False(t, ex.Cancel(999))
}

// occupyWorker fills the single worker and the size-one queue so the next
// submission hits the rejection policy.
func occupyWorker(t *testing.T, ex *Executor, rec *recorder) (release chan struct{}) {
	t.Helper()
	release = make(chan struct{})
	blockerID, err := ex.Submit(blocker(release), task.Meta{})
	require.NoError(t, err)
	waitForState(t, ex, blockerID, task.Running)

	_, err = ex.Submit(rec.body("queued"), task.Meta{})
	require.NoError(t, err)
	return release
}

func TestRejectionAbort(t *testing.T) {
	ex := newRunningExecutor(t, Config{
		MaxWorkers:      1,
		QueueCapacity:   1,
		RejectionPolicy: Abort,
	})
	rec := &recorder{}
	release := occupyWorker(t, ex, rec)

	id, err := ex.Submit(value("overflow"), task.Meta{})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Zero(t, id)
	assert.Equal(t, 1, ex.Stats().Rejected)

	close(release)
	ex.Shutdown(AwaitCompletion)
	assert.Equal(t, []string{"queued"}, rec.ran())
}

func TestRejectionDiscard(t *testing.T) {
	ex := newRunningExecutor(t, Config{
		MaxWorkers:      1,
		QueueCapacity:   1,
		RejectionPolicy: Discard,
	})
	rec := &recorder{}
	release := occupyWorker(t, ex, rec)

	id, err := ex.Submit(rec.body("discarded"), task.Meta{})
	require.NoError(t, err, "discard accepts the submission silently")
	require.NotZero(t, id)

	state, err := ex.State(id)
	require.NoError(t, err)
	assert.Equal(t, task.Rejected, state)
	_, err = ex.Result(id)
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	ex.Shutdown(AwaitCompletion)
	assert.NotContains(t, rec.ran(), "discarded")
	assert.Equal(t, 1, ex.Stats().Rejected)
}

func TestRejectionCallerRuns(t *testing.T) {
	ex := newRunningExecutor(t, Config{
		MaxWorkers:      1,
		QueueCapacity:   1,
		RejectionPolicy: CallerRuns,
	})
	rec := &recorder{}
	release := occupyWorker(t, ex, rec)

	// The overflowing task executes synchronously on this goroutine, so it
	// is terminal by the time Submit returns.
	id, err := ex.Submit(rec.body("caller"), task.Meta{})
	require.NoError(t, err)

	state, err := ex.State(id)
	require.NoError(t, err)
	assert.Equal(t, task.Succeeded, state)
	got, err := ex.Result(id)
	require.NoError(t, err)
	assert.Equal(t, "caller", got)

	close(release)
	ex.Shutdown(AwaitCompletion)
}

func TestRejectionRequeue(t *testing.T) {
	t.Run("succeeds once capacity frees up", func(t *testing.T) {
		ex := newRunningExecutor(t, Config{
			MaxWorkers:      1,
			QueueCapacity:   1,
			RejectionPolicy: Requeue,
		})
		rec := &recorder{}
		release := occupyWorker(t, ex, rec)

		go func() {
			time.Sleep(10 * time.Millisecond)
			close(release)
		}()

		// Submit blocks retrying; the release above drains the queue within
		// the backoff window.
		id, err := ex.Submit(rec.body("requeued"), task.Meta{})
		require.NoError(t, err)
		require.NotZero(t, id)

		ex.Shutdown(AwaitCompletion)
		assert.Contains(t, rec.ran(), "requeued")
	})

	t.Run("gives up after bounded retries", func(t *testing.T) {
		ex := newRunningExecutor(t, Config{
			MaxWorkers:      1,
			QueueCapacity:   1,
			RejectionPolicy: Requeue,
		})
		rec := &recorder{}
		release := occupyWorker(t, ex, rec)

		_, err := ex.Submit(value("overflow"), task.Meta{})
		assert.ErrorIs(t, err, ErrQueueFull)

		close(release)
		ex.Shutdown(AwaitCompletion)
	})
}

func TestPanicInBodyIsContained(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 1})

	id, err := ex.Submit(task.Func(func(ctx context.Context) (any, error) {
		panic("kaboom")
	}), task.Meta{})
	require.NoError(t, err)
	waitForState(t, ex, id, task.Failed)

	_, err = ex.Result(id)
	assert.ErrorContains(t, err, "panicked")
	assert.ErrorContains(t, err, "kaboom")

	// The worker survived and keeps processing.
	next, err := ex.Submit(value("alive"), task.Meta{})
	require.NoError(t, err)
	waitForState(t, ex, next, task.Succeeded)
}

func TestShutdownAwaitCompletion(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 4})

	var ids []task.ID
	for i := 0; i < 20; i++ {
		id, err := ex.Submit(value(i), task.Meta{})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	ex.Shutdown(AwaitCompletion)
	assert.True(t, ex.IsShutdown())

	for _, id := range ids {
		state, err := ex.State(id)
		require.NoError(t, err)
		assert.Equal(t, task.Succeeded, state)
	}

	_, err := ex.Submit(value("late"), task.Meta{})
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestShutdownForceTermination(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 1})

	runningID, err := ex.Submit(blocker(nil), task.Meta{})
	require.NoError(t, err)
	waitForState(t, ex, runningID, task.Running)

	var queued []task.ID
	for i := 0; i < 5; i++ {
		id, err := ex.Submit(value(i), task.Meta{})
		require.NoError(t, err)
		queued = append(queued, id)
	}

	ex.Shutdown(ForceTermination)

	// The running task observed the cancellation signal; queued work was
	// abandoned without executing.
	state, err := ex.State(runningID)
	require.NoError(t, err)
	assert.Equal(t, task.Cancelled, state)
	for _, id := range queued {
		state, err := ex.State(id)
		require.NoError(t, err)
		assert.Equal(t, task.Cancelled, state)
		_, err = ex.Result(id)
		assert.ErrorIs(t, err, ErrShutdown)
	}
}

func TestShutdownAwaitTermination(t *testing.T) {
	t.Run("drains within the timeout", func(t *testing.T) {
		ex := newRunningExecutor(t, Config{
			MaxWorkers:      2,
			ShutdownTimeout: 5 * time.Second,
		})
		var ids []task.ID
		for i := 0; i < 10; i++ {
			id, err := ex.Submit(value(i), task.Meta{})
			require.NoError(t, err)
			ids = append(ids, id)
		}

		ex.Shutdown(AwaitTermination)
		for _, id := range ids {
			state, err := ex.State(id)
			require.NoError(t, err)
			assert.Equal(t, task.Succeeded, state)
		}
	})

	t.Run("forces termination at the deadline", func(t *testing.T) {
		ex := newRunningExecutor(t, Config{
			MaxWorkers:      1,
			ShutdownTimeout: 20 * time.Millisecond,
		})
		id, err := ex.Submit(blocker(nil), task.Meta{})
		require.NoError(t, err)
		waitForState(t, ex, id, task.Running)

		start := time.Now()
		ex.Shutdown(AwaitTermination)
		assert.Less(t, time.Since(start), waitFor)

		state, err := ex.State(id)
		require.NoError(t, err)
		assert.Equal(t, task.Cancelled, state)
	})
}

func TestShutdownIsIdempotent(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 1})
	ex.Shutdown(AwaitCompletion)
	ex.Shutdown(AwaitCompletion)
	assert.True(t, ex.IsShutdown())
}

func TestShutdownWithoutStart(t *testing.T) {
	ex, err := New(Config{MaxWorkers: 2})
	require.NoError(t, err)

	id, err := ex.Submit(value("never runs"), task.Meta{})
	require.NoError(t, err)

	ex.Shutdown(AwaitCompletion)

	state, err := ex.State(id)
	require.NoError(t, err)
	assert.Equal(t, task.Cancelled, state)
}

func TestStateAndResultErrors(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 1})

	_, err := ex.State(404)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = ex.Result(404)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestResourceConstraintsAreAdvisory(t *testing.T) {
	ex := newRunningExecutor(t, Config{
		MaxWorkers:      2,
		MonitorInterval: time.Millisecond,
	})

	// No machine satisfies this, so scheduling is deferred while the
	// executor accepts work.
	id, err := ex.Submit(value("greedy"), task.Meta{
		Constraints: []task.Constraint{{Kind: task.ConstraintCPUCores, Amount: 1 << 20}},
	})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	state, err := ex.State(id)
	require.NoError(t, err)
	assert.Equal(t, task.Pending, state, "unsatisfiable constraints defer scheduling")

	// The veto is advisory: the drain runs the task rather than losing it.
	ex.Shutdown(AwaitCompletion)
	state, err = ex.State(id)
	require.NoError(t, err)
	assert.Equal(t, task.Succeeded, state)
}

func TestStats(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 1})

	okID, err := ex.Submit(task.Func(func(ctx context.Context) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	}), task.Meta{})
	require.NoError(t, err)
	waitForState(t, ex, okID, task.Succeeded)

	failID, err := ex.Submit(task.Func(func(ctx context.Context) (any, error) {
		return nil, errors.New("nope")
	}), task.Meta{})
	require.NoError(t, err)
	waitForState(t, ex, failID, task.Failed)

	release := make(chan struct{})
	blockerID, err := ex.Submit(blocker(release), task.Meta{})
	require.NoError(t, err)
	waitForState(t, ex, blockerID, task.Running)

	queuedID, err := ex.Submit(value("queued"), task.Meta{})
	require.NoError(t, err)
	require.True(t, ex.Cancel(queuedID))

	stats := ex.Stats()
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, 1, stats.Running)
	assert.Equal(t, 0, stats.Queued)
	assert.Greater(t, stats.AvgExec, time.Duration(0))

	close(release)
	ex.Shutdown(AwaitCompletion)

	stats = ex.Stats()
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 0, stats.Running)
}

// recordingSink captures metrics and events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	counts map[string]int
	topics map[string]int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{counts: make(map[string]int), topics: make(map[string]int)}
}

func (s *recordingSink) Increment(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name]++
}

func (s *recordingSink) RecordDuration(name string, d time.Duration) {}

func (s *recordingSink) Publish(topic string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[topic]++
}

func (s *recordingSink) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

func (s *recordingSink) topic(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topics[name]
}

func TestMetricsAndEvents(t *testing.T) {
	sink := newRecordingSink()
	ex := newRunningExecutor(t, Config{
		MaxWorkers: 2,
		Metrics:    sink,
		Publisher:  sink,
	})

	okID, err := ex.Submit(value("ok"), task.Meta{})
	require.NoError(t, err)
	failID, err := ex.Submit(task.Func(func(ctx context.Context) (any, error) {
		return nil, errors.New("nope")
	}), task.Meta{})
	require.NoError(t, err)

	waitForState(t, ex, okID, task.Succeeded)
	waitForState(t, ex, failID, task.Failed)
	ex.Shutdown(AwaitCompletion)

	assert.Equal(t, 2, sink.count("tasks.submitted"))
	assert.Equal(t, 1, sink.count("tasks.succeeded"))
	assert.Equal(t, 1, sink.count("tasks.failed"))
	assert.Equal(t, 2, sink.topic(TopicTaskStarted))
	assert.Equal(t, 1, sink.topic(TopicTaskCompleted))
	assert.Equal(t, 1, sink.topic(TopicTaskFailed))
	assert.Equal(t, 1, sink.topic(TopicExecutorShutdown))
}

func TestConcurrentLoad(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 8})

	const batches = 30
	var ids []task.ID
	var prev task.ID
	for i := 0; i < batches; i++ {
		// Each batch fans out from the previous batch's anchor task, mixing
		// independent and dependent work.
		var deps []task.ID
		if prev != 0 {
			deps = []task.ID{prev}
		}
		anchor, err := ex.Submit(value(fmt.Sprintf("anchor-%d", i)), task.Meta{Dependencies: deps})
		require.NoError(t, err)
		ids = append(ids, anchor)
		for j := 0; j < 9; j++ {
			id, err := ex.Submit(value(j), task.Meta{Dependencies: []task.ID{anchor}})
			require.NoError(t, err)
			ids = append(ids, id)
		}
		prev = anchor
	}

	ex.Shutdown(AwaitCompletion)

	stats := ex.Stats()
	assert.Equal(t, len(ids), stats.Succeeded)
	assert.Zero(t, stats.Queued)
	assert.Zero(t, stats.Blocked)
	assert.Zero(t, stats.Running)
	for _, id := range ids {
		state, err := ex.State(id)
		require.NoError(t, err)
		require.Equal(t, task.Succeeded, state)
	}
}

func TestConcurrentSubmission(t *testing.T) {
	ex := newRunningExecutor(t, Config{MaxWorkers: 8})

	const (
		submitters   = 16
		perSubmitter = 64
		total        = submitters * perSubmitter
	)

	idCh := make(chan task.ID, total)
	var wg sync.WaitGroup
	for g := 0; g < submitters; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perSubmitter; i++ {
				id, err := ex.Submit(value(g), task.Meta{})
				assert.NoError(t, err)
				idCh <- id
			}
		}(g)
	}
	wg.Wait()
	close(idCh)

	// Every submission got a distinct ID and none were lost.
	seen := make(map[task.ID]struct{}, total)
	for id := range idCh {
		_, dup := seen[id]
		require.False(t, dup, "duplicate task ID %d", id)
		seen[id] = struct{}{}
	}
	require.Len(t, seen, total)

	ex.Shutdown(AwaitCompletion)

	stats := ex.Stats()
	assert.Equal(t, total, stats.Succeeded+stats.Failed+stats.Cancelled)
	assert.Equal(t, total, stats.Succeeded)
	assert.Zero(t, stats.Queued)
	assert.Zero(t, stats.Blocked)
	assert.Zero(t, stats.Running)
	for id := range seen {
		state, err := ex.State(id)
		require.NoError(t, err)
		require.True(t, state.Terminal(), "task %d ended in state %s", id, state)
	}
}

func TestNewRejectsUnimplementedPolicy(t *testing.T) {
	_, err := New(Config{Policy: queue.WorkStealing})
	assert.ErrorContains(t, err, "not implemented")
}

func TestPolicyParsing(t *testing.T) {
	t.Run("rejection", func(t *testing.T) {
		for input, want := range map[string]RejectionPolicy{
			"":            Abort,
			"abort":       Abort,
			"caller_runs": CallerRuns,
			"requeue":     Requeue,
			"discard":     Discard,
		} {
			got, err := ParseRejectionPolicy(input)
			require.NoError(t, err, "input %q", input)
			assert.Equal(t, want, got, "input %q", input)
		}
		_, err := ParseRejectionPolicy("explode")
		assert.Error(t, err)
	})

	t.Run("shutdown", func(t *testing.T) {
		for input, want := range map[string]ShutdownPolicy{
			"":                  AwaitCompletion,
			"await_completion":  AwaitCompletion,
			"await_termination": AwaitTermination,
			"force_termination": ForceTermination,
		} {
			got, err := ParseShutdownPolicy(input)
			require.NoError(t, err, "input %q", input)
			assert.Equal(t, want, got, "input %q", input)
		}
		_, err := ParseShutdownPolicy("explode")
		assert.Error(t, err)
	})
}
