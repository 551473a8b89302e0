// Package monitor provides an advisory resource monitor. It keeps a cached
// sample of approximate system utilization and vetoes execution of tasks
// whose declared constraints cannot currently be satisfied.
package monitor

import (
	"runtime"
	"sync"
	"time"

	"github.com/vk/taskgrid/internal/task"
)

// Sample is one cached utilization measurement.
type Sample struct {
	// CPUCores is the number of logical CPU cores available to the process.
	CPUCores int64
	// FreeMemoryMB approximates the memory the process could still claim,
	// derived from the Go runtime's heap accounting.
	FreeMemoryMB int64
	// TakenAt is when the sample was measured.
	TakenAt time.Time
}

// Sampler measures a utilization sample. It exists so tests can substitute a
// deterministic source for the runtime-backed default.
type Sampler func() Sample

// runtimeSample is the default sampler. Measuring touches runtime.ReadMemStats,
// which is why samples are cached rather than taken per scheduling decision.
func runtimeSample() Sample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	free := int64(ms.Sys-ms.HeapInuse) / (1 << 20)
	if free < 0 {
		free = 0
	}
	return Sample{
		CPUCores:     int64(runtime.NumCPU()),
		FreeMemoryMB: free,
		TakenAt:      time.Now(),
	}
}

// Monitor caches utilization samples and answers constraint checks against
// the cache. A nil *Monitor is valid and considers every task executable,
// making the monitor purely optional.
type Monitor struct {
	interval time.Duration
	sampler  Sampler

	mu     sync.Mutex
	sample Sample
}

// New creates a monitor that refreshes its cached sample no more often than
// interval. A zero or negative interval disables caching and measures on
// every Update call.
func New(interval time.Duration) *Monitor {
	return NewWithSampler(interval, runtimeSample)
}

// NewWithSampler creates a monitor with a caller-supplied sampler.
func NewWithSampler(interval time.Duration, sampler Sampler) *Monitor {
	m := &Monitor{interval: interval, sampler: sampler}
	m.sample = sampler()
	return m
}

// Update refreshes the cached sample if it is older than the configured
// interval, and returns the sample in effect afterwards.
func (m *Monitor) Update() Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	if time.Since(m.sample.TakenAt) >= m.interval {
		m.sample = m.sampler()
	}
	return m.sample
}

// CanExecute checks the task's declared constraints against the cached
// sample and reports whether the task should run now. Constraints are
// advisory: a veto only defers scheduling, and nothing enforces the
// constraint once the task starts.
func (m *Monitor) CanExecute(t *task.Task) bool {
	if m == nil {
		return true
	}
	sample := m.Update()
	for _, c := range t.Constraints() {
		switch c.Kind {
		case task.ConstraintCPUCores:
			if c.Amount > sample.CPUCores {
				return false
			}
		case task.ConstraintMemoryMB:
			if c.Amount > sample.FreeMemoryMB {
				return false
			}
		}
	}
	return true
}
