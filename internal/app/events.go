package app

import (
	"log/slog"
	"sync"
	"time"
)

// slogPublisher forwards executor lifecycle events to the application
// logger at debug level. It demonstrates the optional Publisher collaborator;
// the executor works identically without it.
type slogPublisher struct {
	logger *slog.Logger
}

// Publish implements executor.Publisher.
func (p *slogPublisher) Publish(topic string, payload any) {
	p.logger.Debug("Executor event.", "topic", topic, "payload", payload)
}

// tallyMetrics is an in-memory executor.Metrics sink: it accumulates
// counters and total durations for the end-of-run summary.
type tallyMetrics struct {
	mu        sync.Mutex
	counts    map[string]int64
	durations map[string]time.Duration
}

func newTallyMetrics() *tallyMetrics {
	return &tallyMetrics{
		counts:    make(map[string]int64),
		durations: make(map[string]time.Duration),
	}
}

// Increment implements executor.Metrics.
func (m *tallyMetrics) Increment(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
}

// RecordDuration implements executor.Metrics.
func (m *tallyMetrics) RecordDuration(name string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[name] += d
}

// Count returns the accumulated counter value.
func (m *tallyMetrics) Count(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

// Total returns the accumulated duration for the given timing.
func (m *tallyMetrics) Total(name string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.durations[name]
}
