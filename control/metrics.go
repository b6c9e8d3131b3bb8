// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime counter registry for pool occupancy metrics (idle/leased/opening/
// waiters are always whole counts, never arbitrary values), with dynamic
// registration.

package control

import (
	"sync"
)

// MetricsRegistry holds named integer counters under one mutex.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]int64
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]int64),
	}
}

// Set sets or updates a counter.
func (mr *MetricsRegistry) Set(name string, value int64) {
	mr.mu.Lock()
	mr.metrics[name] = value
	mr.mu.Unlock()
}

// GetSnapshot returns a copy of the latest counters.
func (mr *MetricsRegistry) GetSnapshot() map[string]int64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]int64, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}
