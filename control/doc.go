// Package control
// Author: momentics <momentics@gmail.com>
//
// Hot-reload, runtime metrics, configuration control, and debug introspection
// layer backing the connection pool's dynamic reconfiguration and stats
// exposure.
//
// Provides concurrent-safe state handling primitives including:
//   - ConfigStore[T]: a typed configuration snapshot with OnReload listeners
//   - MetricsRegistry: named int64 counters
//   - DebugProbes: named introspection hooks, each dump timestamped
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
