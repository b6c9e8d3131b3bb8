// File: pool/config.go
// Author: momentics <momentics@gmail.com>
//
// Pool configuration, split into Config (shape) and Timeouts (timing),
// mirroring original_source/include/ozo/connection_pool.h's
// connection_pool_config/connection_pool_timeouts split.

package pool

import "time"

// Config bounds the Pool's shape.
type Config struct {
	// Capacity is the maximum number of Connections the Pool may own at
	// once (idle + leased + opening).
	Capacity int
	// QueueCapacity bounds the number of callers allowed to wait for a
	// Connection once Capacity is exhausted.
	QueueCapacity int
}

// Timeouts bounds the Pool's timing.
type Timeouts struct {
	// IdleTimeout is how long a Connection may sit idle before eviction.
	IdleTimeout time.Duration
	// ConnectTimeout bounds each call into the Pool's Source.
	ConnectTimeout time.Duration
	// QueueTimeout bounds how long a waiter sits in the wait queue before
	// completing with QueueTimeout.
	QueueTimeout time.Duration
}

// DefaultConfig matches spec.md §6's external interfaces enumeration.
func DefaultConfig() Config {
	return Config{Capacity: 10, QueueCapacity: 128}
}

// DefaultTimeouts matches spec.md §6's external interfaces enumeration.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		IdleTimeout:    60 * time.Second,
		ConnectTimeout: 10 * time.Second,
		QueueTimeout:   10 * time.Second,
	}
}

// ConfigSnapshot is what Pool publishes to its control.ConfigStore: the
// currently effective Config and Timeouts together, so a reload listener
// sees a single consistent value rather than two independent ones that
// could observe a torn update.
type ConfigSnapshot struct {
	Config
	Timeouts
}
