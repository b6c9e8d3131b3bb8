// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the core edge-triggered, one-shot readiness
// reactor used to drive non-blocking PostgreSQL wire connections, plus a
// small executor (per-worker local queues plus a shared global queue) used
// to post completion callbacks off the
// poll goroutine.
package reactor
