// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral reactor interface for edge-triggered, one-shot socket
// readiness multiplexing.

package reactor

// FDEventType is a bitmask of readiness conditions.
type FDEventType int

const (
	// EventRead signals the fd is ready for a non-blocking read.
	EventRead FDEventType = 1 << iota
	// EventWrite signals the fd is ready for a non-blocking write.
	EventWrite
	// EventError signals the fd reported an error or hangup condition.
	EventError
)

// FDCallback is invoked once per armed watch, from the reactor's Post
// executor, never inline from the poll loop itself.
type FDCallback func(fd uintptr, events FDEventType)

// Reactor multiplexes socket readiness and dispatches completion work.
//
// Each of WatchRead/WatchWrite arms at most one in-flight, one-shot watch
// per direction per fd: a fired callback must be re-armed by the caller
// before the next event in that direction is delivered. This mirrors
// EPOLLONESHOT and keeps the PollOp state machine (package pollop) free of
// re-entrancy concerns — at most one step is ever in flight per direction.
type Reactor interface {
	// WatchRead arms a one-shot read-readiness watch on fd.
	WatchRead(fd uintptr, cb FDCallback) error
	// WatchWrite arms a one-shot write-readiness watch on fd.
	WatchWrite(fd uintptr, cb FDCallback) error
	// CancelRead disarms any pending read watch on fd, if any.
	CancelRead(fd uintptr) error
	// CancelWrite disarms any pending write watch on fd, if any.
	CancelWrite(fd uintptr) error
	// Post schedules fn to run on the reactor's executor, decoupling the
	// caller from the poll goroutine.
	Post(fn func())
	// Close shuts the reactor and its executor down.
	Close() error
}

// Options configures a Reactor at construction time.
type Options struct {
	// Workers is the number of executor worker goroutines used to run
	// Post'ed callbacks. Zero selects runtime.NumCPU().
	Workers int
	// NUMANode, when >= 0, locks the poll goroutine and each executor
	// worker to its OS thread and passes NUMANode to affinity.Pin, which
	// treats it as a logical CPU index; no node-to-CPU mapping is done.
	// Negative disables pinning.
	NUMANode int
}

// New constructs the platform-appropriate Reactor.
func New(opts Options) (Reactor, error) {
	return newPlatformReactor(opts)
}
