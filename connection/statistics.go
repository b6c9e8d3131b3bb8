// File: connection/statistics.go
// Author: momentics <momentics@gmail.com>

package connection

// Statistics is an opaque, no-op-by-default observation hook. Real
// implementations may record connect latency, bytes transferred, or query
// counts; the core never inspects the values it records. Connection only
// stores the value passed to New: nothing in this module calls either
// method.
type Statistics interface {
	// ConnectAttempted marks the start of opening a Connection.
	ConnectAttempted()
	// ConnectCompleted marks the end of the handshake, successful or not.
	ConnectCompleted(ok bool)
}

// NoStatistics is the default, no-op Statistics implementation.
type NoStatistics struct{}

func (NoStatistics) ConnectAttempted()     {}
func (NoStatistics) ConnectCompleted(bool) {}
