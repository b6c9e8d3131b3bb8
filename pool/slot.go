// File: pool/slot.go
// Author: momentics <momentics@gmail.com>
//
// Pool slot and Lease per spec.md §3: a slot is a (Connection, idle_since,
// generation) triple owned by the Pool; leased slots are not kept in any
// container — the Lease the caller holds carries the slot out directly, so
// there is no owning cycle back into the Pool (spec.md §9 design note).

package pool

import (
	"time"

	"github.com/google/uuid"

	"github.com/elsid/apq/connection"
)

type slot struct {
	conn       *connection.Connection
	idleSince  time.Time
	generation uuid.UUID
}

// Lease is an exclusive, move-only (by convention — callers must not share
// one across goroutines) token wrapping a pool slot plus a non-owning
// back-reference to its Pool.
type Lease struct {
	pool *Pool
	slot *slot
	done bool
}

// Connection borrows the leased Connection.
func (l *Lease) Connection() *connection.Connection {
	return l.slot.conn
}

// UnwrapConnection implements connection.Unwrapper, so connection.Unwrap
// can recurse through a Lease to its underlying *connection.Connection.
func (l *Lease) UnwrapConnection() *connection.Connection {
	return l.slot.conn
}

// Generation is the slot's diagnostic identity, stable across the slot's
// entire idle/leased lifetime (until the underlying Connection is closed
// and replaced by a fresh open).
func (l *Lease) Generation() uuid.UUID {
	return l.slot.generation
}

// Release returns the slot to its Pool: recycled to idle if the Connection
// is still healthy, otherwise discarded and the Pool's capacity freed.
// Idempotent — only the first call has any effect.
func (l *Lease) Release() {
	if l.done {
		return
	}
	l.done = true
	l.pool.release(l.slot)
}
