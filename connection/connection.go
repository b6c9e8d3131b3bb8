// File: connection/connection.go
// Author: momentics <momentics@gmail.com>
//
// Connection binds a wire.NativeHandle to a reactor.Reactor, per spec.md
// §3/§4.1. Grounded on original_source/include/ozo/connection.h's
// Connection concept (native_handle/oid_map/error_context/executor/
// rebind_executor/assign/release/async_wait_*/close/cancel) and the
// teacher's pool/conn.go mutex-guarded wrapper-around-a-fd shape.

package connection

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elsid/apq/errs"
	"github.com/elsid/apq/reactor"
	"github.com/elsid/apq/wire"
)

// Connection binds a NativeHandle to a reactor, carries an OID map and an
// error-context string, and exposes one-shot readiness-wait primitives.
// Not safe for concurrent use from multiple goroutines; distinct
// Connections are independent (spec.md §5 "Thread safety").
type Connection struct {
	id      uuid.UUID
	handle  *wire.NativeHandle
	reactor reactor.Reactor
	oidMap  OIDMap
	errCtx  string
	stats   Statistics
	log     *zap.Logger

	readWaiting  bool
	writeWaiting bool
	readCB       func(*errs.Error)
	writeCB      func(*errs.Error)
}

// New constructs an empty Connection (no handle) bound to r. Per spec.md
// §3 lifecycle: "constructed empty (no handle) bound to a reactor".
func New(r reactor.Reactor, log *zap.Logger, stats Statistics) *Connection {
	if stats == nil {
		stats = NoStatistics{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.New()
	return &Connection{
		id:      id,
		reactor: r,
		stats:   stats,
		log:     log.With(zap.String("connection_id", id.String())),
	}
}

// ID is a diagnostic identifier, useful for logging and metrics labels.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

// NativeHandle borrows the raw descriptor. Must not outlive the Connection.
func (c *Connection) NativeHandle() *wire.NativeHandle {
	return c.handle
}

// OIDMap borrows the OID map.
func (c *Connection) OIDMap() *OIDMap {
	return &c.oidMap
}

// ErrorContext returns the last-error context string.
func (c *Connection) ErrorContext() string {
	return c.errCtx
}

// SetErrorContext sets the last-error context string; "" clears it.
func (c *Connection) SetErrorContext(s string) {
	c.errCtx = s
}

// Executor returns the bound reactor.
func (c *Connection) Executor() reactor.Reactor {
	return c.reactor
}

// Host, Port, Database, and User forward the conninfo values captured by
// the bound NativeHandle at StartConnection time, for logging and metrics
// labels (the accessor supplement of SPEC_FULL.md §5). Each returns "" if
// no handle is bound.
func (c *Connection) Host() string {
	if c.handle == nil {
		return ""
	}
	return c.handle.Host()
}

func (c *Connection) Port() string {
	if c.handle == nil {
		return ""
	}
	return c.handle.Port()
}

func (c *Connection) Database() string {
	if c.handle == nil {
		return ""
	}
	return c.handle.Database()
}

func (c *Connection) User() string {
	if c.handle == nil {
		return ""
	}
	return c.handle.User()
}

// IsOpen reports handle ≠ null.
func (c *Connection) IsOpen() bool {
	return c.handle != nil && !c.handle.IsNull()
}

// IsBad reports whether the protocol considers the connection unusable.
// is_bad ⇒ ¬ready_for_ops; ¬is_bad ⇒ is_open (spec.md §3 invariants): a
// Connection with no open handle is bad.
func (c *Connection) IsBad() bool {
	return !c.IsOpen() || c.handle.Status() == wire.StatusBad
}

// busy reports whether any wait is currently outstanding.
func (c *Connection) busy() bool {
	return c.readWaiting || c.writeWaiting
}

// RebindExecutor swaps the bound reactor. Fails with BusyConnection if any
// wait is outstanding (spec.md §4.1, §9 Open Question: enforced via a
// runtime check, not a type-level guard).
func (c *Connection) RebindExecutor(r reactor.Reactor) *errs.Error {
	if c.busy() {
		return errs.New(errs.BusyConnection, "rebind_executor called with outstanding waits")
	}
	c.reactor = r
	return nil
}

// Assign replaces the current NativeHandle after obtaining its fd via
// AssignSocket. Fails with BusyConnection if waits are outstanding, or
// AssignSocketFailed if the handle has no socket. The fd is registered
// with the reactor by the first AsyncWaitRead/AsyncWaitWrite, whose
// registration failure also surfaces as AssignSocketFailed.
func (c *Connection) Assign(h *wire.NativeHandle) *errs.Error {
	if c.busy() {
		return errs.New(errs.BusyConnection, "assign called with outstanding waits")
	}
	fd, aerr := h.AssignSocket()
	if aerr != nil {
		return aerr
	}
	// Registration with the reactor happens implicitly on the first
	// WatchRead/WatchWrite call; AssignSocket having returned a usable fd
	// is sufficient here.
	_ = fd
	c.handle = h
	return nil
}

// Release detaches the NativeHandle without closing it, cancelling all
// outstanding waits (each completes with Cancelled). Post-condition:
// IsOpen() == false.
func (c *Connection) Release() *wire.NativeHandle {
	c.Cancel()
	h := c.handle
	c.handle = nil
	return h
}

// Close cancels all waits and drops the handle. Idempotent.
func (c *Connection) Close() error {
	c.Cancel()
	if c.handle == nil {
		return nil
	}
	h := c.handle
	c.handle = nil
	c.log.Debug("connection closed")
	return h.Close()
}

// Cancel cancels all outstanding waits but keeps the handle. Each cancelled
// wait's callback is invoked with errs.Cancelled (spec.md §3 "cancellation
// completes every outstanding wait with a cancellation error before
// returning"): the reactor's CancelRead/CancelWrite only disarm the watch,
// they never fire the registered callback themselves, so Connection must.
func (c *Connection) Cancel() {
	if c.handle == nil {
		return
	}
	fd := uintptr(c.handle.Fd())
	if c.readWaiting {
		_ = c.reactor.CancelRead(fd)
		c.readWaiting = false
		cb := c.readCB
		c.readCB = nil
		if cb != nil {
			cb(errs.New(errs.Cancelled, "async_wait_read cancelled"))
		}
	}
	if c.writeWaiting {
		_ = c.reactor.CancelWrite(fd)
		c.writeWaiting = false
		cb := c.writeCB
		c.writeCB = nil
		if cb != nil {
			cb(errs.New(errs.Cancelled, "async_wait_write cancelled"))
		}
	}
}

// AsyncWaitRead registers a one-shot read-readiness callback. Concurrent
// duplicate registration for the same direction is a programming error.
func (c *Connection) AsyncWaitRead(cb func(*errs.Error)) *errs.Error {
	if c.readWaiting {
		return errs.New(errs.BusyConnection, "duplicate async_wait_read")
	}
	c.readWaiting = true
	c.readCB = cb
	fd := uintptr(c.handle.Fd())
	return wrapWatchErr(c.reactor.WatchRead(fd, func(_ uintptr, events reactor.FDEventType) {
		c.readWaiting = false
		c.readCB = nil
		cb(eventToErr(events))
	}))
}

// AsyncWaitWrite registers a one-shot write-readiness callback.
func (c *Connection) AsyncWaitWrite(cb func(*errs.Error)) *errs.Error {
	if c.writeWaiting {
		return errs.New(errs.BusyConnection, "duplicate async_wait_write")
	}
	c.writeWaiting = true
	c.writeCB = cb
	fd := uintptr(c.handle.Fd())
	return wrapWatchErr(c.reactor.WatchWrite(fd, func(_ uintptr, events reactor.FDEventType) {
		c.writeWaiting = false
		c.writeCB = nil
		cb(eventToErr(events))
	}))
}

func eventToErr(events reactor.FDEventType) *errs.Error {
	if events&reactor.EventError != 0 {
		return errs.New(errs.Io, "socket reported an error condition")
	}
	return nil
}

func wrapWatchErr(err error) *errs.Error {
	if err == nil {
		return nil
	}
	return errs.Wrap(err, errs.AssignSocketFailed, "reactor watch")
}

// Unwrapper is implemented by types that wrap a Connection, e.g. a Lease.
// Mirrors ozo::unwrap_connection's recursive unwrap contract.
type Unwrapper interface {
	UnwrapConnection() *Connection
}

// Unwrap follows UnwrapConnection until it reaches a concrete *Connection.
func Unwrap(v any) *Connection {
	for {
		switch t := v.(type) {
		case *Connection:
			return t
		case Unwrapper:
			v = t.UnwrapConnection()
		default:
			return nil
		}
	}
}

// UnwrapConnection implements Unwrapper, making *Connection itself a valid
// argument to Unwrap.
func (c *Connection) UnwrapConnection() *Connection {
	return c
}

// DeferClose returns a scope guard that closes conn on invocation unless
// Disarm has been called, guaranteeing a Connection is closed on any exit
// path (spec.md §5 "Resource discipline").
type DeferClose struct {
	conn     *Connection
	disarmed bool
}

// NewDeferClose arms a guard over conn.
func NewDeferClose(conn *Connection) *DeferClose {
	return &DeferClose{conn: conn}
}

// Disarm prevents the guard's eventual Run from closing the Connection.
func (d *DeferClose) Disarm() {
	d.disarmed = true
}

// Run closes the guarded Connection unless Disarm was called. Intended for
// `defer guard.Run()`.
func (d *DeferClose) Run() {
	if d.disarmed || d.conn == nil {
		return
	}
	_ = d.conn.Close()
}
