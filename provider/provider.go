// Package provider implements spec.md §4.6: a Provider exposes a single
// async_get(deadline, cb) operation yielding either a bare Connection or a
// pool.Lease. Grounded on original_source/include/ozo/connection.h's
// forward_connection/async_get_connection_impl adapter pattern and the
// teacher's adapters/*.go "adapter over a concrete subsystem" shape.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package provider

import (
	"github.com/elsid/apq/connection"
	"github.com/elsid/apq/deadline"
	"github.com/elsid/apq/errs"
	"github.com/elsid/apq/pool"
	"github.com/elsid/apq/reactor"
	"github.com/elsid/apq/source"
)

// Result is whatever a Provider hands back on success: either a bare
// Connection (pass-through, source-backed) or a pool.Lease (pool-backed).
// Both satisfy connection.Unwrapper, so callers can always reach the
// underlying *connection.Connection via connection.Unwrap.
type Result interface {
	connection.Unwrapper
}

// Done is the completion continuation a Provider invokes exactly once.
type Done func(err *errs.Error, result Result)

// Provider exposes a single operation: AsyncGet.
type Provider interface {
	AsyncGet(dl deadline.Deadline, done Done)
}

// PassThrough adapts an already-held Connection into a Provider that
// returns itself. Before completion it clears the Connection's error
// context and dispatches via the Connection's own reactor (spec.md §4.6).
type PassThrough struct {
	Conn *connection.Connection
}

// AsyncGet implements Provider.
func (p PassThrough) AsyncGet(_ deadline.Deadline, done Done) {
	p.Conn.SetErrorContext("")
	p.Conn.Executor().Post(func() {
		done(nil, p.Conn)
	})
}

// SourceBacked adapts a Source plus a reactor into a Provider: every
// AsyncGet opens a fresh Connection.
type SourceBacked struct {
	Source  source.Source
	Reactor reactor.Reactor
}

// AsyncGet implements Provider.
func (s SourceBacked) AsyncGet(dl deadline.Deadline, done Done) {
	s.Source(s.Reactor, dl, func(err *errs.Error, conn *connection.Connection) {
		if err != nil {
			if conn == nil {
				done(err, nil)
				return
			}
			done(err, conn)
			return
		}
		done(nil, conn)
	})
}

// PoolBacked adapts a Pool plus a reactor into a Provider: every AsyncGet
// leases a Connection from the Pool.
type PoolBacked struct {
	Pool    *pool.Pool
	Reactor reactor.Reactor
}

// AsyncGet implements Provider.
func (p PoolBacked) AsyncGet(dl deadline.Deadline, done Done) {
	p.Pool.Get(p.Reactor, dl, func(err *errs.Error, lease *pool.Lease) {
		if err != nil {
			done(err, nil)
			return
		}
		done(nil, lease)
	})
}
