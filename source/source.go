// Package source implements spec.md §4.4: a Source is any value callable
// as (reactor, deadline, continuation) → (), yielding a newly established
// Connection. Grounded on the teacher's client/client.go connect/
// dialAndHandshake shape, adapted from a blocking dial-with-retry to a
// non-blocking, deadline-bounded open.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package source

import (
	"sync"
	"time"

	"github.com/elsid/apq/connection"
	"github.com/elsid/apq/deadline"
	"github.com/elsid/apq/errs"
	"github.com/elsid/apq/pollop"
	"github.com/elsid/apq/reactor"
)

// Done is the completion continuation a Source invokes exactly once.
type Done func(err *errs.Error, conn *connection.Connection)

// Source opens a new Connection asynchronously. On success it invokes
// Done(nil, conn) with conn.IsOpen() && !conn.IsBad(); on failure,
// Done(err, conn') where conn' may be nil or carry a diagnostic error
// context.
type Source func(r reactor.Reactor, dl deadline.Deadline, done Done)

// Static returns the default Source: it holds conninfo and runs ConnectOp
// (pollop.Connect) against a fresh Connection, honouring dl by racing the
// handshake against a deadline timer and completing with TimedOut (and
// cancelling in-flight I/O) if the timer fires first.
func Static(conninfo string) Source {
	return func(r reactor.Reactor, dl deadline.Deadline, done Done) {
		var (
			mu        sync.Mutex
			completed bool
		)
		complete := func(err *errs.Error, conn *connection.Connection) {
			mu.Lock()
			if completed {
				mu.Unlock()
				return
			}
			completed = true
			mu.Unlock()
			done(err, conn)
		}

		var connRef *connection.Connection
		stopTimer := dl.AfterFunc(time.Now(), func() {
			// Claim completed here, synchronously, before calling Cancel:
			// Cancel invokes the handshake's outstanding wait callback
			// with Cancelled, which reaches back into pollop.Connect's
			// done and then complete() on (possibly) another executor
			// worker goroutine. Claiming the flag now, rather than
			// leaving it to a race between two posted closures, is what
			// guarantees the deadline's own TimedOut is what the caller
			// sees (spec.md §4.4), regardless of how the executor
			// schedules the two completions.
			mu.Lock()
			if completed {
				mu.Unlock()
				return
			}
			completed = true
			conn := connRef
			mu.Unlock()
			if conn != nil {
				conn.Cancel()
			}
			r.Post(func() {
				done(errs.New(errs.TimedOut, "source open exceeded deadline"), conn)
			})
		})

		// pollop.Connect returns the Connection synchronously, before the
		// handshake's first wait is armed, so connRef is visible to the
		// deadline timer above for the entire time the handshake can
		// possibly be outstanding, not just after it has already
		// finished.
		conn := pollop.Connect(conninfo, r, func(err *errs.Error, conn *connection.Connection) {
			stopTimer()
			complete(err, conn)
		})
		mu.Lock()
		connRef = conn
		mu.Unlock()
	}
}

// WithRetry wraps inner with dial-style retry/backoff, adapted from
// client/client.go's dialAndHandshake reconnect loop. Not applied by
// default anywhere in this module: spec.md §7 states "Nothing is retried
// by the core" — retrying is a higher-layer decision a caller opts into
// explicitly by wrapping its Source with this decorator.
func WithRetry(inner Source, maxAttempts int, backoff time.Duration) Source {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return func(r reactor.Reactor, dl deadline.Deadline, done Done) {
		attempt(inner, r, dl, done, 1, maxAttempts, backoff)
	}
}

func attempt(inner Source, r reactor.Reactor, dl deadline.Deadline, done Done, n, maxAttempts int, backoff time.Duration) {
	inner(r, dl, func(err *errs.Error, conn *connection.Connection) {
		if err == nil || n >= maxAttempts {
			done(err, conn)
			return
		}
		if conn != nil {
			_ = conn.Close()
		}
		time.AfterFunc(backoff, func() {
			attempt(inner, r, dl, done, n+1, maxAttempts, backoff)
		})
	})
}
