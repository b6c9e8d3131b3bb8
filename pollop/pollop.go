// Package pollop implements the generic readiness-driven poll loop of
// spec.md §4.2: repeatedly invoke a step function, wait for the readiness
// direction it requests, and loop until Ok or failure. Grounded on the
// teacher's core/concurrency/eventloop.go post-to-reactor dispatch shape
// and adapters/poller_adapter.go's bridge pattern.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package pollop

import (
	"github.com/elsid/apq/connection"
	"github.com/elsid/apq/errs"
)

// Outcome is the result of one Step call.
type Outcome int

const (
	Writing Outcome = iota
	Reading
	Ok
	Failed
)

// Step advances the underlying protocol by one action and reports which
// readiness direction (if any) the caller must wait for next, or a
// terminal outcome (Ok/Failed). A non-nil error accompanies Failed.
type Step func() (Outcome, *errs.Error)

// Done is the completion continuation, always invoked via the Connection's
// reactor — never inline from a waker (spec.md §4.2 point 3).
type Done func(err *errs.Error, conn *connection.Connection)

// Run drives step to completion against conn, dispatching done exactly
// once. If conn is already Bad at entry, completes immediately with
// ConnectionStatusBad (spec.md §4.2 point 4).
func Run(conn *connection.Connection, step Step, done Done) {
	if conn.IsBad() {
		err := errs.New(errs.ConnectionStatusBad, "connection is bad at poll entry")
		setErrorContext(conn, err)
		post(conn, done, err, conn)
		return
	}
	runStep(conn, step, done)
}

func runStep(conn *connection.Connection, step Step, done Done) {
	outcome, err := step()
	switch outcome {
	case Ok:
		post(conn, done, nil, conn)
	case Failed:
		if err == nil {
			err = errs.New(errs.ConnectPollFailed, "step failed with no error detail")
		}
		setErrorContext(conn, err)
		post(conn, done, err, conn)
	case Writing:
		waitErr := conn.AsyncWaitWrite(func(werr *errs.Error) {
			onWaitResolved(conn, step, done, werr)
		})
		if waitErr != nil {
			setErrorContext(conn, waitErr)
			post(conn, done, waitErr, conn)
		}
	case Reading:
		waitErr := conn.AsyncWaitRead(func(werr *errs.Error) {
			onWaitResolved(conn, step, done, werr)
		})
		if waitErr != nil {
			setErrorContext(conn, waitErr)
			post(conn, done, waitErr, conn)
		}
	}
}

func onWaitResolved(conn *connection.Connection, step Step, done Done, waitErr *errs.Error) {
	if waitErr != nil {
		setErrorContext(conn, waitErr)
		post(conn, done, waitErr, conn)
		return
	}
	runStep(conn, step, done)
}

// setErrorContext mirrors the failure onto conn's error-context string
// (spec.md §3/§4.1/§7): prefers the protocol driver's own narrative
// (NativeHandle.ErrorMessage) when one is available, falling back to the
// *errs.Error's own message.
func setErrorContext(conn *connection.Connection, err *errs.Error) {
	if err == nil {
		return
	}
	if h := conn.NativeHandle(); h != nil && h.ErrorMessage() != "" {
		conn.SetErrorContext(h.ErrorMessage())
		return
	}
	conn.SetErrorContext(err.Error())
}

// post dispatches done via conn's reactor, so the caller's continuation
// never runs inline from the waker.
func post(conn *connection.Connection, done Done, err *errs.Error, result *connection.Connection) {
	conn.Executor().Post(func() {
		done(err, result)
	})
}
