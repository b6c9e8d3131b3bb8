// File: pollop/connect.go
// Author: momentics <momentics@gmail.com>
//
// Connect specializes Run around the startup handshake (spec.md §4.3):
// start_connection, then assign_socket, then the connect_poll loop.

package pollop

import (
	"github.com/elsid/apq/connection"
	"github.com/elsid/apq/errs"
	"github.com/elsid/apq/reactor"
	"github.com/elsid/apq/wire"
)

// Connect opens conninfo against a fresh *connection.Connection bound to r,
// completing done with (nil, conn) on success or (err, conn) on failure.
// Failures at start_connection or assign_socket complete immediately,
// posted to the reactor, with ConnectionStartFailed or AssignSocketFailed
// respectively (spec.md §4.3).
//
// Connect returns the same *connection.Connection synchronously, before
// done has necessarily run: every step up to arming the first reactor
// watch (New, start_connection, assign_socket, Run's first poll step) is
// synchronous Go, so a caller racing the handshake against a deadline
// (source.Static) can capture the in-progress Connection immediately and
// is guaranteed to have it in hand before any wait that could outlast the
// deadline is armed.
func Connect(conninfo string, r reactor.Reactor, done Done) *connection.Connection {
	conn := connection.New(r, nil, nil)

	handle, startErr := wire.StartConnection(conninfo)
	if startErr != nil {
		conn.SetErrorContext(startErr.Error())
		r.Post(func() { done(startErr, conn) })
		return conn
	}

	if assignErr := conn.Assign(handle); assignErr != nil {
		setErrorContext(conn, assignErr)
		r.Post(func() { done(assignErr, conn) })
		return conn
	}

	Run(conn, connectStep(handle), done)
	return conn
}

// connectStep adapts wire.NativeHandle.ConnectPoll to the pollop.Step
// contract. PollActive is treated as failure per spec.md §4.2's
// open-question resolution: the library does not busy-spin.
func connectStep(handle *wire.NativeHandle) Step {
	return func() (Outcome, *errs.Error) {
		status, err := handle.ConnectPoll()
		switch status {
		case wire.PollWriting:
			return Writing, nil
		case wire.PollReading:
			return Reading, nil
		case wire.PollOk:
			return Ok, nil
		case wire.PollActive:
			return Failed, errs.New(errs.ConnectPollFailed, "connect_poll reported Active; busy-spin is not supported")
		default:
			return Failed, err
		}
	}
}
