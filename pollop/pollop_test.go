package pollop_test

import (
	"testing"

	"github.com/elsid/apq/apqtest"
	"github.com/elsid/apq/connection"
	"github.com/elsid/apq/errs"
	"github.com/elsid/apq/pollop"
	"github.com/elsid/apq/reactor"
	"github.com/elsid/apq/wire"
)

func newTestConnection(r reactor.Reactor) *connection.Connection {
	conn := connection.New(r, nil, nil)
	handle := wire.NewTestHandle(0, wire.ConnInfo{Host: "localhost", Port: "5432", User: "test"})
	if err := conn.Assign(handle); err != nil {
		panic(err)
	}
	return conn
}

// scriptedSteps replays a fixed sequence of step outcomes, repeating the
// last one once the script is exhausted.
type scriptedSteps struct {
	outcomes []pollop.Outcome
	errs     []*errs.Error
	i        int
}

func (s *scriptedSteps) step() (pollop.Outcome, *errs.Error) {
	o := s.outcomes[s.i]
	e := s.errs[s.i]
	if s.i < len(s.outcomes)-1 {
		s.i++
	}
	return o, e
}

func TestRunSuccessAfterWriteReady(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	conn := newTestConnection(fr)

	script := &scriptedSteps{
		outcomes: []pollop.Outcome{pollop.Writing, pollop.Ok},
		errs:     []*errs.Error{nil, nil},
	}

	var gotErr *errs.Error
	var done bool
	pollop.Run(conn, script.step, func(err *errs.Error, _ *connection.Connection) {
		gotErr = err
		done = true
	})

	if done {
		t.Fatalf("completed before write-ready fired")
	}
	if !fr.HasWrite(0) {
		t.Fatalf("expected a write watch to be armed")
	}
	fr.FireWrite(0, reactor.EventWrite)

	if !done {
		t.Fatalf("expected completion after write-ready fired")
	}
	if gotErr != nil {
		t.Fatalf("unexpected error: %v", gotErr)
	}
}

func TestRunPollFailure(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	conn := newTestConnection(fr)

	script := &scriptedSteps{
		outcomes: []pollop.Outcome{pollop.Failed},
		errs:     []*errs.Error{errs.New(errs.ConnectPollFailed, "boom")},
	}

	var gotErr *errs.Error
	pollop.Run(conn, script.step, func(err *errs.Error, _ *connection.Connection) {
		gotErr = err
	})

	if gotErr == nil || gotErr.Kind != errs.ConnectPollFailed {
		t.Fatalf("expected ConnectPollFailed, got %v", gotErr)
	}
}

func TestRunBadConnectionAtEntry(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	conn := connection.New(fr, nil, nil)
	bad := wire.NewTestHandleBad(0, wire.ConnInfo{Host: "localhost", Port: "5432", User: "test"}, "previous fatal error")
	if err := conn.Assign(bad); err != nil {
		t.Fatalf("assign: %v", err)
	}

	var gotErr *errs.Error
	var stepCalled bool
	pollop.Run(conn, func() (pollop.Outcome, *errs.Error) {
		stepCalled = true
		return pollop.Ok, nil
	}, func(err *errs.Error, _ *connection.Connection) {
		gotErr = err
	})
	if stepCalled {
		t.Fatalf("step must not run when the connection is bad at entry")
	}
	if gotErr == nil || gotErr.Kind != errs.ConnectionStatusBad {
		t.Fatalf("expected ConnectionStatusBad, got %v", gotErr)
	}
}
