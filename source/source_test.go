package source_test

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/elsid/apq/apqtest"
	"github.com/elsid/apq/connection"
	"github.com/elsid/apq/deadline"
	"github.com/elsid/apq/errs"
	"github.com/elsid/apq/reactor"
	"github.com/elsid/apq/source"
)

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	fr := apqtest.NewFakeReactor()

	var mu sync.Mutex
	attempts := 0
	inner := source.Source(func(_ reactor.Reactor, _ deadline.Deadline, done source.Done) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			done(errs.New(errs.ConnectionStartFailed, "simulated failure"), nil)
			return
		}
		done(nil, connection.New(fr, nil, nil))
	})

	retrying := source.WithRetry(inner, 5, time.Millisecond)

	done := make(chan struct{})
	var gotErr *errs.Error
	retrying(fr, deadline.None(), func(err *errs.Error, _ *connection.Connection) {
		gotErr = err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for retry to complete")
	}

	if gotErr != nil {
		t.Fatalf("expected eventual success, got %v", gotErr)
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	fr := apqtest.NewFakeReactor()

	inner := source.Source(func(_ reactor.Reactor, _ deadline.Deadline, done source.Done) {
		done(errs.New(errs.ConnectionStartFailed, "always fails"), nil)
	})
	retrying := source.WithRetry(inner, 2, time.Millisecond)

	done := make(chan struct{})
	var gotErr *errs.Error
	retrying(fr, deadline.None(), func(err *errs.Error, _ *connection.Connection) {
		gotErr = err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for retry to give up")
	}

	if gotErr == nil || gotErr.Kind != errs.ConnectionStartFailed {
		t.Fatalf("expected ConnectionStartFailed after exhausting retries, got %v", gotErr)
	}
}

// TestStaticCancelsOutstandingConnectionWhenDeadlineFires drives Static
// against a real (but never-answered) TCP listener so start_connection
// genuinely succeeds and connect_poll's first step arms a write watch, then
// holds that watch stalled on a FakeReactor (never firing it) until the
// deadline elapses. It asserts the deadline both produces TimedOut and
// actually cancels the outstanding wait, rather than leaking it.
func TestStaticCancelsOutstandingConnectionWhenDeadlineFires(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()
	t.Cleanup(func() {
		select {
		case c := <-accepted:
			_ = c.Close()
		default:
		}
	})

	addr := ln.Addr().(*net.TCPAddr)
	conninfo := fmt.Sprintf("host=127.0.0.1 port=%d user=test", addr.Port)

	fr := apqtest.NewFakeReactor()
	src := source.Static(conninfo)

	done := make(chan struct{})
	var gotErr *errs.Error
	var gotConn *connection.Connection
	src(fr, deadline.After(5*time.Millisecond), func(err *errs.Error, conn *connection.Connection) {
		gotErr = err
		gotConn = conn
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Static to honour its deadline")
	}

	if gotErr == nil || gotErr.Kind != errs.TimedOut {
		t.Fatalf("expected TimedOut, got %v", gotErr)
	}
	if gotConn == nil {
		t.Fatalf("expected the in-progress connection back so the caller can close it")
	}
	fd := uintptr(gotConn.NativeHandle().Fd())
	if fr.HasWrite(fd) || fr.HasRead(fd) {
		t.Fatalf("expected the deadline to have cancelled the outstanding wait")
	}
	if err := gotConn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
