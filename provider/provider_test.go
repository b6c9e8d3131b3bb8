package provider_test

import (
	"testing"

	"github.com/elsid/apq/apqtest"
	"github.com/elsid/apq/connection"
	"github.com/elsid/apq/deadline"
	"github.com/elsid/apq/errs"
	"github.com/elsid/apq/pool"
	"github.com/elsid/apq/provider"
	"github.com/elsid/apq/reactor"
	"github.com/elsid/apq/source"
	"github.com/elsid/apq/wire"
)

func newOpenConnection(t *testing.T, r reactor.Reactor, fd int) *connection.Connection {
	t.Helper()
	conn := connection.New(r, nil, nil)
	h := wire.NewTestHandle(fd, wire.ConnInfo{Host: "localhost", Port: "5432", User: "test"})
	if err := conn.Assign(h); err != nil {
		t.Fatalf("assign: %v", err)
	}
	return conn
}

func TestPassThroughClearsErrorContextAndDispatchesViaReactor(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	conn := newOpenConnection(t, fr, 1)
	conn.SetErrorContext("stale error from a prior op")

	p := provider.PassThrough{Conn: conn}
	var got provider.Result
	p.AsyncGet(deadline.None(), func(err *errs.Error, result provider.Result) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = result
	})

	if got == nil || got.UnwrapConnection() != conn {
		t.Fatalf("expected pass-through to yield the same connection")
	}
	if conn.ErrorContext() != "" {
		t.Fatalf("expected error context to be cleared, got %q", conn.ErrorContext())
	}
}

func TestSourceBackedDelegatesToSource(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	var opened *connection.Connection
	src := source.Source(func(r reactor.Reactor, _ deadline.Deadline, done source.Done) {
		opened = newOpenConnection(t, r, 2)
		r.Post(func() { done(nil, opened) })
	})

	p := provider.SourceBacked{Source: src, Reactor: fr}
	var got provider.Result
	p.AsyncGet(deadline.None(), func(err *errs.Error, result provider.Result) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = result
	})

	if got == nil || got.UnwrapConnection() != opened {
		t.Fatalf("expected source-backed provider to yield the opened connection")
	}
}

func TestPoolBackedDelegatesToPool(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	src := source.Source(func(r reactor.Reactor, _ deadline.Deadline, done source.Done) {
		conn := newOpenConnection(t, r, 3)
		r.Post(func() { done(nil, conn) })
	})
	pl := pool.New(src, pool.Config{Capacity: 1, QueueCapacity: 1}, pool.DefaultTimeouts(), nil)

	p := provider.PoolBacked{Pool: pl, Reactor: fr}
	var got provider.Result
	p.AsyncGet(deadline.None(), func(err *errs.Error, result provider.Result) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = result
	})

	if got == nil {
		t.Fatalf("expected a leased connection")
	}
	lease, ok := got.(*pool.Lease)
	if !ok {
		t.Fatalf("expected pool-backed provider to yield a *pool.Lease, got %T", got)
	}
	lease.Release()

	if stats := pl.Stats(); stats.Idle != 1 {
		t.Fatalf("expected the released lease to return to idle, got %+v", stats)
	}
}

func TestPoolBackedPropagatesQueueOverflow(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	src := source.Source(func(r reactor.Reactor, _ deadline.Deadline, done source.Done) {
		conn := newOpenConnection(t, r, 4)
		r.Post(func() { done(nil, conn) })
	})
	pl := pool.New(src, pool.Config{Capacity: 1, QueueCapacity: 0}, pool.DefaultTimeouts(), nil)
	p := provider.PoolBacked{Pool: pl, Reactor: fr}

	p.AsyncGet(deadline.None(), func(*errs.Error, provider.Result) {})

	var gotErr *errs.Error
	p.AsyncGet(deadline.None(), func(err *errs.Error, result provider.Result) {
		gotErr = err
		if result != nil {
			t.Fatalf("expected no result on overflow")
		}
	})
	if gotErr == nil || gotErr.Kind != errs.QueueOverflow {
		t.Fatalf("expected QueueOverflow, got %v", gotErr)
	}
}
