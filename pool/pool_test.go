package pool_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elsid/apq/apqtest"
	"github.com/elsid/apq/connection"
	"github.com/elsid/apq/deadline"
	"github.com/elsid/apq/errs"
	"github.com/elsid/apq/pool"
	"github.com/elsid/apq/reactor"
	"github.com/elsid/apq/source"
	"github.com/elsid/apq/wire"
)

var fdSeq atomic.Int64

func fakeSource() source.Source {
	return func(r reactor.Reactor, _ deadline.Deadline, done source.Done) {
		conn := connection.New(r, nil, nil)
		fd := int(fdSeq.Add(1))
		h := wire.NewTestHandle(fd, wire.ConnInfo{Host: "localhost", Port: "5432", User: "test"})
		if err := conn.Assign(h); err != nil {
			done(err, nil)
			return
		}
		r.Post(func() { done(nil, conn) })
	}
}

func failingSource(kind errs.Kind) source.Source {
	return func(r reactor.Reactor, _ deadline.Deadline, done source.Done) {
		r.Post(func() { done(errs.New(kind, "simulated open failure"), nil) })
	}
}

func TestGetReleaseRecyclesConnection(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	p := pool.New(fakeSource(), pool.Config{Capacity: 1, QueueCapacity: 1}, pool.DefaultTimeouts(), nil)

	var lease1 *pool.Lease
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lease1 = l
	})
	if lease1 == nil {
		t.Fatalf("expected a lease")
	}
	firstConn := lease1.Connection()
	lease1.Release()

	if stats := p.Stats(); stats.Idle != 1 || stats.Leased != 0 {
		t.Fatalf("expected 1 idle, 0 leased after release, got %+v", stats)
	}

	var lease2 *pool.Lease
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lease2 = l
	})
	if lease2 == nil || lease2.Connection() != firstConn {
		t.Fatalf("expected the idle connection to be reused")
	}
}

func TestGetPropagatesSourceFailure(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	p := pool.New(failingSource(errs.ConnectionStartFailed), pool.Config{Capacity: 1, QueueCapacity: 1}, pool.DefaultTimeouts(), nil)

	var gotErr *errs.Error
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) {
		gotErr = err
		if l != nil {
			t.Fatalf("expected no lease on failure")
		}
	})
	if gotErr == nil || gotErr.Kind != errs.ConnectionStartFailed {
		t.Fatalf("expected ConnectionStartFailed, got %v", gotErr)
	}
	if stats := p.Stats(); stats.Opening != 0 {
		t.Fatalf("expected opening to be decremented back to 0, got %+v", stats)
	}
}

func TestQueueOverflowWhenQueueCapacityIsZero(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	p := pool.New(fakeSource(), pool.Config{Capacity: 1, QueueCapacity: 0}, pool.DefaultTimeouts(), nil)

	var lease *pool.Lease
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) { lease = l })
	if lease == nil {
		t.Fatalf("expected first get to succeed")
	}

	var gotErr *errs.Error
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) { gotErr = err })
	if gotErr == nil || gotErr.Kind != errs.QueueOverflow {
		t.Fatalf("expected QueueOverflow, got %v", gotErr)
	}
}

func TestCapacityZeroAlwaysOverflows(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	p := pool.New(fakeSource(), pool.Config{Capacity: 0, QueueCapacity: 0}, pool.DefaultTimeouts(), nil)

	var gotErr *errs.Error
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) { gotErr = err })
	if gotErr == nil || gotErr.Kind != errs.QueueOverflow {
		t.Fatalf("expected QueueOverflow with zero capacity, got %v", gotErr)
	}
}

func TestFIFOOrderingOfWaiters(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	p := pool.New(fakeSource(), pool.Config{Capacity: 1, QueueCapacity: 2}, pool.DefaultTimeouts(), nil)

	var lease0 *pool.Lease
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) { lease0 = l })
	if lease0 == nil {
		t.Fatalf("expected the first get to succeed immediately")
	}

	var order []string
	var mu sync.Mutex
	var leaseA, leaseB *pool.Lease

	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) {
		mu.Lock()
		order = append(order, "A")
		mu.Unlock()
		leaseA = l
	})
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) {
		mu.Lock()
		order = append(order, "B")
		mu.Unlock()
		leaseB = l
	})

	if stats := p.Stats(); stats.Waiters != 2 {
		t.Fatalf("expected 2 waiters queued, got %+v", stats)
	}

	lease0.Release()
	if leaseA == nil {
		t.Fatalf("expected waiter A to be served by the first release")
	}
	leaseA.Release()
	if leaseB == nil {
		t.Fatalf("expected waiter B to be served by the second release")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Fatalf("expected FIFO order [A B], got %v", order)
	}
}

func TestQueueTimeoutFiresThenNextReleaseStillServesWaiter(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	timeouts := pool.DefaultTimeouts()
	timeouts.QueueTimeout = 5 * time.Millisecond
	p := pool.New(fakeSource(), pool.Config{Capacity: 1, QueueCapacity: 2}, timeouts, nil)

	var lease0 *pool.Lease
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) { lease0 = l })
	if lease0 == nil {
		t.Fatalf("expected first get to succeed")
	}

	timedOut := make(chan *errs.Error, 1)
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) {
		timedOut <- err
	})

	select {
	case err := <-timedOut:
		if err == nil || err.Kind != errs.QueueTimeout {
			t.Fatalf("expected QueueTimeout, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for QueueTimeout to fire")
	}

	var lease2 *pool.Lease
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) { lease2 = l })

	lease0.Release()
	if lease2 == nil {
		t.Fatalf("expected the queued waiter to be served after the timed-out one was skipped")
	}
}

func TestBadConnectionIsDiscardedNotReused(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	p := pool.New(fakeSource(), pool.Config{Capacity: 1, QueueCapacity: 1}, pool.DefaultTimeouts(), nil)

	var lease *pool.Lease
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) { lease = l })
	if lease == nil {
		t.Fatalf("expected a lease")
	}
	bad := wire.NewTestHandleBad(999, wire.ConnInfo{Host: "localhost", Port: "5432", User: "test"}, "fatal")
	if err := lease.Connection().Assign(bad); err != nil {
		t.Fatalf("assign bad handle: %v", err)
	}
	lease.Release()

	if stats := p.Stats(); stats.Idle != 0 || stats.Leased != 0 {
		t.Fatalf("expected the bad connection to be discarded, got %+v", stats)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	p := pool.New(fakeSource(), pool.Config{Capacity: 1, QueueCapacity: 1}, pool.DefaultTimeouts(), nil)

	var lease *pool.Lease
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) { lease = l })
	lease.Release()

	if err := p.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestIdleTimeoutZeroForcesFreshOpenEveryGet(t *testing.T) {
	fr := apqtest.NewFakeReactor()
	timeouts := pool.DefaultTimeouts()
	timeouts.IdleTimeout = 0
	p := pool.New(fakeSource(), pool.Config{Capacity: 2, QueueCapacity: 1}, timeouts, nil)

	var lease1 *pool.Lease
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) { lease1 = l })
	firstConn := lease1.Connection()
	lease1.Release()

	if stats := p.Stats(); stats.Idle != 0 {
		t.Fatalf("expected idle_timeout=0 to evict the released connection immediately, got %+v", stats)
	}

	var lease2 *pool.Lease
	p.Get(fr, deadline.None(), func(err *errs.Error, l *pool.Lease) { lease2 = l })
	if lease2 == nil || lease2.Connection() == firstConn {
		t.Fatalf("expected a freshly opened connection, not the evicted one")
	}
}
