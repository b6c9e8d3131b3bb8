// File: pool/waitqueue.go
// Author: momentics <momentics@gmail.com>
//
// Bounded FIFO waiter queue, backed by github.com/eapache/queue's ring
// buffer (already a declared dependency of the teacher's go.mod, unused by
// name in spec.md's domain until now). eapache/queue has no indexed
// removal, so a waiter whose deadline or queue_timeout fires before it is
// served is marked served in place rather than physically dequeued; pop
// skips over served entries, which preserves FIFO order of the remainder
// exactly as spec.md §4.5's cancellation semantics require.

package pool

import (
	"time"

	"github.com/eapache/queue"

	"github.com/elsid/apq/errs"
	"github.com/elsid/apq/reactor"
)

// waiter is a queued caller of Pool.Get, served either with a Lease or an
// error. served is the single source of truth for "has this waiter been
// claimed by exactly one of {queue timeout, deadline timeout, pop}"; every
// read or write of it happens while the owning Pool's mu is held, so
// claiming is race-free even though the eventual dispatch happens after mu
// is released.
type waiter struct {
	cb           func(err *errs.Error, lease *Lease)
	r            reactor.Reactor
	served       bool
	queueTimer   *time.Timer
	stopDeadline func() bool
}

// claim marks w served, returning false if some other path already
// claimed it first. Must be called with the owning Pool's mu held.
func (w *waiter) claim() bool {
	if w.served {
		return false
	}
	w.served = true
	return true
}

// dispatch disarms any still-pending timers and posts cb through r. Must
// only be called on a waiter this goroutine has exclusively claimed, and
// must not be called while the owning Pool's mu is held (r.Post may run
// the callback synchronously, e.g. apqtest.FakeReactor).
func (w *waiter) dispatch(err *errs.Error, lease *Lease) {
	if w.queueTimer != nil {
		w.queueTimer.Stop()
	}
	if w.stopDeadline != nil {
		w.stopDeadline()
	}
	cb, r := w.cb, w.r
	r.Post(func() {
		cb(err, lease)
	})
}

type waitQueue struct {
	q        *queue.Queue
	capacity int
	pending  int
}

func newWaitQueue(capacity int) *waitQueue {
	return &waitQueue{q: queue.New(), capacity: capacity}
}

func (wq *waitQueue) len() int {
	return wq.pending
}

func (wq *waitQueue) full() bool {
	return wq.pending >= wq.capacity
}

func (wq *waitQueue) push(w *waiter) {
	wq.q.Add(w)
	wq.pending++
}

// pop removes and claims the next unserved waiter in FIFO order, silently
// discarding any already-claimed (timed out) entries it passes over. The
// returned waiter, if any, is claimed (served == true) before pop returns,
// so it can safely be dispatched without re-checking for a timeout race.
// Must be called with the owning Pool's mu held.
func (wq *waitQueue) pop() *waiter {
	for wq.q.Length() > 0 {
		w := wq.q.Remove().(*waiter)
		if !w.claim() {
			continue
		}
		wq.pending--
		return w
	}
	return nil
}

// forget decrements the logical pending count for a waiter claimed by a
// timeout path rather than by pop. Must be called with the owning Pool's
// mu held, after a successful w.claim().
func (wq *waitQueue) forget() {
	wq.pending--
}
