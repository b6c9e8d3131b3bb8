// File: pool/pool.go
// Author: momentics <momentics@gmail.com>
//
// Pool per spec.md §4.5: idle LIFO stack, bounded FIFO waiters, capacity
// admission, idle eviction, recycling. Grounded on gfx-labs-pggat's
// lib/pool/backend.go (background scale loop, mutex-guarded recipe
// bookkeeping, adapted here to slot bookkeeping) and
// ajitpratap0-nebula/pkg/clients/connection_pool.go (idle eviction sweep,
// ConnectionPoolStats shape). Supplements the distillation with the
// Config/Timeouts split and Stats()/Debug() from
// original_source/include/ozo/connection_pool.h.

package pool

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/elsid/apq/connection"
	"github.com/elsid/apq/control"
	"github.com/elsid/apq/deadline"
	"github.com/elsid/apq/errs"
	"github.com/elsid/apq/reactor"
	"github.com/elsid/apq/source"
)

// Stats is a point-in-time snapshot of Pool occupancy.
type Stats struct {
	Idle    int
	Leased  int
	Opening int
	Waiters int
}

// Pool lends Connections opened by src, bounded by Config/Timeouts. Safe
// for concurrent Get and Lease.Release from multiple goroutines (spec.md
// §5 "Thread safety"): state is guarded by mu, held only for O(1)
// sections; neither src nor any caller callback ever runs while mu is held.
type Pool struct {
	mu sync.Mutex

	src source.Source
	log *zap.Logger

	cfgStore *control.ConfigStore[ConfigSnapshot]
	metrics  *control.MetricsRegistry
	debug    *control.DebugProbes

	capacity       int
	queueCapacity  int
	idleTimeout    time.Duration
	connectTimeout time.Duration
	queueTimeout   time.Duration

	idle    []*slot
	leased  int
	opening int
	waiters *waitQueue

	closed bool

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New constructs a Pool around src, initially empty (spec.md §4.5 "three
// disjoint collections plus counters").
func New(src source.Source, cfg Config, timeouts Timeouts, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{
		src:            src,
		log:            log,
		cfgStore:       control.NewConfigStore(ConfigSnapshot{Config: cfg, Timeouts: timeouts}),
		metrics:        control.NewMetricsRegistry(),
		debug:          control.NewDebugProbes(),
		capacity:       cfg.Capacity,
		queueCapacity:  cfg.QueueCapacity,
		idleTimeout:    timeouts.IdleTimeout,
		connectTimeout: timeouts.ConnectTimeout,
		queueTimeout:   timeouts.QueueTimeout,
		waiters:        newWaitQueue(cfg.QueueCapacity),
	}
	p.publishConfigLocked()
	p.debug.RegisterProbe("pool", func() any { return p.Stats() })
	control.RegisterPlatformProbes(p.debug)
	return p
}

// StartIdleSweep launches an optional background goroutine that evicts
// stale idle slots every interval, adapted from gfx-labs-pggat's
// Backend.scaleLoop. Not started by New: spec.md §4.5 states "no
// background thread is required, but an implementation may add one."
func (p *Pool) StartIdleSweep(interval time.Duration) {
	p.mu.Lock()
	if p.sweepStop != nil {
		p.mu.Unlock()
		return
	}
	p.sweepStop = make(chan struct{})
	p.sweepDone = make(chan struct{})
	stop := p.sweepStop
	done := p.sweepDone
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				p.mu.Lock()
				p.evictIdleLocked()
				p.mu.Unlock()
			}
		}
	}()
}

// StopIdleSweep stops a background sweep started by StartIdleSweep. A
// no-op if none is running.
func (p *Pool) StopIdleSweep() {
	p.mu.Lock()
	stop := p.sweepStop
	done := p.sweepDone
	p.sweepStop = nil
	p.sweepDone = nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Reconfigure updates Config/Timeouts in place, adapted from the teacher's
// control.ConfigStore hot-reload pattern.
func (p *Pool) Reconfigure(cfg Config, timeouts Timeouts) {
	p.mu.Lock()
	p.capacity = cfg.Capacity
	p.queueCapacity = cfg.QueueCapacity
	p.waiters.capacity = cfg.QueueCapacity
	p.idleTimeout = timeouts.IdleTimeout
	p.connectTimeout = timeouts.ConnectTimeout
	p.queueTimeout = timeouts.QueueTimeout
	p.publishConfigLocked()
	p.mu.Unlock()
}

func (p *Pool) publishConfigLocked() {
	p.cfgStore.SetConfig(ConfigSnapshot{
		Config: Config{
			Capacity:      p.capacity,
			QueueCapacity: p.queueCapacity,
		},
		Timeouts: Timeouts{
			IdleTimeout:    p.idleTimeout,
			ConnectTimeout: p.connectTimeout,
			QueueTimeout:   p.queueTimeout,
		},
	})
}

// OnReload registers fn to run, with the new ConfigSnapshot, after every
// Reconfigure.
func (p *Pool) OnReload(fn func(ConfigSnapshot)) {
	p.cfgStore.OnReload(fn)
}

// Debug returns a map of named introspection probes, each timestamped at
// read time. Includes "pool" → Stats() and the platform probes registered
// by control.RegisterPlatformProbes.
func (p *Pool) Debug() map[string]control.Probe {
	return p.debug.DumpState()
}

// Stats snapshots current occupancy, also publishing it to the Pool's
// MetricsRegistry so a caller exporting metrics via control.MetricsRegistry
// elsewhere in the process sees the same numbers Debug()/Stats() report.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{
		Idle:    len(p.idle),
		Leased:  p.leased,
		Opening: p.opening,
		Waiters: p.waiters.len(),
	}
	p.metrics.Set("idle", int64(s.Idle))
	p.metrics.Set("leased", int64(s.Leased))
	p.metrics.Set("opening", int64(s.Opening))
	p.metrics.Set("waiters", int64(s.Waiters))
	return s
}

// Metrics returns the latest published snapshot of pool occupancy metrics.
func (p *Pool) Metrics() map[string]int64 {
	return p.metrics.GetSnapshot()
}

func (p *Pool) sizeLocked() int {
	return len(p.idle) + p.leased + p.opening
}

// evictIdleLocked drops every idle slot whose age has reached idleTimeout
// (spec.md §4.5 step 1, and the boundary behaviour idle_timeout=0 — every
// idle slot is immediately eligible).
func (p *Pool) evictIdleLocked() {
	if p.idleTimeout <= 0 {
		for _, s := range p.idle {
			_ = s.conn.Close()
		}
		p.idle = p.idle[:0]
		return
	}
	now := time.Now()
	kept := p.idle[:0]
	for _, s := range p.idle {
		if now.Sub(s.idleSince) >= p.idleTimeout {
			_ = s.conn.Close()
			continue
		}
		kept = append(kept, s)
	}
	p.idle = kept
}

// Get runs the acquisition algorithm of spec.md §4.5. cb is invoked
// exactly once, dispatched through r.
func (p *Pool) Get(r reactor.Reactor, dl deadline.Deadline, cb func(err *errs.Error, lease *Lease)) {
	p.mu.Lock()
	p.evictIdleLocked()

	for len(p.idle) > 0 {
		s := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if s.conn.IsBad() {
			_ = s.conn.Close()
			continue
		}
		p.leased++
		p.mu.Unlock()
		lease := &Lease{pool: p, slot: s}
		r.Post(func() { cb(nil, lease) })
		return
	}

	if p.sizeLocked() < p.capacity {
		p.opening++
		connectTimeout := p.connectTimeout
		p.mu.Unlock()
		p.openFresh(r, connectTimeout, func(err *errs.Error, s *slot) {
			if err != nil {
				cb(err, nil)
				return
			}
			cb(nil, &Lease{pool: p, slot: s})
		})
		return
	}

	if !p.waiters.full() {
		w := &waiter{cb: cb, r: r}
		p.waiters.push(w)
		queueTimeout := p.queueTimeout
		p.mu.Unlock()

		w.queueTimer = time.AfterFunc(queueTimeout, func() {
			p.onWaiterTimeout(w, errs.New(errs.QueueTimeout, "pool wait queue timeout"))
		})
		if !dl.IsNone() {
			w.stopDeadline = dl.AfterFunc(time.Now(), func() {
				p.onWaiterTimeout(w, errs.New(errs.TimedOut, "deadline expired while queued"))
			})
		}
		return
	}

	p.mu.Unlock()
	r.Post(func() { cb(errs.New(errs.QueueOverflow, "pool wait queue is full"), nil) })
}

// onWaiterTimeout claims and dispatches w with err, unless it has already
// been claimed by pop or by the other timer, and keeps wq.pending
// consistent (spec.md §4.5 cancellation semantics: the waiter is removed
// from the queue, preserving FIFO of the remainder).
func (p *Pool) onWaiterTimeout(w *waiter, err *errs.Error) {
	p.mu.Lock()
	if !w.claim() {
		p.mu.Unlock()
		return
	}
	p.waiters.forget()
	p.mu.Unlock()
	w.dispatch(err, nil)
}

// openFresh invokes src with connectTimeout and wraps a successful result
// in a slot, per spec.md §4.5 step 3. Never called with mu held.
func (p *Pool) openFresh(r reactor.Reactor, connectTimeout time.Duration, done func(err *errs.Error, s *slot)) {
	p.src(r, deadline.After(connectTimeout), func(err *errs.Error, conn *connection.Connection) {
		p.mu.Lock()
		p.opening--
		if err == nil {
			p.leased++
		}
		p.mu.Unlock()
		if err != nil {
			if conn != nil {
				_ = conn.Close()
			}
			done(err, nil)
			return
		}
		done(nil, newSlot(conn))
	})
}

func newSlot(conn *connection.Connection) *slot {
	return &slot{conn: conn, idleSince: time.Now(), generation: conn.ID()}
}

// release implements spec.md §4.5's release algorithm, called by
// Lease.Release.
func (p *Pool) release(s *slot) {
	p.mu.Lock()
	if s.conn.IsBad() {
		_ = s.conn.Close()
		p.leased--
		p.evictIdleLocked()
		p.serveNextWaiterLocked()
		return
	}
	s.idleSince = time.Now()
	p.leased--
	p.idle = append(p.idle, s)
	// Idle eviction runs opportunistically on every get and release
	// (spec.md §4.5), not just on a background timer.
	p.evictIdleLocked()
	p.serveNextWaiterLocked()
}

// serveNextWaiterLocked pops the head waiter (if any) and serves it
// directly from idle, discarding any bad slots found along the way; if
// idle is exhausted before a servable slot is found, it opens a fresh
// Connection on the waiter's behalf instead (spec.md §4.5 release step 3
// and "must succeed unless the connection just went bad ... in which case
// restart"). Always unlocks p.mu before returning.
func (p *Pool) serveNextWaiterLocked() {
	w := p.waiters.pop()
	if w == nil {
		p.mu.Unlock()
		return
	}

	for len(p.idle) > 0 {
		s := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if s.conn.IsBad() {
			_ = s.conn.Close()
			continue
		}
		p.leased++
		p.mu.Unlock()
		w.dispatch(nil, &Lease{pool: p, slot: s})
		return
	}

	p.opening++
	connectTimeout := p.connectTimeout
	p.mu.Unlock()
	p.openFresh(w.r, connectTimeout, func(err *errs.Error, s *slot) {
		if err != nil {
			w.dispatch(err, nil)
			return
		}
		w.dispatch(nil, &Lease{pool: p, slot: s})
	})
}

// Close closes every idle Connection and stops any background sweep.
// Idempotent. Leased Connections are the caller's responsibility; Close
// does not wait for them.
func (p *Pool) Close() error {
	p.StopIdleSweep()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, s := range idle {
		_ = s.conn.Close()
	}
	p.log.Debug("pool closed")
	return nil
}
