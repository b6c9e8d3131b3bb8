// Package apqtest provides test doubles shared by the wire, pollop, source,
// pool, and provider test suites.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package apqtest

import (
	"sync"

	"github.com/elsid/apq/reactor"
)

// FakeReactor is a synchronous, single-threaded stand-in for a real
// reactor.Reactor: watches are recorded rather than armed against a real
// fd, and FireRead/FireWrite let a test drive completions deterministically.
//
// Modeled on the teacher's fake.FakeReactor.
type FakeReactor struct {
	mu      sync.Mutex
	reads   map[uintptr]reactor.FDCallback
	writes  map[uintptr]reactor.FDCallback
	posted  []func()
	closed  bool
}

// NewFakeReactor constructs an empty FakeReactor.
func NewFakeReactor() *FakeReactor {
	return &FakeReactor{
		reads:  make(map[uintptr]reactor.FDCallback),
		writes: make(map[uintptr]reactor.FDCallback),
	}
}

func (f *FakeReactor) WatchRead(fd uintptr, cb reactor.FDCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[fd] = cb
	return nil
}

func (f *FakeReactor) WatchWrite(fd uintptr, cb reactor.FDCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes[fd] = cb
	return nil
}

func (f *FakeReactor) CancelRead(fd uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reads, fd)
	return nil
}

func (f *FakeReactor) CancelWrite(fd uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.writes, fd)
	return nil
}

// Post runs fn synchronously and records that it ran, matching the
// single-threaded determinism tests need; real reactors run it concurrently.
func (f *FakeReactor) Post(fn func()) {
	f.mu.Lock()
	f.posted = append(f.posted, fn)
	f.mu.Unlock()
	fn()
}

func (f *FakeReactor) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// FireRead invokes and clears the read watch armed on fd, if any, reporting
// whether one was armed.
func (f *FakeReactor) FireRead(fd uintptr, events reactor.FDEventType) bool {
	f.mu.Lock()
	cb, ok := f.reads[fd]
	delete(f.reads, fd)
	f.mu.Unlock()
	if !ok {
		return false
	}
	cb(fd, events)
	return true
}

// FireWrite invokes and clears the write watch armed on fd, if any.
func (f *FakeReactor) FireWrite(fd uintptr, events reactor.FDEventType) bool {
	f.mu.Lock()
	cb, ok := f.writes[fd]
	delete(f.writes, fd)
	f.mu.Unlock()
	if !ok {
		return false
	}
	cb(fd, events)
	return true
}

// HasRead reports whether a read watch is currently armed on fd.
func (f *FakeReactor) HasRead(fd uintptr) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.reads[fd]
	return ok
}

// HasWrite reports whether a write watch is currently armed on fd.
func (f *FakeReactor) HasWrite(fd uintptr) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.writes[fd]
	return ok
}
