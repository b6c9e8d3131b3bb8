//go:build linux
// +build linux

// File: reactor/epoll_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) reactor: edge-triggered, one-shot (EPOLLONESHOT) readiness
// watches per direction, with completion callbacks dispatched through the
// executor rather than invoked inline from the poll goroutine.

package reactor

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/elsid/apq/affinity"
)

type fdState struct {
	added   bool
	readCb  FDCallback
	writeCb FDCallback
}

type epollReactor struct {
	epfd     int
	exec     *executor
	mu       sync.Mutex
	fds      map[uintptr]*fdState
	closeCh  chan struct{}
	closed   atomic.Bool
	pollDone chan struct{}
}

func newPlatformReactor(opts Options) (Reactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	r := &epollReactor{
		epfd:     epfd,
		exec:     newExecutor(opts.Workers, opts.NUMANode),
		fds:      make(map[uintptr]*fdState),
		closeCh:  make(chan struct{}),
		pollDone: make(chan struct{}),
	}
	go r.pollLoop(opts.NUMANode)
	return r, nil
}

func (r *epollReactor) WatchRead(fd uintptr, cb FDCallback) error {
	return r.watch(fd, true, cb)
}

func (r *epollReactor) WatchWrite(fd uintptr, cb FDCallback) error {
	return r.watch(fd, false, cb)
}

func (r *epollReactor) watch(fd uintptr, isRead bool, cb FDCallback) error {
	r.mu.Lock()
	st, ok := r.fds[fd]
	if !ok {
		st = &fdState{}
		r.fds[fd] = st
	}
	if isRead {
		st.readCb = cb
	} else {
		st.writeCb = cb
	}
	wasAdded := st.added
	st.added = true
	events := armedEvents(st)
	r.mu.Unlock()

	var ev unix.EpollEvent
	ev.Events = events
	ev.Fd = int32(fd)
	op := unix.EPOLL_CTL_MOD
	if !wasAdded {
		op = unix.EPOLL_CTL_ADD
	}
	err := unix.EpollCtl(r.epfd, op, int(fd), &ev)
	if err == unix.EEXIST {
		// dispatch forgets an fd once both directions have fired, but
		// EPOLLONESHOT only disarms it: it is still in the interest list.
		err = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev)
	}
	if err != nil {
		return fmt.Errorf("reactor: epoll_ctl: %w", err)
	}
	return nil
}

func (r *epollReactor) CancelRead(fd uintptr) error {
	return r.cancel(fd, true)
}

func (r *epollReactor) CancelWrite(fd uintptr) error {
	return r.cancel(fd, false)
}

func (r *epollReactor) cancel(fd uintptr, isRead bool) error {
	r.mu.Lock()
	st, ok := r.fds[fd]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	if isRead {
		st.readCb = nil
	} else {
		st.writeCb = nil
	}
	empty := st.readCb == nil && st.writeCb == nil
	wasAdded := st.added
	if empty {
		delete(r.fds, fd)
	}
	r.mu.Unlock()

	if !empty || !wasAdded {
		return nil
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil); err != nil {
		return fmt.Errorf("reactor: epoll_ctl del: %w", err)
	}
	return nil
}

func (r *epollReactor) Post(fn func()) {
	_ = r.exec.submit(fn)
}

func (r *epollReactor) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		close(r.closeCh)
		<-r.pollDone
		r.exec.close()
		return unix.Close(r.epfd)
	}
	return nil
}

// armedEvents computes the EPOLLONESHOT event mask for the callbacks
// currently pending on st. Caller must hold r.mu.
func armedEvents(st *fdState) uint32 {
	events := uint32(unix.EPOLLONESHOT | unix.EPOLLET)
	if st.readCb != nil {
		events |= unix.EPOLLIN
	}
	if st.writeCb != nil {
		events |= unix.EPOLLOUT
	}
	return events
}

// pollLoop waits for readiness and posts each fired watch's callback to the
// executor. A bounded wait timeout lets the loop notice closeCh without a
// dedicated wakeup fd.
func (r *epollReactor) pollLoop(numaNode int) {
	defer close(r.pollDone)
	if numaNode >= 0 {
		runtime.LockOSThread()
		_ = affinity.Pin(numaNode)
	}
	const maxEvents = 128
	const pollTimeoutMs = 100
	events := make([]unix.EpollEvent, maxEvents)
	for {
		select {
		case <-r.closeCh:
			return
		default:
		}

		n, err := unix.EpollWait(r.epfd, events, pollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if r.closed.Load() {
				return
			}
			continue
		}

		for i := 0; i < n; i++ {
			r.dispatch(events[i])
		}
	}
}

// dispatch fires the callback(s) whose direction is present in ev.Events.
// EPOLLONESHOT has already disarmed the fd entirely; if one direction's
// callback survives (the other fired), it is re-armed before returning.
func (r *epollReactor) dispatch(ev unix.EpollEvent) {
	fd := uintptr(ev.Fd)
	errFlags := ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0

	r.mu.Lock()
	st, ok := r.fds[fd]
	if !ok {
		r.mu.Unlock()
		return
	}

	var readCb, writeCb FDCallback
	if st.readCb != nil && (ev.Events&unix.EPOLLIN != 0 || errFlags) {
		readCb = st.readCb
		st.readCb = nil
	}
	if st.writeCb != nil && (ev.Events&unix.EPOLLOUT != 0 || errFlags) {
		writeCb = st.writeCb
		st.writeCb = nil
	}

	remaining := armedEvents(st)
	stillOwned := st.readCb != nil || st.writeCb != nil
	if !stillOwned {
		delete(r.fds, fd)
	}
	r.mu.Unlock()

	if stillOwned {
		rearm := unix.EpollEvent{Events: remaining, Fd: ev.Fd}
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), &rearm)
	}

	var et FDEventType
	if ev.Events&unix.EPOLLIN != 0 {
		et |= EventRead
	}
	if ev.Events&unix.EPOLLOUT != 0 {
		et |= EventWrite
	}
	if errFlags {
		et |= EventError
	}
	if readCb != nil {
		cb, e := readCb, et
		r.exec.submit(func() { cb(fd, e) })
	}
	if writeCb != nil {
		cb, e := writeCb, et
		r.exec.submit(func() { cb(fd, e) })
	}
}
