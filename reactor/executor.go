// File: reactor/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches Post'ed callbacks across worker goroutines, using
// lock-free local queues with a bounded global queue fallback.

package reactor

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elsid/apq/affinity"
)

// ErrExecutorClosed is returned by Submit once the executor has been closed.
var ErrExecutorClosed = errors.New("reactor: executor is closed")

type taskFunc func()

// executor runs Post'ed callbacks off the poll goroutine.
type executor struct {
	globalQueue chan taskFunc
	localQueues []*mpscQueue[taskFunc]
	workers     []*execWorker
	closeCh     chan struct{}
	closed      atomic.Bool
	wg          sync.WaitGroup
	next        atomic.Uint64
}

// newExecutor creates an executor with numWorkers goroutines, pinned to
// numaNode when numaNode >= 0.
func newExecutor(numWorkers, numaNode int) *executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &executor{
		globalQueue: make(chan taskFunc, numWorkers*4),
		closeCh:     make(chan struct{}),
	}
	e.localQueues = make([]*mpscQueue[taskFunc], numWorkers)
	e.workers = make([]*execWorker, numWorkers)
	for i := 0; i < numWorkers; i++ {
		e.localQueues[i] = newMPSCQueue[taskFunc](1024)
	}
	for i := 0; i < numWorkers; i++ {
		w := &execWorker{id: i, executor: e, localQueue: e.localQueues[i]}
		e.workers[i] = w
		e.wg.Add(1)
		go w.run(numaNode, &e.wg)
	}
	return e
}

// submit enqueues fn. Returns ErrExecutorClosed once Close has been called.
func (e *executor) submit(fn taskFunc) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	idx := int(e.next.Add(1)) % len(e.localQueues)
	if e.localQueues[idx].enqueue(fn) {
		return nil
	}
	select {
	case e.globalQueue <- fn:
		return nil
	case <-e.closeCh:
		return ErrExecutorClosed
	default:
		return ErrExecutorClosed
	}
}

// close shuts the executor down, waiting for workers to drain and exit.
func (e *executor) close() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.closeCh)
		e.wg.Wait()
	}
}

type execWorker struct {
	id         int
	executor   *executor
	localQueue *mpscQueue[taskFunc]
}

func (w *execWorker) run(numaNode int, wg *sync.WaitGroup) {
	defer wg.Done()
	if numaNode >= 0 {
		runtime.LockOSThread()
		_ = affinity.Pin(numaNode)
	}
	for {
		select {
		case <-w.executor.closeCh:
			w.drain()
			return
		default:
			if task, ok := w.localQueue.dequeue(); ok {
				w.safeExecute(task)
				continue
			}
			select {
			case task := <-w.executor.globalQueue:
				w.safeExecute(task)
			case <-w.executor.closeCh:
				w.drain()
				return
			default:
				time.Sleep(time.Millisecond)
			}
		}
	}
}

// drain runs any tasks left in the local queue after close is signalled so
// already-armed watches still get their completion callback delivered.
func (w *execWorker) drain() {
	for {
		task, ok := w.localQueue.dequeue()
		if !ok {
			return
		}
		w.safeExecute(task)
	}
}

func (w *execWorker) safeExecute(task taskFunc) {
	defer func() { _ = recover() }()
	task()
}
