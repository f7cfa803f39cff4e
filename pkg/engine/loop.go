package engine

import (
	"sync"
	"sync/atomic"
)

// loop serializes all guest-facing work on one goroutine. Batches,
// timer fires, and Host→Guest messages enqueue here, so they reach the
// sandbox in call order and never race on the context.
type loop struct {
	jobs   chan func()
	quit   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

func newLoop() *loop {
	l := &loop{
		jobs: make(chan func(), 256),
		quit: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *loop) run() {
	defer l.wg.Done()
	for {
		select {
		case job := <-l.jobs:
			job()
		case <-l.quit:
			// Drain whatever was enqueued before the close.
			for {
				select {
				case job := <-l.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}

// do enqueues a job and returns immediately. Jobs after close are
// dropped.
func (l *loop) do(job func()) {
	if l.closed.Load() {
		return
	}
	select {
	case l.jobs <- job:
	case <-l.quit:
	}
}

// call enqueues a job and waits for it to finish. Returns false when
// the loop closed before the job ran.
func (l *loop) call(job func()) bool {
	if l.closed.Load() {
		return false
	}
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		job()
	}
	select {
	case l.jobs <- wrapped:
	case <-l.quit:
		return false
	}
	select {
	case <-done:
		return true
	case <-l.quit:
		// The drain may still run the job; give it one more look.
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

// close stops the loop after draining queued jobs. Safe to call from a
// job running on the loop itself; idempotent.
func (l *loop) close() {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	close(l.quit)
}
