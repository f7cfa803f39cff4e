package sandbox

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
)

// workerProvider hosts each context's engine on a dedicated goroutine
// pinned to an OS thread. All access is serialized over a request
// channel, so guest code never runs on the caller. Eval is
// asynchronous only; Terminate interrupts the engine, and Dispose
// closes the request channel and joins the worker.
type workerProvider struct{}

// NewWorkerProvider returns the thread-hosted provider.
func NewWorkerProvider() Provider { return workerProvider{} }

func (workerProvider) Name() string { return ProviderWorker }

func (workerProvider) CreateRuntime(ctx context.Context) (Runtime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &workerRuntime{}, nil
}

type workerRuntime struct {
	mu       sync.Mutex
	disposed bool
	contexts []*workerContext
}

func (r *workerRuntime) CreateContext() (Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, ErrDisposed
	}
	c := startWorkerContext()
	r.contexts = append(r.contexts, c)
	return c, nil
}

func (r *workerRuntime) Dispose() {
	r.mu.Lock()
	contexts := r.contexts
	r.contexts = nil
	r.disposed = true
	r.mu.Unlock()
	for _, c := range contexts {
		c.Dispose()
	}
}

type workerReqKind uint8

const (
	reqEval workerReqKind = iota
	reqSet
	reqGet
)

type workerReq struct {
	kind  workerReqKind
	code  string
	name  string
	value any
	reply chan EvalResult
}

// workerContext forwards every operation to the worker goroutine.
type workerContext struct {
	reqs     chan workerReq
	vm       *goja.Runtime // for Interrupt only; owned by the worker
	started  chan struct{}
	sendMu   sync.RWMutex // senders hold R; Dispose holds W while closing reqs
	disposed atomic.Bool
	wg       sync.WaitGroup
}

// send queues a request unless the context is disposed.
func (c *workerContext) send(req workerReq) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.disposed.Load() {
		return false
	}
	c.reqs <- req
	return true
}

func startWorkerContext() *workerContext {
	c := &workerContext{
		reqs:    make(chan workerReq, 16),
		started: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	<-c.started
	return c
}

// loop owns the engine for the context's lifetime. The OS thread is
// pinned so guest code never migrates.
func (c *workerContext) loop() {
	defer c.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	inner := newGojaContext()
	c.vm = inner.vm
	close(c.started)

	for req := range c.reqs {
		switch req.kind {
		case reqEval:
			val, err := inner.Eval(req.code)
			req.reply <- EvalResult{Value: val, Err: err}
		case reqSet:
			err := inner.SetGlobal(req.name, req.value)
			req.reply <- EvalResult{Err: err}
		case reqGet:
			val, ok := inner.GetGlobal(req.name)
			if !ok {
				req.reply <- EvalResult{}
			} else {
				req.reply <- EvalResult{Value: val}
			}
		}
	}
	inner.Dispose()
}

// Eval is unsupported: worker execution is inherently asynchronous.
func (c *workerContext) Eval(code string) (any, error) {
	return nil, ErrSyncEvalUnsupported
}

// EvalAsync queues code for the worker and delivers one EvalResult.
func (c *workerContext) EvalAsync(code string) <-chan EvalResult {
	reply := make(chan EvalResult, 1)
	if !c.send(workerReq{kind: reqEval, code: code, reply: reply}) {
		reply <- EvalResult{Err: ErrDisposed}
	}
	return reply
}

func (c *workerContext) SetGlobal(name string, value any) error {
	reply := make(chan EvalResult, 1)
	if !c.send(workerReq{kind: reqSet, name: name, value: value, reply: reply}) {
		return ErrDisposed
	}
	return (<-reply).Err
}

func (c *workerContext) GetGlobal(name string) (any, bool) {
	reply := make(chan EvalResult, 1)
	if !c.send(workerReq{kind: reqGet, name: name, reply: reply}) {
		return nil, false
	}
	res := <-reply
	return res.Value, res.Value != nil
}

// Terminate interrupts in-flight guest code on the worker thread.
func (c *workerContext) Terminate(reason string) {
	c.vm.Interrupt(reason)
}

// Dispose interrupts the engine, closes the request channel, and joins
// the worker.
func (c *workerContext) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}
	c.vm.Interrupt(ErrDisposed)
	c.sendMu.Lock()
	close(c.reqs)
	c.sendMu.Unlock()
	c.wg.Wait()
}
