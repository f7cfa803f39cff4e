package sandbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultScriptTimeout bounds a single eval on the vm provider.
const DefaultScriptTimeout = 5 * time.Second

// vmProvider wraps the embedded engine with a per-script hard timeout:
// every eval races a watchdog that interrupts the engine. This is the
// strongest cancellation the in-process variants offer.
type vmProvider struct {
	scriptTimeout time.Duration
}

// NewVMProvider returns the per-script-timeout provider. A
// non-positive timeout falls back to DefaultScriptTimeout.
func NewVMProvider(scriptTimeout time.Duration) Provider {
	if scriptTimeout <= 0 {
		scriptTimeout = DefaultScriptTimeout
	}
	return &vmProvider{scriptTimeout: scriptTimeout}
}

func (p *vmProvider) Name() string { return ProviderVM }

func (p *vmProvider) CreateRuntime(ctx context.Context) (Runtime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &vmRuntime{timeout: p.scriptTimeout}, nil
}

type vmRuntime struct {
	mu       sync.Mutex
	timeout  time.Duration
	disposed bool
	contexts []*vmContext
}

func (r *vmRuntime) CreateContext() (Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, ErrDisposed
	}
	c := &vmContext{inner: newGojaContext(), timeout: r.timeout}
	r.contexts = append(r.contexts, c)
	return c, nil
}

func (r *vmRuntime) Dispose() {
	r.mu.Lock()
	contexts := r.contexts
	r.contexts = nil
	r.disposed = true
	r.mu.Unlock()
	for _, c := range contexts {
		c.Dispose()
	}
}

// vmContext arms a watchdog around every eval.
type vmContext struct {
	inner   *gojaContext
	timeout time.Duration
}

func (c *vmContext) Eval(code string) (any, error) {
	var fired atomic.Bool
	timer := time.AfterFunc(c.timeout, func() {
		fired.Store(true)
		c.inner.Terminate("script timeout")
	})
	val, err := c.inner.Eval(code)
	timer.Stop()
	if err != nil && fired.Load() && errors.Is(err, ErrInterrupted) {
		return nil, ErrScriptTimeout
	}
	return val, err
}

func (c *vmContext) SetGlobal(name string, value any) error {
	return c.inner.SetGlobal(name, value)
}

func (c *vmContext) GetGlobal(name string) (any, bool) {
	return c.inner.GetGlobal(name)
}

func (c *vmContext) SetInterruptHandler(handler func() bool) {
	c.inner.SetInterruptHandler(handler)
}

func (c *vmContext) ClearInterruptHandler() {
	c.inner.ClearInterruptHandler()
}

func (c *vmContext) OnUnhandledRejection(fn func(reason string)) {
	c.inner.OnUnhandledRejection(fn)
}

func (c *vmContext) Terminate(reason string) {
	c.inner.Terminate(reason)
}

func (c *vmContext) Dispose() {
	c.inner.Dispose()
}
