package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// interruptPollInterval is how often an installed interrupt handler is
// polled while guest code runs.
const interruptPollInterval = 10 * time.Millisecond

// gojaProvider is the embedded pure-Go engine. One engine instance per
// context gives script-level isolation with synchronous eval.
type gojaProvider struct{}

// NewGojaProvider returns the embedded-engine provider.
func NewGojaProvider() Provider { return gojaProvider{} }

func (gojaProvider) Name() string { return ProviderGoja }

func (gojaProvider) CreateRuntime(ctx context.Context) (Runtime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &gojaRuntime{}, nil
}

type gojaRuntime struct {
	mu       sync.Mutex
	disposed bool
	contexts []*gojaContext
}

func (r *gojaRuntime) CreateContext() (Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, ErrDisposed
	}
	c := newGojaContext()
	r.contexts = append(r.contexts, c)
	return c, nil
}

func (r *gojaRuntime) Dispose() {
	r.mu.Lock()
	contexts := r.contexts
	r.contexts = nil
	r.disposed = true
	r.mu.Unlock()
	for _, c := range contexts {
		c.Dispose()
	}
}

// gojaContext wraps one goja.Runtime. Access is serialized by mu; the
// engine itself is not goroutine-safe.
type gojaContext struct {
	mu       sync.Mutex
	vm       *goja.Runtime
	disposed bool

	handlerMu sync.Mutex
	handler   func() bool
}

func newGojaContext() *gojaContext {
	return &gojaContext{vm: goja.New()}
}

func (c *gojaContext) Eval(code string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, ErrDisposed
	}
	return c.run(code)
}

// run executes code on the locked context, polling the interrupt
// handler while the script runs.
func (c *gojaContext) run(code string) (any, error) {
	c.handlerMu.Lock()
	handler := c.handler
	c.handlerMu.Unlock()

	var stop chan struct{}
	if handler != nil {
		stop = make(chan struct{})
		go func() {
			tick := time.NewTicker(interruptPollInterval)
			defer tick.Stop()
			for {
				select {
				case <-stop:
					return
				case <-tick.C:
					if handler() {
						c.vm.Interrupt(ErrInterrupted)
						return
					}
				}
			}
		}()
	}

	val, err := c.vm.RunString(code)
	if stop != nil {
		close(stop)
	}
	if err != nil {
		return nil, c.mapError(err)
	}
	return export(val), nil
}

// mapError converts engine errors into the package's error taxonomy
// and re-arms the engine after an interrupt.
func (c *gojaContext) mapError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		c.vm.ClearInterrupt()
		if cause, ok := interrupted.Value().(error); ok {
			return cause
		}
		return ErrInterrupted
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return &ExecError{
			Message: exception.Value().String(),
			Stack:   exception.String(),
		}
	}
	return err
}

func (c *gojaContext) SetGlobal(name string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	return c.vm.Set(name, bindValue(c.vm, value))
}

func (c *gojaContext) GetGlobal(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, false
	}
	v := c.vm.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	return v.Export(), true
}

// OnUnhandledRejection installs an observer for promise rejections the
// guest never handles. Passing nil uninstalls it.
func (c *gojaContext) OnUnhandledRejection(fn func(reason string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	if fn == nil {
		c.vm.SetPromiseRejectionTracker(nil)
		return
	}
	c.vm.SetPromiseRejectionTracker(func(p *goja.Promise, op goja.PromiseRejectionOperation) {
		if op != goja.PromiseRejectionReject {
			return
		}
		reason := ""
		if r := p.Result(); r != nil {
			reason = r.String()
		}
		fn(reason)
	})
}

func (c *gojaContext) SetInterruptHandler(handler func() bool) {
	c.handlerMu.Lock()
	c.handler = handler
	c.handlerMu.Unlock()
}

func (c *gojaContext) ClearInterruptHandler() {
	c.handlerMu.Lock()
	c.handler = nil
	c.handlerMu.Unlock()
}

// Terminate interrupts in-flight guest code. Safe to call from any
// goroutine while the context evaluates.
func (c *gojaContext) Terminate(reason string) {
	c.vm.Interrupt(reason)
}

func (c *gojaContext) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.disposed = true
	c.vm.Interrupt(ErrDisposed)
}

// bindValue converts a host value into one the engine can hold.
// HostFunc values become guest-callable functions whose errors throw.
func bindValue(vm *goja.Runtime, value any) any {
	fn, ok := value.(HostFunc)
	if !ok {
		return value
	}
	return func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		result, err := fn(args)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		if result == nil {
			return goja.Undefined()
		}
		return vm.ToValue(result)
	}
}

// export unwraps an engine value into a plain Go value.
func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
