package sandbox

import (
	"context"
	"log/slog"
	"sync"
)

// hostRealmProvider executes guest code in a single shared engine with
// no isolation between contexts: globals set by one guest are visible
// to every other. It exists for local diagnosis of bundles only and is
// never chosen by auto-selection.
type hostRealmProvider struct {
	logger *slog.Logger
}

// NewHostRealmProvider returns the no-sandbox diagnostic provider.
func NewHostRealmProvider(logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &hostRealmProvider{logger: logger}
}

func (p *hostRealmProvider) Name() string { return ProviderHostRealm }

func (p *hostRealmProvider) CreateRuntime(ctx context.Context) (Runtime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.logger.Warn("sandbox: hostrealm provides NO isolation; diagnostic use only")
	return &hostRealmRuntime{shared: newGojaContext()}, nil
}

type hostRealmRuntime struct {
	mu       sync.Mutex
	shared   *gojaContext
	disposed bool
}

func (r *hostRealmRuntime) CreateContext() (Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, ErrDisposed
	}
	// Every context is the same realm. That is the (absence of a)
	// contract.
	return &hostRealmContext{shared: r.shared}, nil
}

func (r *hostRealmRuntime) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}
	r.disposed = true
	r.shared.Dispose()
}

// hostRealmContext delegates to the runtime's shared realm. Disposing
// a context does not dispose the realm; other contexts still use it.
type hostRealmContext struct {
	shared *gojaContext
}

func (c *hostRealmContext) Eval(code string) (any, error) { return c.shared.Eval(code) }

func (c *hostRealmContext) SetGlobal(name string, value any) error {
	return c.shared.SetGlobal(name, value)
}

func (c *hostRealmContext) GetGlobal(name string) (any, bool) {
	return c.shared.GetGlobal(name)
}

func (c *hostRealmContext) SetInterruptHandler(handler func() bool) {
	c.shared.SetInterruptHandler(handler)
}

func (c *hostRealmContext) ClearInterruptHandler() {
	c.shared.ClearInterruptHandler()
}

func (c *hostRealmContext) OnUnhandledRejection(fn func(reason string)) {
	c.shared.OnUnhandledRejection(fn)
}

func (c *hostRealmContext) Terminate(reason string) { c.shared.Terminate(reason) }

func (c *hostRealmContext) Dispose() {}
