package sandbox

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors shared by providers.
var (
	// ErrDisposed is returned when an operation is attempted on a
	// disposed runtime or context.
	ErrDisposed = errors.New("sandbox: disposed")

	// ErrSyncEvalUnsupported is returned by contexts whose execution
	// is inherently asynchronous (worker). Use EvalAsync instead.
	ErrSyncEvalUnsupported = errors.New("sandbox: synchronous eval unsupported")

	// ErrInterrupted is returned when an eval was cancelled by an
	// interrupt handler or hard timeout.
	ErrInterrupted = errors.New("sandbox: execution interrupted")

	// ErrScriptTimeout is returned by the vm provider when a script
	// exceeds its per-eval deadline.
	ErrScriptTimeout = errors.New("sandbox: script timeout")

	// ErrUnknownProvider is returned by Select for unknown names.
	ErrUnknownProvider = errors.New("sandbox: unknown provider")
)

// HostFunc is a host-supplied function injected into the guest via
// SetGlobal. Args arrive as exported guest values; the return value is
// converted back into the guest realm. A non-nil error surfaces in the
// guest as a thrown Error.
type HostFunc func(args []any) (any, error)

// ExecError wraps a guest exception thrown during eval.
type ExecError struct {
	Message string
	Stack   string
}

// Error returns the guest exception message.
func (e *ExecError) Error() string {
	return fmt.Sprintf("sandbox: guest exception: %s", e.Message)
}

// Provider is a factory for isolated runtimes.
type Provider interface {
	// Name identifies the provider ("goja", "vm", "worker", "hostrealm").
	Name() string

	// CreateRuntime provisions a runtime. Providers that provision
	// asynchronously honor ctx cancellation.
	CreateRuntime(ctx context.Context) (Runtime, error)
}

// Runtime owns engine-level resources and creates contexts.
type Runtime interface {
	// CreateContext returns a context with a fresh isolated global
	// object. Isolation strength depends on the provider.
	CreateContext() (Context, error)

	// Dispose releases the runtime. Contexts created from it become
	// unusable. Idempotent.
	Dispose()
}

// Context is one isolated global object.
type Context interface {
	// Eval runs code synchronously and returns its completion value
	// as an exported Go value. Contexts without synchronous execution
	// return ErrSyncEvalUnsupported.
	Eval(code string) (any, error)

	// SetGlobal binds a value under name on the global object.
	// Primitive values, plain maps/slices, and HostFunc values are
	// supported.
	SetGlobal(name string, value any) error

	// GetGlobal reads a global by name, reporting whether it exists.
	GetGlobal(name string) (any, bool)

	// Dispose releases the context. Idempotent.
	Dispose()
}

// EvalResult is the completion of an asynchronous eval.
type EvalResult struct {
	Value any
	Err   error
}

// AsyncEvaler is implemented by contexts whose execution is
// asynchronous (or that offer an async path in addition to Eval).
type AsyncEvaler interface {
	// EvalAsync runs code off the caller and delivers exactly one
	// EvalResult on the returned channel.
	EvalAsync(code string) <-chan EvalResult
}

// Interruptible is implemented by contexts supporting cooperative
// interruption. The handler is polled during eval; returning true
// aborts execution with ErrInterrupted.
type Interruptible interface {
	SetInterruptHandler(func() bool)
	ClearInterruptHandler()
}

// Terminator is implemented by contexts that can hard-cancel in-flight
// guest code (worker thread termination, engine interrupt).
type Terminator interface {
	Terminate(reason string)
}

// RejectionObserver is implemented by contexts that can surface
// promise rejections the guest never handles. Best-effort: not every
// provider exposes the hook.
type RejectionObserver interface {
	OnUnhandledRejection(func(reason string))
}

// Async reports whether ctx exposes an asynchronous eval path.
// Callers always prefer EvalAsync when this is true.
func Async(ctx Context) bool {
	_, ok := ctx.(AsyncEvaler)
	return ok
}
