package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/weld-ui/weld/pkg/callback"
	"github.com/weld-ui/weld/pkg/diag"
	"github.com/weld-ui/weld/pkg/protocol"
	"github.com/weld-ui/weld/pkg/receiver"
	"github.com/weld-ui/weld/pkg/registry"
	"github.com/weld-ui/weld/pkg/sandbox"
)

// Load states.
const (
	stateIdle int32 = iota
	stateLoading
	stateReady
)

// promisePollInterval is how often a pending completion promise is
// re-inspected while the watchdog runs.
const promisePollInterval = 10 * time.Millisecond

// Engine owns one isolation domain: a sandbox runtime and context, the
// polyfill surface injected into it, the callback and component
// registries, an optional receiver, and the diagnostics tracker.
// Engines never share state with each other.
type Engine struct {
	id     string
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer

	emitter   *emitter
	loop      *loop
	timers    *timerTable
	callbacks *callback.Registry
	component *registry.Registry
	tracker   *diag.Tracker

	mu          sync.Mutex
	selection   *sandbox.Selection
	runtime     sandbox.Runtime
	sctx        sandbox.Context
	recv        *receiver.Receiver
	modules     map[string]string
	guestConfig map[string]any

	loadState     atomic.Int32
	destroyed     atomic.Bool
	watchdogFired atomic.Bool
	guestErrors   atomic.Int64
	createdAt     time.Time
	loadedAt      atomic.Int64 // unix ms; 0 before load
}

// New creates an engine. The sandbox runtime is provisioned lazily by
// LoadBundle.
func New(cfg Config) *Engine {
	id := cfg.ID
	if id == "" {
		id = "eng-" + uuid.NewString()[:8]
	}
	logger := cfg.logger().With("engine", id)

	e := &Engine{
		id:          id,
		cfg:         cfg,
		logger:      logger,
		tracer:      otel.Tracer("weld/engine"),
		emitter:     newEmitter(cfg.MaxListeners, logger),
		loop:        newLoop(),
		timers:      newTimerTable(),
		callbacks:   callback.New(logger),
		component:   registry.New(cfg.Debug, logger),
		tracker:     diag.NewTracker(cfg.Diag),
		modules:     make(map[string]string, len(cfg.Modules)),
		guestConfig: make(map[string]any, len(cfg.GuestConfig)),
		createdAt:   time.Now(),
	}
	for name, source := range cfg.Modules {
		e.modules[name] = source
	}
	for key, value := range cfg.GuestConfig {
		e.guestConfig[key] = value
	}
	return e
}

// ID returns the engine id.
func (e *Engine) ID() string { return e.id }

// Components returns the engine's component whitelist.
func (e *Engine) Components() *registry.Registry { return e.component }

// Callbacks returns the host-side callback registry.
func (e *Engine) Callbacks() *callback.Registry { return e.callbacks }

// Register adds components to the whitelist. Idempotent per name;
// overwrites warn.
func (e *Engine) Register(components map[string]registry.Component) {
	e.component.RegisterMap(components)
}

// RegisterModule adds (or replaces) a require() whitelist entry.
func (e *Engine) RegisterModule(name, source string) {
	e.mu.Lock()
	e.modules[name] = source
	e.mu.Unlock()
}

// On subscribes to an engine event and returns the unsubscribe.
func (e *Engine) On(event Event, fn Listener) func() {
	return e.emitter.on(event, fn)
}

// IsDestroyed reports whether the engine is terminal.
func (e *Engine) IsDestroyed() bool { return e.destroyed.Load() }

// LoadBundle resolves, then executes a guest bundle exactly once.
// Execution races the engine watchdog: past the deadline the engine
// emits fatalError, force-destroys, and the call fails with
// ErrTimeout. Guest exceptions fail with *ExecutionError after an
// error event; source fetch failures with *FetchError.
func (e *Engine) LoadBundle(ctx context.Context, source string, initialProps map[string]any) error {
	if e.destroyed.Load() {
		return ErrDestroyed
	}
	if !e.loadState.CompareAndSwap(stateIdle, stateLoading) {
		return ErrAlreadyLoaded
	}

	ctx, span := e.tracer.Start(ctx, "engine.LoadBundle",
		trace.WithAttributes(attribute.String("engine.id", e.id)))
	defer span.End()

	err := e.loadBundle(ctx, source, initialProps)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	e.loadState.Store(stateReady)
	e.loadedAt.Store(time.Now().UnixMilli())
	e.emitter.emit(EventLoad, nil)
	return nil
}

func (e *Engine) loadBundle(ctx context.Context, source string, initialProps map[string]any) error {
	code, err := e.resolveSource(ctx, source)
	if err != nil {
		e.emitter.emit(EventError, err)
		return err
	}
	if err := e.initializeRuntime(ctx, initialProps); err != nil {
		e.emitter.emit(EventError, err)
		return err
	}

	var watchdog *time.Timer
	if timeout := e.cfg.loadTimeout(); timeout > 0 {
		watchdog = time.AfterFunc(timeout, e.onWatchdog)
	}
	execErr := e.execute(code)
	if watchdog != nil {
		watchdog.Stop()
	}
	if e.watchdogFired.Load() {
		// fatalError and force-destroy already happened on the
		// watchdog path.
		return ErrTimeout
	}
	if execErr != nil {
		wrapped := &ExecutionError{Err: execErr}
		e.emitter.emit(EventError, wrapped)
		return wrapped
	}
	return nil
}

// initializeRuntime provisions the sandbox and injects the polyfill
// surface. Globals are only ever set here and by host-message
// delivery.
func (e *Engine) initializeRuntime(ctx context.Context, initialProps map[string]any) error {
	sel := sandbox.Select(e.cfg.Provider, e.cfg.sandboxOptions(e.logger))
	if sel.Fallback {
		e.logger.Warn("engine: sandbox fallback in effect",
			"requested", sel.Requested, "effective", sel.Effective)
	}
	rt, err := sel.Provider.CreateRuntime(ctx)
	if err != nil {
		return fmt.Errorf("engine: create runtime: %w", err)
	}
	sctx, err := rt.CreateContext()
	if err != nil {
		rt.Dispose()
		return fmt.Errorf("engine: create context: %w", err)
	}

	e.mu.Lock()
	e.selection = sel
	e.runtime = rt
	e.sctx = sctx
	e.mu.Unlock()

	if obs, ok := sctx.(sandbox.RejectionObserver); ok {
		obs.OnUnhandledRejection(func(reason string) {
			e.recordGuestError(&ExecutionError{Err: fmt.Errorf("unhandled rejection: %s", reason)})
		})
	}
	if err := sctx.SetGlobal("__engineId", e.id); err != nil {
		return err
	}
	if err := sctx.SetGlobal("__initialProps", protocol.NormalizeValue(initialProps)); err != nil {
		return err
	}
	if err := e.installPolyfills(sctx); err != nil {
		return fmt.Errorf("engine: install polyfills: %w", err)
	}
	return nil
}

// execute runs the bundle on the engine loop and, when its completion
// value is a promise, waits for settlement. Pending promises advance
// through engine job activity (timers, messages); a promise that never
// settles is reaped by the watchdog.
func (e *Engine) execute(code string) error {
	var val any
	var err error
	if ok := e.loop.call(func() { val, err = e.evalNow(code) }); !ok {
		return ErrDestroyed
	}
	if err != nil {
		return err
	}

	for {
		var state sandbox.PromiseState
		var result any
		var isPromise bool
		// Inspect on the loop: promise state advances via loop jobs.
		if ok := e.loop.call(func() { state, result, isPromise = sandbox.AsPromise(val) }); !ok {
			return ErrDestroyed
		}
		if !isPromise || state == sandbox.PromiseFulfilled {
			return nil
		}
		if state == sandbox.PromiseRejected {
			reason, _ := result.(string)
			return &sandbox.ExecError{Message: reason}
		}
		if e.watchdogFired.Load() || e.destroyed.Load() {
			return ErrDestroyed
		}
		time.Sleep(promisePollInterval)
	}
}

// evalOnLoop evaluates code on the current goroutine, which must
// already be the engine loop (e.g. a timer fire job). It must not
// route through loop.call, which would deadlock against the in-flight
// loop job.
func (e *Engine) evalOnLoop(code string) error {
	_, err := e.evalNow(code)
	return err
}

// evalNow evaluates on the current goroutine, which must be the engine
// loop (or the pre-execution init path).
func (e *Engine) evalNow(code string) (any, error) {
	e.mu.Lock()
	sctx := e.sctx
	e.mu.Unlock()
	if sctx == nil {
		return nil, ErrDestroyed
	}
	if sandbox.Async(sctx) {
		res := <-sctx.(sandbox.AsyncEvaler).EvalAsync(code)
		return res.Value, res.Err
	}
	return sctx.Eval(code)
}

// onWatchdog is the load deadline: log fatal, interrupt the guest,
// emit fatalError, force-destroy.
func (e *Engine) onWatchdog() {
	if e.destroyed.Load() {
		return
	}
	e.watchdogFired.Store(true)
	e.logger.Error("engine: bundle execution timed out, force-destroying")

	e.mu.Lock()
	sctx := e.sctx
	e.mu.Unlock()
	if t, ok := sctx.(sandbox.Terminator); ok {
		t.Terminate("bundle execution timed out")
	}
	e.emitter.emit(EventFatalError, ErrTimeout)
	e.forceDestroy()
}

// SendEvent enqueues a HOST_EVENT for the guest and returns
// immediately. A destroyed engine ignores the call.
func (e *Engine) SendEvent(name string, payload any) {
	if e.destroyed.Load() {
		return
	}
	normalized := protocol.NormalizeValue(payload)
	e.tracker.RecordHostEvent(name, jsonLength(normalized))
	e.sendToSandbox(protocol.HostEvent(name, normalized))
}

// UpdateConfig shallow-merges partial into the guest config and
// mirrors the update into the guest.
func (e *Engine) UpdateConfig(partial map[string]any) {
	if e.destroyed.Load() {
		return
	}
	merged := make(map[string]any, len(partial))
	e.mu.Lock()
	for key, value := range partial {
		v := protocol.NormalizeValue(value)
		e.guestConfig[key] = v
		merged[key] = v
	}
	e.mu.Unlock()
	e.sendToSandbox(protocol.ConfigUpdate(merged))
}

// CreateReceiver creates (or replaces) the engine's receiver. Batches
// the guest emits apply to it; onUpdate is coalesced per loop turn.
func (e *Engine) CreateReceiver(onUpdate func()) *receiver.Receiver {
	recv := receiver.New(receiver.Config{
		MaxBatchSize: e.cfg.MaxBatchSize,
		Components:   e.component,
		Callbacks:    e.callbacks,
		Dispatch:     e.sendToSandbox,
		OnUpdate:     onUpdate,
		Schedule:     func(f func()) { e.loop.do(f) },
		Logger:       e.logger,
	})
	e.mu.Lock()
	e.recv = recv
	e.mu.Unlock()
	return recv
}

// Receiver returns the current receiver, or nil.
func (e *Engine) Receiver() *receiver.Receiver {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recv
}

// sendToSandbox routes one HostMessage toward the guest, in call
// order.
func (e *Engine) sendToSandbox(msg protocol.HostMessage) {
	if e.destroyed.Load() {
		return
	}
	e.loop.do(func() { e.dispatchMessage(msg) })
}

// dispatchMessage runs on the engine loop. CALL_FUNCTION tries the
// host-side registry first; the ids live there when the renderer runs
// host-side. Only unknown ids cross into the guest.
func (e *Engine) dispatchMessage(msg protocol.HostMessage) {
	if e.destroyed.Load() {
		return
	}
	switch msg.Type {
	case protocol.MsgCallFunction:
		if e.callbacks.Has(msg.FnID) {
			if _, err := e.callbacks.Invoke(msg.FnID, msg.Args); err != nil {
				e.logger.Error("engine: callback invocation failed",
					"fnId", msg.FnID, "error", err)
			}
			return
		}
		e.evalHostMessage(msg)
	case protocol.MsgHostEvent, protocol.MsgConfigUpdate:
		e.evalHostMessage(msg)
	case protocol.MsgDestroy:
		e.Destroy()
	}
}

// evalHostMessage delivers msg to the guest dispatcher.
func (e *Engine) evalHostMessage(msg protocol.HostMessage) {
	e.mu.Lock()
	sctx := e.sctx
	e.mu.Unlock()
	if sctx == nil {
		return
	}
	m, err := messageToMap(msg)
	if err != nil {
		e.logger.Error("engine: host message not serializable", "type", msg.Type.String(), "error", err)
		return
	}
	if err := sctx.SetGlobal("__pendingHostMessage", m); err != nil {
		e.recordGuestError(err)
		return
	}
	if _, err := e.evalNow("__handleHostMessage(globalThis.__pendingHostMessage)"); err != nil {
		e.recordGuestError(err)
	}
}

// handleGuestBatch is called from __sendToHost, inside a guest eval on
// the engine loop.
func (e *Engine) handleGuestBatch(batch *protocol.Batch) {
	_, span := e.tracer.Start(context.Background(), "engine.ApplyBatch",
		trace.WithAttributes(
			attribute.String("engine.id", e.id),
			attribute.Int("batch.ops", len(batch.Operations)),
		))
	defer span.End()

	e.emitter.emit(EventOperation, batch)

	e.mu.Lock()
	recv := e.recv
	e.mu.Unlock()

	sample := diag.Sample{
		At:          time.Now(),
		BatchID:     batch.BatchID,
		Ops:         len(batch.Operations),
		Bytes:       jsonLength(batch),
		NodeTypeOps: e.nodeTypeOps(batch, recv),
	}
	if recv != nil {
		res := recv.ApplyBatch(batch)
		sample.Applied = res.Applied
		sample.Skipped = res.Skipped
		sample.Failed = res.Failed
		sample.ApplyDuration = res.Duration
		sample.Growth = res.NodesCreated - res.NodesDeleted
		sample.OpsByType = res.OpsByType
		sample.SkippedByType = res.SkippedByType
	} else {
		byType := make(map[string]int, 4)
		for _, op := range batch.Operations {
			byType[op.Op.String()]++
		}
		sample.OpsByType = byType
	}
	e.tracker.Record(sample)
}

// nodeTypeOps attributes a batch's operations to node types, resolving
// non-CREATE targets against the shadow tree before the batch applies.
func (e *Engine) nodeTypeOps(batch *protocol.Batch, recv *receiver.Receiver) map[string]int {
	out := make(map[string]int)
	created := make(map[uint32]string, 8)
	for _, op := range batch.Operations {
		var typ string
		switch op.Op {
		case protocol.OpCreate:
			typ = op.Type
			created[op.ID] = op.Type
		case protocol.OpAppend, protocol.OpInsert, protocol.OpRemove:
			typ = created[op.ChildID]
			if typ == "" && recv != nil {
				typ = recv.TypeOf(op.ChildID)
			}
		default:
			typ = created[op.ID]
			if typ == "" && recv != nil {
				typ = recv.TypeOf(op.ID)
			}
		}
		if typ != "" {
			out[typ]++
		}
	}
	return out
}

func (e *Engine) recordGuestError(err error) {
	e.guestErrors.Add(1)
	e.logger.Error("engine: guest error", "error", err)
	e.emitter.emit(EventError, err)
}

// Destroy tears the engine down: emits destroy, clears timers,
// disposes context then runtime, and clears listeners. Idempotent and
// safe to call from error listeners or from the engine loop.
func (e *Engine) Destroy() { e.destroy(true) }

// forceDestroy is the watchdog path: identical to Destroy except no
// destroy event fires. Both paths tolerate dispose failures and clear
// listeners asynchronously, so an in-flight fatalError is observable.
func (e *Engine) forceDestroy() { e.destroy(false) }

func (e *Engine) destroy(emitDestroy bool) {
	if !e.destroyed.CompareAndSwap(false, true) {
		return
	}
	if emitDestroy {
		e.emitter.emit(EventDestroy, nil)
	}
	e.timers.clear()

	e.mu.Lock()
	sctx := e.sctx
	rt := e.runtime
	e.sctx = nil
	e.runtime = nil
	e.recv = nil
	e.mu.Unlock()

	if t, ok := sctx.(sandbox.Terminator); ok {
		t.Terminate("engine destroyed")
	}
	e.loop.close()

	// Context first, then runtime; both tolerate dispose panics.
	func() {
		defer func() { _ = recover() }()
		if sctx != nil {
			sctx.Dispose()
		}
	}()
	func() {
		defer func() { _ = recover() }()
		if rt != nil {
			rt.Dispose()
		}
	}()

	// Listeners clear after the current turn so fatalError emitted
	// just before destruction can still be observed.
	time.AfterFunc(time.Millisecond, e.emitter.clear)
}

// EvalCode evaluates code in the guest for host-initiated diagnostics.
// It round-trips through the engine loop, so it must not be called
// synchronously from an engine event listener.
func (e *Engine) EvalCode(code string) (any, error) {
	if e.destroyed.Load() {
		return nil, ErrDestroyed
	}
	var val any
	var err error
	if ok := e.loop.call(func() { val, err = e.evalNow(code) }); !ok {
		return nil, ErrDestroyed
	}
	return val, err
}

// messageToMap renders a HostMessage as the plain tree the guest
// dispatcher consumes.
func messageToMap(msg protocol.HostMessage) (map[string]any, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// jsonLength is the structural size of a value, or -1 when it has no
// JSON rendering.
func jsonLength(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return -1
	}
	return len(data)
}

// IsTimeout reports whether err is the watchdog timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }
