package engine

import (
	"fmt"
	"time"

	"github.com/weld-ui/weld/pkg/protocol"
	"github.com/weld-ui/weld/pkg/sandbox"
)

// Module names every engine whitelist is expected to carry. The host
// application supplies the sources (usually from its bundler output).
const (
	ModuleReact      = "react"
	ModuleSDK        = "@weld/sdk"
	ModuleReconciler = "@weld/reconciler"
	ModuleComponents = "@weld/components"
)

// installPolyfills binds the host functions and evaluates the guest
// bootstrap. Globals are set once, during runtime initialization.
func (e *Engine) installPolyfills(ctx sandbox.Context) error {
	hostFuncs := map[string]sandbox.HostFunc{
		"__consoleWrite":     e.hostConsoleWrite,
		"__scheduleTimer":    e.hostScheduleTimer,
		"__cancelTimer":      e.hostCancelTimer,
		"__resolveModule":    e.hostResolveModule,
		"__sendToHost":       e.hostSendToHost,
		"__getConfig":        e.hostGetConfig,
		"__sendEventToHost":  e.hostSendEventToHost,
		"__reportGuestError": e.hostReportGuestError,
	}
	for name, fn := range hostFuncs {
		if err := ctx.SetGlobal(name, fn); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return e.evalBootstrap(ctx, bootstrapSource)
}

// evalBootstrap runs a polyfill script on either eval path.
func (e *Engine) evalBootstrap(ctx sandbox.Context, source string) error {
	if sandbox.Async(ctx) {
		res := <-ctx.(sandbox.AsyncEvaler).EvalAsync(source)
		return res.Err
	}
	_, err := ctx.Eval(source)
	return err
}

// hostConsoleWrite backs the guest console. log/debug/info are gated
// by the debug flag; warn/error always forward.
func (e *Engine) hostConsoleWrite(args []any) (any, error) {
	level, _ := first(args).(string)
	text := ""
	if len(args) > 1 {
		text, _ = args[1].(string)
	}
	logger := e.logger.With("engine", e.id, "source", "[Guest]")
	switch level {
	case "warn":
		logger.Warn(text)
	case "error":
		logger.Error(text)
	default:
		if e.cfg.Debug {
			logger.Info(text)
		}
	}
	return nil, nil
}

// hostScheduleTimer arms a host timer for a guest handle. The fire
// path re-enters the guest on the engine loop.
func (e *Engine) hostScheduleTimer(args []any) (any, error) {
	handle, ok := asInt64(first(args))
	if !ok {
		return nil, fmt.Errorf("engine: bad timer handle %v", first(args))
	}
	var ms int64
	if len(args) > 1 {
		ms, _ = asInt64(args[1])
	}
	repeating := false
	if len(args) > 2 {
		repeating, _ = args[2].(bool)
	}
	delay := time.Duration(ms) * time.Millisecond

	fire := func() {
		e.loop.do(func() { e.fireTimer(handle, repeating) })
	}
	if repeating {
		e.timers.scheduleInterval(handle, delay, fire)
	} else {
		e.timers.schedule(handle, delay, fire)
	}
	return nil, nil
}

func (e *Engine) hostCancelTimer(args []any) (any, error) {
	if handle, ok := asInt64(first(args)); ok {
		e.timers.cancel(handle)
	}
	return nil, nil
}

// fireTimer re-enters the guest for one timer callback. Guest
// exceptions are caught in the guest-side dispatcher; failures of the
// dispatch itself are counted and surfaced as error events.
func (e *Engine) fireTimer(handle int64, repeating bool) {
	if e.destroyed.Load() {
		return
	}
	code := fmt.Sprintf("__fireTimer(%d, %t)", handle, repeating)
	if err := e.evalOnLoop(code); err != nil {
		e.recordGuestError(fmt.Errorf("timer %d: %w", handle, err))
	}
}

// hostResolveModule serves require(): whitelisted names resolve to
// their registered source, everything else is denied.
func (e *Engine) hostResolveModule(args []any) (any, error) {
	name, _ := first(args).(string)
	e.mu.Lock()
	source, ok := e.modules[name]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRequireDenied, name)
	}
	return source, nil
}

// hostSendToHost receives one operation batch from the guest renderer.
func (e *Engine) hostSendToHost(args []any) (any, error) {
	batch, err := protocol.DecodeBatch(first(args))
	if err != nil {
		e.recordGuestError(fmt.Errorf("malformed batch: %w", err))
		return nil, err
	}
	e.handleGuestBatch(batch)
	return nil, nil
}

// hostGetConfig returns the current config snapshot.
func (e *Engine) hostGetConfig(args []any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot := make(map[string]any, len(e.guestConfig))
	for k, v := range e.guestConfig {
		snapshot[k] = v
	}
	return snapshot, nil
}

// hostSendEventToHost is the Guest→Host event channel.
func (e *Engine) hostSendEventToHost(args []any) (any, error) {
	name, _ := first(args).(string)
	var payload any
	if len(args) > 1 {
		payload = protocol.NormalizeValue(args[1])
	}
	e.tracker.RecordGuestEvent(name, jsonLength(payload))
	e.emitter.emit(EventMessage, protocol.GuestEvent{Event: name, Payload: payload})
	return nil, nil
}

// hostReportGuestError counts an asynchronous guest failure.
func (e *Engine) hostReportGuestError(args []any) (any, error) {
	text, _ := first(args).(string)
	e.recordGuestError(&ExecutionError{Err: fmt.Errorf("%s", text)})
	return nil, nil
}

func first(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// bootstrapSource installs the guest-visible runtime: console, timers,
// require, host-event subscription, the callback registry, the host
// message dispatcher, and element rewrapping for cross-engine React
// elements.
const bootstrapSource = `
(function() {
	'use strict';

	// console -----------------------------------------------------------
	function cycleSafe() {
		var seen = [];
		return function(key, value) {
			if (typeof value === 'object' && value !== null) {
				if (seen.indexOf(value) !== -1) { return '[Circular]'; }
				seen.push(value);
			}
			return value;
		};
	}
	function fmt(args) {
		var parts = [];
		for (var i = 0; i < args.length; i++) {
			var v = args[i];
			if (typeof v === 'string') { parts.push(v); continue; }
			try { parts.push(JSON.stringify(v, cycleSafe())); }
			catch (e) { parts.push(String(v)); }
		}
		return parts.join(' ');
	}
	function level(name) {
		return function() { __consoleWrite(name, fmt(arguments)); };
	}
	globalThis.console = {
		log: level('log'),
		debug: level('debug'),
		info: level('info'),
		warn: level('warn'),
		error: level('error')
	};

	// timers ------------------------------------------------------------
	var timerCallbacks = {};
	var nextHandle = 1;
	globalThis.setTimeout = function(cb, ms) {
		var h = nextHandle++;
		timerCallbacks[h] = cb;
		__scheduleTimer(h, ms || 0, false);
		return h;
	};
	globalThis.setInterval = function(cb, ms) {
		var h = nextHandle++;
		timerCallbacks[h] = cb;
		__scheduleTimer(h, ms || 0, true);
		return h;
	};
	globalThis.clearTimeout = function(h) {
		delete timerCallbacks[h];
		__cancelTimer(h);
	};
	globalThis.clearInterval = globalThis.clearTimeout;
	globalThis.queueMicrotask = function(cb) { globalThis.setTimeout(cb, 0); };
	globalThis.__fireTimer = function(h, repeating) {
		var cb = timerCallbacks[h];
		if (!cb) { return; }
		if (!repeating) { delete timerCallbacks[h]; }
		try { cb(); }
		catch (e) { __reportGuestError(String(e && e.stack || e)); }
	};

	// require -----------------------------------------------------------
	var moduleCache = {};
	globalThis.require = function(name) {
		if (moduleCache[name]) { return moduleCache[name].exports; }
		var src = __resolveModule(name);
		var module = { exports: {} };
		moduleCache[name] = module;
		var factory = new Function('module', 'exports', 'require', src);
		factory(module, module.exports, globalThis.require);
		return module.exports;
	};

	// host events -------------------------------------------------------
	var hostEventHandlers = {};
	globalThis.__useHostEvent = function(name, cb) {
		(hostEventHandlers[name] = hostEventHandlers[name] || []).push(cb);
		return function() {
			var list = hostEventHandlers[name] || [];
			var i = list.indexOf(cb);
			if (i !== -1) { list.splice(i, 1); }
		};
	};
	globalThis.__handleHostEvent = function(name, payload) {
		var list = hostEventHandlers[name] || [];
		for (var i = 0; i < list.length; i++) {
			try { list[i](payload); }
			catch (e) { __reportGuestError(String(e && e.stack || e)); }
		}
	};

	// guest-side callback registry --------------------------------------
	var callbacks = {};
	globalThis.__registerCallback = function(id, fn) { callbacks[id] = fn; };
	globalThis.__releaseCallback = function(id) { delete callbacks[id]; };
	globalThis.__invokeCallback = function(id, args) {
		var fn = callbacks[id];
		if (!fn) { return undefined; }
		return fn.apply(null, args || []);
	};

	// host message dispatch ---------------------------------------------
	globalThis.__config = {};
	globalThis.__handleHostMessage = function(msg) {
		if (!msg || !msg.type) { return; }
		switch (msg.type) {
		case 'CALL_FUNCTION':
			try { __invokeCallback(msg.fnId, msg.args); }
			catch (e) { __reportGuestError(String(e && e.stack || e)); }
			break;
		case 'HOST_EVENT':
			__handleHostEvent(msg.eventName, msg.payload);
			break;
		case 'CONFIG_UPDATE':
			var cfg = msg.config || {};
			for (var k in cfg) { globalThis.__config[k] = cfg[k]; }
			break;
		case 'DESTROY':
			// Torn down host-side; nothing to unwind here.
			break;
		}
	};

	// element rewrapping ------------------------------------------------
	// Elements authored in another engine lose their Symbol tags; the
	// string markers survive and are rewrapped into host-native ones.
	globalThis.__rewrapElement = function(el, h, Fragment) {
		if (el === null || el === undefined || typeof el !== 'object') { return el; }
		if (Array.isArray(el)) {
			var out = [];
			for (var i = 0; i < el.length; i++) { out.push(__rewrapElement(el[i], h, Fragment)); }
			return out;
		}
		if (!el.__isElement) { return el; }
		var type = el.__isFragment ? Fragment : el.type;
		var props = {};
		var source = el.props || {};
		for (var key in source) {
			if (key !== 'children') { props[key] = source[key]; }
		}
		if (el.key !== null && el.key !== undefined) { props.key = el.key; }
		var children = __rewrapElement(source.children, h, Fragment);
		if (Array.isArray(children)) {
			return h.apply(null, [type, props].concat(children));
		}
		if (children === undefined) { return h(type, props); }
		return h(type, props, children);
	};
})();
`
