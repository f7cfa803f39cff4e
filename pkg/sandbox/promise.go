package sandbox

import "github.com/dop251/goja"

// PromiseState mirrors the engine's view of a guest promise.
type PromiseState uint8

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

// String returns the state name.
func (s PromiseState) String() string {
	switch s {
	case PromisePending:
		return "pending"
	case PromiseFulfilled:
		return "fulfilled"
	case PromiseRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// AsPromise inspects a value exported from an eval. When the guest's
// completion value is a promise it returns the promise's state and,
// for settled promises, its exported result (for rejections, the
// reason's string form). ok is false for non-promise values.
//
// Callers poll between evals; engine job activity (timers, messages)
// is what advances a pending promise.
func AsPromise(v any) (state PromiseState, result any, ok bool) {
	p, isPromise := v.(*goja.Promise)
	if !isPromise {
		return 0, nil, false
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return PromiseFulfilled, export(p.Result()), true
	case goja.PromiseStateRejected:
		reason := p.Result()
		if reason == nil {
			return PromiseRejected, nil, true
		}
		return PromiseRejected, reason.String(), true
	default:
		return PromisePending, nil, true
	}
}
