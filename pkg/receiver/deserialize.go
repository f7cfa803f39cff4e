package receiver

import (
	"github.com/weld-ui/weld/pkg/protocol"
)

// DispatchFunc carries a HostMessage toward the guest.
type DispatchFunc func(protocol.HostMessage)

// FuncProp is the host-side stand-in for a guest function prop.
// Invoking it dispatches CALL_FUNCTION across the boundary; the
// result, if any, stays on the guest side.
type FuncProp struct {
	FnID     string
	dispatch DispatchFunc
}

// Invoke fires the callback with the given arguments.
func (f *FuncProp) Invoke(args ...any) {
	if f.dispatch == nil {
		return
	}
	if args == nil {
		args = []any{}
	}
	f.dispatch(protocol.CallFunction(f.FnID, args))
}

// RefProp is the host-side stand-in for a guest ref. Method calls
// forward over the function channel with the method name prepended to
// the arguments.
type RefProp struct {
	RefID    string
	dispatch DispatchFunc
}

// Call forwards a method invocation to the referenced guest object.
func (r *RefProp) Call(method string, args ...any) {
	if r.dispatch == nil {
		return
	}
	r.dispatch(protocol.CallFunction(r.RefID, append([]any{method}, args...)))
}

// deserializeProps is the inverse of the renderer's serialization:
// function markers become FuncProp thunks, ref markers become RefProp
// handles, containers recurse. The returned slice lists every function
// id referenced by the props.
func deserializeProps(props map[string]any, dispatch DispatchFunc) (map[string]any, []string) {
	if props == nil {
		return nil, nil
	}
	d := &deserializer{dispatch: dispatch}
	out := make(map[string]any, len(props))
	for key, value := range props {
		out[key] = d.value(value)
	}
	return out, d.fnIDs
}

type deserializer struct {
	dispatch DispatchFunc
	fnIDs    []string
}

func (d *deserializer) value(v any) any {
	if fnID, ok := protocol.AsFunctionMarker(v); ok {
		d.fnIDs = append(d.fnIDs, fnID)
		return &FuncProp{FnID: fnID, dispatch: d.dispatch}
	}
	if refID, ok := protocol.AsRefMarker(v); ok {
		return &RefProp{RefID: refID, dispatch: d.dispatch}
	}
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = d.value(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = d.value(e)
		}
		return out
	}
	return v
}

// collectFnIDs walks already-deserialized props and lists the function
// ids they reference.
func collectFnIDs(v any, out *[]string) {
	switch t := v.(type) {
	case *FuncProp:
		*out = append(*out, t.FnID)
	case []any:
		for _, e := range t {
			collectFnIDs(e, out)
		}
	case map[string]any:
		for _, e := range t {
			collectFnIDs(e, out)
		}
	}
}
