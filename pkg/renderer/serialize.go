package renderer

import (
	"reflect"
	"strings"

	"github.com/weld-ui/weld/pkg/callback"
	"github.com/weld-ui/weld/pkg/protocol"
)

// serializeProps converts raw props into their wire form. The
// "children" key and any key with the reserved "__" prefix are
// excluded. Functions at any depth register with the registry and
// become id markers; the returned slice lists the ids registered
// during this pass. Cyclic references break to an empty container.
func serializeProps(props map[string]any, reg *callback.Registry, ownerID uint32) (map[string]any, []string) {
	if props == nil {
		return nil, nil
	}
	s := &serializer{reg: reg, ownerID: ownerID, seen: make(map[uintptr]struct{})}
	out := make(map[string]any, len(props))
	for key, value := range props {
		if key == "children" || strings.HasPrefix(key, protocol.ReservedPrefix) {
			continue
		}
		out[key] = s.value(value)
	}
	return out, s.fnIDs
}

type serializer struct {
	reg     *callback.Registry
	ownerID uint32
	seen    map[uintptr]struct{}
	fnIDs   []string
}

func (s *serializer) value(v any) any {
	if v == nil {
		return nil
	}
	if fn := asCallback(v); fn != nil {
		id := s.reg.RegisterOwned(fn, s.ownerID)
		s.fnIDs = append(s.fnIDs, id)
		return protocol.FunctionMarker(id)
	}
	switch t := v.(type) {
	case []any:
		ptr := reflect.ValueOf(t).Pointer()
		if _, cyclic := s.seen[ptr]; cyclic {
			return []any{}
		}
		s.seen[ptr] = struct{}{}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = s.value(e)
		}
		delete(s.seen, ptr)
		return out
	case map[string]any:
		ptr := reflect.ValueOf(t).Pointer()
		if _, cyclic := s.seen[ptr]; cyclic {
			return map[string]any{}
		}
		s.seen[ptr] = struct{}{}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = s.value(e)
		}
		delete(s.seen, ptr)
		return out
	}
	return protocol.NormalizeValue(v)
}

// asCallback adapts a prop value of function kind into a registry
// callback. callback.Func values pass through; other signatures are
// bridged with reflection so arbitrary handler shapes work.
func asCallback(v any) callback.Func {
	if fn, ok := v.(callback.Func); ok {
		return fn
	}
	if fn, ok := v.(func(args []any) (any, error)); ok {
		return fn
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Func {
		return nil
	}
	return func(args []any) (any, error) {
		return reflectCall(rv, args)
	}
}

// reflectCall invokes fn with args coerced to its parameter types.
// Missing args, and args neither assignable nor convertible to the
// parameter type, become zero values; extra args are
// dropped for non-variadic functions.
func reflectCall(fn reflect.Value, args []any) (any, error) {
	ft := fn.Type()
	numIn := ft.NumIn()
	in := make([]reflect.Value, 0, numIn)
	for i := 0; i < numIn; i++ {
		paramType := ft.In(i)
		if ft.IsVariadic() && i == numIn-1 {
			elem := paramType.Elem()
			for j := i; j < len(args); j++ {
				in = append(in, coerce(args[j], elem))
			}
			break
		}
		if i < len(args) {
			in = append(in, coerce(args[i], paramType))
		} else {
			in = append(in, reflect.Zero(paramType))
		}
	}

	out := fn.Call(in)
	var result any
	var err error
	for _, o := range out {
		if e, ok := o.Interface().(error); ok {
			err = e
			continue
		}
		if result == nil {
			result = o.Interface()
		}
	}
	return result, err
}

func coerce(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv
	}
	if rv.Type().ConvertibleTo(t) {
		return rv.Convert(t)
	}
	return reflect.Zero(t)
}
