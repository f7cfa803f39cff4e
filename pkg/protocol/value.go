package protocol

import (
	"math"
	"reflect"
)

// Marker keys for values that cannot cross the boundary directly.
const (
	MarkerTypeKey  = "__type"
	MarkerFunction = "function"
	MarkerRef      = "ref"
	FnIDKey        = "__fnId"
	RefIDKey       = "__refId"
)

// FunctionMarker builds the wire stand-in for a function prop.
func FunctionMarker(fnID string) map[string]any {
	return map[string]any{MarkerTypeKey: MarkerFunction, FnIDKey: fnID}
}

// AsFunctionMarker reports whether v is a function marker and returns
// its fnId.
func AsFunctionMarker(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	if t, _ := m[MarkerTypeKey].(string); t != MarkerFunction {
		return "", false
	}
	id, ok := m[FnIDKey].(string)
	return id, ok && id != ""
}

// RefMarker builds the wire stand-in for a ref prop.
func RefMarker(refID string) map[string]any {
	return map[string]any{MarkerTypeKey: MarkerRef, RefIDKey: refID}
}

// AsRefMarker reports whether v is a ref marker and returns its refId.
func AsRefMarker(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	if t, _ := m[MarkerTypeKey].(string); t != MarkerRef {
		return "", false
	}
	id, ok := m[RefIDKey].(string)
	return id, ok && id != ""
}

// NormalizeValue deep-copies v into the canonical wire shape:
// map[string]any, []any, float64, string, bool, or nil. Integer kinds
// collapse to float64 so that values compare equal regardless of which
// side of the boundary produced them. Cyclic references break to an
// empty container of the same shape; values with no wire rendering
// (funcs, channels) become nil.
func NormalizeValue(v any) any {
	return normalize(v, make(map[uintptr]struct{}), 0)
}

func normalize(v any, seen map[uintptr]struct{}, depth int) any {
	if v == nil || depth > MaxValueDepth {
		return nil
	}
	switch t := v.(type) {
	case bool, string, float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case []any:
		ptr := reflect.ValueOf(t).Pointer()
		if _, cyclic := seen[ptr]; cyclic {
			return []any{}
		}
		seen[ptr] = struct{}{}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e, seen, depth+1)
		}
		delete(seen, ptr)
		return out
	case map[string]any:
		ptr := reflect.ValueOf(t).Pointer()
		if _, cyclic := seen[ptr]; cyclic {
			return map[string]any{}
		}
		seen[ptr] = struct{}{}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e, seen, depth+1)
		}
		delete(seen, ptr)
		return out
	}

	// Fall back to reflection for other slices and maps exported by
	// the sandbox (e.g. []string, map[string]string).
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalize(rv.Index(i).Interface(), seen, depth+1)
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		for _, key := range rv.MapKeys() {
			k, ok := key.Interface().(string)
			if !ok {
				continue
			}
			out[k] = normalize(rv.MapIndex(key).Interface(), seen, depth+1)
		}
		return out
	}
	return nil
}

// ValueEqual reports structural equality of two normalized values.
// NaN compares equal to NaN so diff logic treats it as unchanged.
func ValueEqual(a, b any) bool {
	an, bn := NormalizeValue(a), NormalizeValue(b)
	return valueEqual(an, bn)
}

func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch at := a.(type) {
	case float64:
		bt, ok := b.(float64)
		if !ok {
			return false
		}
		if math.IsNaN(at) && math.IsNaN(bt) {
			return true
		}
		return at == bt
	case string:
		bt, ok := b.(string)
		return ok && at == bt
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !valueEqual(at[i], bt[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, av := range at {
			bv, present := bt[k]
			if !present || !valueEqual(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}
