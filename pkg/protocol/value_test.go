package protocol

import "testing"

func TestNormalizeValuePrimitives(t *testing.T) {
	cases := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{true, true},
		{"s", "s"},
		{int(3), float64(3)},
		{int64(9), float64(9)},
		{uint32(7), float64(7)},
		{float32(1.5), float64(1.5)},
	}
	for _, c := range cases {
		if got := NormalizeValue(c.in); got != c.want {
			t.Errorf("NormalizeValue(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNormalizeValueBreaksCycle(t *testing.T) {
	m := map[string]any{"a": 1}
	m["self"] = m
	out, ok := NormalizeValue(m).(map[string]any)
	if !ok {
		t.Fatalf("normalized to %T", NormalizeValue(m))
	}
	inner, ok := out["self"].(map[string]any)
	if !ok || len(inner) != 0 {
		t.Errorf("cycle broke to %v, want empty object", out["self"])
	}

	self := []any{nil}
	self[0] = self
	outSlice, ok := NormalizeValue(self).([]any)
	if !ok {
		t.Fatalf("normalized to %T", NormalizeValue(self))
	}
	broken, ok := outSlice[0].([]any)
	if !ok || len(broken) != 0 {
		t.Errorf("slice cycle broke to %v, want empty array", outSlice[0])
	}
}

func TestNormalizeValueDropsFuncs(t *testing.T) {
	out := NormalizeValue(map[string]any{"f": func() {}})
	m := out.(map[string]any)
	if m["f"] != nil {
		t.Errorf("func normalized to %v, want nil", m["f"])
	}
}

func TestNormalizeValueTypedSlices(t *testing.T) {
	out := NormalizeValue(map[string]any{"tags": []string{"a", "b"}})
	m := out.(map[string]any)
	tags, ok := m["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "a" {
		t.Errorf("tags = %v", m["tags"])
	}
}

// JSON-safe props must survive serialize-then-deserialize structurally
// unchanged.
func TestRoundTripIdentity(t *testing.T) {
	props := map[string]any{
		"title":  "hello",
		"count":  float64(3),
		"nested": map[string]any{"deep": []any{float64(1), "two", true, nil}},
		"flags":  []any{true, false},
	}
	batch := &Batch{Version: Version, BatchID: 1, Operations: []Operation{Create(1, "View", props)}}
	data, err := batch.EncodeJSON()
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	decoded, err := DecodeBatchJSON(data)
	if err != nil {
		t.Fatalf("DecodeBatchJSON: %v", err)
	}
	if !ValueEqual(props, decoded.Operations[0].Props) {
		t.Errorf("round trip changed props:\n in  %v\n out %v", props, decoded.Operations[0].Props)
	}
}

func TestValueEqual(t *testing.T) {
	if !ValueEqual(map[string]any{"a": int64(1)}, map[string]any{"a": float64(1)}) {
		t.Error("int64 and float64 with same value should compare equal")
	}
	if ValueEqual([]any{1, 2}, []any{2, 1}) {
		t.Error("order must matter for arrays")
	}
	if ValueEqual(map[string]any{"a": 1}, map[string]any{"a": 1, "b": 2}) {
		t.Error("extra keys must break equality")
	}
}

func TestFunctionMarker(t *testing.T) {
	marker := FunctionMarker("fn_1_7")
	id, ok := AsFunctionMarker(marker)
	if !ok || id != "fn_1_7" {
		t.Errorf("AsFunctionMarker = %q, %v", id, ok)
	}
	if _, ok := AsFunctionMarker(map[string]any{"__type": "ref", "__refId": "r1"}); ok {
		t.Error("ref marker mistaken for function marker")
	}
	if _, ok := AsFunctionMarker("fn_1_7"); ok {
		t.Error("plain string mistaken for function marker")
	}

	refID, ok := AsRefMarker(RefMarker("r9"))
	if !ok || refID != "r9" {
		t.Errorf("AsRefMarker = %q, %v", refID, ok)
	}
}
