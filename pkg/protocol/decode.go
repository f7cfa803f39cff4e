package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Decode errors.
var (
	ErrUnknownOp      = errors.New("protocol: unknown operation")
	ErrUnknownMessage = errors.New("protocol: unknown message type")
	ErrMalformedBatch = errors.New("protocol: malformed batch")
	ErrTooManyOps     = errors.New("protocol: too many operations in batch")
	ErrValueTooDeep   = errors.New("protocol: value nesting too deep")
)

// DecodeBatch normalizes a value exported from the sandbox (or parsed
// from JSON) into a typed Batch. The input is typically the
// map[string]any tree a JS runtime produces for
// {version, batchId, operations: [...]}.
func DecodeBatch(v any) (*Batch, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: batch is %T, want object", ErrMalformedBatch, v)
	}
	batch := &Batch{Version: Version}
	if ver, ok := asInt(m["version"]); ok {
		batch.Version = ver
	}
	if id, ok := asInt(m["batchId"]); ok && id >= 0 {
		batch.BatchID = uint64(id)
	}
	rawOps, ok := m["operations"].([]any)
	if !ok {
		if m["operations"] == nil {
			return batch, nil
		}
		return nil, fmt.Errorf("%w: operations is %T, want array", ErrMalformedBatch, m["operations"])
	}
	if len(rawOps) > MaxOpsPerBatch {
		return nil, fmt.Errorf("%w: %d", ErrTooManyOps, len(rawOps))
	}
	batch.Operations = make([]Operation, 0, len(rawOps))
	for i, raw := range rawOps {
		op, err := DecodeOperation(raw)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		batch.Operations = append(batch.Operations, op)
	}
	return batch, nil
}

// DecodeOperation normalizes one exported operation record.
func DecodeOperation(v any) (Operation, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Operation{}, fmt.Errorf("%w: operation is %T, want object", ErrMalformedBatch, v)
	}
	tag, _ := m["op"].(string)
	code, ok := ParseOpCode(tag)
	if !ok {
		return Operation{}, fmt.Errorf("%w: %q", ErrUnknownOp, tag)
	}

	op := Operation{Op: code}
	if id, ok := asInt(m["id"]); ok && id >= 0 {
		op.ID = uint32(id)
	}
	if pid, ok := asInt(m["parentId"]); ok && pid >= 0 {
		op.ParentID = uint32(pid)
	}
	if cid, ok := asInt(m["childId"]); ok && cid >= 0 {
		op.ChildID = uint32(cid)
	}
	if idx, ok := asInt(m["index"]); ok {
		op.Index = idx
	}
	if typ, ok := m["type"].(string); ok {
		op.Type = typ
	}
	if text, ok := m["text"].(string); ok {
		op.Text = text
	}
	if props, ok := m["props"].(map[string]any); ok {
		normalized, err := decodeProps(props)
		if err != nil {
			return Operation{}, err
		}
		op.Props = normalized
	}
	if removed, ok := m["removedProps"].([]any); ok {
		op.RemovedProps = make([]string, 0, len(removed))
		for _, r := range removed {
			if key, ok := r.(string); ok {
				op.RemovedProps = append(op.RemovedProps, key)
			}
		}
	}
	if children, ok := m["childIds"].([]any); ok {
		if len(children) > MaxChildIDs {
			return Operation{}, fmt.Errorf("%w: %d child ids", ErrTooManyOps, len(children))
		}
		op.ChildIDs = make([]uint32, 0, len(children))
		for _, c := range children {
			if cid, ok := asInt(c); ok && cid >= 0 {
				op.ChildIDs = append(op.ChildIDs, uint32(cid))
			}
		}
	}
	return op, nil
}

// decodeProps normalizes a prop tree and rejects over-deep nesting.
func decodeProps(props map[string]any) (map[string]any, error) {
	if err := checkValueDepth(props, 0); err != nil {
		return nil, err
	}
	out, _ := NormalizeValue(props).(map[string]any)
	return out, nil
}

func checkValueDepth(v any, depth int) error {
	if depth > MaxValueDepth {
		return ErrValueTooDeep
	}
	switch t := v.(type) {
	case map[string]any:
		for _, e := range t {
			if err := checkValueDepth(e, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range t {
			if err := checkValueDepth(e, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// asInt extracts an integral value from the numeric types a sandbox
// export or JSON decode can produce.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// EncodeJSON renders a batch for transport to diagnostics consumers.
func (b *Batch) EncodeJSON() ([]byte, error) {
	return json.Marshal(b)
}

// DecodeBatchJSON parses a batch from its JSON rendering.
func DecodeBatchJSON(data []byte) (*Batch, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	return DecodeBatch(m)
}
