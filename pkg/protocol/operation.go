package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version carried in every batch.
const Version = 1

// RootNodeID addresses the implicit root container. It is never
// created and never deleted.
const RootNodeID uint32 = 0

// TextType is the reserved type tag for text nodes. A text node
// carries a single "text" prop.
const TextType = "__TEXT__"

// ReservedPrefix marks prop keys that are protocol-internal. Keys with
// this prefix are excluded from prop serialization.
const ReservedPrefix = "__"

// OpCode is the operation type discriminator.
type OpCode uint8

const (
	OpCreate  OpCode = iota + 1 // New node instance
	OpUpdate                    // Prop diff on an existing node
	OpAppend                    // Append child to parent
	OpInsert                    // Insert child at index
	OpRemove                    // Detach child from parent
	OpDelete                    // Drop node and its subtree
	OpReorder                   // Replace a parent's child order
	OpText                      // Text-node content change
)

// String returns the wire tag for the opcode.
func (op OpCode) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpUpdate:
		return "UPDATE"
	case OpAppend:
		return "APPEND"
	case OpInsert:
		return "INSERT"
	case OpRemove:
		return "REMOVE"
	case OpDelete:
		return "DELETE"
	case OpReorder:
		return "REORDER"
	case OpText:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

// ParseOpCode maps a wire tag back to its opcode.
func ParseOpCode(s string) (OpCode, bool) {
	switch s {
	case "CREATE":
		return OpCreate, true
	case "UPDATE":
		return OpUpdate, true
	case "APPEND":
		return OpAppend, true
	case "INSERT":
		return OpInsert, true
	case "REMOVE":
		return OpRemove, true
	case "DELETE":
		return OpDelete, true
	case "REORDER":
		return OpReorder, true
	case "TEXT":
		return OpText, true
	default:
		return 0, false
	}
}

// MarshalJSON encodes the opcode as its wire tag.
func (op OpCode) MarshalJSON() ([]byte, error) {
	return json.Marshal(op.String())
}

// UnmarshalJSON decodes the opcode from its wire tag.
func (op *OpCode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseOpCode(s)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOp, s)
	}
	*op = parsed
	return nil
}

// Operation is one element of the mutation protocol. The populated
// fields depend on Op:
//
//	CREATE   ID, Type, Props
//	UPDATE   ID, Props, RemovedProps
//	APPEND   ParentID, ChildID
//	INSERT   ParentID, ChildID, Index
//	REMOVE   ParentID, ChildID
//	DELETE   ID
//	REORDER  ParentID, ChildIDs
//	TEXT     ID, Text
//
// ParentID 0 addresses the root container.
type Operation struct {
	Op           OpCode         `json:"op"`
	ID           uint32         `json:"id,omitempty"`
	Type         string         `json:"type,omitempty"`
	Props        map[string]any `json:"props,omitempty"`
	RemovedProps []string       `json:"removedProps,omitempty"`
	ParentID     uint32         `json:"parentId"`
	ChildID      uint32         `json:"childId,omitempty"`
	ChildIDs     []uint32       `json:"childIds,omitempty"`
	Index        int            `json:"index"`
	Text         string         `json:"text"`
}

// Batch is an ordered sequence of operations dispatched at one render
// commit. BatchID strictly increases per channel.
type Batch struct {
	Version    int         `json:"version"`
	BatchID    uint64      `json:"batchId"`
	Operations []Operation `json:"operations"`
}

// Create builds a CREATE operation.
func Create(id uint32, typ string, props map[string]any) Operation {
	return Operation{Op: OpCreate, ID: id, Type: typ, Props: props}
}

// CreateText builds a CREATE operation for a text node.
func CreateText(id uint32, text string) Operation {
	return Operation{Op: OpCreate, ID: id, Type: TextType, Props: map[string]any{"text": text}}
}

// Update builds an UPDATE operation.
func Update(id uint32, props map[string]any, removed []string) Operation {
	return Operation{Op: OpUpdate, ID: id, Props: props, RemovedProps: removed}
}

// Append builds an APPEND operation.
func Append(parentID, childID uint32) Operation {
	return Operation{Op: OpAppend, ParentID: parentID, ChildID: childID}
}

// Insert builds an INSERT operation.
func Insert(parentID, childID uint32, index int) Operation {
	return Operation{Op: OpInsert, ParentID: parentID, ChildID: childID, Index: index}
}

// Remove builds a REMOVE operation.
func Remove(parentID, childID uint32) Operation {
	return Operation{Op: OpRemove, ParentID: parentID, ChildID: childID}
}

// Delete builds a DELETE operation.
func Delete(id uint32) Operation {
	return Operation{Op: OpDelete, ID: id}
}

// Reorder builds a REORDER operation.
func Reorder(parentID uint32, childIDs []uint32) Operation {
	return Operation{Op: OpReorder, ParentID: parentID, ChildIDs: childIDs}
}

// SetText builds a TEXT operation.
func SetText(id uint32, text string) Operation {
	return Operation{Op: OpText, ID: id, Text: text}
}
