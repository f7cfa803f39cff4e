// Package protocol defines the mutation protocol that crosses the
// Guest/Host isolation boundary.
//
// Guests never touch host widgets. Instead a render commit produces a
// Batch: an ordered sequence of Operations describing tree mutations
// (create, append, update, delete, ...). The Host applies batches to a
// shadow tree and dispatches messages back (callback invocation, host
// events, config updates) as HostMessage values.
//
// # Design Goals
//
//   - Structured-clone-safe: every value survives the Guest↔Host
//     serializer. No symbols, no classes, no undefined entries.
//   - Closed taxonomy: the operation and message sets are fixed;
//     unknown tags are decode errors, not extension points.
//   - Order-preserving: operations apply in array order; batch ids
//     strictly increase per channel.
//
// # Reserved Identifiers
//
//   - Node id 0 addresses the root container.
//   - Type tag "__TEXT__" marks text nodes.
//   - Prop keys prefixed "__" are protocol-internal and excluded from
//     prop serialization.
//   - The marker {"__type": "function", "__fnId": id} stands in for a
//     function prop; {"__type": "ref", "__refId": id} for a ref.
//
// Values exported from a JS runtime arrive as untyped trees
// (map[string]any, []any, float64/int64, string, bool, nil). The
// decoder in this package normalizes those trees into typed Operation
// and Batch values and enforces depth and size limits.
package protocol
