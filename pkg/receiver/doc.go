// Package receiver interprets operation batches on the Host.
//
// The Receiver maintains the shadow tree: one NodeInstance per live
// guest node, keyed by id, with parent/child edges mirrored from the
// guest's commits. ApplyBatch applies operations in array order under
// a backpressure cap, deserializes props (function markers become
// dispatching thunks), and coalesces change notification so a burst of
// batches yields one onUpdate. Render rebuilds the displayable tree on
// demand by resolving component names against the whitelist registry.
//
// Precondition violations never throw: the offending operation logs a
// warning, counts as failed, and the batch continues. The guest is
// append-only and state-reproducing, so a partially-applied tree heals
// on its next commit.
package receiver
