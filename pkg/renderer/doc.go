// Package renderer translates tree mutations into the wire protocol.
//
// The renderer owns no widgets. A reconciler drives its host-config
// surface (CreateInstance, AppendChild, InsertBefore, RemoveChild,
// CommitUpdate, ...); every call mutates a guest-side VNode arena and
// appends an Operation to the batch under construction. At the commit
// boundary (ResetAfterCommit) deletions are synthesized for nodes that
// remained detached, their callbacks are released, and the whole
// ordered batch is dispatched in one piece.
//
// Function props never cross the boundary: they are registered with a
// callback registry and replaced by id markers. Serialization is
// cycle-safe; a cyclic reference breaks to an empty container so the
// wire stays structured-clone-safe.
package renderer
