package renderer

import (
	"log/slog"

	"github.com/weld-ui/weld/pkg/callback"
	"github.com/weld-ui/weld/pkg/protocol"
)

// Renderer is the host-config surface a reconciler drives. Every
// mutation appends operations to the collector; nothing touches host
// widgets.
type Renderer struct {
	arena     *Arena
	collector *Collector
	callbacks *callback.Registry
	logger    *slog.Logger
}

// New creates a renderer dispatching committed batches through send.
// The callback registry is shared with the host side of the channel so
// CALL_FUNCTION can resolve ids without a guest round trip.
func New(callbacks *callback.Registry, send SendFunc, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		arena:     NewArena(),
		collector: NewCollector(send),
		callbacks: callbacks,
		logger:    logger,
	}
}

// Arena exposes the guest-side node graph, mainly for tests and
// diagnostics.
func (r *Renderer) Arena() *Arena { return r.arena }

// CreateInstance allocates a node of the given type, serializes its
// props, and emits CREATE. It returns the new node's id.
func (r *Renderer) CreateInstance(typ string, props map[string]any) uint32 {
	node := r.arena.New(typ)
	serialized, fnIDs := serializeProps(props, r.callbacks, node.ID)
	node.Props = serialized
	for _, id := range fnIDs {
		node.RegisteredFnIDs[id] = struct{}{}
	}
	r.collector.Append(protocol.Create(node.ID, typ, serialized))
	return node.ID
}

// CreateTextInstance allocates a text node and emits its CREATE.
func (r *Renderer) CreateTextInstance(text string) uint32 {
	node := r.arena.New(protocol.TextType)
	node.Props = map[string]any{"text": text}
	r.collector.Append(protocol.CreateText(node.ID, text))
	return node.ID
}

// AppendChild attaches child to parent and emits APPEND. A child
// scheduled for deletion is rescued by re-attachment.
func (r *Renderer) AppendChild(parentID, childID uint32) {
	if r.arena.Get(childID) == nil {
		r.logger.Warn("renderer: append of unknown child", "childId", childID)
		return
	}
	r.collector.Unmark(childID)
	r.arena.Attach(parentID, childID)
	r.collector.Append(protocol.Append(parentID, childID))
}

// AppendChildToContainer attaches child to the root container.
func (r *Renderer) AppendChildToContainer(childID uint32) {
	r.AppendChild(protocol.RootNodeID, childID)
}

// InsertBefore splices child in front of before in parent's children
// and emits INSERT. When before is not among parent's children the
// child lands at the end.
func (r *Renderer) InsertBefore(parentID, childID, beforeID uint32) {
	if r.arena.Get(childID) == nil {
		r.logger.Warn("renderer: insert of unknown child", "childId", childID)
		return
	}
	index := r.arena.IndexOf(parentID, beforeID)
	if index < 0 {
		index = len(r.childIDs(parentID))
	} else if current := r.arena.IndexOf(parentID, childID); current >= 0 && current < index {
		// The child vacates an earlier slot; the target shifts left.
		index--
	}
	r.collector.Unmark(childID)
	r.arena.AttachAt(parentID, childID, index)
	r.collector.Append(protocol.Insert(parentID, childID, index))
}

// InsertInContainerBefore splices child into the root container.
func (r *Renderer) InsertInContainerBefore(childID, beforeID uint32) {
	r.InsertBefore(protocol.RootNodeID, childID, beforeID)
}

// RemoveChild detaches child from parent, emits REMOVE, and schedules
// the child for deletion at commit unless it is re-attached first.
func (r *Renderer) RemoveChild(parentID, childID uint32) {
	if r.arena.Get(childID) == nil {
		r.logger.Warn("renderer: remove of unknown child", "childId", childID)
		return
	}
	r.arena.Detach(childID)
	r.collector.Append(protocol.Remove(parentID, childID))
	r.collector.MarkPendingDelete(childID)
}

// RemoveChildFromContainer detaches child from the root container.
func (r *Renderer) RemoveChildFromContainer(childID uint32) {
	r.RemoveChild(protocol.RootNodeID, childID)
}

// CommitUpdate diffs a node's props at commit. Previously registered
// function ids are released before the new props serialize; the UPDATE
// carries the changed keys plus removedProps for keys that vanished.
func (r *Renderer) CommitUpdate(id uint32, newProps map[string]any) {
	node := r.arena.Get(id)
	if node == nil {
		r.logger.Warn("renderer: update of unknown node", "id", id)
		return
	}

	oldIDs := make([]string, 0, len(node.RegisteredFnIDs))
	for fnID := range node.RegisteredFnIDs {
		oldIDs = append(oldIDs, fnID)
	}
	r.callbacks.ReleaseMany(oldIDs)
	node.RegisteredFnIDs = make(map[string]struct{})

	serialized, fnIDs := serializeProps(newProps, r.callbacks, id)
	for _, fnID := range fnIDs {
		node.RegisteredFnIDs[fnID] = struct{}{}
	}

	changed := make(map[string]any)
	for key, value := range serialized {
		if _, isFn := protocol.AsFunctionMarker(value); isFn {
			changed[key] = value
			continue
		}
		if prev, ok := node.Props[key]; !ok || !protocol.ValueEqual(prev, value) {
			changed[key] = value
		}
	}
	var removed []string
	for key := range node.Props {
		if _, ok := serialized[key]; !ok {
			removed = append(removed, key)
		}
	}
	node.Props = serialized

	if len(changed) == 0 && len(removed) == 0 {
		return
	}
	r.collector.Append(protocol.Update(id, changed, removed))
}

// CommitTextUpdate emits TEXT for a text-node content change.
func (r *Renderer) CommitTextUpdate(id uint32, text string) {
	node := r.arena.Get(id)
	if node == nil {
		r.logger.Warn("renderer: text update of unknown node", "id", id)
		return
	}
	if prev, _ := node.Props["text"].(string); prev == text {
		return
	}
	node.Props["text"] = text
	r.collector.Append(protocol.SetText(id, text))
}

// ClearContainer unmounts every top-level child: each emits REMOVE and
// is scheduled for deletion at commit.
func (r *Renderer) ClearContainer() {
	roots := make([]uint32, len(r.arena.Roots()))
	copy(roots, r.arena.Roots())
	for _, id := range roots {
		r.RemoveChildFromContainer(id)
	}
}

// ResetAfterCommit is the commit boundary. Nodes still scheduled for
// deletion emit cascading DELETEs, their subtree callbacks are
// released, and the whole batch dispatches with a fresh batch id.
func (r *Renderer) ResetAfterCommit() {
	for _, id := range r.collector.PendingDeletes() {
		r.deleteSubtree(id)
	}
	r.collector.Flush()
}

// deleteSubtree releases every function id registered in id's subtree,
// emits DELETE for the subtree root, and drops the nodes. The receiver
// cascades the DELETE on its side.
func (r *Renderer) deleteSubtree(id uint32) {
	node := r.arena.Get(id)
	if node == nil {
		return
	}
	var fnIDs []string
	for _, nid := range r.arena.Subtree(id) {
		if n := r.arena.Get(nid); n != nil {
			for fnID := range n.RegisteredFnIDs {
				fnIDs = append(fnIDs, fnID)
			}
		}
	}
	r.callbacks.ReleaseMany(fnIDs)
	r.collector.Append(protocol.Delete(id))
	r.arena.Drop(id)
}

func (r *Renderer) childIDs(parentID uint32) []uint32 {
	if parentID == protocol.RootNodeID {
		return r.arena.Roots()
	}
	if parent := r.arena.Get(parentID); parent != nil {
		return parent.Children
	}
	return nil
}
