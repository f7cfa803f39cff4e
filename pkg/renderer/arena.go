package renderer

import "github.com/weld-ui/weld/pkg/protocol"

// NoParent marks a detached node.
const NoParent = ^uint32(0)

// VNode is one guest-side renderable. Parent/child edges are stored as
// ids, never pointers; the arena owns the graph.
type VNode struct {
	ID       uint32
	Type     string
	Props    map[string]any // serialized form, as sent on the wire
	Children []uint32
	Parent   uint32 // NoParent when detached; RootNodeID when a root child

	// RegisteredFnIDs is the set of function ids currently registered
	// for this node's props.
	RegisteredFnIDs map[string]struct{}
}

// attached reports whether the node is in a parent's children or in
// the root container.
func (n *VNode) attached() bool { return n.Parent != NoParent }

// Arena holds every live VNode keyed by id. Ids increase monotonically
// and are unique within one engine; id 0 is the root container and is
// never allocated.
type Arena struct {
	nodes  map[uint32]*VNode
	roots  []uint32
	nextID uint32
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{nodes: make(map[uint32]*VNode)}
}

// New allocates a detached node.
func (a *Arena) New(typ string) *VNode {
	a.nextID++
	n := &VNode{
		ID:              a.nextID,
		Type:            typ,
		Parent:          NoParent,
		RegisteredFnIDs: make(map[string]struct{}),
	}
	a.nodes[n.ID] = n
	return n
}

// Get returns the node for id, or nil.
func (a *Arena) Get(id uint32) *VNode { return a.nodes[id] }

// Roots returns the root container's child ids.
func (a *Arena) Roots() []uint32 { return a.roots }

// Len returns the number of live nodes.
func (a *Arena) Len() int { return len(a.nodes) }

// Attach appends child to parent's children, detaching it from any
// previous parent first. Parent RootNodeID targets the root container.
func (a *Arena) Attach(parentID, childID uint32) {
	child := a.nodes[childID]
	if child == nil {
		return
	}
	a.Detach(childID)
	if parentID == protocol.RootNodeID {
		a.roots = append(a.roots, childID)
	} else {
		parent := a.nodes[parentID]
		if parent == nil {
			return
		}
		parent.Children = append(parent.Children, childID)
	}
	child.Parent = parentID
}

// AttachAt splices child into parent's children at index, clamped to
// the valid range.
func (a *Arena) AttachAt(parentID, childID uint32, index int) {
	child := a.nodes[childID]
	if child == nil {
		return
	}
	a.Detach(childID)
	list := a.childList(parentID)
	if list == nil {
		return
	}
	if index < 0 {
		index = 0
	}
	if index > len(*list) {
		index = len(*list)
	}
	*list = append(*list, 0)
	copy((*list)[index+1:], (*list)[index:])
	(*list)[index] = childID
	child.Parent = parentID
}

// Detach removes child from its parent's children (or the root
// container) and marks it detached. Detaching a detached node is a
// no-op.
func (a *Arena) Detach(childID uint32) {
	child := a.nodes[childID]
	if child == nil || !child.attached() {
		return
	}
	list := a.childList(child.Parent)
	if list != nil {
		for i, id := range *list {
			if id == childID {
				*list = append((*list)[:i], (*list)[i+1:]...)
				break
			}
		}
	}
	child.Parent = NoParent
}

// IndexOf returns child's position in parent's children, or -1.
func (a *Arena) IndexOf(parentID, childID uint32) int {
	list := a.childList(parentID)
	if list == nil {
		return -1
	}
	for i, id := range *list {
		if id == childID {
			return i
		}
	}
	return -1
}

// Subtree returns id and every descendant in depth-first order.
func (a *Arena) Subtree(id uint32) []uint32 {
	n := a.nodes[id]
	if n == nil {
		return nil
	}
	out := []uint32{id}
	for _, child := range n.Children {
		out = append(out, a.Subtree(child)...)
	}
	return out
}

// Drop detaches id and removes it and its entire subtree from the
// arena.
func (a *Arena) Drop(id uint32) {
	a.Detach(id)
	for _, nid := range a.Subtree(id) {
		delete(a.nodes, nid)
	}
}

func (a *Arena) childList(parentID uint32) *[]uint32 {
	if parentID == protocol.RootNodeID {
		return &a.roots
	}
	if parent := a.nodes[parentID]; parent != nil {
		return &parent.Children
	}
	return nil
}
