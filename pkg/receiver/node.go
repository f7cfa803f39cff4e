package receiver

// NoParent marks a node that is not attached to any parent or to the
// root container.
const NoParent = ^uint32(0)

// NodeInstance is one host-side shadow node. Children are stored as
// ordered ids; for every child id the corresponding instance exists
// and points back here.
type NodeInstance struct {
	ID       uint32
	Type     string
	Props    map[string]any
	Children []uint32
	Parent   uint32 // NoParent when detached
}

func (n *NodeInstance) attached() bool { return n.Parent != NoParent }

// Text returns the text content of a text node.
func (n *NodeInstance) Text() string {
	s, _ := n.Props["text"].(string)
	return s
}
