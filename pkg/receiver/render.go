package receiver

import (
	"github.com/weld-ui/weld/pkg/protocol"
	"github.com/weld-ui/weld/pkg/registry"
)

// FragmentType tags the synthetic renderable grouping multiple roots.
const FragmentType = "Fragment"

// Renderable is one node of the displayable tree Render produces.
// Children holds *Renderable values and plain strings (text nodes).
type Renderable struct {
	NodeID    uint32
	Type      string
	Component registry.Component // nil for fragments
	Props     map[string]any
	Children  []any
}

// Render rebuilds the displayable tree: nil when the root container is
// empty, the single child when there is exactly one, a fragment
// otherwise. Text nodes render as their string; unknown component
// types render to nothing with a single warning per type.
func (r *Receiver) Render() any {
	r.mu.Lock()
	defer r.mu.Unlock()

	rendered := make([]any, 0, len(r.roots))
	for _, id := range r.roots {
		if out := r.renderNode(id); out != nil {
			rendered = append(rendered, out)
		}
	}
	switch len(rendered) {
	case 0:
		return nil
	case 1:
		return rendered[0]
	default:
		return &Renderable{Type: FragmentType, Children: rendered}
	}
}

// renderNode renders one shadow node under the lock. Text nodes yield
// their string; unknown types yield nil.
func (r *Receiver) renderNode(id uint32) any {
	node := r.nodes[id]
	if node == nil {
		return nil
	}
	if node.Type == protocol.TextType {
		return node.Text()
	}

	var component registry.Component
	if r.cfg.Components != nil {
		component = r.cfg.Components.Get(node.Type)
	}
	if component == nil {
		if _, warned := r.warnedTypes[node.Type]; !warned {
			r.warnedTypes[node.Type] = struct{}{}
			r.logger.Warn("receiver: unknown component type", "type", node.Type)
		}
		return nil
	}

	out := &Renderable{
		NodeID:    node.ID,
		Type:      node.Type,
		Component: component,
		Props:     node.Props,
	}
	for _, childID := range node.Children {
		if child := r.renderNode(childID); child != nil {
			out.Children = append(out.Children, child)
		}
	}
	return out
}
