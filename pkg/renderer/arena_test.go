package renderer

import (
	"testing"

	"github.com/weld-ui/weld/pkg/protocol"
)

func TestArenaIDsMonotonic(t *testing.T) {
	a := NewArena()
	n1 := a.New("View")
	n2 := a.New("View")
	if n1.ID != 1 || n2.ID != 2 {
		t.Errorf("ids = %d, %d; want 1, 2", n1.ID, n2.ID)
	}
	if n1.attached() {
		t.Error("new node should be detached")
	}
}

func TestArenaAttachDetach(t *testing.T) {
	a := NewArena()
	parent := a.New("View")
	child := a.New("Text")

	a.Attach(parent.ID, child.ID)
	if child.Parent != parent.ID {
		t.Errorf("Parent = %d, want %d", child.Parent, parent.ID)
	}
	if len(parent.Children) != 1 || parent.Children[0] != child.ID {
		t.Errorf("Children = %v", parent.Children)
	}

	// Re-attaching moves, never duplicates.
	other := a.New("View")
	a.Attach(other.ID, child.ID)
	if len(parent.Children) != 0 {
		t.Errorf("old parent children = %v", parent.Children)
	}
	if len(other.Children) != 1 {
		t.Errorf("new parent children = %v", other.Children)
	}

	a.Detach(child.ID)
	a.Detach(child.ID) // no-op
	if child.attached() {
		t.Error("child should be detached")
	}
	if len(other.Children) != 0 {
		t.Errorf("children = %v", other.Children)
	}
}

func TestArenaRootContainer(t *testing.T) {
	a := NewArena()
	n := a.New("View")
	a.Attach(protocol.RootNodeID, n.ID)
	if len(a.Roots()) != 1 || a.Roots()[0] != n.ID {
		t.Errorf("Roots = %v", a.Roots())
	}
	if n.Parent != protocol.RootNodeID {
		t.Errorf("Parent = %d, want root", n.Parent)
	}
	a.Detach(n.ID)
	if len(a.Roots()) != 0 {
		t.Errorf("Roots = %v", a.Roots())
	}
}

func TestArenaAttachAt(t *testing.T) {
	a := NewArena()
	parent := a.New("View")
	c1, c2, c3 := a.New("A"), a.New("B"), a.New("C")
	a.Attach(parent.ID, c1.ID)
	a.Attach(parent.ID, c2.ID)

	a.AttachAt(parent.ID, c3.ID, 1)
	want := []uint32{c1.ID, c3.ID, c2.ID}
	for i, id := range want {
		if parent.Children[i] != id {
			t.Fatalf("Children = %v, want %v", parent.Children, want)
		}
	}

	// Out-of-range clamps.
	c4 := a.New("D")
	a.AttachAt(parent.ID, c4.ID, 99)
	if parent.Children[len(parent.Children)-1] != c4.ID {
		t.Errorf("Children = %v, want c4 last", parent.Children)
	}
	c5 := a.New("E")
	a.AttachAt(parent.ID, c5.ID, -3)
	if parent.Children[0] != c5.ID {
		t.Errorf("Children = %v, want c5 first", parent.Children)
	}
}

func TestArenaSubtreeAndDrop(t *testing.T) {
	a := NewArena()
	root := a.New("View")
	mid := a.New("View")
	leaf := a.New("Text")
	a.Attach(protocol.RootNodeID, root.ID)
	a.Attach(root.ID, mid.ID)
	a.Attach(mid.ID, leaf.ID)

	sub := a.Subtree(root.ID)
	if len(sub) != 3 || sub[0] != root.ID || sub[1] != mid.ID || sub[2] != leaf.ID {
		t.Errorf("Subtree = %v", sub)
	}

	a.Drop(root.ID)
	if a.Len() != 0 {
		t.Errorf("Len = %d, want 0", a.Len())
	}
	if len(a.Roots()) != 0 {
		t.Errorf("Roots = %v, want empty", a.Roots())
	}
}
