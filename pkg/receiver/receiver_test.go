package receiver

import (
	"testing"

	"github.com/weld-ui/weld/pkg/callback"
	"github.com/weld-ui/weld/pkg/protocol"
	"github.com/weld-ui/weld/pkg/registry"
)

// scheduler queues scheduled notifications until drain runs them, so
// tests can observe coalescing deterministically.
type scheduler struct {
	queue []func()
}

func (s *scheduler) schedule(f func()) { s.queue = append(s.queue, f) }

func (s *scheduler) drain() {
	for len(s.queue) > 0 {
		f := s.queue[0]
		s.queue = s.queue[1:]
		f()
	}
}

func batchOf(id uint64, ops ...protocol.Operation) *protocol.Batch {
	return &protocol.Batch{Version: protocol.Version, BatchID: id, Operations: ops}
}

func newTestReceiver(cfg Config) *Receiver {
	if cfg.Components == nil {
		reg := registry.New(false, nil)
		reg.Register("View", "viewComponent")
		reg.Register("Text", "textComponent")
		reg.Register("TouchableOpacity", "touchableComponent")
		cfg.Components = reg
	}
	return New(cfg)
}

func TestApplySimpleTree(t *testing.T) {
	r := newTestReceiver(Config{})
	res := r.ApplyBatch(batchOf(1,
		protocol.Create(1, "View", map[string]any{"testID": "t"}),
		protocol.CreateText(2, "Hello"),
		protocol.Append(1, 2),
		protocol.Append(protocol.RootNodeID, 1),
	))
	if res.Applied != 4 || res.Failed != 0 || res.Skipped != 0 {
		t.Fatalf("result = %+v", res)
	}
	if r.NodeCount() != 2 {
		t.Errorf("NodeCount = %d, want 2", r.NodeCount())
	}

	out, ok := r.Render().(*Renderable)
	if !ok {
		t.Fatalf("Render = %T", r.Render())
	}
	if out.Type != "View" || out.Props["testID"] != "t" {
		t.Errorf("root = %+v", out)
	}
	if len(out.Children) != 1 || out.Children[0] != "Hello" {
		t.Errorf("children = %v", out.Children)
	}
}

func TestCreateDeleteRoundTrip(t *testing.T) {
	reg := callback.New(nil)
	r := newTestReceiver(Config{Callbacks: reg})
	r.ApplyBatch(batchOf(1,
		protocol.Create(1, "View", nil),
		protocol.Delete(1),
	))
	if r.NodeCount() != 0 {
		t.Errorf("NodeCount = %d, want 0", r.NodeCount())
	}
	if reg.Size() != 0 {
		t.Errorf("registry size = %d, want 0", reg.Size())
	}
	if r.Render() != nil {
		t.Errorf("Render = %v, want nil", r.Render())
	}
}

func TestRemoveLeavesOrphan(t *testing.T) {
	r := newTestReceiver(Config{})
	r.ApplyBatch(batchOf(1,
		protocol.Create(1, "View", nil),
		protocol.Create(2, "View", nil),
		protocol.Append(protocol.RootNodeID, 1),
		protocol.Append(1, 2),
		protocol.Remove(1, 2),
	))
	if r.NodeCount() != 2 {
		t.Errorf("NodeCount = %d, want 2 (orphan retained)", r.NodeCount())
	}
	info := r.GetDebugInfo()
	if len(info.Roots) != 1 {
		t.Errorf("Roots = %v", info.Roots)
	}
	for _, n := range info.Nodes {
		if n.ID == 2 && n.Parent != NoParent {
			t.Errorf("node 2 parent = %d, want detached", n.Parent)
		}
		if n.ID == 1 && len(n.Children) != 0 {
			t.Errorf("node 1 children = %v, want empty", n.Children)
		}
	}
}

func TestRemovalCascade(t *testing.T) {
	reg := callback.New(nil)
	fnID := reg.Register(func([]any) (any, error) { return nil, nil })
	r := newTestReceiver(Config{Callbacks: reg})

	r.ApplyBatch(batchOf(1,
		protocol.Create(1, "View", map[string]any{"onLayout": protocol.FunctionMarker(fnID)}),
		protocol.CreateText(2, "Hello"),
		protocol.Append(1, 2),
		protocol.Append(protocol.RootNodeID, 1),
	))
	if !reg.Has(fnID) {
		t.Fatal("fn id should be registered while node lives")
	}

	res := r.ApplyBatch(batchOf(2, protocol.Delete(1)))
	if res.NodesDeleted != 2 {
		t.Errorf("NodesDeleted = %d, want 2", res.NodesDeleted)
	}
	if r.NodeCount() != 0 {
		t.Errorf("NodeCount = %d, want 0", r.NodeCount())
	}
	if reg.Has(fnID) {
		t.Error("fn id should be released after DELETE")
	}
	if r.Render() != nil {
		t.Error("Render should be nil after cascade")
	}
}

func TestAppendIdempotent(t *testing.T) {
	r := newTestReceiver(Config{})
	res := r.ApplyBatch(batchOf(1,
		protocol.Create(1, "View", nil),
		protocol.Append(protocol.RootNodeID, 1),
		protocol.Append(protocol.RootNodeID, 1),
	))
	if res.Applied != 3 {
		t.Errorf("Applied = %d, want 3 (duplicate append is a no-op, not a violation)", res.Applied)
	}
	if len(r.GetDebugInfo().Roots) != 1 {
		t.Errorf("Roots = %v", r.GetDebugInfo().Roots)
	}
}

func TestAppendViolations(t *testing.T) {
	r := newTestReceiver(Config{})
	res := r.ApplyBatch(batchOf(1,
		protocol.Append(protocol.RootNodeID, 9), // child never created
		protocol.Create(1, "View", nil),
		protocol.Append(5, 1), // unknown parent
	))
	if res.Failed != 2 {
		t.Errorf("Failed = %d, want 2: %+v", res.Failed, res)
	}
	if res.FailedByType["APPEND"] != 2 {
		t.Errorf("FailedByType = %v", res.FailedByType)
	}
}

func TestInsertClampsIndex(t *testing.T) {
	r := newTestReceiver(Config{})
	r.ApplyBatch(batchOf(1,
		protocol.Create(1, "View", nil),
		protocol.Create(2, "View", nil),
		protocol.Create(3, "View", nil),
		protocol.Append(protocol.RootNodeID, 1),
		protocol.Append(1, 2),
		protocol.Insert(1, 3, 99),
	))
	info := r.GetDebugInfo()
	for _, n := range info.Nodes {
		if n.ID == 1 {
			if len(n.Children) != 2 || n.Children[1] != 3 {
				t.Errorf("children = %v, want [2 3]", n.Children)
			}
		}
	}
}

func TestInsertDeduplicates(t *testing.T) {
	r := newTestReceiver(Config{})
	r.ApplyBatch(batchOf(1,
		protocol.Create(1, "View", nil),
		protocol.Create(2, "View", nil),
		protocol.Create(3, "View", nil),
		protocol.Append(1, 2),
		protocol.Append(1, 3),
		protocol.Insert(1, 3, 0), // move, not duplicate
	))
	for _, n := range r.GetDebugInfo().Nodes {
		if n.ID == 1 {
			if len(n.Children) != 2 || n.Children[0] != 3 || n.Children[1] != 2 {
				t.Errorf("children = %v, want [3 2]", n.Children)
			}
		}
	}
}

func TestReorder(t *testing.T) {
	r := newTestReceiver(Config{})
	r.ApplyBatch(batchOf(1,
		protocol.Create(1, "View", nil),
		protocol.Create(2, "View", nil),
		protocol.Create(3, "View", nil),
		protocol.Append(protocol.RootNodeID, 1),
		protocol.Append(1, 2),
		protocol.Append(1, 3),
	))

	res := r.ApplyBatch(batchOf(2, protocol.Reorder(1, []uint32{3, 2})))
	if res.Failed != 0 {
		t.Fatalf("reorder failed: %+v", res)
	}
	for _, n := range r.GetDebugInfo().Nodes {
		if n.ID == 1 && (n.Children[0] != 3 || n.Children[1] != 2) {
			t.Errorf("children = %v, want [3 2]", n.Children)
		}
	}

	// Identity reorder is a no-op that still applies.
	res = r.ApplyBatch(batchOf(3, protocol.Reorder(1, []uint32{3, 2})))
	if res.Applied != 1 {
		t.Errorf("identity reorder: %+v", res)
	}

	// Non-permutation is rejected.
	res = r.ApplyBatch(batchOf(4, protocol.Reorder(1, []uint32{2, 2})))
	if res.Failed != 1 {
		t.Errorf("non-permutation accepted: %+v", res)
	}
	res = r.ApplyBatch(batchOf(5, protocol.Reorder(1, []uint32{2})))
	if res.Failed != 1 {
		t.Errorf("short list accepted: %+v", res)
	}
}

func TestUpdateUnknownSkips(t *testing.T) {
	r := newTestReceiver(Config{})
	res := r.ApplyBatch(batchOf(1, protocol.Update(42, map[string]any{"a": 1}, nil)))
	if res.Failed != 1 || res.Applied != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestUpdateMergeAndRemove(t *testing.T) {
	r := newTestReceiver(Config{})
	r.ApplyBatch(batchOf(1,
		protocol.Create(1, "View", map[string]any{"a": float64(1), "b": "x"}),
		protocol.Append(protocol.RootNodeID, 1),
	))
	r.ApplyBatch(batchOf(2, protocol.Update(1, map[string]any{"c": true}, []string{"b"})))

	out := r.Render().(*Renderable)
	if out.Props["c"] != true {
		t.Errorf("c = %v", out.Props["c"])
	}
	if _, ok := out.Props["b"]; ok {
		t.Error("removed prop b survived")
	}
	if !protocol.ValueEqual(out.Props["a"], 1) {
		t.Errorf("a = %v", out.Props["a"])
	}
}

func TestTextAndUpdateTextBothAccepted(t *testing.T) {
	r := newTestReceiver(Config{})
	r.ApplyBatch(batchOf(1,
		protocol.CreateText(1, "one"),
		protocol.Append(protocol.RootNodeID, 1),
	))

	r.ApplyBatch(batchOf(2, protocol.SetText(1, "two")))
	if got := r.Render(); got != "two" {
		t.Errorf("Render = %v, want two", got)
	}

	r.ApplyBatch(batchOf(3, protocol.Update(1, map[string]any{"text": "three"}, nil)))
	if got := r.Render(); got != "three" {
		t.Errorf("Render = %v, want three", got)
	}
}

func TestBackpressureCap(t *testing.T) {
	r := newTestReceiver(Config{MaxBatchSize: 3})
	res := r.ApplyBatch(batchOf(1,
		protocol.Create(1, "View", nil),
		protocol.Create(2, "View", nil),
		protocol.Create(3, "View", nil),
		protocol.Create(4, "View", nil),
		protocol.Create(5, "View", nil),
	))
	if res.Applied != 3 || res.Skipped != 2 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.SkippedByType["CREATE"] != 2 {
		t.Errorf("SkippedByType = %v", res.SkippedByType)
	}
	if r.NodeCount() != 3 {
		t.Errorf("NodeCount = %d, want 3", r.NodeCount())
	}

	stats := r.GetStats()
	if stats.Totals.Skipped != 2 || stats.Totals.Applied != 3 {
		t.Errorf("Totals = %+v", stats.Totals)
	}
}

func TestFunctionPropDispatch(t *testing.T) {
	var sent []protocol.HostMessage
	r := newTestReceiver(Config{
		Dispatch: func(msg protocol.HostMessage) { sent = append(sent, msg) },
	})
	r.ApplyBatch(batchOf(1,
		protocol.Create(1, "TouchableOpacity", map[string]any{
			"onPress": protocol.FunctionMarker("fn_1_1"),
		}),
		protocol.Append(protocol.RootNodeID, 1),
	))

	out := r.Render().(*Renderable)
	fn, ok := out.Props["onPress"].(*FuncProp)
	if !ok {
		t.Fatalf("onPress = %T", out.Props["onPress"])
	}
	fn.Invoke()
	if len(sent) != 1 {
		t.Fatalf("sent = %v", sent)
	}
	if sent[0].Type != protocol.MsgCallFunction || sent[0].FnID != "fn_1_1" {
		t.Errorf("msg = %+v", sent[0])
	}
	if sent[0].Args == nil || len(sent[0].Args) != 0 {
		t.Errorf("args = %v, want empty slice", sent[0].Args)
	}
}

func TestRefPropDispatch(t *testing.T) {
	var sent []protocol.HostMessage
	r := newTestReceiver(Config{
		Dispatch: func(msg protocol.HostMessage) { sent = append(sent, msg) },
	})
	r.ApplyBatch(batchOf(1,
		protocol.Create(1, "View", map[string]any{"ref": protocol.RefMarker("ref_1")}),
		protocol.Append(protocol.RootNodeID, 1),
	))
	ref := r.Render().(*Renderable).Props["ref"].(*RefProp)
	ref.Call("focus", true)
	if len(sent) != 1 || sent[0].FnID != "ref_1" {
		t.Fatalf("sent = %+v", sent)
	}
	if sent[0].Args[0] != "focus" || sent[0].Args[1] != true {
		t.Errorf("args = %v", sent[0].Args)
	}
}

func TestRenderFragmentAndUnknown(t *testing.T) {
	r := newTestReceiver(Config{})
	r.ApplyBatch(batchOf(1,
		protocol.Create(1, "View", nil),
		protocol.Create(2, "Mystery", nil),
		protocol.Create(3, "View", nil),
		protocol.Append(protocol.RootNodeID, 1),
		protocol.Append(protocol.RootNodeID, 2),
		protocol.Append(protocol.RootNodeID, 3),
	))
	out := r.Render().(*Renderable)
	if out.Type != FragmentType {
		t.Fatalf("Render = %+v", out)
	}
	// The unknown type renders to nothing.
	if len(out.Children) != 2 {
		t.Errorf("children = %v", out.Children)
	}
}

func TestOnUpdateCoalesced(t *testing.T) {
	sched := &scheduler{}
	updates := 0
	r := newTestReceiver(Config{
		OnUpdate: func() { updates++ },
		Schedule: sched.schedule,
	})

	r.ApplyBatch(batchOf(1, protocol.Create(1, "View", nil)))
	r.ApplyBatch(batchOf(2, protocol.Create(2, "View", nil)))
	r.ApplyBatch(batchOf(3, protocol.Create(3, "View", nil)))
	if updates != 0 {
		t.Fatalf("updates fired before drain: %d", updates)
	}

	sched.drain()
	if updates != 1 {
		t.Errorf("updates = %d, want 1 (coalesced)", updates)
	}

	// A later turn notifies again.
	r.ApplyBatch(batchOf(4, protocol.Create(4, "View", nil)))
	sched.drain()
	if updates != 2 {
		t.Errorf("updates = %d, want 2", updates)
	}
}

func TestClearIdempotent(t *testing.T) {
	r := newTestReceiver(Config{})
	r.ApplyBatch(batchOf(1,
		protocol.Create(1, "View", nil),
		protocol.Append(protocol.RootNodeID, 1),
	))
	r.Clear()
	r.Clear()
	if r.NodeCount() != 0 || r.Render() != nil {
		t.Errorf("tree not empty after Clear")
	}
}

func TestCreateExistingReplaces(t *testing.T) {
	r := newTestReceiver(Config{})
	r.ApplyBatch(batchOf(1,
		protocol.Create(1, "View", map[string]any{"v": float64(1)}),
		protocol.Create(1, "Text", map[string]any{"v": float64(2)}),
	))
	if r.NodeCount() != 1 {
		t.Fatalf("NodeCount = %d", r.NodeCount())
	}
	for _, n := range r.GetDebugInfo().Nodes {
		if n.Type != "Text" {
			t.Errorf("type = %q, want Text (replaced)", n.Type)
		}
	}
}
