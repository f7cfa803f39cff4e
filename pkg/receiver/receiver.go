package receiver

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/weld-ui/weld/pkg/callback"
	"github.com/weld-ui/weld/pkg/protocol"
	"github.com/weld-ui/weld/pkg/registry"
)

// Config tunes a Receiver.
type Config struct {
	// MaxBatchSize caps how many operations one batch may apply.
	// Excess operations are skipped and reported. Zero means no cap.
	MaxBatchSize int

	// Components resolves type names for Render. Nil renders every
	// type as unknown.
	Components *registry.Registry

	// Callbacks is the host-side registry shared with a host-driven
	// renderer. Function ids referenced by deleted nodes are released
	// from it. Optional.
	Callbacks *callback.Registry

	// Dispatch carries CALL_FUNCTION messages from invoked function
	// props toward the guest.
	Dispatch DispatchFunc

	// OnUpdate fires, coalesced, after batches mutate the tree.
	OnUpdate func()

	// Schedule defers a coalesced notification to the end of the
	// current turn. Nil falls back to a zero-delay timer.
	Schedule func(func())

	// Logger receives warnings. Nil falls back to slog.Default().
	Logger *slog.Logger
}

// ApplyResult reports what one batch did.
type ApplyResult struct {
	BatchID       uint64
	Applied       int
	Skipped       int // dropped by the MaxBatchSize cap
	Failed        int // precondition violations (warned, skipped)
	Duration      time.Duration
	OpsByType     map[string]int
	SkippedByType map[string]int
	FailedByType  map[string]int
	NodesCreated  int
	NodesDeleted  int
	NodeCount     int // tree size after the batch
}

// Totals aggregates across every batch applied.
type Totals struct {
	Batches uint64
	Ops     uint64
	Applied uint64
	Skipped uint64
	Failed  uint64
}

// Stats is the rolling receiver view.
type Stats struct {
	Last      ApplyResult
	Totals    Totals
	NodeCount int
	RootCount int
}

// Receiver applies operation batches to the shadow tree.
type Receiver struct {
	mu          sync.Mutex
	nodes       map[uint32]*NodeInstance
	roots       []uint32
	fnOwners    map[uint32][]string
	cfg         Config
	logger      *slog.Logger
	lastBatchID uint64
	last        ApplyResult
	totals      Totals
	warnedTypes map[string]struct{}

	notifyMu  sync.Mutex
	scheduled bool
}

// New creates an empty receiver.
func New(cfg Config) *Receiver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == nil {
		cfg.Schedule = func(f func()) { time.AfterFunc(0, f) }
	}
	return &Receiver{
		nodes:       make(map[uint32]*NodeInstance),
		fnOwners:    make(map[uint32][]string),
		cfg:         cfg,
		logger:      logger,
		warnedTypes: make(map[string]struct{}),
	}
}

// ApplyBatch applies operations in array order, stopping application
// (but not accounting) at the MaxBatchSize cap. Applied operations are
// never rolled back; the guest re-converges on its next commit.
func (r *Receiver) ApplyBatch(batch *protocol.Batch) ApplyResult {
	start := time.Now()
	r.mu.Lock()

	if r.lastBatchID != 0 && batch.BatchID <= r.lastBatchID {
		r.logger.Warn("receiver: batch id not increasing",
			"batchId", batch.BatchID, "lastBatchId", r.lastBatchID)
	}
	if batch.BatchID > r.lastBatchID {
		r.lastBatchID = batch.BatchID
	}

	res := ApplyResult{
		BatchID:       batch.BatchID,
		OpsByType:     make(map[string]int),
		SkippedByType: make(map[string]int),
		FailedByType:  make(map[string]int),
	}
	for i, op := range batch.Operations {
		res.OpsByType[op.Op.String()]++
		if r.cfg.MaxBatchSize > 0 && i >= r.cfg.MaxBatchSize {
			res.Skipped++
			res.SkippedByType[op.Op.String()]++
			continue
		}
		if r.applyOne(op, &res) {
			res.Applied++
		} else {
			res.Failed++
			res.FailedByType[op.Op.String()]++
		}
	}
	if res.Skipped > 0 {
		r.logger.Warn("receiver: batch exceeded cap",
			"batchId", batch.BatchID, "cap", r.cfg.MaxBatchSize, "skipped", res.Skipped)
	}

	res.Duration = time.Since(start)
	res.NodeCount = len(r.nodes)
	r.last = res
	r.totals.Batches++
	r.totals.Ops += uint64(len(batch.Operations))
	r.totals.Applied += uint64(res.Applied)
	r.totals.Skipped += uint64(res.Skipped)
	r.totals.Failed += uint64(res.Failed)
	r.mu.Unlock()

	r.scheduleNotify()
	return res
}

// applyOne applies a single operation under the lock. It reports false
// on a precondition violation.
func (r *Receiver) applyOne(op protocol.Operation, res *ApplyResult) bool {
	switch op.Op {
	case protocol.OpCreate:
		return r.applyCreate(op, res)
	case protocol.OpUpdate:
		return r.applyUpdate(op)
	case protocol.OpAppend:
		return r.applyAppend(op)
	case protocol.OpInsert:
		return r.applyInsert(op)
	case protocol.OpRemove:
		return r.applyRemove(op)
	case protocol.OpDelete:
		return r.applyDelete(op, res)
	case protocol.OpReorder:
		return r.applyReorder(op)
	case protocol.OpText:
		return r.applyText(op)
	default:
		r.logger.Warn("receiver: unknown operation", "op", op.Op)
		return false
	}
}

func (r *Receiver) applyCreate(op protocol.Operation, res *ApplyResult) bool {
	if op.ID == protocol.RootNodeID {
		r.logger.Warn("receiver: CREATE of reserved root id")
		return false
	}
	parent := NoParent
	if existing := r.nodes[op.ID]; existing != nil {
		r.logger.Warn("receiver: CREATE of existing node, replacing", "id", op.ID)
		r.releaseNode(op.ID)
		// The replacement keeps the attachment slot; the old node's
		// children become detached.
		parent = existing.Parent
		for _, childID := range existing.Children {
			if child := r.nodes[childID]; child != nil {
				child.Parent = NoParent
			}
		}
	}
	props, fnIDs := deserializeProps(op.Props, r.cfg.Dispatch)
	if props == nil {
		props = make(map[string]any)
	}
	r.nodes[op.ID] = &NodeInstance{
		ID:     op.ID,
		Type:   op.Type,
		Props:  props,
		Parent: parent,
	}
	if len(fnIDs) > 0 {
		r.fnOwners[op.ID] = fnIDs
	}
	res.NodesCreated++
	return true
}

func (r *Receiver) applyUpdate(op protocol.Operation) bool {
	node := r.nodes[op.ID]
	if node == nil {
		r.logger.Warn("receiver: UPDATE of unknown node", "id", op.ID)
		return false
	}
	for _, key := range op.RemovedProps {
		delete(node.Props, key)
	}
	newProps, _ := deserializeProps(op.Props, r.cfg.Dispatch)
	for key, value := range newProps {
		node.Props[key] = value
	}

	// Function-id set replacement: release ids no longer referenced.
	var current []string
	collectFnIDs(node.Props, &current)
	live := make(map[string]struct{}, len(current))
	for _, id := range current {
		live[id] = struct{}{}
	}
	if r.cfg.Callbacks != nil {
		for _, id := range r.fnOwners[op.ID] {
			if _, ok := live[id]; !ok {
				r.cfg.Callbacks.Release(id)
			}
		}
	}
	if len(current) > 0 {
		r.fnOwners[op.ID] = current
	} else {
		delete(r.fnOwners, op.ID)
	}
	return true
}

func (r *Receiver) applyAppend(op protocol.Operation) bool {
	if !r.parentExists(op.ParentID) {
		r.logger.Warn("receiver: APPEND to unknown parent", "parentId", op.ParentID, "childId", op.ChildID)
		return false
	}
	child := r.nodes[op.ChildID]
	if child == nil {
		r.logger.Warn("receiver: APPEND of unknown child", "parentId", op.ParentID, "childId", op.ChildID)
		return false
	}
	if r.indexOf(op.ParentID, op.ChildID) >= 0 {
		return true // idempotent
	}
	r.detach(op.ChildID)
	list := r.childList(op.ParentID)
	*list = append(*list, op.ChildID)
	child.Parent = op.ParentID
	return true
}

func (r *Receiver) applyInsert(op protocol.Operation) bool {
	if !r.parentExists(op.ParentID) {
		r.logger.Warn("receiver: INSERT into unknown parent", "parentId", op.ParentID, "childId", op.ChildID)
		return false
	}
	child := r.nodes[op.ChildID]
	if child == nil {
		r.logger.Warn("receiver: INSERT of unknown child", "parentId", op.ParentID, "childId", op.ChildID)
		return false
	}
	r.detach(op.ChildID)
	list := r.childList(op.ParentID)
	index := op.Index
	if index < 0 || index > len(*list) {
		r.logger.Warn("receiver: INSERT index out of range, clamping",
			"parentId", op.ParentID, "index", index, "len", len(*list))
		if index < 0 {
			index = 0
		} else {
			index = len(*list)
		}
	}
	*list = append(*list, 0)
	copy((*list)[index+1:], (*list)[index:])
	(*list)[index] = op.ChildID
	child.Parent = op.ParentID
	return true
}

func (r *Receiver) applyRemove(op protocol.Operation) bool {
	if !r.parentExists(op.ParentID) {
		r.logger.Warn("receiver: REMOVE from unknown parent", "parentId", op.ParentID, "childId", op.ChildID)
		return false
	}
	if r.indexOf(op.ParentID, op.ChildID) < 0 {
		r.logger.Warn("receiver: REMOVE of absent child", "parentId", op.ParentID, "childId", op.ChildID)
		return false
	}
	r.detach(op.ChildID)
	return true
}

func (r *Receiver) applyDelete(op protocol.Operation, res *ApplyResult) bool {
	if r.nodes[op.ID] == nil {
		r.logger.Warn("receiver: DELETE of unknown node", "id", op.ID)
		return false
	}
	r.deleteCascade(op.ID, res)
	return true
}

// deleteCascade detaches id and drops its entire subtree depth-first,
// releasing every function id the subtree referenced.
func (r *Receiver) deleteCascade(id uint32, res *ApplyResult) {
	node := r.nodes[id]
	if node == nil {
		return
	}
	r.detach(id)
	children := make([]uint32, len(node.Children))
	copy(children, node.Children)
	for _, child := range children {
		r.deleteCascade(child, res)
	}
	r.releaseNode(id)
	delete(r.nodes, id)
	if res != nil {
		res.NodesDeleted++
	}
}

func (r *Receiver) applyReorder(op protocol.Operation) bool {
	if !r.parentExists(op.ParentID) {
		r.logger.Warn("receiver: REORDER of unknown parent", "parentId", op.ParentID)
		return false
	}
	list := r.childList(op.ParentID)
	if !isPermutation(*list, op.ChildIDs) {
		r.logger.Warn("receiver: REORDER is not a permutation of current children",
			"parentId", op.ParentID, "current", *list, "proposed", op.ChildIDs)
		return false
	}
	next := make([]uint32, len(op.ChildIDs))
	copy(next, op.ChildIDs)
	*list = next
	return true
}

func (r *Receiver) applyText(op protocol.Operation) bool {
	node := r.nodes[op.ID]
	if node == nil {
		r.logger.Warn("receiver: TEXT for unknown node", "id", op.ID)
		return false
	}
	if node.Props == nil {
		node.Props = make(map[string]any)
	}
	node.Props["text"] = op.Text
	return true
}

// releaseNode releases the function ids owned by id.
func (r *Receiver) releaseNode(id uint32) {
	if ids := r.fnOwners[id]; len(ids) > 0 && r.cfg.Callbacks != nil {
		r.cfg.Callbacks.ReleaseMany(ids)
	}
	delete(r.fnOwners, id)
}

// Clear drops every node and root child. Idempotent.
func (r *Receiver) Clear() {
	r.mu.Lock()
	for id := range r.nodes {
		r.releaseNode(id)
	}
	r.nodes = make(map[uint32]*NodeInstance)
	r.roots = nil
	r.mu.Unlock()
	r.scheduleNotify()
}

// GetStats returns the last-batch and rolling view.
func (r *Receiver) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Last:      r.last,
		Totals:    r.totals,
		NodeCount: len(r.nodes),
		RootCount: len(r.roots),
	}
}

// TypeOf returns the type of a live node, or "" for unknown ids.
func (r *Receiver) TypeOf(id uint32) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := r.nodes[id]; n != nil {
		return n.Type
	}
	return ""
}

// NodeCount returns the shadow tree size.
func (r *Receiver) NodeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

// DebugNode is a snapshot of one shadow node.
type DebugNode struct {
	ID       uint32   `json:"id"`
	Type     string   `json:"type"`
	Parent   uint32   `json:"parent"`
	Children []uint32 `json:"children,omitempty"`
	PropKeys []string `json:"propKeys,omitempty"`
}

// DebugInfo is a point-in-time snapshot of the shadow tree.
type DebugInfo struct {
	Roots []uint32    `json:"roots"`
	Nodes []DebugNode `json:"nodes"`
}

// GetDebugInfo snapshots the shadow tree for diagnostics.
func (r *Receiver) GetDebugInfo() DebugInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := DebugInfo{Roots: append([]uint32(nil), r.roots...)}
	ids := make([]uint32, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		n := r.nodes[id]
		keys := make([]string, 0, len(n.Props))
		for k := range n.Props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		info.Nodes = append(info.Nodes, DebugNode{
			ID:       n.ID,
			Type:     n.Type,
			Parent:   n.Parent,
			Children: append([]uint32(nil), n.Children...),
			PropKeys: keys,
		})
	}
	return info
}

// scheduleNotify coalesces onUpdate: any number of batches applied
// before the scheduled turn runs produce a single notification.
func (r *Receiver) scheduleNotify() {
	if r.cfg.OnUpdate == nil {
		return
	}
	r.notifyMu.Lock()
	if r.scheduled {
		r.notifyMu.Unlock()
		return
	}
	r.scheduled = true
	r.notifyMu.Unlock()
	r.cfg.Schedule(func() {
		r.notifyMu.Lock()
		r.scheduled = false
		r.notifyMu.Unlock()
		r.cfg.OnUpdate()
	})
}

func (r *Receiver) parentExists(id uint32) bool {
	return id == protocol.RootNodeID || r.nodes[id] != nil
}

func (r *Receiver) childList(parentID uint32) *[]uint32 {
	if parentID == protocol.RootNodeID {
		return &r.roots
	}
	return &r.nodes[parentID].Children
}

func (r *Receiver) indexOf(parentID, childID uint32) int {
	for i, id := range *r.childList(parentID) {
		if id == childID {
			return i
		}
	}
	return -1
}

// detach removes childID from whatever currently holds it.
func (r *Receiver) detach(childID uint32) {
	child := r.nodes[childID]
	if child == nil || !child.attached() {
		return
	}
	if child.Parent != protocol.RootNodeID && r.nodes[child.Parent] == nil {
		child.Parent = NoParent
		return
	}
	list := r.childList(child.Parent)
	for i, id := range *list {
		if id == childID {
			*list = append((*list)[:i], (*list)[i+1:]...)
			break
		}
	}
	child.Parent = NoParent
}

// isPermutation reports whether proposed is a strict permutation of
// current.
func isPermutation(current, proposed []uint32) bool {
	if len(current) != len(proposed) {
		return false
	}
	counts := make(map[uint32]int, len(current))
	for _, id := range current {
		counts[id]++
	}
	for _, id := range proposed {
		counts[id]--
		if counts[id] < 0 {
			return false
		}
	}
	return true
}
