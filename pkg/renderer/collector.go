package renderer

import "github.com/weld-ui/weld/pkg/protocol"

// SendFunc delivers a finished batch to the host side of the channel.
type SendFunc func(*protocol.Batch)

// Collector accumulates operations during a render pass and flushes
// them as one ordered batch at the commit boundary.
type Collector struct {
	ops     []protocol.Operation
	pending []uint32            // pending-delete ids, in removal order
	inSet   map[uint32]struct{} // membership for pending
	batchID uint64
	send    SendFunc
}

// NewCollector creates a collector dispatching through send.
func NewCollector(send SendFunc) *Collector {
	return &Collector{
		inSet: make(map[uint32]struct{}),
		send:  send,
	}
}

// Append records one operation in emission order.
func (c *Collector) Append(op protocol.Operation) {
	c.ops = append(c.ops, op)
}

// Len returns the number of buffered operations.
func (c *Collector) Len() int { return len(c.ops) }

// MarkPendingDelete schedules id for deletion at the commit boundary
// unless it is re-attached first.
func (c *Collector) MarkPendingDelete(id uint32) {
	if _, ok := c.inSet[id]; ok {
		return
	}
	c.inSet[id] = struct{}{}
	c.pending = append(c.pending, id)
}

// Unmark cancels a pending deletion (the node was re-attached).
func (c *Collector) Unmark(id uint32) {
	if _, ok := c.inSet[id]; !ok {
		return
	}
	delete(c.inSet, id)
	for i, pid := range c.pending {
		if pid == id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
}

// PendingDeletes returns the ids still scheduled for deletion, in
// removal order.
func (c *Collector) PendingDeletes() []uint32 {
	out := make([]uint32, len(c.pending))
	copy(out, c.pending)
	return out
}

// Flush dispatches the buffered operations as one batch with a fresh
// batch id and clears the buffer. An empty buffer flushes nothing.
func (c *Collector) Flush() {
	c.pending = c.pending[:0]
	for id := range c.inSet {
		delete(c.inSet, id)
	}
	if len(c.ops) == 0 {
		return
	}
	c.batchID++
	batch := &protocol.Batch{
		Version:    protocol.Version,
		BatchID:    c.batchID,
		Operations: c.ops,
	}
	c.ops = nil
	if c.send != nil {
		c.send(batch)
	}
}
