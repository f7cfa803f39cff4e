// Package callback maps opaque function ids to host-held closures.
//
// Function props never cross the isolation boundary as code. The
// renderer registers the function here and ships the marker
// {__type: "function", __fnId} instead; the Host invokes through the
// registry when the marker's thunk fires.
package callback

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Func is a registered callback. Args arrive as the deserialized wire
// values of the invocation.
type Func func(args []any) (any, error)

// instanceSeq distinguishes registries within one process so that
// multiple guests never collide on function ids.
var instanceSeq atomic.Uint64

// Entry is one registered callback.
type Entry struct {
	ID          string
	Fn          Func
	OwnerNodeID uint32 // 0 when the callback has no owning node
}

// Registry maps opaque ids to functions. Ids are unique for the
// registry's lifetime; released ids are never reused.
type Registry struct {
	mu       sync.Mutex
	instance uint64
	seq      uint64
	entries  map[string]Entry
	logger   *slog.Logger
}

// New creates an empty registry. A nil logger falls back to
// slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		instance: instanceSeq.Add(1),
		entries:  make(map[string]Entry),
		logger:   logger,
	}
}

// Register stores fn and returns its id.
func (r *Registry) Register(fn Func) string {
	return r.RegisterOwned(fn, 0)
}

// RegisterOwned stores fn attributed to the given node id.
func (r *Registry) RegisterOwned(fn Func, ownerNodeID uint32) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	id := fmt.Sprintf("fn_%d_%d", r.instance, r.seq)
	r.entries[id] = Entry{ID: id, Fn: fn, OwnerNodeID: ownerNodeID}
	return id
}

// Invoke calls the function registered under id. An unknown id logs a
// warning and returns (nil, nil). An error from the function is logged
// and returned to the caller.
func (r *Registry) Invoke(id string, args []any) (any, error) {
	r.mu.Lock()
	entry, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		r.logger.Warn("callback: invoke of unknown id", "fnId", id)
		return nil, nil
	}
	result, err := entry.Fn(args)
	if err != nil {
		r.logger.Error("callback: invocation failed", "fnId", id, "error", err)
		return nil, err
	}
	return result, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Release drops one id. Releasing an unknown id is a no-op.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// ReleaseMany drops a set of ids.
func (r *Registry) ReleaseMany(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.entries, id)
	}
}

// Clear drops every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Entry)
}

// Size returns the number of live registrations.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
