// Package registry implements the process-wide table mapping native
// descriptors to live handle records (C2 in the dispatch-graph design):
// used for diagnostics and for the close path to deregister. Grounded on
// internal/backend/pager.Pager's frameMap+frameRWL shape, narrowed to a
// plain sync.Mutex since entries are only ever added/removed/counted, never
// iterated under load.
package registry

import (
	"sync"

	"github.com/flowfs/afio/internal/handleref"
)

// Registry is a thread-safe descriptor -> handle mapping. Lock discipline:
// a short critical section per call, never held across I/O.
type Registry struct {
	mu      sync.Mutex
	entries map[uintptr]*handleref.Ref
}

func New() *Registry {
	return &Registry{entries: make(map[uintptr]*handleref.Ref)}
}

// Add registers h under descriptor. Called by file/dir open implementations
// immediately after a successful open.
func (r *Registry) Add(descriptor uintptr, h *handleref.Ref) {
	if descriptor == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[descriptor] = h
}

// Remove deregisters descriptor. Called from HandleRef.Close.
func (r *Registry) Remove(descriptor uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, descriptor)
}

// Count reports the number of live open handles. After a dispatcher is
// idle, Count equals the number of live open handles; after all handles
// are dropped, it is zero (Testable Property 5).
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
