package cache

import (
	"sync"

	"github.com/taskdeck/taskdeck/internal/localstore"
	"github.com/taskdeck/taskdeck/internal/remote"
)

// Registry hands out one Manager per user, created lazily, so repeated
// requests for the same user share cache state. It is the only process-wide
// mutable state in the package and must be cleared at logout to prevent one
// session's cache leaking into the next.
type Registry struct {
	local  localstore.Store
	remote remote.Store
	opts   Options

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewRegistry creates a registry whose managers share the given stores and
// options.
func NewRegistry(local localstore.Store, rs remote.Store, opts Options) *Registry {
	return &Registry{
		local:    local,
		remote:   rs,
		opts:     opts,
		managers: make(map[string]*Manager),
	}
}

// Get returns the manager for userID, creating it on first request.
func (r *Registry) Get(userID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[userID]; ok {
		return m
	}
	m := NewManager(userID, r.local, r.remote, r.opts)
	r.managers[userID] = m
	return m
}

// Clear drops every cached manager. In-memory snapshots are gone after this;
// durable snapshots stay in the local store unless Manager.Clear was called
// per user first.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers = make(map[string]*Manager)
}

// Size returns the number of live managers. Intended for tests and
// diagnostics.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}
