// Package api exposes live execution contexts over HTTP for
// diagnostics: pool statistics, size-query probes and alloc/release
// soak cycles.
package api

import (
	"sort"
	"sync"

	"github.com/jbaileyhandle/quarry/pkg/engine"
)

// entry pairs a context with the lock that serializes HTTP access to
// it. Contexts themselves are single-caller; the registry supplies the
// external locking the engine requires when handlers share one.
type entry struct {
	mu  sync.Mutex
	ctx *engine.Context
}

// Registry tracks the contexts the server owns.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Add registers a context under its ID.
func (r *Registry) Add(ctx *engine.Context) {
	r.mu.Lock()
	r.entries[ctx.ID()] = &entry{ctx: ctx}
	r.mu.Unlock()
}

// Remove unregisters and returns the context; the caller closes it.
func (r *Registry) Remove(id string) (*engine.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)
	e.mu.Lock() // wait out any in-flight handler
	defer e.mu.Unlock()
	return e.ctx, true
}

func (r *Registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// IDs returns the registered context IDs in stable order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll tears down every registered context, for server shutdown.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, e := range r.entries {
		e.mu.Lock()
		if err := e.ctx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		e.mu.Unlock()
		delete(r.entries, id)
	}
	return firstErr
}
