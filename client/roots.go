package client

import (
	"sync"

	"github.com/lattice-mcp/mcp-sdk-go/protocol"
)

// RootsRegistry holds the filesystem roots this client advertises to a
// server via roots/list, with a subscribable mutation hook so the owning
// Client can emit notifications/roots/list_changed.
type RootsRegistry struct {
	mu       sync.RWMutex
	roots    []protocol.Root
	onChange []func()
}

// NewRootsRegistry builds an empty registry.
func NewRootsRegistry() *RootsRegistry {
	return &RootsRegistry{}
}

// Set replaces the full root list and fires change callbacks.
func (r *RootsRegistry) Set(roots []protocol.Root) {
	r.mu.Lock()
	r.roots = append([]protocol.Root(nil), roots...)
	callbacks := append([]func(){}, r.onChange...)
	r.mu.Unlock()
	for _, cb := range callbacks {
		cb()
	}
}

// List returns the current root set.
func (r *RootsRegistry) List() []protocol.Root {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]protocol.Root(nil), r.roots...)
}

// OnChange registers a callback invoked after every Set. A Client uses this
// to send notifications/roots/list_changed when the client itself
// advertised ClientCapabilities.Roots.ListChanged.
func (r *RootsRegistry) OnChange(fn func()) {
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}
