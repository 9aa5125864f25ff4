package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler is a task-specific request processor. The core never depends on a
// handler's internals, only on this shape: handlers consume a routed request
// plus a memory context bundle and produce a response and memory deltas.
//
// The handler set is closed and registered at startup. Adding a handler means
// adding a variant plus its catalog description, not runtime type-checking.
type Handler interface {
	// ID is the stable identifier routing decisions refer to.
	ID() string

	// Description is the one-line catalog entry used in the fallback
	// classifier prompt.
	Description() string

	Handle(ctx context.Context, req *Request, bundle *ContextBundle) (*Response, *MemoryDelta, error)
}

// CatalogEntry is one row of the compact handler catalog sent to the
// fallback classifier.
type CatalogEntry struct {
	ID          string
	Description string
}

// Registry holds the fixed handler set plus the designated default/escalation
// handler used when routing cannot decide.
type Registry struct {
	mu        sync.RWMutex
	handlers  map[string]Handler
	defaultID string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. Duplicate ids are an error: the set is meant to be
// assembled once at startup.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := h.ID()
	if id == "" {
		return fmt.Errorf("register handler: empty id")
	}
	if _, exists := r.handlers[id]; exists {
		return fmt.Errorf("register handler: duplicate id %q", id)
	}
	r.handlers[id] = h
	return nil
}

// SetDefault designates the escalation handler. It must already be
// registered.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[id]; !ok {
		return fmt.Errorf("set default handler: %w: %q", ErrUnknownHandler, id)
	}
	r.defaultID = id
	return nil
}

// Get returns the handler for id.
func (r *Registry) Get(id string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[id]
	return h, ok
}

// Default returns the designated escalation handler, or nil when none is set.
func (r *Registry) Default() Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultID == "" {
		return nil
	}
	return r.handlers[r.defaultID]
}

// Known reports whether id names a registered handler.
func (r *Registry) Known(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Catalog returns id + description pairs in lexical id order, for
// deterministic prompts and tie-breaks.
func (r *Registry) Catalog() []CatalogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]CatalogEntry, 0, len(r.handlers))
	for _, h := range r.handlers {
		entries = append(entries, CatalogEntry{ID: h.ID(), Description: h.Description()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}
