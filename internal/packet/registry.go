/**
 * Packet Component Registry.
 *
 * A process-wide, append-only name<->id table. Every component type a
 * handler wants to attach to a packet registers a name once at startup
 * and gets back a dense integer id; the same name always resolves to the
 * same id for the lifetime of the process.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package packet

import "sync"

// ComponentID is a dense, process-wide identifier for a packet component
// slot, handed out by Registry.Register.
type ComponentID int

// Registry assigns and resolves component ids. The zero value is not
// usable; use NewRegistry or DefaultRegistry.
type Registry struct {
	mu      sync.RWMutex
	nameIDs map[string]ComponentID
	names   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{nameIDs: make(map[string]ComponentID)}
}

// DefaultRegistry is the process-wide registry used by Packet.New when no
// explicit registry is supplied, mirroring the single global component
// table, with lookups in both directions.
var DefaultRegistry = NewRegistry()

// Register returns the id for name, allocating a new one on first use.
// Safe for concurrent use; always returns the same id for the same name.
func (r *Registry) Register(name string) ComponentID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.nameIDs[name]; ok {
		return id
	}
	id := ComponentID(len(r.names))
	r.names = append(r.names, name)
	r.nameIDs[name] = id
	return id
}

// Lookup returns the id already registered for name, if any.
func (r *Registry) Lookup(name string) (ComponentID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameIDs[name]
	return id, ok
}

// Name returns the name registered for id, if any.
func (r *Registry) Name(id ComponentID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) < 0 || int(id) >= len(r.names) {
		return "", false
	}
	return r.names[id], true
}

// Len returns the number of registered component slots, i.e. the size a
// new Packet's component table must have to hold every registered id.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
