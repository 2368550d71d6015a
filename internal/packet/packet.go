/**
 * Packet.
 *
 * A generic bag of typed components indexed by a dense registered
 * integer id, built fresh for every captured frame by the ingest path
 * (capture-framework side and server side alike).
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package packet

import "time"

// Packet is the generic container the packet chain operates on. Fields
// here are carried by every packet regardless of what components are
// attached; per-layer data lives in the component table.
type Packet struct {
	registry *Registry

	Ts         time.Time
	Error      bool
	Filtered   bool
	Duplicate  bool
	CRCOk      bool
	Hash       uint32
	HasHash    bool
	PacketNo   uint64
	OriginalLen int

	components []any
}

// New builds an empty packet with a component table sized to the
// registry's current id space. Using DefaultRegistry unless reg is
// supplied keeps call sites terse while still allowing isolated tests to
// use a private registry.
func New(reg *Registry) *Packet {
	if reg == nil {
		reg = DefaultRegistry
	}
	return &Packet{
		registry:   reg,
		components: make([]any, reg.Len()),
	}
}

func (p *Packet) ensureCapacity(id ComponentID) {
	if int(id) >= len(p.components) {
		grown := make([]any, p.registry.Len())
		copy(grown, p.components)
		p.components = grown
	}
}

// Insert attaches a fully constructed component at id, replacing any
// previous value. Per the data-model invariant, handlers must never
// insert a partially populated component -- construct it fully, then
// call Insert.
func (p *Packet) Insert(id ComponentID, component any) {
	p.ensureCapacity(id)
	p.components[id] = component
}

// Fetch returns the component at id, or nil if none is attached.
func (p *Packet) Fetch(id ComponentID) any {
	if int(id) >= len(p.components) || id < 0 {
		return nil
	}
	return p.components[id]
}

// Has reports whether a component is attached at id.
func (p *Packet) Has(id ComponentID) bool {
	return p.Fetch(id) != nil
}

// Remove clears the component at id.
func (p *Packet) Remove(id ComponentID) {
	if int(id) < len(p.components) && id >= 0 {
		p.components[id] = nil
	}
}
