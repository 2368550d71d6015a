/**
 * Packet Chain.
 *
 * A staged, priority-ordered dispatcher of registered handlers. Stages
 * run in a fixed order; within a stage, handlers run in ascending
 * priority, then registration order. A negative handler return aborts
 * further processing for that packet and marks it errored.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package packetchain

import (
	"sort"
	"sync"

	"github.com/kleaSCM/netscope/internal/packet"
)

// Stage identifies one of the fixed pipeline stages a packet passes
// through, in this order.
type Stage int

const (
	StageGenesis Stage = iota
	StagePostcap
	StageLLCDissect
	StageDecrypt
	StageDataDissect
	StageClassifier
	StageTracker
	StageLogging
	StageDestroy

	stageCount
)

func (s Stage) String() string {
	switch s {
	case StageGenesis:
		return "GENESIS"
	case StagePostcap:
		return "POSTCAP"
	case StageLLCDissect:
		return "LLCDISSECT"
	case StageDecrypt:
		return "DECRYPT"
	case StageDataDissect:
		return "DATADISSECT"
	case StageClassifier:
		return "CLASSIFIER"
	case StageTracker:
		return "TRACKER"
	case StageLogging:
		return "LOGGING"
	case StageDestroy:
		return "DESTROY"
	default:
		return "UNKNOWN"
	}
}

// HandlerFunc processes a packet during one stage. A negative return
// marks the packet errored and aborts the rest of the chain; any
// non-negative return continues normally. Handlers must be thread-safe:
// the chain executes synchronously on whichever goroutine published the
// packet, and nothing prevents two different packets running
// concurrently on two goroutines against the same handler.
type HandlerFunc func(aux any, p *packet.Packet) int

// Handle identifies a registered handler so it can later be removed.
type Handle uint64

type registration struct {
	handle   Handle
	priority int
	seq      uint64 // registration order, for priority ties
	fn       HandlerFunc
	aux      any
}

// Chain owns the registered handler set and the component registry the
// packets it processes use.
type Chain struct {
	mu       sync.RWMutex
	stages   [stageCount][]registration
	nextSeq  uint64
	nextHnd  uint64
	registry *packet.Registry
}

// New returns an empty chain. Pass nil to use packet.DefaultRegistry.
func New(reg *packet.Registry) *Chain {
	if reg == nil {
		reg = packet.DefaultRegistry
	}
	return &Chain{registry: reg}
}

// RegisterComponent is a thin pass-through to the chain's registry, kept
// here so callers don't need a separate import for the common case of
// registering a component alongside a handler.
func (c *Chain) RegisterComponent(name string) packet.ComponentID {
	return c.registry.Register(name)
}

// RegisterHandler adds fn to stage, ordered by priority ascending then
// registration order. Lower priority numbers run first.
func (c *Chain) RegisterHandler(fn HandlerFunc, aux any, stage Stage, priority int) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextHnd++
	h := Handle(c.nextHnd)
	c.nextSeq++

	reg := registration{
		handle:   h,
		priority: priority,
		seq:      c.nextSeq,
		fn:       fn,
		aux:      aux,
	}

	list := append(c.stages[stage], reg)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority < list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	c.stages[stage] = list

	return h
}

// RemoveHandler removes the handler identified by h from stage.
func (c *Chain) RemoveHandler(h Handle, stage Stage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.stages[stage]
	for i, reg := range list {
		if reg.handle == h {
			c.stages[stage] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Process runs p through every stage in fixed order. Within a stage it
// walks handlers in their sorted (priority, registration) order. A
// negative handler return sets p.Error and stops the chain immediately
// -- no later handler runs for this packet, including the DESTROY
// stage's handlers unless the abort happened inside DESTROY itself.
func (c *Chain) Process(p *packet.Packet) {
	c.mu.RLock()
	// Snapshot stage handler lists so concurrent RegisterHandler/RemoveHandler
	// calls from another goroutine don't mutate the slice mid-walk.
	snapshot := c.stages
	c.mu.RUnlock()

	for stage := Stage(0); stage < stageCount; stage++ {
		for _, reg := range snapshot[stage] {
			if reg.fn(reg.aux, p) < 0 {
				p.Error = true
				return
			}
		}
	}
}
