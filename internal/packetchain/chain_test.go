package packetchain

import (
	"testing"

	"github.com/kleaSCM/netscope/internal/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageOrdering(t *testing.T) {
	reg := packet.NewRegistry()
	c := New(reg)

	var order []string

	c.RegisterHandler(func(aux any, p *packet.Packet) int {
		order = append(order, "postcap")
		return 0
	}, nil, StagePostcap, 50)

	c.RegisterHandler(func(aux any, p *packet.Packet) int {
		order = append(order, "logging")
		return 0
	}, nil, StageLogging, 50)

	c.RegisterHandler(func(aux any, p *packet.Packet) int {
		order = append(order, "llcdissect")
		return 0
	}, nil, StageLLCDissect, 50)

	p := packet.New(reg)
	c.Process(p)

	assert.Equal(t, []string{"postcap", "llcdissect", "logging"}, order)
}

func TestPriorityThenRegistrationOrder(t *testing.T) {
	reg := packet.NewRegistry()
	c := New(reg)

	var order []string
	mk := func(name string) HandlerFunc {
		return func(aux any, p *packet.Packet) int {
			order = append(order, name)
			return 0
		}
	}

	c.RegisterHandler(mk("b-pri10-first"), nil, StagePostcap, 10)
	c.RegisterHandler(mk("a-pri5"), nil, StagePostcap, 5)
	c.RegisterHandler(mk("c-pri10-second"), nil, StagePostcap, 10)

	c.Process(packet.New(reg))

	assert.Equal(t, []string{"a-pri5", "b-pri10-first", "c-pri10-second"}, order)
}

func TestNegativeReturnAbortsAndMarksError(t *testing.T) {
	reg := packet.NewRegistry()
	c := New(reg)

	ran := false
	c.RegisterHandler(func(aux any, p *packet.Packet) int { return -1 }, nil, StagePostcap, 0)
	c.RegisterHandler(func(aux any, p *packet.Packet) int {
		ran = true
		return 0
	}, nil, StageLLCDissect, 0)

	p := packet.New(reg)
	c.Process(p)

	assert.True(t, p.Error)
	assert.False(t, ran, "stages after an aborting handler must not run")
}

func TestRemoveHandler(t *testing.T) {
	reg := packet.NewRegistry()
	c := New(reg)

	calls := 0
	h := c.RegisterHandler(func(aux any, p *packet.Packet) int {
		calls++
		return 0
	}, nil, StagePostcap, 0)

	c.Process(packet.New(reg))
	require.Equal(t, 1, calls)

	c.RemoveHandler(h, StagePostcap)
	c.Process(packet.New(reg))
	assert.Equal(t, 1, calls, "removed handler must not run again")
}

// Running the same handler set against the same input always produces
// the same final component set, regardless of timing.
func TestDeterministicComponentSet(t *testing.T) {
	reg := packet.NewRegistry()
	c := New(reg)
	compID := reg.Register("TESTCOMP")

	c.RegisterHandler(func(aux any, p *packet.Packet) int {
		p.Insert(compID, "value-from-postcap")
		return 0
	}, nil, StagePostcap, 0)

	for i := 0; i < 50; i++ {
		p := packet.New(reg)
		c.Process(p)
		require.Equal(t, "value-from-postcap", p.Fetch(compID))
	}
}
