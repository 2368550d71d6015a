package extproto

import (
	"testing"
	"time"

	"github.com/kleaSCM/netscope/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sending a PING with seq=17 must get back a PONG echoing 17 in
// Code within 100ms -- here modeled synchronously since HandleFrame is pure.
func TestPingPong(t *testing.T) {
	s := NewSession(RoleServer, 10*time.Millisecond)

	ping := &wire.Frame{PktType: wire.PktPing, Seqno: 17}
	replies, err := s.HandleFrame(ping)
	require.NoError(t, err)
	require.Len(t, replies, 1)

	pong := replies[0]
	assert.Equal(t, wire.PktPong, pong.PktType)
	assert.Equal(t, uint16(17), pong.Code)
}

func TestSeqnoMonotonicSkipsZero(t *testing.T) {
	s := NewSession(RoleHelper, 0)
	s.outSeq = 0xFFFFFFFE

	prev := s.NextSeq()
	for i := 0; i < 5; i++ {
		n := s.NextSeq()
		assert.NotEqual(t, uint32(0), n)
		assert.True(t, n != prev)
		prev = n
	}
}

func TestFatalMessageClosesSession(t *testing.T) {
	s := NewSession(RoleServer, 0)
	msg, err := s.BuildMessage(SeverityFatal, "disk full")
	require.NoError(t, err)

	_, err = s.HandleFrame(msg)
	require.Error(t, err)
	assert.Equal(t, StateError, s.State())
}

func TestNonFatalMessageIsFine(t *testing.T) {
	s := NewSession(RoleServer, 0)
	msg, err := s.BuildMessage(SeverityDebug, "starting up")
	require.NoError(t, err)

	_, err = s.HandleFrame(msg)
	require.NoError(t, err)
	assert.NotEqual(t, StateError, s.State())
}

func TestUnknownPktTypeIgnored(t *testing.T) {
	s := NewSession(RoleServer, 0)
	_, err := s.HandleFrame(&wire.Frame{PktType: wire.PktType(9999)})
	assert.NoError(t, err)
}

func TestShutdownMovesToClosed(t *testing.T) {
	s := NewSession(RoleHelper, 0)
	shutdown, err := s.BuildShutdown("spindown requested")
	require.NoError(t, err)

	_, err = s.HandleFrame(shutdown)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, s.State())
}

func TestEventbusRegisterThenSubscribes(t *testing.T) {
	s := NewSession(RoleServer, 0)
	reg, err := s.HandleFrame(mustEventbusRegisterFrame(t, "datasource.open"))
	require.NoError(t, err)
	assert.Nil(t, reg)
	assert.True(t, s.Subscribes("datasource.open"))
	assert.False(t, s.Subscribes("other.topic"))
}

func mustEventbusRegisterFrame(t *testing.T, topic string) *wire.Frame {
	s := NewSession(RoleHelper, 0)
	f, err := s.BuildEventbusRegister(topic)
	require.NoError(t, err)
	return f
}

func TestCheckTimeout(t *testing.T) {
	s := NewSession(RoleServer, 5*time.Millisecond)
	now := time.Now()
	s.markPeerActivity(now)

	assert.False(t, s.CheckTimeout(now.Add(1*time.Millisecond)))
	assert.True(t, s.CheckTimeout(now.Add(50*time.Millisecond)))
	assert.Equal(t, StateError, s.State())
}

func TestHTTPSessionTracker(t *testing.T) {
	tr := NewHTTPSessionTracker()
	id := tr.Allocate()
	assert.True(t, tr.IsActive(id))

	tr.Observe(id, false)
	assert.True(t, tr.IsActive(id))

	tr.Observe(id, true)
	assert.False(t, tr.IsActive(id))
}
