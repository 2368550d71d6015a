package pcapng

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleaSCM/netscope/internal/packet"
)

// readBlocks walks buf as a sequence of pcap-ng blocks, checking the
// header/trailer length back-link invariant and returning
// each block's (type, body).
func readBlocks(t *testing.T, buf []byte) []struct {
	typ  uint32
	body []byte
} {
	t.Helper()
	var out []struct {
		typ  uint32
		body []byte
	}
	off := 0
	for off < len(buf) {
		require.GreaterOrEqual(t, len(buf)-off, 12)
		typ := binary.LittleEndian.Uint32(buf[off : off+4])
		length := binary.LittleEndian.Uint32(buf[off+4 : off+8])
		trailer := binary.LittleEndian.Uint32(buf[off+int(length)-4 : off+int(length)])
		require.Equal(t, length, trailer, "block header/trailer length must match")
		body := buf[off+8 : off+int(length)-4]
		out = append(out, struct {
			typ  uint32
			body []byte
		}{typ, body})
		off += int(length)
	}
	return out
}

func TestLogPacketEmitsSHBOneIDBOneEPB(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, nil, nil)

	p := packet.New(nil)
	p.Ts = time.UnixMicro(1700000000000001)
	payload := bytes.Repeat([]byte{0xAB}, 64)
	p.OriginalLen = len(payload)
	p.Insert(packet.CompLinkFrame, packet.LinkFrame{DLT: 105, Data: payload})

	ok, err := logger.LogPacket(1, 105, p)
	require.NoError(t, err)
	require.True(t, ok)

	blocks := readBlocks(t, buf.Bytes())
	require.Len(t, blocks, 3)
	assert.Equal(t, uint32(blockTypeSHB), blocks[0].typ)
	assert.Equal(t, uint32(blockTypeIDB), blocks[1].typ)
	assert.Equal(t, uint32(blockTypeEPB), blocks[2].typ)

	idbBody := blocks[1].body
	dlt := binary.LittleEndian.Uint16(idbBody[0:2])
	assert.Equal(t, uint16(105), dlt)

	epbBody := blocks[2].body
	ifaceID := binary.LittleEndian.Uint32(epbBody[0:4])
	assert.Equal(t, uint32(0), ifaceID, "first and only interface must be id 0")
	capLen := binary.LittleEndian.Uint32(epbBody[12:16])
	assert.Equal(t, uint32(len(payload)), capLen)
}

func TestLogPacketReusesIDBForSameSourceAndDLT(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, nil, nil)

	for i := 0; i < 3; i++ {
		p := packet.New(nil)
		p.Ts = time.UnixMicro(1700000000000000 + int64(i))
		p.Insert(packet.CompLinkFrame, packet.LinkFrame{DLT: 105, Data: []byte{0x01, 0x02}})
		ok, err := logger.LogPacket(7, 105, p)
		require.NoError(t, err)
		require.True(t, ok)
	}

	blocks := readBlocks(t, buf.Bytes())
	idbCount := 0
	for _, b := range blocks {
		if b.typ == blockTypeIDB {
			idbCount++
		}
	}
	assert.Equal(t, 1, idbCount, "one IDB per (source,dlt) pair, not one per packet")
}

func TestAcceptFilterSkipsRejectedPackets(t *testing.T) {
	var buf bytes.Buffer
	reject := func(*packet.Packet) bool { return false }
	logger := New(&buf, reject, nil)

	p := packet.New(nil)
	p.Insert(packet.CompLinkFrame, packet.LinkFrame{DLT: 105, Data: []byte{0x01}})

	ok, err := logger.LogPacket(1, 105, p)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, buf.Len())
}
