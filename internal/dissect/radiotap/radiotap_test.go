package radiotap

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/kleaSCM/netscope/internal/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMinimalFrame constructs a radiotap header advertising only FLAGS
// (FCS present) and RATE, followed by a tiny fake 802.11 body plus a
// trailing 4-byte FCS.
func buildMinimalFrame(t *testing.T, body []byte, fcs uint32) []byte {
	t.Helper()
	present := uint32(1<<bitFlags | 1<<bitRate)
	header := make([]byte, 8)
	header[0] = 0 // version
	header[1] = 0 // pad
	binary.LittleEndian.PutUint32(header[4:8], present)

	fields := []byte{0x10, 0x02} // FLAGS=FCS present, RATE=2 (1Mbps in 500kb/s units)
	itLen := len(header) + len(fields)
	binary.LittleEndian.PutUint16(header[2:4], uint16(itLen))

	frame := append(header, fields...)
	frame = append(frame, body...)
	fcsBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(fcsBytes, fcs)
	frame = append(frame, fcsBytes...)
	return frame
}

func TestDissectTrimsFCSAndProducesDecap(t *testing.T) {
	body := []byte{0x08, 0x01, 0x00, 0x00}
	raw := buildMinimalFrame(t, body, 0xDEADBEEF)

	l1, radio, decap, cksum, ok := Dissect(raw, false)
	require.True(t, ok)
	assert.Equal(t, body, decap.Data)
	assert.Equal(t, 105, decap.DLT)
	assert.NotEmpty(t, l1.Raw)
	assert.Equal(t, 1000, radio.DatarateKbps)
	require.NotNil(t, cksum)
	assert.Equal(t, packet.ChecksumUnknown, cksum.Valid)
}

func TestDissectVerifiesGoodFCS(t *testing.T) {
	body := []byte{0x08, 0x01, 0x02, 0x03, 0x04, 0x05}
	sum := crc32.ChecksumIEEE(body)
	raw := buildMinimalFrame(t, body, sum)

	_, _, _, cksum, ok := Dissect(raw, true)
	require.True(t, ok)
	require.NotNil(t, cksum)
	assert.Equal(t, packet.ChecksumGood, cksum.Valid)
}

func TestDissectRejectsTruncatedHeader(t *testing.T) {
	_, _, _, _, ok := Dissect([]byte{0, 0, 1}, false)
	assert.False(t, ok)
}
