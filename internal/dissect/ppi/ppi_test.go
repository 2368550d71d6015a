package ppi

import (
	"encoding/binary"
	"testing"

	"github.com/kleaSCM/netscope/internal/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeFixed3_7(deg float64) uint32 {
	return uint32(int32(deg * 1e7))
}

// TestDissectGPSField reproduces spec scenario B: a PPI_FIELD_GPS TLV
// carrying lat=30.267153, lon=-97.743057 in fixed 3.7 encoding should
// yield a gps component with those coordinates (within 1e-7) and fix=2D.
func TestDissectGPSField(t *testing.T) {
	gpsValue := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(gpsValue[0:4], 0x3) // lat+lon present
	binary.LittleEndian.PutUint32(gpsValue[4:8], encodeFixed3_7(30.267153))
	binary.LittleEndian.PutUint32(gpsValue[8:12], encodeFixed3_7(-97.743057))

	raw := buildPPIFrame(t, fieldTypeGPS, gpsValue, []byte{0xAA, 0xBB})

	_, _, decap, gps, ok := Dissect(raw)
	require.True(t, ok)
	require.NotNil(t, gps)
	assert.InDelta(t, 30.267153, gps.Lat, 1e-7)
	assert.InDelta(t, -97.743057, gps.Lon, 1e-7)
	assert.Equal(t, packet.GPSFix2D, gps.Fix)
	assert.Equal(t, []byte{0xAA, 0xBB}, decap.Data)
}

func TestDissectRejectsTruncatedField(t *testing.T) {
	raw := []byte{0, 0, 10, 0, 0, 0, 0, 0, 1, 0, 0xFF, 0xFF}
	_, _, _, _, ok := Dissect(raw)
	assert.False(t, ok)
}

func buildPPIFrame(t *testing.T, fieldType uint16, value, body []byte) []byte {
	t.Helper()
	header := make([]byte, 8)
	fieldHeader := make([]byte, 4)
	binary.LittleEndian.PutUint16(fieldHeader[0:2], fieldType)
	binary.LittleEndian.PutUint16(fieldHeader[2:4], uint16(len(value)))

	ppiLen := 8 + len(fieldHeader) + len(value)
	binary.LittleEndian.PutUint16(header[2:4], uint16(ppiLen))

	out := append(header, fieldHeader...)
	out = append(out, value...)
	out = append(out, body...)
	return out
}
