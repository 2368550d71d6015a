package dot11

import (
	"encoding/binary"
	"testing"

	"github.com/kleaSCM/netscope/internal/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildBeacon reproduces spec scenario A: a beacon from
// 02:00:00:00:00:01 with SSID tag (0,3,"abc"), DS tag (3,1,6), rates
// tag (1,1,0x82).
func buildBeacon(t *testing.T) []byte {
	t.Helper()
	frame := make([]byte, 24)
	binary.LittleEndian.PutUint16(frame[0:2], 0x0080) // type=mgmt(0), subtype=beacon(8)
	bssid := []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	copy(frame[4:10], bssid)  // addr1 (dest, broadcast in reality but unused here)
	copy(frame[10:16], bssid) // addr2 (source)
	copy(frame[16:22], bssid) // addr3 (bssid)

	fixed := make([]byte, 12) // timestamp(8) + interval(2) + capability(2)
	binary.LittleEndian.PutUint16(fixed[10:12], 0x0000)

	tags := []byte{
		0, 3, 'a', 'b', 'c', // SSID
		3, 1, 6, // DS param -> channel 6
		1, 1, 0x82, // rates: 1 Mbps basic
	}

	out := append(frame, fixed...)
	out = append(out, tags...)
	return out
}

func TestDissectBeacon(t *testing.T) {
	raw := buildBeacon(t)
	res, ok := Dissect(raw)
	require.True(t, ok)

	assert.Equal(t, packet.Dot11TypeManagement, res.Summary.Type)
	assert.Equal(t, packet.Dot11SubtypeBeacon, res.Summary.Subtype)
	assert.Equal(t, "abc", res.Summary.SSID)
	assert.False(t, res.Summary.SSIDBlank)
	assert.Equal(t, 6, res.Summary.Channel)
	assert.Equal(t, 1000, res.Summary.MaxRateKbps)
	assert.Equal(t, "02:00:00:00:00:01", res.Summary.BSSID)
}

func TestDissectBlankSSID(t *testing.T) {
	raw := buildBeacon(t)
	// SSID tag value starts right after the 24-byte header + 12-byte
	// fixed params + 2-byte tag/len prefix.
	ssidValueOff := 24 + 12 + 2
	raw[ssidValueOff] = 0
	raw[ssidValueOff+1] = 0
	raw[ssidValueOff+2] = 0
	res, ok := Dissect(raw)
	require.True(t, ok)
	assert.True(t, res.Summary.SSIDBlank)
}

func TestDissectRejectsShortFrame(t *testing.T) {
	_, ok := Dissect(make([]byte, 10))
	assert.False(t, ok)
}

func TestDissectSSIDTooLongAlert(t *testing.T) {
	frame := make([]byte, 24)
	binary.LittleEndian.PutUint16(frame[0:2], 0x0080)
	fixed := make([]byte, 12)
	longSSID := make([]byte, 40)
	tags := append([]byte{0, byte(len(longSSID))}, longSSID...)
	out := append(frame, fixed...)
	out = append(out, tags...)

	res, ok := Dissect(out)
	require.True(t, ok)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "SSID_TOO_LONG", res.Alerts[0].Signature)
}
