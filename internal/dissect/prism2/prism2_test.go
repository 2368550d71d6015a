package prism2

import (
	"encoding/binary"
	"testing"

	"github.com/kleaSCM/netscope/internal/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAVSFrame(signal, noise, rate, freqMHz int32, body []byte) []byte {
	raw := make([]byte, headerLen+len(body))
	binary.BigEndian.PutUint32(raw[32:36], uint32(signal))
	binary.BigEndian.PutUint32(raw[36:40], uint32(noise))
	binary.BigEndian.PutUint32(raw[40:44], uint32(rate))
	binary.BigEndian.PutUint32(raw[44:48], uint32(freqMHz))
	copy(raw[headerLen:], body)
	return raw
}

func TestDissectExtractsSignalAndTrimsHeader(t *testing.T) {
	body := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	raw := buildAVSFrame(-62, -95, 2, 2437, body)

	l1, radio, decap, ok := Dissect(raw)
	require.True(t, ok)
	assert.Equal(t, packet.SignalRSSI, radio.SignalType)
	assert.Equal(t, -62, radio.SignalDBM)
	assert.Equal(t, -95, radio.NoiseDBM)
	assert.Equal(t, 2437000, radio.FreqKHz)
	assert.Equal(t, packet.Carrier80211b, radio.Carrier)
	assert.Equal(t, body, decap.Data)
	assert.Len(t, l1.Raw, headerLen)
}

func TestDissectRejectsShortFrame(t *testing.T) {
	_, _, _, ok := Dissect(make([]byte, 10))
	assert.False(t, ok)
}
