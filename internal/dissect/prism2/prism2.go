/**
 * Prism2 / AVS Header Dissector.
 *
 * The oldest and simplest of the three pseudo-headers this spec
 * supports: a fixed-size record (no present bitmap, no TLVs) directly
 * exposing signal/noise RSSI, frequency, and datarate. Two on-wire
 * variants exist (plain Prism2 and the AVS wlan-ng extension); both
 * share the same field order so one struct covers both once the
 * caller has identified the DLT.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package prism2

import (
	"encoding/binary"

	"github.com/kleaSCM/netscope/internal/packet"
)

// headerLen is the fixed AVS/Prism2 header size used by capture tools
// that emit this DLT; the variable-named-field "Prism2 classic" format
// (no msgcode/msglen wrapper) is not distinguished here since both
// agree on total length and field offsets for the values this spec
// surfaces.
const headerLen = 144

const dot11DLT = 105

// Dissect parses a Prism2/AVS-prefixed frame, extracting signal_rssi,
// noise_rssi, freq_mhz, carrier/encoding and datarate, then trims the
// fixed-size header to produce the decap component.
func Dissect(raw []byte) (l1 packet.L1Data, radio packet.RadioData, decap packet.Decap, ok bool) {
	if len(raw) < headerLen {
		return
	}

	// AVS header fields are big-endian 32-bit words; offsets below match
	// the wlan-ng avs_80211_1 capture header layout.
	signal := binary.BigEndian.Uint32(raw[32:36])
	noise := binary.BigEndian.Uint32(raw[36:40])
	rate := binary.BigEndian.Uint32(raw[40:44])
	freqMHz := binary.BigEndian.Uint32(raw[44:48])

	radio.SignalType = packet.SignalRSSI
	radio.SignalDBM = int(int32(signal))
	radio.NoiseDBM = int(int32(noise))
	radio.FreqKHz = int(freqMHz) * 1000
	radio.DatarateKbps = int(rate) * 100
	radio.Carrier, radio.Encoding = classifyFreq(int(freqMHz))

	l1.Raw = append([]byte(nil), raw[:headerLen]...)
	decap = packet.Decap{DLT: dot11DLT, Data: append([]byte(nil), raw[headerLen:]...)}
	return l1, radio, decap, true
}

func classifyFreq(mhz int) (packet.Carrier, packet.Encoding) {
	switch {
	case mhz >= 2400 && mhz < 2500:
		return packet.Carrier80211b, packet.EncodingCCK
	case mhz >= 5000 && mhz < 6000:
		return packet.Carrier80211a, packet.EncodingOFDM
	default:
		return packet.CarrierUnknown, packet.EncodingUnknown
	}
}
