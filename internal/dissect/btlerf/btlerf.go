/**
 * BTLE-RF Dissector.
 *
 * A Radiotap-shaped pseudo-header for Bluetooth Low Energy monitor
 * captures (DLT_BLUETOOTH_LE_LL_WITH_PHDR): fixed 10-byte record
 * carrying rssi, a flags byte documenting whether the CRC was checked
 * and whether it validated, the monitored RF channel, and a reference
 * access address, followed by the raw BTLE_LL frame.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package btlerf

import (
	"encoding/binary"
	"strconv"

	"github.com/kleaSCM/netscope/internal/packet"
)

const headerLen = 10

const (
	flagDewhitened = 1 << iota
	flagSignalValid
	flagNoiseValid
	flagDecrypted
	flagReferenceAccess
	flagCRCChecked
	flagCRCValid
)

const btleLLDLT = 251 // DLT_BLUETOOTH_LE_LL

// channelToAdvertisingIndex maps a BTLE-RF monitor RF channel (0-39,
// physical channel numbering) to its logical advertising-channel index
// (37, 38, 39) when it is one of the three advertising channels, or -1
// for a data channel.
func channelToAdvertisingIndex(rfChannel int) int {
	switch rfChannel {
	case 0:
		return 37
	case 12:
		return 38
	case 39:
		return 39
	default:
		return -1
	}
}

// Dissect parses a BTLE-RF-prefixed frame. It returns errored=true when
// the header claims the CRC was checked and found invalid, per the
// spec's "mark the packet as errored" rule.
func Dissect(raw []byte) (l1 packet.L1Data, radio packet.RadioData, decap packet.Decap, errored bool, ok bool) {
	if len(raw) < headerLen {
		return
	}

	rssi := int8(raw[0])
	flags := raw[1]
	rfChannel := int(raw[2])
	refAccess := binary.LittleEndian.Uint32(raw[3:7])
	_ = refAccess // retained in l1.Raw for loggers; not surfaced as its own component field

	radio.SignalType = packet.SignalDBM
	radio.SignalDBM = int(rssi)
	radio.Carrier = packet.CarrierBTLE
	radio.Channel = formatChannel(rfChannel)

	if flags&flagCRCChecked != 0 && flags&flagCRCValid == 0 {
		errored = true
	}

	l1.Raw = append([]byte(nil), raw[:headerLen]...)
	decap = packet.Decap{DLT: btleLLDLT, Data: append([]byte(nil), raw[headerLen:]...)}
	return l1, radio, decap, errored, true
}

func formatChannel(rfChannel int) string {
	if idx := channelToAdvertisingIndex(rfChannel); idx >= 0 {
		return "adv-" + strconv.Itoa(idx)
	}
	return "data-" + strconv.Itoa(rfChannel)
}
