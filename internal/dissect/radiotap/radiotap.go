/**
 * Radiotap Dissector.
 *
 * Walks the ieee80211_radiotap present-bitmap (including chained
 * extension words) starting at the front of a linkframe component,
 * consuming each recognized field's fixed-size payload in order and
 * honouring the field's natural alignment measured from the start of
 * the whole header -- not from the current iterator position. Produces
 * an l1data component (the raw radiotap bytes) and a decap component
 * (the residual 802.11 frame, FCS trimmed if present).
 *
 * Grounded on the original C dissector's bit-by-bit field table
 * (kis_dlt_radiotap.cc); gopacket's own RadioTap layer duplicates most
 * of the same bitmap walk but lacks the Kismet-specific per-antenna
 * signal map and trim/FCS-verification behavior this package needs, so
 * this is a fresh implementation of the same algorithm rather than a
 * thin wrapper.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package radiotap

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/kleaSCM/netscope/internal/packet"
)

// Radiotap present-bitmap bit numbers (linux/net/ieee80211_radiotap.h).
const (
	bitTSFT = iota
	bitFlags
	bitRate
	bitChannel
	bitFHSS
	bitDBMAntsignal
	bitDBMAntnoise
	bitLockQuality
	bitTXAttenuation
	bitDBTXAttenuation
	bitDBMTXPower
	bitAntenna
	bitDBAntsignal
	bitDBAntnoise
	bitRXFlags
	bitTXFlags
	_
	_
	_
	bitMCS
	bitAMPDUStatus
	bitVHT
	_
	_
	_
	_
	_
	_
	_
	_
	_
	_
	bitExt = 31
)

const (
	flagFCS     = 0x10
	flagBadFCS  = 0x40
	chanCCK     = 0x0020
	chanOFDM    = 0x0040
	chan2GHz    = 0x0080
	chan5GHz    = 0x0100
	chanDyn     = 0x0400
	chanGFSK    = 0x0800
	dot11DLT    = 105 // DLT_IEEE802_11
	radiotapDLT = 127 // DLT_IEEE802_11_RADIO
)

// crc32_80211 is the FCS polynomial table (same generator as crc32.IEEE,
// reflected input/output -- 802.11's FCS is the standard Ethernet CRC32).
var crc32_80211 = crc32.MakeTable(crc32.IEEE)

// Dissect parses a radiotap-prefixed frame. raw is the full linkframe
// payload (header + 802.11 body (+ FCS)); verifyFCS requests CRC32
// verification of the trailing 4 bytes when the header says FCS is
// present.
func Dissect(raw []byte, verifyFCS bool) (l1 packet.L1Data, radio packet.RadioData, decap packet.Decap, checksum *packet.Checksum, ok bool) {
	if len(raw) < 8 {
		return
	}
	itLen := int(binary.LittleEndian.Uint16(raw[2:4]))
	if itLen < 8 || itLen > len(raw) {
		return
	}

	// Walk the chained present bitmaps to find where they end.
	presentWords := [][4]byte{}
	off := 4
	for {
		if off+4 > itLen {
			return
		}
		var w [4]byte
		copy(w[:], raw[off:off+4])
		presentWords = append(presentWords, w)
		more := binary.LittleEndian.Uint32(w[:])&(1<<bitExt) != 0
		off += 4
		if !more {
			break
		}
	}

	iterStart := 0 // alignment is measured from the start of the whole header
	iter := off
	radio.SignalType = packet.SignalUnknown

	var channelFreq uint16
	var channelFlags uint16
	var rate uint8
	var antenna int8 = -1
	var signalSeen bool
	var signalDBM int8
	fcsCut := 0
	fcsBad := false

	align := func(width int) {
		cur := iter - iterStart
		pad := (cur+width-1)&(^(width - 1)) - cur
		iter += pad
	}

	for bit0, word := range presentWords {
		present := binary.LittleEndian.Uint32(word[:])
		for b := 0; b < 32; b++ {
			if present&(1<<uint(b)) == 0 {
				continue
			}
			bit := bit0*32 + b

			switch bit {
			case bitTSFT:
				align(8)
				if iter+8 > len(raw) {
					return
				}
				iter += 8
			case bitFlags:
				if iter+1 > len(raw) {
					return
				}
				f := raw[iter]
				if f&flagFCS != 0 {
					fcsCut = 4
				}
				if f&flagBadFCS != 0 {
					fcsBad = true
				}
				iter++
			case bitRate:
				if iter+1 > len(raw) {
					return
				}
				rate = raw[iter]
				iter++
			case bitChannel:
				align(2)
				if iter+4 > len(raw) {
					return
				}
				channelFreq = binary.LittleEndian.Uint16(raw[iter : iter+2])
				channelFlags = binary.LittleEndian.Uint16(raw[iter+2 : iter+4])
				iter += 4
			case bitFHSS, bitLockQuality, bitTXAttenuation, bitDBTXAttenuation, bitRXFlags, bitTXFlags:
				align(2)
				if iter+2 > len(raw) {
					return
				}
				iter += 2
			case bitDBMAntsignal:
				if iter+1 > len(raw) {
					return
				}
				signalDBM = int8(raw[iter])
				signalSeen = true
				iter++
			case bitDBMAntnoise:
				if iter+1 > len(raw) {
					return
				}
				radio.SignalType = packet.SignalDBM
				radio.NoiseDBM = int(int8(raw[iter]))
				iter++
			case bitDBMTXPower:
				if iter+1 > len(raw) {
					return
				}
				iter++
			case bitAntenna:
				if iter+1 > len(raw) {
					return
				}
				antenna = int8(raw[iter])
				iter++
			case bitMCS:
				if iter+3 > len(raw) {
					return
				}
				iter += 3
			case bitVHT:
				align(2)
				if iter+12 > len(raw) {
					return
				}
				iter += 12
			case bitAMPDUStatus:
				align(4)
				if iter+8 > len(raw) {
					return
				}
				iter += 8
			case bitExt:
				// acknowledged only, consumes nothing of its own
			default:
				// unknown field width: cannot safely continue this record
				return
			}
		}
	}

	if signalSeen {
		radio.SignalType = packet.SignalDBM
		radio.SignalDBM = int(signalDBM)
		radio.PerAntenna = map[int]int{int(antenna): int(signalDBM)}
	}

	radio.FreqKHz = int(channelFreq) * 1000
	radio.Carrier, radio.Encoding = classifyChannel(channelFlags)
	radio.DatarateKbps = int(rate&^0x80) * 500 // rate field is in 500kb/s units; strip the basic-rate bit (0x80)

	if itLen > len(raw) {
		return
	}
	body := raw[itLen:]
	if len(body) < fcsCut {
		return
	}

	l1.Raw = append([]byte(nil), raw[:itLen]...)

	var cksum *packet.Checksum
	if fcsCut == 4 {
		fcsBytes := body[len(body)-4:]
		body = body[:len(body)-4]
		cksum = &packet.Checksum{FCS: append([]byte(nil), fcsBytes...), Valid: packet.ChecksumUnknown}
		if fcsBad {
			cksum.Valid = packet.ChecksumBad
		} else if verifyFCS {
			computed := crc32.Checksum(body, crc32_80211)
			// capture tools disagree on endianness; accept either.
			le := binary.LittleEndian.Uint32(fcsBytes)
			be := binary.BigEndian.Uint32(fcsBytes)
			if computed == le || computed == be {
				cksum.Valid = packet.ChecksumGood
			} else {
				cksum.Valid = packet.ChecksumBad
			}
		}
	}

	decap = packet.Decap{DLT: dot11DLT, Data: append([]byte(nil), body...)}
	return l1, radio, decap, cksum, true
}

func classifyChannel(flags uint16) (packet.Carrier, packet.Encoding) {
	is := func(mask uint16) bool { return flags&mask == mask }

	var carrier packet.Carrier
	switch {
	case is(chan5GHz | chanOFDM):
		carrier = packet.Carrier80211a
	case is(chan2GHz | chanCCK):
		carrier = packet.Carrier80211b
	case is(chan2GHz | chanOFDM):
		carrier = packet.Carrier80211g
	case is(chan2GHz | chanDyn):
		carrier = packet.Carrier80211g
	default:
		carrier = packet.CarrierUnknown
	}

	var encoding packet.Encoding
	switch {
	case flags&chanCCK == chanCCK:
		encoding = packet.EncodingCCK
	case flags&chanOFDM == chanOFDM:
		encoding = packet.EncodingOFDM
	case flags&chanDyn == chanDyn:
		encoding = packet.EncodingDSSS
	default:
		encoding = packet.EncodingUnknown
	}

	return carrier, encoding
}
