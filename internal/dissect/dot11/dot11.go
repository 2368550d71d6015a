/**
 * 802.11 Header Dissector.
 *
 * Parses the frame-control field, walks the address fields per
 * {to_ds,from_ds}, and for management subtypes walks the
 * tagged-parameter list to fill in a Dot11Summary component. Cipher and
 * key-management byte codes from RSN/vendor-WPA tags fold into a
 * CryptSet bitmask. A few inline checks raise ALERT-severity findings
 * the same way the original dissector's embedded checks did.
 *
 * Grounded in gopacket/layers' Dot11 address-field layout (already
 * already depends on google/gopacket) for the to_ds/from_ds address
 * assignment table, reimplemented here directly over raw bytes since
 * this dissector's tag semantics (ssid_blank, country triplets, WPA cipher
 * bitmask) have no equivalent in gopacket/layers.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package dot11

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/kleaSCM/netscope/internal/packet"
)

const (
	tagSSID         = 0
	tagRates        = 1
	tagDSParam      = 3
	tagCountry      = 7
	tagRSN          = 48
	tagVendor       = 221
	tagExtRates     = 50
	tagChallengeText = 75
)

// msfOpcodeMAC is the locally-administered MAC address Metasploit's
// karma/wifi attack modules historically stamped on beacon frames.
var msfOpcodeMAC = net.HardwareAddr{0x00, 0x13, 0x37, 0x00, 0x00, 0x01}

// Alert is one fired signature match, carried back to the caller so it
// can be turned into a MESSAGE{severity=ALERT} frame.
type Alert struct {
	Signature string
	Detail    string
}

// Result bundles every component the 802.11 dissector can populate.
type Result struct {
	Summary packet.Dot11Summary
	Alerts  []Alert

	// BodyOffset is the byte offset into the frame passed to Dissect
	// where the MAC header ends and the frame body (cleartext or, if
	// Summary.Privacy, IV||ciphertext||ICV for data frames) begins.
	BodyOffset int
}

// Dissect parses decap (a DLT_IEEE802_11 frame, FCS already trimmed).
func Dissect(decap []byte) (Result, bool) {
	var res Result
	if len(decap) < 24 {
		return res, false
	}

	fc := binary.LittleEndian.Uint16(decap[0:2])
	version := fc & 0x3
	_ = version
	typ := (fc >> 2) & 0x3
	subtype := (fc >> 4) & 0xF
	toDS := fc&0x0100 != 0
	fromDS := fc&0x0200 != 0

	res.Summary.Type, res.Summary.Subtype = classify(typ, subtype)

	// The Protected Frame bit (frame-control bit 0x4000) flags
	// per-packet encryption on data frames; it is distinct from a
	// beacon's advertised-network capability bit handled below.
	protected := fc&0x4000 != 0

	addr1 := mac(decap, 4)
	addr2 := mac(decap, 10)
	addr3 := mac(decap, 16)

	switch {
	case !toDS && !fromDS:
		res.Summary.Dest, res.Summary.Source, res.Summary.BSSID = addr1, addr2, addr3
	case !toDS && fromDS:
		res.Summary.Dest, res.Summary.Source, res.Summary.BSSID = addr1, addr3, addr2
	case toDS && !fromDS:
		res.Summary.BSSID, res.Summary.Source, res.Summary.Dest = addr1, addr2, addr3
	default: // toDS && fromDS: WDS, fourth address frame -- addr4 not surfaced in Common summary
		res.Summary.Dest, res.Summary.Source = addr3, addr2
	}

	if res.Summary.Type == packet.Dot11TypeManagement {
		bodyOff := 24
		switch res.Summary.Subtype {
		case packet.Dot11SubtypeBeacon, packet.Dot11SubtypeProbeResp, packet.Dot11SubtypeAssocResp:
			bodyOff += 12 // fixed params: timestamp(8) + beacon interval(2) + capability(2)
			if bodyOff > len(decap) {
				return res, true
			}
			capability := binary.LittleEndian.Uint16(decap[bodyOff-2 : bodyOff])
			res.Summary.Privacy = capability&0x0010 != 0
			walkTags(decap[bodyOff:], &res)
		}

		if addr2 == msfOpcodeMAC.String() {
			res.Alerts = append(res.Alerts, Alert{Signature: "MSF_BEACON", Detail: "beacon source matches Metasploit opcode MAC"})
		}

		if res.Summary.Subtype == packet.Dot11SubtypeDeauth || res.Summary.Subtype == packet.Dot11SubtypeDisassoc {
			if bodyOff := 24; bodyOff+2 <= len(decap) {
				reason := binary.LittleEndian.Uint16(decap[bodyOff : bodyOff+2])
				if !knownReasonCode(reason) {
					res.Alerts = append(res.Alerts, Alert{Signature: "UNKNOWN_REASON_CODE", Detail: fmt.Sprintf("reason=%d", reason)})
				}
			}
		}
	}

	res.BodyOffset = 24
	if res.Summary.Type == packet.Dot11TypeData {
		res.Summary.Privacy = protected
		if res.Summary.Subtype == packet.Dot11SubtypeQoSData {
			res.BodyOffset += 2 // QoS control field
		}
	}

	return res, true
}

func classify(typ, subtype uint16) (packet.Dot11FrameType, packet.Dot11Subtype) {
	switch typ {
	case 0:
		switch subtype {
		case 0x8:
			return packet.Dot11TypeManagement, packet.Dot11SubtypeBeacon
		case 0x4:
			return packet.Dot11TypeManagement, packet.Dot11SubtypeProbeReq
		case 0x5:
			return packet.Dot11TypeManagement, packet.Dot11SubtypeProbeResp
		case 0x0:
			return packet.Dot11TypeManagement, packet.Dot11SubtypeAssocReq
		case 0x1:
			return packet.Dot11TypeManagement, packet.Dot11SubtypeAssocResp
		case 0xC:
			return packet.Dot11TypeManagement, packet.Dot11SubtypeDeauth
		case 0xA:
			return packet.Dot11TypeManagement, packet.Dot11SubtypeDisassoc
		default:
			return packet.Dot11TypeManagement, packet.Dot11SubtypeUnknown
		}
	case 1:
		return packet.Dot11TypeControl, packet.Dot11SubtypeUnknown
	case 2:
		if subtype&0x8 != 0 {
			return packet.Dot11TypeData, packet.Dot11SubtypeQoSData
		}
		return packet.Dot11TypeData, packet.Dot11SubtypeData
	default:
		return packet.Dot11TypeUnknown, packet.Dot11SubtypeUnknown
	}
}

func mac(b []byte, off int) string {
	if off+6 > len(b) {
		return ""
	}
	return net.HardwareAddr(b[off : off+6]).String()
}

func knownReasonCode(r uint16) bool {
	return r >= 1 && r <= 24
}

// walkTags parses the tagged-parameter list (tag, length, value) with
// strict bounds checking against truncated or malformed frames.
func walkTags(body []byte, res *Result) {
	off := 0
	for off+2 <= len(body) {
		tag := body[off]
		length := int(body[off+1])
		off += 2
		if off+length > len(body) {
			return
		}
		value := body[off : off+length]
		off += length

		switch tag {
		case tagSSID:
			if length == 0 {
				res.Summary.SSID = ""
			} else {
				res.Summary.SSID = string(value)
				if allZero(value) {
					res.Summary.SSIDBlank = true
				}
			}
		case tagRates, tagExtRates:
			if rate := maxRate(value); rate > res.Summary.MaxRateKbps {
				res.Summary.MaxRateKbps = rate
			}
		case tagDSParam:
			if length >= 1 {
				res.Summary.Channel = int(value[0])
			}
		case tagCountry:
			if length >= 3 {
				res.Summary.Country = string(value[:3])
			}
		case tagRSN:
			res.Summary.CryptSet |= parseRSN(value)
		case tagVendor:
			if isWPAOUI(value) {
				res.Summary.CryptSet |= parseVendorWPA(value)
			}
		case tagChallengeText:
			if length >= 2 && value[0] == 0xEB && value[1] == 0x49 {
				res.Alerts = append(res.Alerts, Alert{Signature: "MSF_DLINK_RATE", Detail: "D-Link rate attack signature in tag 75"})
			}
		}

		if tag == tagSSID && length > 32 {
			res.Alerts = append(res.Alerts, Alert{Signature: "SSID_TOO_LONG", Detail: fmt.Sprintf("len=%d", length)})
		}
	}

	if res.Summary.CryptSet&packet.CryptTKIP != 0 && res.Summary.CryptSet&packet.CryptWEP != 0 {
		res.Summary.CryptSet |= packet.CryptWPAMigMode
	}
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// maxRate returns the highest rate (kbps) encoded in a rates IE: each
// byte is in 500kb/s units with the MSB marking a "basic rate".
func maxRate(ie []byte) int {
	max := 0
	for _, b := range ie {
		rate := int(b&^0x80) * 500
		if rate > max {
			max = rate
		}
	}
	return max
}

var wpaOUI = [3]byte{0x00, 0x50, 0xF2}

func isWPAOUI(ie []byte) bool {
	return len(ie) >= 4 && ie[0] == wpaOUI[0] && ie[1] == wpaOUI[1] && ie[2] == wpaOUI[2] && ie[3] == 0x01
}

// parseRSN decodes an RSN (tag 48) information element's group and
// pairwise cipher suites into a CryptSet bitmask.
func parseRSN(ie []byte) packet.CryptSet {
	return parseCipherSuites(ie, 2, true)
}

// parseVendorWPA decodes a vendor WPA1 IE (tag 221, OUI 00:50:F2:01).
func parseVendorWPA(ie []byte) packet.CryptSet {
	return parseCipherSuites(ie, 6, false)
}

// parseCipherSuites walks the group-cipher + pairwise-cipher-count +
// pairwise-cipher-list + AKM-count + AKM-list structure common to both
// RSN and vendor-WPA IEs, starting at suiteOff (past the version field
// for RSN, past the OUI+type+version for vendor WPA).
func parseCipherSuites(ie []byte, suiteOff int, isRSN bool) packet.CryptSet {
	var set packet.CryptSet
	off := suiteOff
	if off+4 > len(ie) {
		return set
	}
	set |= cipherSuiteToCryptSet(ie[off : off+4])
	off += 4

	if off+2 > len(ie) {
		return set
	}
	count := int(binary.LittleEndian.Uint16(ie[off : off+2]))
	off += 2
	for i := 0; i < count && off+4 <= len(ie); i++ {
		set |= cipherSuiteToCryptSet(ie[off : off+4])
		off += 4
	}

	if isRSN {
		set |= packet.CryptWPA2
	} else {
		set |= packet.CryptWPA
	}

	if off+2 > len(ie) {
		return set
	}
	akmCount := int(binary.LittleEndian.Uint16(ie[off : off+2]))
	off += 2
	for i := 0; i < akmCount && off+4 <= len(ie); i++ {
		set |= akmSuiteToCryptSet(ie[off : off+4])
		off += 4
	}

	return set
}

func cipherSuiteToCryptSet(suite []byte) packet.CryptSet {
	switch suite[3] {
	case 1, 5: // WEP-40, WEP-104
		return packet.CryptWEP
	case 2: // TKIP
		return packet.CryptTKIP
	case 4: // CCMP
		return packet.CryptAESCCM
	default:
		return packet.CryptNone
	}
}

func akmSuiteToCryptSet(suite []byte) packet.CryptSet {
	switch suite[3] {
	case 2: // PSK
		return packet.CryptPSK
	case 1: // 802.1X/EAP
		return packet.CryptEAPTLS
	default:
		return packet.CryptNone
	}
}
