/**
 * Packet Chain Wiring.
 *
 * Registers the full dissection pipeline onto a Chain, in order: POSTCAP picks a link-layer dissector
 * by LinkFrame.DLT, LLCDISSECT parses the 802.11 header, DECRYPT runs
 * WEP against privacy-bit frames, DATADISSECT walks the decrypted (or
 * plaintext) payload for IP/ARP/CDP/EAPOL. No LOGGING handler is
 * registered here; the caller adds its own. Priorities are left at 0 for
 * every handler registered here since this is the only consumer of each
 * stage in this implementation; a plugin wanting to interleave would
 * register at a different priority.
 *
 * Grounded on the original packetchain's registration order in
 * packetdissectors.cc (DLT dissector, then 802.11, then WEP, then IP).
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package packetchain

import (
	"github.com/kleaSCM/netscope/internal/dissect/btlerf"
	"github.com/kleaSCM/netscope/internal/dissect/dot11"
	"github.com/kleaSCM/netscope/internal/dissect/ipdata"
	"github.com/kleaSCM/netscope/internal/dissect/ppi"
	"github.com/kleaSCM/netscope/internal/dissect/prism2"
	"github.com/kleaSCM/netscope/internal/dissect/radiotap"
	"github.com/kleaSCM/netscope/internal/dissect/wep"
	"github.com/kleaSCM/netscope/internal/packet"
)

// DLT identifiers the POSTCAP dispatcher recognizes.
const (
	dltIEEE80211Radiotap = 127
	dltPPI               = 192
	dltPrism2            = 119
	dltBTLERadio         = 256 // DLT_BLUETOOTH_LE_LL_WITH_PHDR
)

// RegisterDefaultPipeline wires the POSTCAP -> LLCDISSECT -> DECRYPT ->
// DATADISSECT stages onto c using keys. A nil keys disables WEP
// decryption (DECRYPT becomes a no-op pass-through).
func RegisterDefaultPipeline(c *Chain, keys *wep.KeyRing, verifyFCS bool) {
	c.RegisterHandler(postcapHandler(verifyFCS), nil, StagePostcap, 0)
	c.RegisterHandler(llcDissectHandler, nil, StageLLCDissect, 0)
	c.RegisterHandler(decryptHandler(keys), nil, StageDecrypt, 0)
	c.RegisterHandler(dataDissectHandler, nil, StageDataDissect, 0)
}

func postcapHandler(verifyFCS bool) HandlerFunc {
	return func(_ any, p *packet.Packet) int {
		lf, ok := p.Fetch(packet.CompLinkFrame).(packet.LinkFrame)
		if !ok {
			return 0
		}

		switch lf.DLT {
		case dltIEEE80211Radiotap:
			l1, radio, decap, cksum, okd := radiotap.Dissect(lf.Data, verifyFCS)
			if !okd {
				return -1
			}
			p.Insert(packet.CompL1Data, l1)
			p.Insert(packet.CompRadioData, radio)
			p.Insert(packet.CompDecap, decap)
			if cksum != nil {
				p.Insert(packet.CompChecksum, *cksum)
				p.CRCOk = cksum.Valid != packet.ChecksumBad
				if cksum.Valid == packet.ChecksumBad {
					p.Error = true
				}
			}
		case dltPPI:
			l1, radio, decap, gps, okd := ppi.Dissect(lf.Data)
			if !okd {
				return -1
			}
			p.Insert(packet.CompL1Data, l1)
			p.Insert(packet.CompRadioData, radio)
			p.Insert(packet.CompDecap, decap)
			if gps != nil {
				p.Insert(packet.CompGPS, gps)
			}
		case dltPrism2:
			l1, radio, decap, okd := prism2.Dissect(lf.Data)
			if !okd {
				return -1
			}
			p.Insert(packet.CompL1Data, l1)
			p.Insert(packet.CompRadioData, radio)
			p.Insert(packet.CompDecap, decap)
		case dltBTLERadio:
			l1, radio, decap, errored, okd := btlerf.Dissect(lf.Data)
			if !okd {
				return -1
			}
			p.Insert(packet.CompL1Data, l1)
			p.Insert(packet.CompRadioData, radio)
			p.Insert(packet.CompDecap, decap)
			if errored {
				p.Error = true
			}
		default:
			// Unrecognized DLT: pass the raw bytes through as decap so
			// downstream stages can still try, mirroring the original's
			// "unknown DLT falls through to the data dissector" behavior.
			p.Insert(packet.CompDecap, packet.Decap{DLT: lf.DLT, Data: lf.Data})
		}
		return 0
	}
}

func llcDissectHandler(_ any, p *packet.Packet) int {
	decap, ok := p.Fetch(packet.CompDecap).(packet.Decap)
	if !ok {
		return 0
	}
	if decap.DLT != 105 { // DLT_IEEE802_11; BTLE_LL and others skip LLC/802.11 dissection
		return 0
	}

	res, ok := dot11.Dissect(decap.Data)
	if !ok {
		return 0
	}
	p.Insert(packet.CompDot11, res.Summary)
	if len(res.Alerts) > 0 {
		p.Insert(packet.CompMeta, packet.Meta{Type: "alert", Value: alertsToJSON(res.Alerts)})
	}

	// Re-slice decap down to the frame body (past the MAC header and any
	// QoS control field) so DECRYPT/DATADISSECT never have to re-derive
	// the header length.
	if res.BodyOffset <= len(decap.Data) {
		p.Insert(packet.CompDecap, packet.Decap{DLT: decap.DLT, Data: decap.Data[res.BodyOffset:]})
	}
	return 0
}

func decryptHandler(keys *wep.KeyRing) HandlerFunc {
	return func(_ any, p *packet.Packet) int {
		if keys == nil {
			return 0
		}
		summaryAny := p.Fetch(packet.CompDot11)
		summary, ok := summaryAny.(packet.Dot11Summary)
		if !ok || !summary.Privacy || summary.Type != packet.Dot11TypeData {
			return 0
		}

		key, found := keys.Lookup(summary.BSSID)
		if !found {
			return 0
		}

		decap, ok := p.Fetch(packet.CompDecap).(packet.Decap)
		if !ok {
			return 0
		}
		// The 802.11 header dissector already consumed the MAC header;
		// decap.Data here is the post-header body, which for a privacy=1
		// data frame is IV||encrypted-LLC+payload||ICV.
		plain, okd := wep.Decrypt(key, decap.Data)
		if !okd {
			return 0 // non-fatal: packet continues undecrypted
		}

		p.Insert(packet.CompMangle, packet.MangleFrame{Data: plain})
		summary.Decrypted = true
		p.Insert(packet.CompDot11, summary)
		return 0
	}
}

func dataDissectHandler(_ any, p *packet.Packet) int {
	var payload []byte
	if mangle, ok := p.Fetch(packet.CompMangle).(packet.MangleFrame); ok {
		payload = mangle.Data
	} else if decap, ok := p.Fetch(packet.CompDecap).(packet.Decap); ok {
		payload = decap.Data
	}
	if payload == nil {
		return 0
	}

	res, ok := ipdata.Dissect(payload)
	if !ok {
		return 0
	}
	p.Insert(packet.CompCommon, res.Common)
	if res.ARP != nil {
		p.Insert(packet.CompARP, *res.ARP)
	}
	if res.CDP != nil {
		p.Insert(packet.CompCDP, *res.CDP)
	}
	if res.EAPOL != nil {
		p.Insert(packet.CompEAPOL, *res.EAPOL)
	}
	if res.DHCP != nil {
		p.Insert(packet.CompDHCP, *res.DHCP)
	}
	if res.MDNS != nil {
		p.Insert(packet.CompMDNS, *res.MDNS)
	}
	return 0
}

func alertsToJSON(alerts []dot11.Alert) []byte {
	buf := []byte("[")
	for i, a := range alerts {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, []byte(`{"signature":"`+a.Signature+`","detail":"`+a.Detail+`"}`)...)
	}
	buf = append(buf, ']')
	return buf
}
