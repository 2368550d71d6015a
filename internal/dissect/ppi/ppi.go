/**
 * PPI (Per-Packet Information) Dissector.
 *
 * Same overall shape as radiotap (fixed header + TLV fields) but with a
 * TLV layout instead of a present-bitmap, and fields namespaced by a DLT
 * so multiple link types can share one PPI stream. This implementation
 * only understands the 802.11-common and GPS field namespaces, which is
 * everything PPI-tagged radiotap-style captures need.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package ppi

import (
	"encoding/binary"
	"math"

	"github.com/kleaSCM/netscope/internal/packet"
)

const (
	fieldTypeDot11Common = 2
	fieldTypeGPS         = 30001 // vendor-extension GPS field used by the GPS-equipped capture tools this spec targets

	ppiDot11DLT = 105
)

// Dissect parses a PPI-prefixed frame: 8-byte fixed header (version,
// flags, length, dlt) followed by length-8 bytes of TLV fields (type
// uint16, length uint16, value).
func Dissect(raw []byte) (l1 packet.L1Data, radio packet.RadioData, decap packet.Decap, gps *packet.GPS, ok bool) {
	if len(raw) < 8 {
		return
	}
	ppiLen := int(binary.LittleEndian.Uint16(raw[2:4]))
	if ppiLen < 8 || ppiLen > len(raw) {
		return
	}

	radio.SignalType = packet.SignalUnknown

	off := 8
	for off+4 <= ppiLen {
		fieldType := binary.LittleEndian.Uint16(raw[off : off+2])
		fieldLen := int(binary.LittleEndian.Uint16(raw[off+2 : off+4]))
		off += 4
		if off+fieldLen > ppiLen {
			return
		}
		value := raw[off : off+fieldLen]
		off += fieldLen

		switch fieldType {
		case fieldTypeDot11Common:
			parseDot11Common(value, &radio)
		case fieldTypeGPS:
			if g := parseGPS(value); g != nil {
				gps = g
			}
		}
	}
	if off != ppiLen {
		return // trailing bytes too short to hold a field header
	}

	l1.Raw = append([]byte(nil), raw[:ppiLen]...)
	decap = packet.Decap{DLT: ppiDot11DLT, Data: append([]byte(nil), raw[ppiLen:]...)}
	return l1, radio, decap, gps, true
}

// parseDot11Common decodes the subset of the 802.11-common field this
// dissector needs: channel frequency (offset 4, uint16 MHz) and dBm
// antenna signal (offset 14, int8), matching the field's documented
// layout.
func parseDot11Common(value []byte, radio *packet.RadioData) {
	if len(value) >= 6 {
		freqMHz := binary.LittleEndian.Uint16(value[4:6])
		radio.FreqKHz = int(freqMHz) * 1000
	}
	if len(value) >= 15 {
		radio.SignalType = packet.SignalDBM
		radio.SignalDBM = int(int8(value[14]))
	}
}

// parseGPS decodes a PPI-GPS extension tag: a bitmask of present
// sub-fields followed by fixed-point values in 3.7 (degrees) or 6.4
// (meters) format, little-endian.
func parseGPS(value []byte) *packet.GPS {
	if len(value) < 4 {
		return nil
	}
	present := binary.LittleEndian.Uint32(value[0:4])
	const (
		gpsHasLat = 1 << iota
		gpsHasLon
		gpsHasAlt
	)

	g := &packet.GPS{Fix: packet.GPSFix2D}
	off := 4
	if present&gpsHasLat != 0 {
		if off+4 > len(value) {
			return nil
		}
		g.Lat = fixed3_7(binary.LittleEndian.Uint32(value[off : off+4]))
		off += 4
	}
	if present&gpsHasLon != 0 {
		if off+4 > len(value) {
			return nil
		}
		g.Lon = fixed3_7(binary.LittleEndian.Uint32(value[off : off+4]))
		off += 4
	}
	if present&gpsHasAlt != 0 {
		if off+4 > len(value) {
			return nil
		}
		g.Alt = fixed6_4(binary.LittleEndian.Uint32(value[off : off+4]))
		g.Fix = packet.GPSFix3D
		off += 4
	}
	return g
}

// fixed3_7 decodes a signed fixed-point value with 3 integer bits and 7
// fractional bits of precision-scale (i.e. the value is a signed
// int32 scaled by 10^7, the common GPS-degrees fixed-point encoding).
func fixed3_7(raw uint32) float64 {
	return float64(int32(raw)) / 1e7
}

// fixed6_4 decodes a signed fixed-point value scaled by 10^4 (meters,
// with 4 fractional decimal digits).
func fixed6_4(raw uint32) float64 {
	return math.Round(float64(int32(raw))/1e4*1e7) / 1e7
}
