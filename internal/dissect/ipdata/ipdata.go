/**
 * IP / L4 Data Dissector.
 *
 * Recognizes the LLC/SNAP-encapsulated protocols carried beneath an
 * 802.11 data frame's payload (component H.IP): IPv4 (+ UDP/TCP with
 * DHCP/NetBIOS/ISAKMP/mDNS/PPTP port recognition), Cisco CDP,
 * EAPOL, and ARP. Runs at the DATADISSECT stage against mangleframe if
 * DECRYPT produced one, else linkframe's decap payload.
 *
 * Built on google/gopacket/layers, applied to 802.11 LLC/SNAP-framed
 * payloads rather than Ethernet-framed capture: gopacket's
 * LLC decoder already demotes to SNAP and from there to the SNAP type's
 * registered next layer (layers.LayerTypeIPv4, LayerTypeARP, ...),
 * matching kis_dissector_ipdata.cc's LLC-then-ethertype dispatch.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package ipdata

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/kleaSCM/netscope/internal/packet"
)

// Well-known ports the original dissector special-cases.
const (
	portDHCPServer = 67
	portDHCPClient = 68
	portNetBIOSNS  = 137
	portNetBIOSDGM = 138
	portIAPP       = 2313
	portISAKMP     = 500
	portMDNS       = 5353
	portPPTP       = 1723
)

// Result bundles every component the IP/L4 dissector can populate for a
// single decap payload.
type Result struct {
	Common packet.Common
	ARP    *packet.ARPInfo
	CDP    *packet.CDPInfo
	EAPOL  *packet.EAPOLInfo
	DHCP   *packet.DHCPInfo
	MDNS   *packet.MDNSInfo
}

// Dissect parses payload (the 802.11 data frame's body, starting at its
// 802.2 LLC header) and reports whatever it recognizes. ok is
// false if payload carried nothing this dissector understands (e.g. it
// wasn't LLC/SNAP at all -- common for QoS-null or management frames
// misrouted here).
func Dissect(payload []byte) (Result, bool) {
	var res Result
	found := false

	pkt := gopacket.NewPacket(payload, layers.LayerTypeLLC, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})

	if cdpLayer := pkt.Layer(layers.LayerTypeCiscoDiscovery); cdpLayer != nil {
		if cdp, ok := cdpLayer.(*layers.CiscoDiscovery); ok {
			if info, err := cdp.Info(); err == nil {
				res.CDP = dissectCDP(info)
				found = true
			}
		}
	}

	if arpLayer := pkt.Layer(layers.LayerTypeARP); arpLayer != nil {
		if arp, ok := arpLayer.(*layers.ARP); ok {
			res.ARP = dissectARP(arp)
			res.Common.Protocol = "ARP"
			found = true
		}
	}

	if eapolLayer := pkt.Layer(layers.LayerTypeEAPOL); eapolLayer != nil {
		// dissectEAPOL reads from the EAPOL header on, which begins
		// right after the LLC/SNAP header.
		var eapolBytes []byte
		if snap := pkt.Layer(layers.LayerTypeSNAP); snap != nil {
			eapolBytes = snap.LayerPayload()
		}
		res.EAPOL = dissectEAPOL(eapolBytes)
		res.Common.Protocol = "EAPOL"
		found = true
	}

	if ip4Layer := pkt.Layer(layers.LayerTypeIPv4); ip4Layer != nil {
		if ip4, ok := ip4Layer.(*layers.IPv4); ok {
			res.Common.SrcIP = ip4.SrcIP.String()
			res.Common.DstIP = ip4.DstIP.String()
			res.Common.Protocol = ip4.Protocol.String()
			found = true
		}
	}

	if udpLayer := pkt.Layer(layers.LayerTypeUDP); udpLayer != nil {
		if udp, ok := udpLayer.(*layers.UDP); ok {
			res.Common.SrcPort = uint16(udp.SrcPort)
			res.Common.DstPort = uint16(udp.DstPort)
			res.Common.Protocol = "UDP"
			found = true

			switch {
			case res.Common.SrcPort == portDHCPServer || res.Common.DstPort == portDHCPClient ||
				res.Common.SrcPort == portDHCPClient || res.Common.DstPort == portDHCPServer:
				res.DHCP = dissectDHCP(pkt)
			case res.Common.SrcPort == portMDNS || res.Common.DstPort == portMDNS:
				res.MDNS = dissectMDNS(pkt)
			case res.Common.SrcPort == portNetBIOSNS || res.Common.DstPort == portNetBIOSNS ||
				res.Common.SrcPort == portNetBIOSDGM || res.Common.DstPort == portNetBIOSDGM:
				res.Common.Protocol = "NETBIOS"
			case res.Common.SrcPort == portIAPP || res.Common.DstPort == portIAPP:
				res.Common.Protocol = "IAPP"
			case res.Common.SrcPort == portISAKMP || res.Common.DstPort == portISAKMP:
				res.Common.Protocol = "ISAKMP"
			}
		}
	}

	if tcpLayer := pkt.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		if tcp, ok := tcpLayer.(*layers.TCP); ok {
			res.Common.SrcPort = uint16(tcp.SrcPort)
			res.Common.DstPort = uint16(tcp.DstPort)
			res.Common.Protocol = "TCP"
			found = true

			if res.Common.SrcPort == portPPTP || res.Common.DstPort == portPPTP {
				res.Common.Protocol = "PPTP"
			}
		}
	}

	return res, found
}

func dissectARP(arp *layers.ARP) *packet.ARPInfo {
	return &packet.ARPInfo{
		Operation: arp.Operation,
		SrcIP:     ipString(arp.SourceProtAddress),
		SrcMAC:    macString(arp.SourceHwAddress),
		DstIP:     ipString(arp.DstProtAddress),
		DstMAC:    macString(arp.DstHwAddress),
	}
}

func dissectCDP(cdi *layers.CiscoDiscoveryInfo) *packet.CDPInfo {
	info := &packet.CDPInfo{
		DeviceID:     cdi.DeviceID,
		PortID:       cdi.PortID,
		Platform:     cdi.Platform,
		Software:     cdi.Version,
		Capabilities: fmt.Sprintf("0x%x", uint32(cdi.Capabilities)),
	}
	if len(cdi.Addresses) > 0 {
		info.IPAddress = cdi.Addresses[0].String()
	}
	return info
}

// eapType byte codes recognized at the EAP header beneath EAPOL-EAP
// frames.
const (
	eapTypeLEAP = 17
	eapTypeTLS  = 13
	eapTypeTTLS = 21
	eapTypePEAP = 25
)

func dissectEAPOL(payload []byte) *packet.EAPOLInfo {
	// EAPOL header: version(1) type(1) length(2); EAP header follows for
	// type==0 (EAP-Packet): code(1) id(1) length(2) eap_type(1).
	const eapolHdrLen = 4
	if len(payload) < eapolHdrLen+5 {
		return &packet.EAPOLInfo{}
	}
	eapolType := payload[1]
	if eapolType != 0 {
		return &packet.EAPOLInfo{}
	}
	eapType := payload[eapolHdrLen+4]
	switch eapType {
	case eapTypeLEAP:
		return &packet.EAPOLInfo{EAPType: "LEAP"}
	case eapTypeTLS:
		return &packet.EAPOLInfo{EAPType: "TLS"}
	case eapTypeTTLS:
		return &packet.EAPOLInfo{EAPType: "TTLS"}
	case eapTypePEAP:
		return &packet.EAPOLInfo{EAPType: "PEAP"}
	default:
		return &packet.EAPOLInfo{}
	}
}

func dissectDHCP(pkt gopacket.Packet) *packet.DHCPInfo {
	layer := pkt.Layer(layers.LayerTypeDHCPv4)
	if layer == nil {
		return nil
	}
	dhcp, ok := layer.(*layers.DHCPv4)
	if !ok {
		return nil
	}
	info := &packet.DHCPInfo{ClientMAC: macString(dhcp.ClientHWAddr)}
	for _, opt := range dhcp.Options {
		switch opt.Type {
		case layers.DHCPOptMessageType:
			if len(opt.Data) == 1 {
				info.MessageType = dhcpMessageTypeName(opt.Data[0])
			}
		case layers.DHCPOptRequestIP:
			info.RequestedIP = ipString(opt.Data)
		case layers.DHCPOptServerID:
			info.ServerID = ipString(opt.Data)
		case layers.DHCPOptHostname:
			info.Hostname = string(opt.Data)
		}
	}
	return info
}

func dhcpMessageTypeName(b byte) string {
	switch layers.DHCPMsgType(b) {
	case layers.DHCPMsgTypeDiscover:
		return "DISCOVER"
	case layers.DHCPMsgTypeOffer:
		return "OFFER"
	case layers.DHCPMsgTypeRequest:
		return "REQUEST"
	case layers.DHCPMsgTypeAck:
		return "ACK"
	case layers.DHCPMsgTypeNak:
		return "NAK"
	case layers.DHCPMsgTypeRelease:
		return "RELEASE"
	default:
		return "UNKNOWN"
	}
}

func dissectMDNS(pkt gopacket.Packet) *packet.MDNSInfo {
	layer := pkt.Layer(layers.LayerTypeDNS)
	if layer == nil {
		return nil
	}
	dns, ok := layer.(*layers.DNS)
	if !ok {
		return nil
	}
	info := &packet.MDNSInfo{}
	for _, q := range dns.Questions {
		info.Questions = append(info.Questions, string(q.Name))
	}
	for _, a := range dns.Answers {
		info.Answers = append(info.Answers, string(a.Name))
	}
	return info
}

func ipString(b []byte) string {
	if len(b) != 4 {
		return ""
	}
	return net.IP(b).String()
}

func macString(b []byte) string {
	if len(b) != 6 {
		return ""
	}
	return net.HardwareAddr(b).String()
}
