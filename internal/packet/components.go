/**
 * Packet Components.
 *
 * Concrete component types inserted into a Packet's component table by
 * the dissection chain. Each type is registered once under a stable name
 * (see the Comp* ComponentID vars below) so callers never have to
 * re-derive an id.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package packet

// Well-known component ids on DefaultRegistry, registered at package
// init so every package that imports "packet" observes the same ids
// without an explicit bootstrap step.
var (
	CompLinkFrame ComponentID
	CompL1Data    ComponentID
	CompRadioData ComponentID
	CompDecap     ComponentID
	CompMangle    ComponentID
	CompGPS       ComponentID
	CompChecksum  ComponentID
	CompCommon    ComponentID
	CompDot11     ComponentID
	CompDataSrc   ComponentID
	CompMeta      ComponentID
	CompARP       ComponentID
	CompCDP       ComponentID
	CompEAPOL     ComponentID
	CompDHCP      ComponentID
	CompMDNS      ComponentID
)

func init() {
	CompLinkFrame = DefaultRegistry.Register("LINKFRAME")
	CompL1Data = DefaultRegistry.Register("L1DATA")
	CompRadioData = DefaultRegistry.Register("RADIODATA")
	CompDecap = DefaultRegistry.Register("DECAP")
	CompMangle = DefaultRegistry.Register("MANGLEFRAME")
	CompGPS = DefaultRegistry.Register("GPS")
	CompChecksum = DefaultRegistry.Register("CHECKSUM")
	CompCommon = DefaultRegistry.Register("COMMON")
	CompDot11 = DefaultRegistry.Register("DOT11")
	CompDataSrc = DefaultRegistry.Register("DATASRC")
	CompMeta = DefaultRegistry.Register("META")
	CompARP = DefaultRegistry.Register("ARP")
	CompCDP = DefaultRegistry.Register("CDP")
	CompEAPOL = DefaultRegistry.Register("EAPOL")
	CompDHCP = DefaultRegistry.Register("DHCP")
	CompMDNS = DefaultRegistry.Register("MDNS")
}

// LinkFrame holds the raw captured bytes plus their DLT identifier, as
// handed to the server by the capture helper in a DATA frame.
type LinkFrame struct {
	DLT  int
	Data []byte
}

// L1Data holds the raw L1 preamble bytes extracted from a radiotap/PPI/
// Prism2/BTLE-RF pseudo-header, kept around for loggers that want the
// original bytes rather than the decoded RadioData summary.
type L1Data struct {
	Raw []byte
}

// SignalType distinguishes how RadioData.SignalDBM should be interpreted.
type SignalType int

const (
	SignalUnknown SignalType = iota
	SignalDBM
	SignalRSSI
)

// Carrier enumerates the physical-layer carrier type a frame was seen on.
type Carrier int

const (
	CarrierUnknown Carrier = iota
	Carrier80211b
	Carrier80211bPlus
	Carrier80211a
	Carrier80211g
	Carrier80211n
	Carrier80211ac
	CarrierBTLE
)

// Encoding enumerates the physical-layer modulation observed.
type Encoding int

const (
	EncodingUnknown Encoding = iota
	EncodingCCK
	EncodingOFDM
	EncodingDSSS
	EncodingFHSS
	EncodingTurbo
)

// RadioData is the decoded signal/channel metadata common to every radio
// dissector in component G.
type RadioData struct {
	SignalType  SignalType
	SignalDBM   int
	NoiseDBM    int
	FreqKHz     int
	Channel     string
	Encoding    Encoding
	Carrier     Carrier
	DatarateKbps int
	PerAntenna  map[int]int // antenna index -> dBm/RSSI signal
}

// Decap is the dissected payload beneath the L1 pseudo-header -- an
// 802.11 MAC frame (FCS trimmed if present) or a BTLE_LL frame.
type Decap struct {
	DLT  int
	Data []byte
}

// MangleFrame replaces LinkFrame's payload once DECRYPT has succeeded;
// its presence plus Dot11Summary.Decrypted signals downstream stages that
// ciphertext has been removed.
type MangleFrame struct {
	Data []byte
}

// GPSFix mirrors the fix-quality values a GPS component can carry.
type GPSFix int

const (
	GPSFixNone GPSFix = iota
	GPSFix2D
	GPSFix3D
)

// GPS holds a location fix attached to a packet, typically extracted
// from a PPI-GPS extension tag or fed in by an external GPS daemon.
type GPS struct {
	Lat       float64
	Lon       float64
	Alt       float64
	Speed     float64
	Heading   float64
	Fix       GPSFix
	Name      string
	Timestamp int64 // unix micros
}

// ChecksumVerdict is the outcome of an FCS/ICV verification.
type ChecksumVerdict int

const (
	ChecksumUnknown ChecksumVerdict = iota
	ChecksumGood
	ChecksumBad
)

// Checksum holds the trailing FCS bytes plus the dissector's verdict on
// whether they validate against the frame contents.
type Checksum struct {
	FCS    []byte
	Valid  ChecksumVerdict
}

// CryptSet is a bitmask of cipher/key-management schemes observed in an
// 802.11 management frame's tagged parameters.
type CryptSet uint32

const (
	CryptNone CryptSet = 0
	CryptWEP  CryptSet = 1 << iota
	CryptWPA
	CryptPSK
	CryptTKIP
	CryptAESCCM
	CryptWPAMigMode
	CryptLEAP
	CryptEAPTLS
	CryptEAPTTLS
	CryptEAPPEAP
	CryptWPA2
)

// Dot11Subtype enumerates the management/control/data subtypes the
// header dissector recognizes.
type Dot11Subtype int

const (
	Dot11SubtypeUnknown Dot11Subtype = iota
	Dot11SubtypeBeacon
	Dot11SubtypeProbeReq
	Dot11SubtypeProbeResp
	Dot11SubtypeAssocReq
	Dot11SubtypeAssocResp
	Dot11SubtypeDeauth
	Dot11SubtypeDisassoc
	Dot11SubtypeData
	Dot11SubtypeQoSData
)

type Dot11FrameType int

const (
	Dot11TypeUnknown Dot11FrameType = iota
	Dot11TypeManagement
	Dot11TypeControl
	Dot11TypeData
)

// Dot11Summary is the dissected 802.11 header summary component (named
// "80211" elsewhere).
type Dot11Summary struct {
	Type       Dot11FrameType
	Subtype    Dot11Subtype
	BSSID      string
	Source     string
	Dest       string
	Channel    int
	SSID       string
	SSIDBlank  bool
	MaxRateKbps int
	Country    string
	Privacy    bool
	CryptSet   CryptSet
	Decrypted  bool
}

// Common carries the small set of fields nearly every consumer wants
// without walking the whole component table.
type Common struct {
	Protocol string
	SrcIP    string
	DstIP    string
	SrcPort  uint16
	DstPort  uint16
}

// DataSrc is a back-reference to the datasource record a packet was
// captured from; populated by the server on ingest, before POSTCAP runs.
type DataSrc struct {
	UUID string
	Name string
	DLT  int
}

// Meta carries a JSON-tagged blob for non-packet telemetry (state
// transitions, channel-hop events, etc) that still wants to ride the
// same LOGGING stage as packets.
type Meta struct {
	Type  string
	Value []byte // raw JSON
}

// ARPInfo carries the source IP extracted from an ARP request/reply
// seen beneath a data frame's LLC/SNAP payload.
type ARPInfo struct {
	Operation uint16
	SrcIP     string
	SrcMAC    string
	DstIP     string
	DstMAC    string
}

// CDPInfo carries the Cisco Discovery Protocol TLVs this dissector
// recognizes.
type CDPInfo struct {
	DeviceID     string
	PortID       string
	IPAddress    string
	Capabilities string
	Software     string
	Platform     string
}

// EAPOLInfo identifies the EAP method observed in an EAPOL frame and
// folds it into the owning Dot11Summary.CryptSet at the caller's
// discretion.
type EAPOLInfo struct {
	EAPType string // LEAP, TLS, TTLS, PEAP, or "" if undetermined
}

// DHCPInfo carries the DHCP option fields the dissector recognizes.
type DHCPInfo struct {
	MessageType  string
	ClientMAC    string
	RequestedIP  string
	ServerID     string
	Hostname     string
}

// MDNSInfo carries the mDNS question/answer summary for port-5353
// traffic.
type MDNSInfo struct {
	Questions []string
	Answers   []string
}
