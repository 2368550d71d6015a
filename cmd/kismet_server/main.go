/**
 * kismet_server
 *
 * The server side of the external-tool protocol: listens for capture
 * helpers dialing in with --connect, hands each one an OPENREQ for a
 * configured source definition, and feeds every DATA frame it receives
 * through a packet chain wired with the full dissection pipeline,
 * streaming the result to a pcap-ng file and a kismetdb-replay store.
 *
 * This is deliberately the minimal server a capture helper can talk to
 * end to end, not the full multi-source UI/REST application -- no
 * entity tracker, no web UI, no alert subscriptions beyond what the
 * dissectors themselves raise.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package main

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kleaSCM/netscope/internal/capframework"
	"github.com/kleaSCM/netscope/internal/config"
	"github.com/kleaSCM/netscope/internal/dissect/wep"
	"github.com/kleaSCM/netscope/internal/extproto"
	"github.com/kleaSCM/netscope/internal/kismetdb"
	"github.com/kleaSCM/netscope/internal/packet"
	"github.com/kleaSCM/netscope/internal/packetchain"
	"github.com/kleaSCM/netscope/internal/pcapng"
	"github.com/kleaSCM/netscope/internal/wire"
)

type serverFlags struct {
	Listen    string
	ConfigPath string
	PcapNG    string
	KismetDB  string
	Sources   []string
	WepKeys   []string
}

func parseServerFlags(args []string) (*serverFlags, error) {
	fs := pflag.NewFlagSet("kismet_server", pflag.ContinueOnError)
	f := &serverFlags{}
	fs.StringVar(&f.Listen, "listen", ":3501", "address to accept capture helper connections on")
	fs.StringVar(&f.ConfigPath, "config", "", "path to a YAML config file (defaults applied if omitted)")
	fs.StringVar(&f.PcapNG, "pcapng", "", "override the configured pcap-ng output path")
	fs.StringVar(&f.KismetDB, "kismetdb", "", "override the configured kismetdb path")
	fs.StringArrayVar(&f.Sources, "source", nil, "source definition to OPENREQ on each incoming connection, in order; repeatable")
	fs.StringArrayVar(&f.WepKeys, "wepkey", nil, "bssid,hexkey pair to preload into the WEP key ring; repeatable")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// server holds the shared state every accepted connection reads from:
// configuration, the dissection key material, and the two sinks every
// connection's packet chain logs into.
type server struct {
	log      *log.Logger
	cfg      *config.Config
	keys     *wep.KeyRing
	pcapLog  *pcapng.Logger
	store    *kismetdb.Store
	sources  []string
	nextSrc  int32
	nextID   uint32
}

func (s *server) takeSourceDefinition() (string, bool) {
	i := atomic.AddInt32(&s.nextSrc, 1) - 1
	if int(i) >= len(s.sources) {
		return "", false
	}
	return s.sources[i], true
}

// connState is one accepted capture-helper connection: its own session,
// chain, and identity, so logging state never crosses connections.
type connState struct {
	srv        *server
	nc         net.Conn
	session    *extproto.Session
	chain      *packetchain.Chain
	sourceID   uint32
	sourceUUID string
	dlt        int
	definition string
}

func (s *server) handleConn(nc net.Conn) {
	defer nc.Close()

	id := atomic.AddUint32(&s.nextID, 1) - 1
	cs := &connState{
		srv:      s,
		nc:       nc,
		session:  extproto.NewSession(extproto.RoleServer, s.cfg.Protocol.PingInterval),
		chain:    packetchain.New(nil),
		sourceID: id,
	}
	packetchain.RegisterDefaultPipeline(cs.chain, s.keys, s.cfg.Capture.VerifyFCS)
	cs.chain.RegisterHandler(cs.logPacket, nil, packetchain.StageLogging, 0)

	s.log.Infof("connection %d from %s", id, nc.RemoteAddr())

	if def, ok := s.takeSourceDefinition(); ok {
		cs.definition = def
		if err := cs.sendOpenReq(def); err != nil {
			s.log.Errorf("connection %d: failed to send OPENREQ: %v", id, err)
			return
		}
	} else {
		s.log.Warnf("connection %d: no source definition configured for it, DATA frames will be dropped until one arrives", id)
	}

	if err := cs.ioLoop(); err != nil {
		s.log.Errorf("connection %d closed: %v", id, err)
	}
}

func (cs *connState) sendOpenReq(definition string) error {
	body, err := msgpack.Marshal(extproto.OpenPayload{Definition: definition})
	if err != nil {
		return err
	}
	f := &wire.Frame{PktType: wire.PktOpenReq, Seqno: cs.session.NextSeq(), Payload: body}
	return cs.send(f)
}

func (cs *connState) send(f *wire.Frame) error {
	buf, err := wire.Encode(f)
	if err != nil {
		return err
	}
	_, err = cs.nc.Write(buf)
	return err
}

// ioLoop reads frames off the connection until it closes or the
// session errors out, dispatching each to the appropriate handler.
func (cs *connState) ioLoop() error {
	buf := make([]byte, 0, 65536)
	tmp := make([]byte, 65536)
	lastPing := time.Now()

	_ = cs.nc.SetReadDeadline(time.Now().Add(250 * time.Millisecond))

	for {
		if cs.session.CheckTimeout(time.Now()) {
			return fmt.Errorf("peer ping timeout")
		}
		if time.Since(lastPing) > cs.srv.cfg.Protocol.PingInterval {
			_ = cs.send(cs.session.BuildPing())
			lastPing = time.Now()
		}

		n, err := cs.nc.Read(tmp)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				_ = cs.nc.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
				continue
			}
			return err
		}
		_ = cs.nc.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
		buf = append(buf, tmp[:n]...)

		for {
			f, consumed, perr := wire.ParseNext(buf)
			if perr == wire.ErrNeedMoreBytes {
				break
			}
			if perr != nil {
				return perr
			}
			buf = buf[consumed:]
			if err := cs.dispatch(f); err != nil {
				return err
			}
		}
	}
}

func (cs *connState) dispatch(f *wire.Frame) error {
	replies, err := cs.session.HandleFrame(f)
	if err != nil {
		return err
	}
	for _, r := range replies {
		if err := cs.send(r); err != nil {
			return err
		}
	}

	switch f.PktType {
	case wire.PktOpenResp:
		var resp extproto.OpenRespPayload
		if err := msgpack.Unmarshal(f.Payload, &resp); err != nil {
			return nil
		}
		if !resp.Success {
			cs.srv.log.Errorf("source %s failed to open: %s", cs.definition, resp.Msg)
			return nil
		}
		cs.dlt = resp.DLT
		cs.sourceUUID = resp.UUID
		if cs.sourceUUID == "" {
			cs.sourceUUID = cs.definition
		}
		iface, _ := capframework.ParseDefinition(cs.definition)
		_ = cs.srv.store.RegisterDatasource(cs.sourceUUID, resp.Hardware, cs.definition, resp.Hardware, iface)
		cs.srv.log.Infof("source %s opened: uuid=%s dlt=%d", cs.definition, cs.sourceUUID, cs.dlt)

	case wire.PktMessage:
		var msg extproto.MessagePayload
		if err := msgpack.Unmarshal(f.Payload, &msg); err == nil {
			cs.srv.log.Infof("helper message [%s]: %s", extproto.Severity(f.Code), msg.Text)
		}

	case wire.PktData:
		cs.handleData(f)

	case wire.PktEventbusPublish:
		var ev extproto.EventbusPublishPayload
		if err := msgpack.Unmarshal(f.Payload, &ev); err == nil {
			cs.srv.log.Debugf("event on %s: %+v", ev.Topic, ev.Event)
		}
	}
	return nil
}

func (cs *connState) handleData(f *wire.Frame) {
	var dp extproto.DataPayload
	if err := msgpack.Unmarshal(f.Payload, &dp); err != nil {
		cs.srv.log.Warnf("malformed DATA frame: %v", err)
		return
	}

	p := packet.New(nil)
	p.Ts = time.Unix(dp.TsSec, dp.TsUsec*1000)
	p.OriginalLen = len(dp.Payload)
	p.Insert(packet.CompLinkFrame, packet.LinkFrame{DLT: dp.DLT, Data: dp.Payload})
	if len(dp.L1) > 0 {
		p.Insert(packet.CompL1Data, packet.L1Data{Raw: dp.L1})
	}
	if dp.HasSignal {
		p.Insert(packet.CompRadioData, packet.RadioData{SignalType: packet.SignalDBM, SignalDBM: dp.SignalDBM})
	}

	cs.chain.Process(p)
}

// logPacket is this connection's LOGGING-stage handler: write the
// dissected frame to the pcap-ng stream and the kismetdb replay store.
func (cs *connState) logPacket(_ any, p *packet.Packet) int {
	lf, ok := p.Fetch(packet.CompLinkFrame).(packet.LinkFrame)
	if !ok {
		return 0
	}

	if _, err := cs.srv.pcapLog.LogPacket(cs.sourceID, lf.DLT, p); err != nil {
		cs.srv.log.Errorf("pcap-ng log write failed: %v", err)
	}

	uuid := cs.sourceUUID
	if uuid == "" {
		uuid = cs.definition
	}
	rec := kismetdb.Record{
		Ts:          p.Ts,
		SourceUUID:  uuid,
		DLT:         lf.DLT,
		OriginalLen: p.OriginalLen,
		Data:        lf.Data,
		Error:       p.Error,
	}
	if err := cs.srv.store.InsertPacket(rec); err != nil {
		cs.srv.log.Errorf("kismetdb insert failed: %v", err)
	}
	return 0
}

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "kismet_server"})
	log.SetDefault(logger)

	flags, err := parseServerFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var cfg *config.Config
	if flags.ConfigPath != "" {
		cfg, err = config.Load(flags.ConfigPath)
		if err != nil {
			logger.Fatal("failed to load config", "err", err)
		}
	} else {
		cfg = config.Defaults()
	}
	if flags.PcapNG != "" {
		cfg.Logging.PcapNGPath = flags.PcapNG
	}
	if flags.KismetDB != "" {
		cfg.Storage.KismetDBPath = flags.KismetDB
	}

	pcapFile, err := os.OpenFile(cfg.Logging.PcapNGPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		logger.Fatal("failed to open pcap-ng output", "path", cfg.Logging.PcapNGPath, "err", err)
	}
	defer pcapFile.Close()
	pcapLog := pcapng.New(pcapFile, nil, nil)

	store, err := kismetdb.Open(cfg.Storage.KismetDBPath)
	if err != nil {
		logger.Fatal("failed to open kismetdb", "path", cfg.Storage.KismetDBPath, "err", err)
	}
	defer store.Close()

	keys := wep.NewKeyRing()
	for _, kv := range flags.WepKeys {
		bssid, hexkey, ok := splitOnce(kv, ',')
		if !ok {
			logger.Warnf("ignoring malformed --wepkey %q, want bssid,hexkey", kv)
			continue
		}
		raw, err := hex.DecodeString(hexkey)
		if err != nil {
			logger.Warnf("ignoring --wepkey for %s: %v", bssid, err)
			continue
		}
		if err := keys.Add(bssid, raw); err != nil {
			logger.Warnf("ignoring --wepkey for %s: %v", bssid, err)
		}
	}

	srv := &server{
		log:     logger,
		cfg:     cfg,
		keys:    keys,
		pcapLog: pcapLog,
		store:   store,
		sources: flags.Sources,
	}

	ln, err := net.Listen("tcp", flags.Listen)
	if err != nil {
		logger.Fatal("failed to listen", "addr", flags.Listen, "err", err)
	}
	logger.Infof("listening on %s for capture helper connections", flags.Listen)

	var wg sync.WaitGroup
	for {
		nc, err := ln.Accept()
		if err != nil {
			logger.Error("accept failed", "err", err)
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.handleConn(nc)
		}()
	}
	wg.Wait()
}

func splitOnce(s string, sep byte) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

