/**
 * capture_pcapfile
 *
 * A capture binary that replays a stored pcap or pcap-ng file through
 * the external-tool protocol as if it were a live radio. Ported from
 * the C capture_pcapfile helper: same two-thread split (an I/O
 * goroutine owns the protocol session, a capture goroutine walks the
 * file), same DLT auto-propagation from the file itself, same
 * definition syntax (the path before the first colon, flags after).
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/kleaSCM/netscope/internal/capframework"
)

// pcapSource is the subset of pcapgo.Reader/pcapgo.NgReader this
// adapter needs; both concrete types satisfy it.
type pcapSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

func openPcapSource(path string) (pcapSource, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if ng, err := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions); err == nil {
		return ng, f, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, nil, err
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, f, nil
}

type pcapfileAdapter struct {
	log *log.Logger

	path string
	file *os.File
	src  pcapSource
	dlt  int
}

func uuidForPath(path string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	sum := h.Sum64()
	return fmt.Sprintf("%08X-0000-0000-0000-%012X", uint32(sum>>32), sum&0xFFFFFFFFFFFF)
}

func (a *pcapfileAdapter) List(ctx context.Context) ([]capframework.ListedDevice, error) {
	return nil, nil
}

func (a *pcapfileAdapter) Probe(ctx context.Context, definition string) (capframework.ProbeResult, error) {
	path, _ := capframework.ParseDefinition(definition)
	if path == "" {
		return capframework.ProbeResult{Success: false, Msg: "unable to find pcap file name in definition"}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return capframework.ProbeResult{Success: false, Msg: fmt.Sprintf("unable to find pcapfile '%s'", path)}, nil
	}
	if !info.Mode().IsRegular() {
		return capframework.ProbeResult{Success: false, Msg: fmt.Sprintf("file '%s' is not a regular file", path)}, nil
	}
	return capframework.ProbeResult{Success: true, Msg: "", UUID: uuidForPath(path), Hardware: "pcapfile"}, nil
}

func (a *pcapfileAdapter) Open(ctx context.Context, definition string) (capframework.OpenResult, error) {
	path, flags := capframework.ParseDefinition(definition)
	if path == "" {
		return capframework.OpenResult{Success: false, Msg: "unable to find pcap file name in definition"}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return capframework.OpenResult{Success: false, Msg: fmt.Sprintf("unable to find pcapfile '%s'", path)}, nil
	}
	if !info.Mode().IsRegular() {
		return capframework.OpenResult{Success: false, Msg: fmt.Sprintf("file '%s' is not a regular file", path)}, nil
	}

	src, f, err := openPcapSource(path)
	if err != nil {
		return capframework.OpenResult{Success: false, Msg: err.Error()}, nil
	}

	dlt := int(src.LinkType())
	if ov, ok := flags["dlt"]; ok {
		if n, perr := fmt.Sscanf(ov, "%d", &dlt); perr != nil || n != 1 {
			f.Close()
			return capframework.OpenResult{Success: false, Msg: "invalid dlt= override"}, nil
		}
	}

	a.path = path
	a.file = f
	a.src = src
	a.dlt = dlt

	a.log.Infof("opened pcapfile %s for playback, dlt=%d", path, dlt)

	return capframework.OpenResult{
		Success:  true,
		Msg:      fmt.Sprintf("opened pcapfile '%s' for playback", path),
		DLT:      dlt,
		UUID:     uuidForPath(path),
		Hardware: "pcapfile",
	}, nil
}

// TranslateChannel implements capframework.CaptureAdapter: pcap replay
// has no channel concept, so every channel is unrecognized.
func (a *pcapfileAdapter) TranslateChannel(ctx context.Context, channel string) (capframework.ChannelToken, error) {
	return nil, nil
}

func (a *pcapfileAdapter) SetChannel(ctx context.Context, token capframework.ChannelToken) error {
	return fmt.Errorf("capture_pcapfile: channel control not supported")
}

// RunCapture walks the open file front to back, handing every record
// to sink as a DATA frame, then spins down once the file is exhausted.
func (a *pcapfileAdapter) RunCapture(ctx context.Context, sink capframework.FrameSink) error {
	if a.src == nil {
		return fmt.Errorf("capture_pcapfile: RunCapture called before a successful Open")
	}
	defer a.file.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if sink.SpindownRequested() {
			return nil
		}

		data, ci, err := a.src.ReadPacketData()
		if err == io.EOF {
			_ = sink.SendMessage(capframework.SeverityInfo, "end of pcapfile reached")
			sink.Spindown("end of file")
			return nil
		}
		if err != nil {
			_ = sink.SendError(fmt.Sprintf("error reading pcapfile: %v", err))
			sink.Spindown("read error")
			return err
		}

		if err := sink.SendData(ci.Timestamp, a.dlt, data, "", nil, nil); err != nil {
			return err
		}
	}
}

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "capture_pcapfile"})
	log.SetDefault(logger)

	f, err := capframework.ParseFlags("capture_pcapfile", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if f.Help {
		fmt.Print(capframework.Usage("capture_pcapfile"))
		return
	}

	conn, err := capframework.Dial(f)
	if err != nil {
		logger.Fatal("failed to establish transport", "err", err)
	}

	adapter := &pcapfileAdapter{log: logger}
	handler := capframework.NewHandler(conn, adapter, 0, logger)

	if err := handler.Run(context.Background()); err != nil {
		logger.Error("exited main loop", "err", err)
		os.Exit(1)
	}
}
