/**
 * capture_serial_radview
 *
 * Capture adapter for the radview geiger counter: an Arduino-class
 * sensor that writes one JSON record per line over a serial link (CPS
 * and a spectral reading). Ported from the C capture_serial_radview
 * helper, which opens the device with raw termios and forwards each
 * newline-terminated record via cf_send_json rather than cf_send_data
 * -- this source produces telemetry, not link-layer packets.
 *
 * device= may name a real serial device path (opened and configured
 * via termios, matching the original) or the literal value "pty", which
 * allocates a pseudo-terminal pair instead -- useful for exercising
 * this adapter without real hardware attached, the same virtual-serial
 * trick used elsewhere in the pack for a KISS TNC.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package main

import (
	"bufio"
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/kleaSCM/netscope/internal/capframework"
)

const defaultBaud = 9600

func baudConst(n int) (uint32, bool) {
	switch n {
	case 9600:
		return unix.B9600, true
	case 19200:
		return unix.B19200, true
	case 38400:
		return unix.B38400, true
	case 57600:
		return unix.B57600, true
	case 115200:
		return unix.B115200, true
	case 230400:
		return unix.B230400, true
	case 460800:
		return unix.B460800, true
	case 921600:
		return unix.B921600, true
	default:
		return 0, false
	}
}

// configureRawTermios puts fd into 8N1 raw mode at baud, matching the
// newtio.c_cflag/c_iflag/c_oflag/c_lflag assignment in the original.
func configureRawTermios(fd int, baud uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("tcgetattr: %w", err)
	}
	t.Cflag = unix.CS8 | unix.CLOCAL | unix.CREAD
	t.Iflag = unix.IGNPAR
	t.Oflag = 0
	t.Lflag = 0
	t.Ispeed = baud
	t.Ospeed = baud
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("tcsetattr: %w", err)
	}
	return nil
}

func uuidForDevice(device string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte("kismet_cap_serial_radview"))
	a := h.Sum64()
	h = fnv.New64a()
	_, _ = h.Write([]byte(device))
	b := h.Sum64()
	return fmt.Sprintf("%08X-0000-0000-0000-%012X", uint32(a), b&0xFFFFFFFFFFFF)
}

type radviewAdapter struct {
	log *log.Logger

	device string
	name   string
	baud   int

	file *os.File // the fd lines are read from
	pty  *os.File // non-nil only in pty mode, so main can report the peer name
}

func (a *radviewAdapter) List(ctx context.Context) ([]capframework.ListedDevice, error) {
	return nil, nil
}

func (a *radviewAdapter) Probe(ctx context.Context, definition string) (capframework.ProbeResult, error) {
	iface, flags := capframework.ParseDefinition(definition)
	if !strings.HasPrefix(iface, "radview") {
		return capframework.ProbeResult{Success: false}, nil
	}
	device, ok := flags["device"]
	if !ok || device == "" {
		return capframework.ProbeResult{Success: false, Msg: "radview requires a device= field naming a serial port (or \"pty\")"}, nil
	}
	return capframework.ProbeResult{Success: true, UUID: uuidForDevice(device), Hardware: "radview"}, nil
}

func (a *radviewAdapter) Open(ctx context.Context, definition string) (capframework.OpenResult, error) {
	iface, flags := capframework.ParseDefinition(definition)
	if !strings.HasPrefix(iface, "radview") {
		return capframework.OpenResult{Success: false, Msg: "not a radview source"}, nil
	}

	device, ok := flags["device"]
	if !ok || device == "" {
		return capframework.OpenResult{Success: false, Msg: "radview requires a device= field naming a serial port (or \"pty\")"}, nil
	}

	name := flags["name"]
	if name == "" {
		name = iface
	}

	baud := defaultBaud
	if bs, ok := flags["baudrate"]; ok {
		n, err := strconv.Atoi(bs)
		if err != nil {
			return capframework.OpenResult{Success: false, Msg: "radview could not parse baudrate= option"}, nil
		}
		baud = n
	}

	var f, ptySlave *os.File
	var err error
	if device == "pty" {
		var master, slave *os.File
		master, slave, err = pty.Open()
		if err != nil {
			return capframework.OpenResult{Success: false, Msg: fmt.Sprintf("failed to allocate pty: %v", err)}, nil
		}
		f = master
		ptySlave = slave
		a.log.Infof("radview pty mode: write JSON lines to %s", slave.Name())
	} else {
		bc, ok := baudConst(baud)
		if !ok {
			return capframework.OpenResult{Success: false, Msg: fmt.Sprintf("unsupported baudrate %d", baud)}, nil
		}
		f, err = os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY, 0)
		if err != nil {
			return capframework.OpenResult{Success: false, Msg: fmt.Sprintf("%s failed to open serial device - %v", name, err)}, nil
		}
		if err := configureRawTermios(int(f.Fd()), bc); err != nil {
			f.Close()
			return capframework.OpenResult{Success: false, Msg: err.Error()}, nil
		}
	}

	a.device = device
	a.name = name
	a.baud = baud
	a.file = f
	a.pty = ptySlave

	uuid, ok := flags["uuid"]
	if !ok || uuid == "" {
		uuid = uuidForDevice(device)
	}

	return capframework.OpenResult{
		Success:  true,
		Msg:      fmt.Sprintf("opened %s on %s", name, device),
		DLT:      0,
		UUID:     uuid,
		Hardware: "radview",
	}, nil
}

func (a *radviewAdapter) TranslateChannel(ctx context.Context, channel string) (capframework.ChannelToken, error) {
	return nil, nil
}

func (a *radviewAdapter) SetChannel(ctx context.Context, token capframework.ChannelToken) error {
	return fmt.Errorf("capture_serial_radview: channel control not supported")
}

// RunCapture reads newline-delimited JSON records from the serial
// handle and republishes each as a KISMET/META radview event, matching
// the original's "search for newlines, return json record" loop.
func (a *radviewAdapter) RunCapture(ctx context.Context, sink capframework.FrameSink) error {
	if a.file == nil {
		return fmt.Errorf("capture_serial_radview: RunCapture called before a successful Open")
	}
	defer a.file.Close()
	if a.pty != nil {
		defer a.pty.Close()
	}

	scanner := bufio.NewScanner(a.file)
	scanner.Buffer(make([]byte, 0, 2048), 2048)

	for scanner.Scan() {
		if sink.SpindownRequested() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec := make([]byte, len(line))
		copy(rec, line)
		if err := sink.SendJSON("radview", rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		_ = sink.SendError(fmt.Sprintf("serial read error: %v", err))
		sink.Spindown("serial read error")
		return err
	}
	sink.Spindown("serial device closed")
	return nil
}

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "capture_serial_radview"})
	log.SetDefault(logger)

	f, err := capframework.ParseFlags("capture_serial_radview", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if f.Help {
		fmt.Print(capframework.Usage("capture_serial_radview"))
		return
	}

	conn, err := capframework.Dial(f)
	if err != nil {
		logger.Fatal("failed to establish transport", "err", err)
	}

	adapter := &radviewAdapter{log: logger}
	handler := capframework.NewHandler(conn, adapter, 0, logger)

	if err := handler.Run(context.Background()); err != nil {
		logger.Error("exited main loop", "err", err)
		os.Exit(1)
	}
}
