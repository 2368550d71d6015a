/**
 * Capture Handler.
 *
 * The two-thread runtime every capture binary shares: one goroutine owns
 * the fd/connection and the external-tool protocol session (the "I/O
 * loop"), the other runs the CaptureAdapter's RunCapture body (the
 * "capture thread"). They communicate through the output ring buffer
 * and a condition variable, mirroring cf_handler's documented
 * thread-safety contract -- the capture thread never touches the fd; it
 * calls the session only for sequence numbers and to build outgoing
 * frames, and those session methods are mutex-guarded.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package capframework

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/kleaSCM/netscope/internal/extproto"
	"github.com/kleaSCM/netscope/internal/packet"
	"github.com/kleaSCM/netscope/internal/ringbuf"
	"github.com/kleaSCM/netscope/internal/wire"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	defaultRingSize = 1 << 20 // 1MiB, a reasonable per-connection buffer size
	ioPollInterval  = 50 * time.Millisecond
)

var _ FrameSink = (*Handler)(nil)

// Conn is the minimal transport Handler needs: a readable/writable byte
// stream, usually a pair of fds opened by the parent (--in-fd/--out-fd)
// or a unix/tcp socket (--connect).
type Conn interface {
	io.Reader
	io.Writer
}

// Handler owns one capture helper's protocol session and the ring
// buffers bridging it to the capture thread.
type Handler struct {
	conn    Conn
	session *extproto.Session
	adapter CaptureAdapter

	in  *ringbuf.RingBuffer
	out *ringbuf.RingBuffer

	outMu   sync.Mutex
	outCond *sync.Cond

	spindown int32 // atomic bool
	shutdown int32 // atomic bool

	hopper *ChannelHopper

	pendingRead chan pipeReadResult

	log *log.Logger
}

// NewHandler wires a Conn and CaptureAdapter together. ringSize <= 0
// selects defaultRingSize.
func NewHandler(conn Conn, adapter CaptureAdapter, ringSize int, logger *log.Logger) *Handler {
	if ringSize <= 0 {
		ringSize = defaultRingSize
	}
	if logger == nil {
		logger = log.Default()
	}
	h := &Handler{
		conn:    conn,
		session: extproto.NewSession(extproto.RoleHelper, extproto.DefaultPingInterval),
		adapter: adapter,
		in:      ringbuf.New(ringSize),
		out:     ringbuf.New(ringSize),
		log:     logger,
	}
	h.outCond = sync.NewCond(&h.outMu)
	return h
}

// Spindown implements FrameSink: request a graceful stop of the capture
// thread without closing the protocol session (two-phase
// cancellation: spindown vs shutdown).
func (h *Handler) Spindown(reason string) {
	atomic.StoreInt32(&h.spindown, 1)
	h.log.Info("spindown requested", "reason", reason)
}

// SpindownRequested implements FrameSink.
func (h *Handler) SpindownRequested() bool {
	return atomic.LoadInt32(&h.spindown) != 0 || atomic.LoadInt32(&h.shutdown) != 0
}

func (h *Handler) requestShutdown() {
	atomic.StoreInt32(&h.shutdown, 1)
}

// sendFrame serializes f and commits it into the output ring buffer,
// blocking on outCond if there isn't enough room until the I/O loop
// drains it. This is the "cf_send_data MUST block via condition
// variable" discipline.
func (h *Handler) sendFrame(f *wire.Frame) error {
	buf, err := wire.Encode(f)
	if err != nil {
		return err
	}

	h.outMu.Lock()
	defer h.outMu.Unlock()
	for h.out.Available() < len(buf) {
		if h.out.Size() < len(buf) {
			return fmt.Errorf("capframework: frame of %d bytes exceeds ring size %d", len(buf), h.out.Size())
		}
		h.outCond.Wait()
	}
	region, err := h.out.Reserve(len(buf))
	if err != nil {
		return err
	}
	copy(region, buf)
	if err := h.out.Commit(region, len(buf)); err != nil {
		return err
	}
	h.outCond.Signal()
	return nil
}

// SendData implements FrameSink: emit one captured packet as a DATA frame.
func (h *Handler) SendData(ts time.Time, dlt int, payload []byte, channel string, l1 *packet.L1Data, radio *packet.RadioData) error {
	dp := extproto.DataPayload{
		TsSec:   ts.Unix(),
		TsUsec:  int64(ts.Nanosecond() / 1000),
		DLT:     dlt,
		Channel: channel,
		Payload: payload,
	}
	if l1 != nil {
		dp.L1 = l1.Raw
	}
	if radio != nil && radio.SignalType != packet.SignalUnknown {
		dp.HasSignal = true
		dp.SignalDBM = radio.SignalDBM
	}
	body, err := msgpack.Marshal(dp)
	if err != nil {
		return err
	}
	return h.sendFrame(&wire.Frame{PktType: wire.PktData, Seqno: h.session.NextSeq(), Payload: body})
}

// SendMessage implements FrameSink.
func (h *Handler) SendMessage(sev Severity, text string) error {
	f, err := h.session.BuildMessage(extproto.Severity(sev), text)
	if err != nil {
		return err
	}
	return h.sendFrame(f)
}

// SendError implements FrameSink as a SeverityError SendMessage.
func (h *Handler) SendError(text string) error {
	return h.SendMessage(SeverityError, text)
}

// SendWarning implements FrameSink as a SeverityInfo SendMessage (Kismet
// has no distinct WARNING severity; INFO carries advisory text).
func (h *Handler) SendWarning(text string) error {
	return h.SendMessage(SeverityInfo, text)
}

// SendJSON implements FrameSink: wraps an arbitrary JSON blob in a Meta
// component carried by an EVENTBUS_PUBLISH on the "KISMET/META" topic.
func (h *Handler) SendJSON(metaType string, payload []byte) error {
	f, err := h.session.BuildEventbusPublish("KISMET/META", packet.Meta{Type: metaType, Value: payload})
	if err != nil {
		return err
	}
	return h.sendFrame(f)
}

// Run drives the handler until ctx is canceled or the connection/session
// closes: it starts the capture thread, then services the I/O loop on
// the calling goroutine.
func (h *Handler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	captureDone := make(chan error, 1)
	go func() {
		captureDone <- h.adapter.RunCapture(ctx, h)
	}()

	ioDone := make(chan error, 1)
	go h.ioLoop(ctx, ioDone)

	var ioErr, capErr error
	for ioErr == nil || capErr == nil {
		select {
		case ioErr = <-ioDone:
			cancel()
			ioDone = nil
		case capErr = <-captureDone:
			captureDone = nil
		}
		if ioDone == nil && captureDone == nil {
			break
		}
	}
	if ioErr != nil {
		return ioErr
	}
	return capErr
}

// ioLoop is the connection-owning goroutine: read bytes into h.in,
// decode and dispatch frames through the session, and flush h.out to
// the connection. It emulates the C implementation's select()-driven
// loop with a read-deadline poll since Conn has no fd to select on
// directly.
func (h *Handler) ioLoop(ctx context.Context, done chan<- error) {
	readBuf := make([]byte, 65536)
	lastPing := time.Now()

	for {
		select {
		case <-ctx.Done():
			done <- nil
			return
		default:
		}

		if h.session.CheckTimeout(time.Now()) {
			done <- fmt.Errorf("capframework: peer ping timeout")
			return
		}
		if time.Since(lastPing) > extproto.DefaultPingInterval {
			if f := h.session.BuildPing(); f != nil {
				_ = h.sendFrame(f)
			}
			lastPing = time.Now()
		}

		if err := h.flushOut(); err != nil {
			done <- err
			return
		}

		n, err := h.readWithDeadline(readBuf, ioPollInterval)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if err == io.EOF {
				done <- nil
				return
			}
			done <- err
			return
		}
		if n > 0 {
			if w := h.in.Write(readBuf[:n]); w < n {
				done <- fmt.Errorf("capframework: input ring buffer overrun")
				return
			}
			if err := h.drainFrames(); err != nil {
				done <- err
				return
			}
		}

		if h.SpindownRequested() && atomic.LoadInt32(&h.shutdown) != 0 {
			done <- nil
			return
		}
	}
}

// drainFrames decodes and dispatches every complete frame currently
// buffered in h.in.
func (h *Handler) drainFrames() error {
	for {
		snapshot := h.in.Bytes()
		if len(snapshot) == 0 {
			return nil
		}
		f, consumed, err := wire.ParseNext(snapshot)
		if err != nil {
			if err == wire.ErrNeedMoreBytes {
				return nil
			}
			return err
		}
		h.in.Read(nil, consumed)

		if err := h.dispatch(f); err != nil {
			return err
		}
	}
}

// dispatch hands a decoded frame to the session for generic handling,
// then to any command-specific adapter hook.
func (h *Handler) dispatch(f *wire.Frame) error {
	replies, err := h.session.HandleFrame(f)
	if err != nil {
		h.requestShutdown()
		return err
	}
	for _, r := range replies {
		if err := h.sendFrame(r); err != nil {
			return err
		}
	}

	switch f.PktType {
	case wire.PktProbeReq:
		return h.handleProbe(f)
	case wire.PktOpenReq:
		return h.handleOpen(f)
	case wire.PktListReq:
		return h.handleList(f)
	case wire.PktConfigureReq:
		return h.handleConfigure(f)
	case wire.PktShutdown:
		h.requestShutdown()
	}
	return nil
}

func (h *Handler) flushOut() error {
	h.outMu.Lock()
	snapshot := h.out.Bytes()
	h.outMu.Unlock()
	if len(snapshot) == 0 {
		return nil
	}
	n, err := h.conn.Write(snapshot)
	if err != nil {
		return err
	}
	h.outMu.Lock()
	h.out.Read(nil, n)
	h.outCond.Signal()
	h.outMu.Unlock()
	return nil
}
