/**
 * Capture Adapter Contract.
 *
 * Every capture binary implements this interface once per radio/driver
 * and hands it to a Handler, which supplies the ring-buffered transport,
 * command dispatch, and lifecycle the driver doesn't have to know about.
 * This replaces the five raw C callbacks (listdevices/probe/open/
 * chantranslate/chancontrol) with a single capability object.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package capframework

import (
	"context"
	"time"

	"github.com/kleaSCM/netscope/internal/packet"
)

// ListedDevice is one entry returned by CaptureAdapter.List.
type ListedDevice struct {
	Interface string
	Flags     string
	Hardware  string
}

// ProbeResult is the outcome of CaptureAdapter.Probe.
type ProbeResult struct {
	Success  bool
	Msg      string
	UUID     string
	Channels []string
	Hardware string
}

// OpenResult is the outcome of CaptureAdapter.Open.
type OpenResult struct {
	Success  bool
	Msg      string
	DLT      int
	UUID     string
	Channels []string
	Hardware string
	Chanset  string
}

// ChannelToken is a driver-opaque value chantranslate hands back to
// chancontrol; its concrete type is private to each adapter.
type ChannelToken any

// FrameSink is the thread-safe surface a capture thread uses to hand
// finished frames and telemetry back to the event loop. Every method
// here corresponds to one of the documented thread-safe helpers
// (cf_send_data, cf_send_message, cf_send_error, cf_send_warning,
// cf_send_json, cf_handler_spindown).
type FrameSink interface {
	SendData(ts time.Time, dlt int, payload []byte, channel string, l1 *packet.L1Data, radio *packet.RadioData) error
	SendMessage(severity Severity, text string) error
	SendError(text string) error
	SendWarning(text string) error
	SendJSON(metaType string, payload []byte) error
	Spindown(reason string)
	SpindownRequested() bool
}

// Severity re-exports extproto's severities so adapters don't need to
// import that package directly for the common case.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityError
	SeverityAlert
	SeverityFatal
)

// CaptureAdapter is the capability object a capture binary supplies. An
// adapter may return an error from any method it doesn't implement;
// RunCapture is the one every adapter has to provide.
type CaptureAdapter interface {
	// List enumerates devices this adapter could open, for LISTREQ.
	List(ctx context.Context) ([]ListedDevice, error)

	// Probe answers PROBEREQ: can definition be opened by this adapter,
	// without actually opening it.
	Probe(ctx context.Context, definition string) (ProbeResult, error)

	// Open answers OPENREQ: actually open the device named by
	// definition, readying it for RunCapture.
	Open(ctx context.Context, definition string) (OpenResult, error)

	// TranslateChannel converts an ASCII channel specifier into a
	// driver-opaque token, or returns (nil, nil) if the channel is
	// unrecognized (not an error -- the caller just skips that hop).
	TranslateChannel(ctx context.Context, channel string) (ChannelToken, error)

	// SetChannel applies a previously translated channel token.
	SetChannel(ctx context.Context, token ChannelToken) error

	// RunCapture is the capture thread body: read the hardware until
	// ctx is canceled or sink.SpindownRequested(), emitting frames via
	// sink. MUST NOT call anything on sink that isn't documented
	// thread-safe, and must check sink.SpindownRequested() at the top
	// of every read loop.
	RunCapture(ctx context.Context, sink FrameSink) error
}
