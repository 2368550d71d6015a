package capframework

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kleaSCM/netscope/internal/extproto"
	"github.com/kleaSCM/netscope/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// stubAdapter answers every CaptureAdapter call with canned data; its
// RunCapture just blocks until ctx is canceled or spindown is requested.
type stubAdapter struct {
	opened chan string
}

func (a *stubAdapter) List(ctx context.Context) ([]ListedDevice, error) {
	return []ListedDevice{{Interface: "wlan0", Flags: "", Hardware: "ath9k"}}, nil
}

func (a *stubAdapter) Probe(ctx context.Context, definition string) (ProbeResult, error) {
	return ProbeResult{Success: true, UUID: "abc-123", Channels: []string{"1", "6", "11"}, Hardware: "ath9k"}, nil
}

func (a *stubAdapter) Open(ctx context.Context, definition string) (OpenResult, error) {
	if a.opened != nil {
		a.opened <- definition
	}
	return OpenResult{Success: true, DLT: 127, UUID: "abc-123", Hardware: "ath9k"}, nil
}

func (a *stubAdapter) TranslateChannel(ctx context.Context, channel string) (ChannelToken, error) {
	return channel, nil
}

func (a *stubAdapter) SetChannel(ctx context.Context, token ChannelToken) error {
	return nil
}

func (a *stubAdapter) RunCapture(ctx context.Context, sink FrameSink) error {
	<-ctx.Done()
	return nil
}

// readFrame blocks reading a single frame off conn with a generous test
// timeout, buffering across partial reads the way a real peer would.
func readFrame(t *testing.T, conn net.Conn) *wire.Frame {
	t.Helper()
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	deadline := time.Now().Add(2 * time.Second)

	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if f, _, perr := wire.ParseNext(buf); perr == nil {
				return f
			}
		}
		if err != nil {
			t.Fatalf("readFrame: %v", err)
		}
	}
}

func TestHandlerProbeRoundTrip(t *testing.T) {
	serverConn, helperConn := net.Pipe()
	defer serverConn.Close()
	defer helperConn.Close()

	h := NewHandler(helperConn, &stubAdapter{}, 1<<16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)

	reqBody, err := msgpack.Marshal(extproto.ProbePayload{Definition: "wlan0:type=linuxwifi"})
	require.NoError(t, err)
	reqFrame, err := wire.Encode(&wire.Frame{PktType: wire.PktProbeReq, Seqno: 1, Payload: reqBody})
	require.NoError(t, err)

	require.NoError(t, serverConn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err = serverConn.Write(reqFrame)
	require.NoError(t, err)

	resp := readFrame(t, serverConn)
	require.Equal(t, wire.PktProbeResp, resp.PktType)
	require.Equal(t, uint16(1), resp.Code)

	var payload extproto.ProbeRespPayload
	require.NoError(t, msgpack.Unmarshal(resp.Payload, &payload))
	assert.True(t, payload.Success)
	assert.Equal(t, "abc-123", payload.UUID)
}

func TestHandlerOpenRoundTrip(t *testing.T) {
	serverConn, helperConn := net.Pipe()
	defer serverConn.Close()
	defer helperConn.Close()

	adapter := &stubAdapter{opened: make(chan string, 1)}
	h := NewHandler(helperConn, adapter, 1<<16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)

	reqBody, err := msgpack.Marshal(extproto.OpenPayload{Definition: "wlan0:type=linuxwifi"})
	require.NoError(t, err)
	reqFrame, err := wire.Encode(&wire.Frame{PktType: wire.PktOpenReq, Seqno: 2, Payload: reqBody})
	require.NoError(t, err)

	require.NoError(t, serverConn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err = serverConn.Write(reqFrame)
	require.NoError(t, err)

	select {
	case def := <-adapter.opened:
		assert.Equal(t, "wlan0:type=linuxwifi", def)
	case <-time.After(2 * time.Second):
		t.Fatal("adapter.Open was never called")
	}

	resp := readFrame(t, serverConn)
	require.Equal(t, wire.PktOpenResp, resp.PktType)

	var payload extproto.OpenRespPayload
	require.NoError(t, msgpack.Unmarshal(resp.Payload, &payload))
	assert.True(t, payload.Success)
	assert.Equal(t, 127, payload.DLT)
}
