/**
 * Command Dispatch.
 *
 * Translates decoded PROBEREQ/OPENREQ/LISTREQ/CONFIGUREREQ frames into
 * calls against the handler's CaptureAdapter, and the adapter's answer
 * back into the matching *RESP frame.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package capframework

import (
	"context"
	"time"

	"github.com/kleaSCM/netscope/internal/extproto"
	"github.com/kleaSCM/netscope/internal/wire"
	"github.com/vmihailenco/msgpack/v5"
)

const dispatchTimeout = 5 * time.Second

func (h *Handler) handleProbe(f *wire.Frame) error {
	var req extproto.ProbePayload
	if err := msgpack.Unmarshal(f.Payload, &req); err != nil {
		return h.replyProbe(f.Seqno, extproto.ProbeRespPayload{Success: false, Msg: "malformed PROBEREQ"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	result, err := h.adapter.Probe(ctx, req.Definition)
	if err != nil {
		return h.replyProbe(f.Seqno, extproto.ProbeRespPayload{Success: false, Msg: err.Error()})
	}
	return h.replyProbe(f.Seqno, extproto.ProbeRespPayload{
		Success: result.Success, Msg: result.Msg, UUID: result.UUID,
		Channels: result.Channels, Hardware: result.Hardware,
	})
}

func (h *Handler) replyProbe(echoSeq uint32, resp extproto.ProbeRespPayload) error {
	body, err := msgpack.Marshal(resp)
	if err != nil {
		return err
	}
	return h.sendFrame(&wire.Frame{PktType: wire.PktProbeResp, Seqno: h.session.NextSeq(), Code: uint16(echoSeq), Payload: body})
}

func (h *Handler) handleOpen(f *wire.Frame) error {
	var req extproto.OpenPayload
	if err := msgpack.Unmarshal(f.Payload, &req); err != nil {
		return h.replyOpen(f.Seqno, extproto.OpenRespPayload{Success: false, Msg: "malformed OPENREQ"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	result, err := h.adapter.Open(ctx, req.Definition)
	if err != nil {
		return h.replyOpen(f.Seqno, extproto.OpenRespPayload{Success: false, Msg: err.Error()})
	}
	return h.replyOpen(f.Seqno, extproto.OpenRespPayload{
		Success: result.Success, Msg: result.Msg, DLT: result.DLT, UUID: result.UUID,
		Channels: result.Channels, Hardware: result.Hardware, Chanset: result.Chanset,
	})
}

func (h *Handler) replyOpen(echoSeq uint32, resp extproto.OpenRespPayload) error {
	body, err := msgpack.Marshal(resp)
	if err != nil {
		return err
	}
	return h.sendFrame(&wire.Frame{PktType: wire.PktOpenResp, Seqno: h.session.NextSeq(), Code: uint16(echoSeq), Payload: body})
}

func (h *Handler) handleList(f *wire.Frame) error {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	devices, err := h.adapter.List(ctx)
	resp := extproto.ListRespPayload{}
	if err == nil {
		for _, d := range devices {
			resp.Devices = append(resp.Devices, extproto.ListRespDevice{
				Interface: d.Interface, Flags: d.Flags, Hardware: d.Hardware,
			})
		}
	}
	body, merr := msgpack.Marshal(resp)
	if merr != nil {
		return merr
	}
	return h.sendFrame(&wire.Frame{PktType: wire.PktListResp, Seqno: h.session.NextSeq(), Code: uint16(f.Seqno), Payload: body})
}

func (h *Handler) handleConfigure(f *wire.Frame) error {
	var req extproto.ConfigurePayload
	if err := msgpack.Unmarshal(f.Payload, &req); err != nil {
		return h.replyConfigure(f.Seqno, false, "malformed CONFIGUREREQ")
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if len(req.Channels) > 0 {
		hopper, err := NewChannelHopper(req.Channels, req.HopRate, req.ShuffleHop, req.ShuffleSpace)
		if err != nil {
			return h.replyConfigure(f.Seqno, false, err.Error())
		}
		h.hopper = hopper
		return h.replyConfigure(f.Seqno, true, "")
	}

	if req.Channel != "" {
		token, err := h.adapter.TranslateChannel(ctx, req.Channel)
		if err != nil {
			return h.replyConfigure(f.Seqno, false, err.Error())
		}
		if token == nil {
			return h.replyConfigure(f.Seqno, false, "unrecognized channel: "+req.Channel)
		}
		if err := h.adapter.SetChannel(ctx, token); err != nil {
			return h.replyConfigure(f.Seqno, false, err.Error())
		}
		return h.replyConfigure(f.Seqno, true, "")
	}

	return h.replyConfigure(f.Seqno, false, "empty CONFIGUREREQ")
}

func (h *Handler) replyConfigure(echoSeq uint32, success bool, msg string) error {
	body, err := msgpack.Marshal(extproto.ConfigureRespPayload{Success: success, Msg: msg})
	if err != nil {
		return err
	}
	return h.sendFrame(&wire.Frame{PktType: wire.PktConfigureResp, Seqno: h.session.NextSeq(), Code: uint16(echoSeq), Payload: body})
}
