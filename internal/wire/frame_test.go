package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestV3RoundTrip(t *testing.T) {
	f := &Frame{
		PktType: PktData,
		Code:    0,
		Seqno:   17,
		Payload: []byte("hello world"),
	}

	encoded, err := Encode(f)
	require.NoError(t, err)

	decoded, n, err := ParseNext(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, Version3, decoded.Version)
	assert.Equal(t, PktData, decoded.PktType)
	assert.Equal(t, uint32(17), decoded.Seqno)
	assert.Equal(t, "hello world", string(decoded.Payload))
}

func TestV2RoundTrip(t *testing.T) {
	f := &Frame{
		Command: "PROBEREQ",
		Seqno:   5,
		Payload: []byte(`{"definition":"wlan0"}`),
	}

	encoded, err := EncodeV2(f)
	require.NoError(t, err)

	decoded, n, err := ParseNext(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, Version2, decoded.Version)
	assert.Equal(t, "PROBEREQ", decoded.Command)
	assert.Equal(t, uint32(5), decoded.Seqno)
}

func TestNeedMoreBytes(t *testing.T) {
	f := &Frame{PktType: PktPing, Seqno: 1, Payload: []byte("x")}
	encoded, err := Encode(f)
	require.NoError(t, err)

	for i := 0; i < len(encoded); i++ {
		_, _, err := ParseNext(encoded[:i])
		assert.ErrorIs(t, err, ErrNeedMoreBytes, "prefix len %d", i)
	}
}

func TestBadSignature(t *testing.T) {
	buf := make([]byte, 20)
	_, _, err := ParseNext(buf)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "signature")
}

func TestOversizedLengthRejected(t *testing.T) {
	f := &Frame{PktType: PktData, Payload: make([]byte, MaxFrameTotal)}
	_, err := Encode(f)
	assert.Error(t, err)
}

func TestTwoFramesBackToBack(t *testing.T) {
	f1, _ := Encode(&Frame{PktType: PktPing, Seqno: 1, Payload: []byte("a")})
	f2, _ := Encode(&Frame{PktType: PktPong, Seqno: 2, Payload: []byte("bb")})
	buf := append(append([]byte{}, f1...), f2...)

	d1, n1, err := ParseNext(buf)
	require.NoError(t, err)
	assert.Equal(t, PktPing, d1.PktType)

	d2, n2, err := ParseNext(buf[n1:])
	require.NoError(t, err)
	assert.Equal(t, PktPong, d2.PktType)
	assert.Equal(t, len(buf), n1+n2)
}

// Decoding what was just encoded always reproduces the original frame,
// and no shared state survives across a decode.
func TestRapidRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seqno := rapid.Uint32().Draw(t, "seqno")
		code := rapid.Uint16().Draw(t, "code")
		pktType := rapid.Uint16Range(0, 20).Draw(t, "pktType")
		payloadLen := rapid.IntRange(0, 1000).Draw(t, "payloadLen")
		payload := rapid.SliceOfN(rapid.Byte(), payloadLen, payloadLen).Draw(t, "payload")

		f := &Frame{
			PktType: PktType(pktType),
			Code:    code,
			Seqno:   seqno,
			Payload: payload,
		}

		encoded, err := Encode(f)
		require.NoError(t, err)

		decoded, n, err := ParseNext(encoded)
		require.NoError(t, err)
		require.Equal(t, len(encoded), n)
		require.Equal(t, f.PktType, decoded.PktType)
		require.Equal(t, f.Code, decoded.Code)
		require.Equal(t, f.Seqno, decoded.Seqno)
		require.Equal(t, f.Payload, decoded.Payload)
	})
}
