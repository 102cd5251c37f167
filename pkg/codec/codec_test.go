package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestEncodeDecodeIFrameFormatB(t *testing.T) {
	c := New(FormatB, LAPDmAddress{}, false, 20)
	in := Frame{
		Kind: KindI,
		Addr: Address{SAPI: 0, Command: true},
		// M=1 is only valid on a full-length segment (L == N201).
		I: IFrame{NS: 3, NR: 5, P: true, More: true, Payload: []byte("hello, segmented!!!!")},
	}
	wire, err := c.Encode(in, nil)
	assert.NoError(t, err)
	assert.Len(t, wire, 2+1+20) // address + control + LI + N201

	out, hdr, err := c.Decode(wire)
	assert.NoError(t, err)
	assert.Nil(t, hdr)
	assert.Equal(t, KindI, out.Kind)
	assert.EqualValues(t, 3, out.I.NS)
	assert.EqualValues(t, 5, out.I.NR)
	assert.True(t, out.I.P)
	assert.True(t, out.I.More)
	assert.Equal(t, []byte("hello, segmented!!!!"), out.I.Payload)
	assert.True(t, out.Addr.Command)
}

func TestEncodeDecodeSFrameFormatB(t *testing.T) {
	c := New(FormatB, LAPDmAddress{}, false, 20)
	in := Frame{
		Kind: KindS,
		Addr: Address{SAPI: 0},
		S:    SFrame{Kind: SREJ, NR: 2, PF: true},
	}
	wire, err := c.Encode(in, nil)
	assert.NoError(t, err)
	out, _, err := c.Decode(wire)
	assert.NoError(t, err)
	assert.Equal(t, KindS, out.Kind)
	assert.Equal(t, SREJ, out.S.Kind)
	assert.EqualValues(t, 2, out.S.NR)
	assert.True(t, out.S.PF)
}

func TestEncodeDecodeUFrameSABM(t *testing.T) {
	c := New(FormatB, LAPDmAddress{}, false, 20)
	in := Frame{
		Kind: KindU,
		Addr: Address{SAPI: 0, Command: true},
		U:    UFrame{Kind: USABM, PF: true, Payload: []byte{0xAA, 0xBB, 0xCC}},
	}
	wire, err := c.Encode(in, nil)
	assert.NoError(t, err)
	out, _, err := c.Decode(wire)
	assert.NoError(t, err)
	assert.Equal(t, KindU, out.Kind)
	assert.Equal(t, USABM, out.U.Kind)
	assert.True(t, out.U.PF)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, out.U.Payload)
}

func TestSABMControlOctetIsWellKnownValue(t *testing.T) {
	// SABM command, P=0: 0x2F is the textbook TS 04.06 control octet.
	out := encodeControl(nil, Frame{Kind: KindU, U: UFrame{Kind: USABM, PF: false}}, false)
	assert.Equal(t, []byte{0x2F}, out)
	out = encodeControl(nil, Frame{Kind: KindU, U: UFrame{Kind: USABM, PF: true}}, false)
	assert.Equal(t, []byte{0x3F}, out)
}

func TestDecodeRejectsBadEL(t *testing.T) {
	_, _, err := decodeLI([]byte{0x00})
	assert.Error(t, err)
	var cerr *Error
	assert.ErrorAs(t, err, &cerr)
	assert.Equal(t, ReasonBadEL, cerr.Reason)
}

func TestEncodeRejectsIFrameLengthExceedsN201(t *testing.T) {
	c := New(FormatB, LAPDmAddress{}, false, 4)
	in := Frame{
		Kind: KindI,
		Addr: Address{SAPI: 0},
		I:    IFrame{Payload: []byte{1, 2, 3, 4, 5}},
	}
	_, err := c.Encode(in, nil)
	assert.Error(t, err)
}

func TestFormatBbisTransparentRoundTrip(t *testing.T) {
	c := New(FormatBbis, nil, false, 23)
	in := Frame{Kind: KindU, U: UFrame{Kind: UUI, Payload: []byte("system information")}}
	wire, err := c.Encode(in, nil)
	assert.NoError(t, err)
	assert.Len(t, wire, 23)
	out, hdr, err := c.Decode(wire)
	assert.NoError(t, err)
	assert.Nil(t, hdr)
	assert.Equal(t, []byte("system information"), out.U.Payload)
}

func TestFormatB4StripsL1Header(t *testing.T) {
	c := New(FormatB4, LAPDmAddress{}, false, 18)
	hdr := &B4Header{MSPowerLevel: 5, TimingAdvance: 9}
	in := Frame{
		Kind: KindI,
		Addr: Address{SAPI: 0},
		I:    IFrame{NS: 1, NR: 0, Payload: []byte("meas")},
	}
	wire, err := c.Encode(in, hdr)
	assert.NoError(t, err)
	out, gotHdr, err := c.Decode(wire)
	assert.NoError(t, err)
	assert.Equal(t, hdr, gotHdr)
	assert.Equal(t, []byte("meas"), out.I.Payload)
}

func TestAddressRoundTripLAPDm(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		sapi := uint8(rapid.IntRange(0, 7).Draw(rt, "sapi"))
		cmd := rapid.Bool().Draw(rt, "cmd")
		a := LAPDmAddress{}
		wire := a.Encode(nil, Address{SAPI: sapi, Command: cmd})
		out, n, err := a.Decode(wire)
		assert.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, sapi, out.SAPI)
		assert.Equal(t, cmd, out.Command)
	})
}

func TestAddressRoundTripLAPD(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		sapi := uint8(rapid.IntRange(0, 63).Draw(rt, "sapi"))
		tei := uint8(rapid.IntRange(0, 127).Draw(rt, "tei"))
		cmd := rapid.Bool().Draw(rt, "cmd")
		a := LAPDAddress{}
		wire := a.Encode(nil, Address{SAPI: sapi, TEI: tei, Command: cmd})
		out, n, err := a.Decode(wire)
		assert.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, sapi, out.SAPI)
		assert.Equal(t, tei, out.TEI)
		assert.Equal(t, cmd, out.Command)
	})
}

func TestIFrameSegmentationRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n201 := rapid.IntRange(4, 30).Draw(rt, "n201")
		c := New(FormatB, LAPDmAddress{}, false, n201)
		plen := rapid.IntRange(1, n201).Draw(rt, "plen")
		payload := rapid.SliceOfN(rapid.Byte(), plen, plen).Draw(rt, "payload")
		more := plen == n201 && rapid.Bool().Draw(rt, "more")
		in := Frame{
			Kind: KindI,
			Addr: Address{SAPI: 0, Command: true},
			I:    IFrame{NS: 2, NR: 1, Payload: payload, More: more},
		}
		wire, err := c.Encode(in, nil)
		assert.NoError(t, err)
		out, _, err := c.Decode(wire)
		assert.NoError(t, err)
		assert.Equal(t, payload, out.I.Payload)
	})
}
