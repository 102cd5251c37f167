package codec

// Codec binds the pieces above (address, control, LI) into the five wire
// formats a channel can use. One Codec is configured once per datalink, at
// establishment, from its link context, and reused for every frame on it.
type Codec struct {
	Format Format
	Addr   AddressCodec
	Mod128 bool
	N201   int
}

// New returns a Codec for the given format/addressing/modulo/payload-budget
// combination. n201 must already reflect the channel type (SDCCH, FACCH,
// SACCH, ...); this package never guesses it.
func New(format Format, addr AddressCodec, mod128 bool, n201 int) *Codec {
	return &Codec{Format: format, Addr: addr, Mod128: mod128, N201: n201}
}

// Encode serializes f per the codec's format. hdr supplies the L1 header
// for Format B4 and is ignored otherwise; pass nil when not applicable.
func (c *Codec) Encode(f Frame, hdr *B4Header) ([]byte, error) {
	switch c.Format {
	case FormatBbis:
		return c.encodeTransparent(f), nil
	case FormatA:
		return c.encodeHeaderOnly(f), nil
	case FormatB:
		return c.encodeFramed(f, nil)
	case FormatB4:
		return c.encodeFramed(f, hdr)
	case FormatBter:
		return c.encodeCompressed(f)
	default:
		return nil, newError(ReasonUnknownFormat, c.Format.String())
	}
}

// Decode parses b per the codec's format, returning the frame and, for
// Format B4, the stripped L1 header.
func (c *Codec) Decode(b []byte) (Frame, *B4Header, error) {
	switch c.Format {
	case FormatBbis:
		f, err := c.decodeTransparent(b)
		return f, nil, err
	case FormatA:
		f, err := c.decodeHeaderOnly(b)
		return f, nil, err
	case FormatB:
		f, err := c.decodeFramed(b, false)
		return f, nil, err
	case FormatB4:
		return c.decodeB4(b)
	case FormatBter:
		f, err := c.decodeCompressed(b)
		return f, nil, err
	default:
		return Frame{}, nil, newError(ReasonUnknownFormat, c.Format.String())
	}
}

func pad(b []byte, total int) []byte {
	for len(b) < total {
		b = append(b, Padding)
	}
	return b
}

// encodeTransparent implements Format Bbis: no header at all, payload
// passed through unchanged except for padding to N201.
func (c *Codec) encodeTransparent(f Frame) []byte {
	out := append([]byte{}, f.U.Payload...)
	return pad(out, c.N201)
}

func (c *Codec) decodeTransparent(b []byte) (Frame, error) {
	return Frame{Kind: KindU, U: UFrame{Kind: UUI, Payload: trimPadding(b)}}, nil
}

// encodeHeaderOnly implements Format A: address + control octet(s), no LI,
// no payload; the rest of the frame up to N201 is padding.
func (c *Codec) encodeHeaderOnly(f Frame) []byte {
	out := c.Addr.Encode(nil, f.Addr)
	out = encodeControl(out, f, c.Mod128)
	return pad(out, c.N201)
}

func (c *Codec) decodeHeaderOnly(b []byte) (Frame, error) {
	addr, n, err := c.Addr.Decode(b)
	if err != nil {
		return Frame{}, err
	}
	f, _, err := decodeControl(b[n:], c.Mod128)
	if err != nil {
		return Frame{}, err
	}
	f.Addr = addr
	return f, nil
}

// encodeFramed implements Format B/B4: optional L1 header + address +
// control + LI + payload + padding.
func (c *Codec) encodeFramed(f Frame, hdr *B4Header) ([]byte, error) {
	var out []byte
	if hdr != nil {
		out = append(out, hdr.MSPowerLevel, hdr.TimingAdvance)
	}
	out = c.Addr.Encode(out, f.Addr)
	out = encodeControl(out, f, c.Mod128)
	headerOctets := len(out) // L1 header + address + control, before LI

	switch f.Kind {
	case KindI:
		if len(f.I.Payload) > c.N201 {
			return nil, newError(ReasonLengthExceedsN201, "")
		}
		out = append(out, encodeLI(len(f.I.Payload), f.I.More))
		out = append(out, f.I.Payload...)
	case KindU:
		out = append(out, encodeLI(len(f.U.Payload), false))
		out = append(out, f.U.Payload...)
	case KindS:
		out = append(out, encodeLI(0, false))
	}
	// Total on-air length is fixed per channel: header octets, one LI
	// octet, and N201 octets of information field (padded when shorter).
	return pad(out, headerOctets+1+c.N201), nil
}

func (c *Codec) decodeFramed(b []byte, _ bool) (Frame, error) {
	addr, n, err := c.Addr.Decode(b)
	if err != nil {
		return Frame{}, err
	}
	b = b[n:]
	f, n, err := decodeControl(b, c.Mod128)
	if err != nil {
		return Frame{}, err
	}
	f.Addr = addr
	b = b[n:]

	length, more, err := decodeLI(b)
	if err != nil {
		return Frame{}, err
	}
	b = b[1:]

	switch f.Kind {
	case KindI:
		if length == 0 || length > c.N201 {
			return Frame{}, newKindError(ReasonLengthExceedsN201, KindI, "IFRM_INC_LEN")
		}
		if length < c.N201 && more {
			return Frame{}, newKindError(ReasonIncompleteMBit, KindI, "IFRM_INC_MBITS")
		}
		if len(b) < length {
			return Frame{}, newError(ReasonShortFrame, "I payload truncated")
		}
		f.I.More = more
		f.I.Payload = append([]byte{}, b[:length]...)
	case KindU:
		if more || length > c.N201 {
			return Frame{}, newKindError(ReasonLengthExceedsN201, KindU, "UFRM_INC_PARAM")
		}
		if len(b) < length {
			return Frame{}, newError(ReasonShortFrame, "U payload truncated")
		}
		f.U.Payload = append([]byte{}, b[:length]...)
	case KindS:
		if more || length != 0 {
			return Frame{}, newKindError(ReasonLengthExceedsN201, KindS, "SFRM_INC_PARAM")
		}
	}
	return f, nil
}

func (c *Codec) decodeB4(b []byte) (Frame, *B4Header, error) {
	if len(b) < 2 {
		return Frame{}, nil, newError(ReasonShortFrame, "B4 L1 header missing")
	}
	hdr := &B4Header{MSPowerLevel: b[0], TimingAdvance: b[1]}
	f, err := c.decodeFramed(b[2:], false)
	return f, hdr, err
}

// encodeCompressed implements Format Bter, which omits the address octet
// (SAPI is implicit from the channel) but otherwise follows Format B.
func (c *Codec) encodeCompressed(f Frame) ([]byte, error) {
	out := encodeControl(nil, f, c.Mod128)
	switch f.Kind {
	case KindI:
		if len(f.I.Payload) > c.N201 {
			return nil, newError(ReasonLengthExceedsN201, "")
		}
		out = append(out, encodeLI(len(f.I.Payload), f.I.More))
		out = append(out, f.I.Payload...)
	case KindU:
		out = append(out, encodeLI(len(f.U.Payload), false))
		out = append(out, f.U.Payload...)
	case KindS:
		out = append(out, encodeLI(0, false))
	}
	return pad(out, c.N201), nil
}

func (c *Codec) decodeCompressed(b []byte) (Frame, error) {
	f, n, err := decodeControl(b, c.Mod128)
	if err != nil {
		return Frame{}, err
	}
	b = b[n:]
	length, more, err := decodeLI(b)
	if err != nil {
		return Frame{}, err
	}
	b = b[1:]
	switch f.Kind {
	case KindI:
		if length == 0 || length > c.N201 {
			return Frame{}, newKindError(ReasonLengthExceedsN201, KindI, "")
		}
		if length < c.N201 && more {
			return Frame{}, newKindError(ReasonIncompleteMBit, KindI, "")
		}
		f.I.More = more
		f.I.Payload = append([]byte{}, b[:min(length, len(b))]...)
	case KindU:
		f.U.Payload = append([]byte{}, b[:min(length, len(b))]...)
	}
	return f, nil
}

func trimPadding(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == Padding {
		end--
	}
	return append([]byte{}, b[:end]...)
}
