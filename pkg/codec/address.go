package codec

// AddressCodec encodes and decodes the address field that precedes the
// control octet(s). LAPDm uses a single octet with an implicit TEI; peer
// LAPD (TS 48.056) uses the two-octet extended-TEI form from ITU-T Q.921.
// Both share the same Datalink/FSM code, which talks only to this
// interface and never inspects raw octets itself.
type AddressCodec interface {
	// Encode appends the address octet(s) for addr to dst and returns the
	// extended slice.
	Encode(dst []byte, addr Address) []byte

	// Decode reads the address octet(s) from the front of b, returning the
	// parsed address and the number of octets consumed.
	Decode(b []byte) (addr Address, n int, err error)
}

// LAPDmAddress implements the one-octet LAPDm address field:
// LPD(2) | SAPI(3) | spare(1)=0 | C/R(1) | EA(1)=1.
// TEI has no representation on this link; Address.TEI is always decoded as 0.
//
// Address.Command already carries the wire C/R polarity; the datalink, not
// this codec, is responsible for translating its own network/user Mode into
// the right polarity when it builds the Address to encode.
type LAPDmAddress struct{}

const (
	lapdmEA    = 0x01
	lapdmCR    = 0x02
	lapdmSAPIShift = 3
	lapdmSAPIMask  = 0x07
	lapdmLPDShift  = 6
)

func (c LAPDmAddress) Encode(dst []byte, addr Address) []byte {
	var b byte = lapdmEA
	if addr.Command {
		b |= lapdmCR
	}
	b |= (addr.SAPI & lapdmSAPIMask) << lapdmSAPIShift
	return append(dst, b)
}

func (c LAPDmAddress) Decode(b []byte) (Address, int, error) {
	if len(b) < 1 {
		return Address{}, 0, newError(ReasonShortFrame, "address octet missing")
	}
	octet := b[0]
	if octet&lapdmEA == 0 {
		return Address{}, 0, newError(ReasonBadEA, "LAPDm address EA bit must be 1")
	}
	addr := Address{
		SAPI:    (octet >> lapdmSAPIShift) & lapdmSAPIMask,
		Command: octet&lapdmCR != 0,
	}
	return addr, 1, nil
}

// LAPDAddress implements the two-octet extended-TEI address field used by
// the peer (ISDN-style) variant:
//   octet 1: SAPI(6) | C/R(1) | EA(0)=0
//   octet 2: TEI(7)  | EA(1)=1
type LAPDAddress struct{}

const (
	lapdEA1     = 0x01 // must be 0 on octet 1
	lapdCR      = 0x02
	lapdSAPIShift = 2
	lapdSAPIMask  = 0x3F
	lapdEA2       = 0x01 // must be 1 on octet 2
	lapdTEIShift  = 1
	lapdTEIMask   = 0x7F
)

func (c LAPDAddress) Encode(dst []byte, addr Address) []byte {
	var o1 byte
	if addr.Command {
		o1 |= lapdCR
	}
	o1 |= (addr.SAPI & lapdSAPIMask) << lapdSAPIShift
	// EA bit of octet 1 stays 0: another address octet follows.
	o2 := (addr.TEI&lapdTEIMask)<<lapdTEIShift | lapdEA2
	return append(dst, o1, o2)
}

func (c LAPDAddress) Decode(b []byte) (Address, int, error) {
	if len(b) < 2 {
		return Address{}, 0, newError(ReasonShortFrame, "LAPD address requires two octets")
	}
	o1, o2 := b[0], b[1]
	if o1&lapdEA1 != 0 {
		return Address{}, 0, newError(ReasonBadEA, "LAPD address octet 1 EA bit must be 0")
	}
	if o2&lapdEA2 == 0 {
		return Address{}, 0, newError(ReasonBadEA, "LAPD address octet 2 EA bit must be 1")
	}
	addr := Address{
		SAPI:    (o1 >> lapdSAPIShift) & lapdSAPIMask,
		TEI:     (o2 >> lapdTEIShift) & lapdTEIMask,
		Command: o1&lapdCR != 0,
	}
	return addr, 2, nil
}
