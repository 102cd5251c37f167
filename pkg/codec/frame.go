package codec

// FrameKind tags the three families of LAPD/LAPDm frames. Consumers are
// expected to switch exhaustively on Kind rather than probe every field,
// eliminating the "format not handled" fallthrough the C original needed.
type FrameKind uint8

const (
	KindI FrameKind = iota
	KindS
	KindU
)

func (k FrameKind) String() string {
	switch k {
	case KindI:
		return "I"
	case KindS:
		return "S"
	case KindU:
		return "U"
	default:
		return "unknown"
	}
}

// SKind enumerates the supervisory frame subtypes.
type SKind uint8

const (
	SRR SKind = iota
	SRNR
	SREJ
)

func (k SKind) String() string {
	switch k {
	case SRR:
		return "RR"
	case SRNR:
		return "RNR"
	case SREJ:
		return "REJ"
	default:
		return "unknown"
	}
}

// UKind enumerates the unnumbered frame subtypes this engine exchanges.
type UKind uint8

const (
	USABM UKind = iota
	USABME
	UDM
	UUI
	UDISC
	UUA
	UFRMR
)

func (k UKind) String() string {
	switch k {
	case USABM:
		return "SABM"
	case USABME:
		return "SABME"
	case UDM:
		return "DM"
	case UUI:
		return "UI"
	case UDISC:
		return "DISC"
	case UUA:
		return "UA"
	case UFRMR:
		return "FRMR"
	default:
		return "unknown"
	}
}

// IFrame is a numbered information frame: N(R)(3)|P(1)|N(S)(3)|0.
type IFrame struct {
	NS      uint8 // mod v_range
	NR      uint8 // mod v_range
	P       bool
	More    bool // LI M bit
	Payload []byte
}

// SFrame is a supervisory frame: N(R)(3)|P/F(1)|S(2)|01.
type SFrame struct {
	Kind SKind
	NR   uint8
	PF   bool
}

// UFrame is an unnumbered frame: U_high(3)|P/F(1)|U_low(2)|11.
type UFrame struct {
	Kind    UKind
	PF      bool
	Payload []byte // contention-resolution / UI payload, if any
}

// Address is the decoded LAPDm/LAPD address-octet content. TEI is only
// meaningful for the two-octet LAPD addressing variant.
type Address struct {
	SAPI    uint8
	TEI     uint8
	Command bool // C/R bit interpreted per mode: true == this is a command
}

// Frame is the tagged union carried over the wire, combining an address, a
// control-field variant, and (for I/U) a payload.
type Frame struct {
	Kind FrameKind
	Addr Address
	I    IFrame
	S    SFrame
	U    UFrame
}
