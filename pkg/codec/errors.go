package codec

import "fmt"

// Reason enumerates the wire-format defects the codec itself can detect.
// pkg/datalink maps these onto its own MDL-ERROR cause taxonomy; the codec
// does not know about datalink state and never guesses a cause that
// requires it (e.g. SEQ_ERR).
type Reason uint8

const (
	ReasonShortFrame   Reason = iota // fewer octets than the address+control minimum
	ReasonBadEA                      // EA bit not set where the format requires it
	ReasonBadEL                      // LI EL bit clear: "frame not implemented"
	ReasonLengthExceedsN201          // I: L=0 or L>N201; U/S: length or M bit not allowed for the kind
	ReasonIncompleteMBit             // L<N201 with the M bit set
	ReasonUnknownUCode
	ReasonUnknownFormat
)

func (r Reason) String() string {
	switch r {
	case ReasonShortFrame:
		return "short frame"
	case ReasonBadEA:
		return "bad EA bit"
	case ReasonBadEL:
		return "bad EL bit"
	case ReasonLengthExceedsN201:
		return "length exceeds N201"
	case ReasonIncompleteMBit:
		return "M bit set on a short frame"
	case ReasonUnknownUCode:
		return "unknown U code"
	case ReasonUnknownFormat:
		return "unknown format"
	default:
		return "unknown codec error"
	}
}

// Error is returned by Decode for any malformed input. It never panics. Kind
// records which frame family was being decoded when the defect was found, so
// a caller can map Reason onto a kind-specific MDL-ERROR cause even though
// Decode itself only ever returns the zero Frame alongside an error; Kind is
// only set for the LI checks made after the control octet is parsed
// (ReasonLengthExceedsN201 and ReasonIncompleteMBit as returned by Decode)
// and is left at its zero value otherwise.
type Error struct {
	Reason Reason
	Kind   FrameKind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Reason.String()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func newError(r Reason, detail string) *Error {
	return &Error{Reason: r, Detail: detail}
}

func newKindError(r Reason, kind FrameKind, detail string) *Error {
	return &Error{Reason: r, Kind: kind, Detail: detail}
}
