// Package codec implements the LAPDm/LAPD frame codec: encoding and decoding
// of the A/B/Bbis/Bter/B4 LAPDm formats and the LAPD U/S/I control octets,
// enforcing the length-indicator (LI) and EA/M bit rules of ETSI TS 04.06 /
// TS 44.006 (and, for the LAPD peer variant, TS 48.056 / ITU-T Q.921).
//
// The codec is a pure encode/decode layer: it knows nothing about datalink
// state, sequencing, or timers. Format errors are returned as typed *Error
// values so the caller (pkg/datalink) can map them onto its MDL-ERROR cause
// taxonomy.
package codec

// Format identifies which of the five LAPDm channel formats a frame uses.
// LAPD (the ISDN-style peer variant) always behaves like Format B with a
// two-octet address.
type Format uint8

const (
	FormatA    Format = iota // supervisory-only, SACCH-style channels
	FormatB                  // normal dedicated channel: header + LI + payload + padding
	FormatBbis               // BCCH/CCCH downlink UI, no header, transparent payload
	FormatBter               // optional compressed form
	FormatB4                 // SACCH with two-octet L1 header (MS power, timing advance)
)

func (f Format) String() string {
	switch f {
	case FormatA:
		return "A"
	case FormatB:
		return "B"
	case FormatBbis:
		return "Bbis"
	case FormatBter:
		return "Bter"
	case FormatB4:
		return "B4"
	default:
		return "unknown"
	}
}

// Padding is the fill octet used to pad frames shorter than N201.
const Padding = 0x2B

// B4Header carries the two L1 octets prefixed to a Format B4 frame on
// SACCH: MS power-level indication and timing-advance indication. These are
// stripped from the wire frame during decode and must be surfaced to L3 via
// the UNIT-DATA indication rather than discarded.
type B4Header struct {
	MSPowerLevel  uint8
	TimingAdvance uint8
}
