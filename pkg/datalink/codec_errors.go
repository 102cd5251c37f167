package datalink

import "github.com/kc1fsz/lapdm/pkg/codec"

// CauseFromCodecError maps a wire-decode failure onto the MDL-ERROR cause
// taxonomy. The codec only knows what went wrong structurally (bad EA, LI
// with EL=0, length over N201, ...); which Cause that becomes depends on
// which frame kind was being decoded, so the caller (Entity's receive path)
// passes both.
func CauseFromCodecError(err *codec.Error, kind codec.FrameKind) Cause {
	switch err.Reason {
	case codec.ReasonBadEL:
		// EL=0 marks an encoding this station does not implement at all,
		// independent of which frame type carried it.
		return CauseFrmUnimpl
	case codec.ReasonUnknownUCode, codec.ReasonUnknownFormat, codec.ReasonBadEA, codec.ReasonShortFrame:
		return CauseFrmUnimpl
	case codec.ReasonLengthExceedsN201:
		switch kind {
		case codec.KindI:
			return CauseIFrmIncLen
		case codec.KindS:
			return CauseSFrmIncParam
		case codec.KindU:
			return CauseUFrmIncParam
		default:
			return CauseFrmUnimpl
		}
	case codec.ReasonIncompleteMBit:
		// Only ever raised while decoding an I-frame's LI octet.
		return CauseIFrmIncMBits
	default:
		return CauseFrmUnimpl
	}
}
