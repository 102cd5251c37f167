package entity

import "github.com/kc1fsz/lapdm/pkg/codec"

// StaticRouter is a ChannelRouter keyed by a fixed channel-number -> Codec
// table, the common case where a station's channel layout (SDCCH, FACCH,
// SACCH, BCCH/CCCH) is known at configuration time.
type StaticRouter map[uint8]*codec.Codec

// CodecFor implements ChannelRouter.
func (r StaticRouter) CodecFor(channel uint8) (*codec.Codec, bool) {
	c, ok := r[channel]
	return c, ok
}
