package datalink

import (
	"time"

	"github.com/kc1fsz/lapdm/pkg/codec"
)

// Config is the set of per-datalink options fixed at construction.
type Config struct {
	K            int  // window size, 1..VRange-1
	VRange       int  // 8 or 128
	MaxF         int  // max reassembled L3 message size
	N200         int  // retransmit limit in MF_EST/TIMER_RECOV
	N200EstRel   int  // retransmit limit during establishment/release
	T200         time.Duration
	T203         time.Duration // 0 disables T203
	Mode         Mode
	UseSABME     bool // use SABME instead of SABM when VRange==128
	Reestablish  bool // auto-reestablish on N200 expiry in MF_EST
}

// DefaultConfig returns the conventional LAPDm SAPI-0 configuration:
// modulo-8, window 1, N200=3, T200=1s, T203=10s.
func DefaultConfig(mode Mode) Config {
	return Config{
		K:          1,
		VRange:     8,
		MaxF:       4096,
		N200:       3,
		N200EstRel: 3,
		T200:       time.Second,
		T203:       10 * time.Second,
		Mode:       mode,
	}
}

// LinkContext caches the values captured at establishment and reused by
// every frame the datalink builds or parses afterward: channel, SAPI,
// wire format, and the per-channel frame payload budget N201.
type LinkContext struct {
	Channel uint8
	SAPI    uint8
	TEI     uint8
	Format  codec.Format
	N201    int
}
