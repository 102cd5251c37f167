// Package config loads a per-entity channel profile from an INI-format
// file: node identity, the SAPI list a station attaches, and the
// per-datalink window/timer/retry options from spec.md §6.
//
// Adapted from the teacher's EDS loader (pkg/od/parser_v1.go), which turns
// an ini-format object-dictionary export into a parsed *od.ObjectDictionary
// section by section; here each `[sapiN]` section becomes one
// datalink.Config plus the N201/format/addressing choice for that SAPI.
package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/ini.v1"

	"github.com/kc1fsz/lapdm/pkg/codec"
	"github.com/kc1fsz/lapdm/pkg/datalink"
)

// SAPIProfile is one `[sapiN]` section's parsed configuration: the
// datalink.Config plus the link-context fields a Datalink needs at Attach
// time that Config itself does not carry (channel, N201, format).
type SAPIProfile struct {
	SAPI    uint8
	Channel uint8
	N201    int
	Format  codec.Format
	Config  datalink.Config
}

// Profile is a whole entity's worth of channel configuration: the node's
// own identity plus one SAPIProfile per attached SAPI.
type Profile struct {
	NodeID uint8
	LAPD   bool // true selects the two-octet LAPD addressing variant
	SAPIs  []SAPIProfile
}

var formatByName = map[string]codec.Format{
	"A":    codec.FormatA,
	"B":    codec.FormatB,
	"Bbis": codec.FormatBbis,
	"Bter": codec.FormatBter,
	"B4":   codec.FormatB4,
}

// Load parses file (path, []byte, or io.Reader, per gopkg.in/ini.v1's
// Load) into a Profile. file layout:
//
//	[station]
//	node_id = 32
//	lapd = false
//
//	[sapi0]
//	channel = 0
//	format = B
//	n201 = 20
//	k = 1
//	v_range = 8
//	n200 = 3
//	n200_est_rel = 3
//	t200_ms = 1000
//	t203_ms = 10000
//	mode = user
//	use_sabme = false
//	reestablish = false
func Load(file any) (*Profile, error) {
	f, err := ini.Load(file)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	station := f.Section("station")
	nodeID, err := station.Key("node_id").Int()
	if err != nil {
		return nil, fmt.Errorf("config: station.node_id: %w", err)
	}
	profile := &Profile{
		NodeID: uint8(nodeID),
		LAPD:   station.Key("lapd").MustBool(false),
	}

	for _, section := range f.Sections() {
		sapi, ok := parseSAPISection(section.Name())
		if !ok {
			continue
		}
		sp, err := parseSAPIProfile(sapi, section)
		if err != nil {
			return nil, fmt.Errorf("config: section %s: %w", section.Name(), err)
		}
		profile.SAPIs = append(profile.SAPIs, sp)
	}
	if len(profile.SAPIs) == 0 {
		return nil, fmt.Errorf("config: no [sapiN] sections found")
	}
	return profile, nil
}

func parseSAPISection(name string) (uint8, bool) {
	if len(name) < 5 || name[:4] != "sapi" {
		return 0, false
	}
	n, err := strconv.ParseUint(name[4:], 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}

func parseSAPIProfile(sapi uint8, section *ini.Section) (SAPIProfile, error) {
	channel := section.Key("channel").MustInt(0)
	n201 := section.Key("n201").MustInt(20)
	formatName := section.Key("format").MustString("B")
	format, ok := formatByName[formatName]
	if !ok {
		return SAPIProfile{}, fmt.Errorf("unknown format %q", formatName)
	}

	mode := datalink.ModeUser
	if section.Key("mode").MustString("user") == "network" {
		mode = datalink.ModeNetwork
	}

	cfg := datalink.Config{
		K:           section.Key("k").MustInt(1),
		VRange:      section.Key("v_range").MustInt(8),
		MaxF:        section.Key("maxf").MustInt(4096),
		N200:        section.Key("n200").MustInt(3),
		N200EstRel:  section.Key("n200_est_rel").MustInt(3),
		T200:        time.Duration(section.Key("t200_ms").MustInt(1000)) * time.Millisecond,
		T203:        time.Duration(section.Key("t203_ms").MustInt(10000)) * time.Millisecond,
		Mode:        mode,
		UseSABME:    section.Key("use_sabme").MustBool(false),
		Reestablish: section.Key("reestablish").MustBool(false),
	}

	return SAPIProfile{
		SAPI:    sapi,
		Channel: uint8(channel),
		N201:    n201,
		Format:  format,
		Config:  cfg,
	}, nil
}

// AddressCodec returns the address codec this profile's LAPD flag selects:
// LAPDm's one-octet form, or LAPD's two-octet extended-TEI form.
func (p *Profile) AddressCodec() codec.AddressCodec {
	if p.LAPD {
		return codec.LAPDAddress{}
	}
	return codec.LAPDmAddress{}
}
