// Package entity implements the Entity container from spec.md §4.5: a
// fixed small array of Datalinks keyed by SAPI, a single pending-PHY-write
// flag, and round-robin fairness across the Datalinks' tx-queues.
//
// Adapted from the teacher's pkg/network.Network + canopen.BusManager
// pairing: Network owns per-node controllers and schedules work onto a
// single BusManager; Entity owns per-SAPI Datalinks and schedules their
// frames onto a single phy.Bus, the same one-writer-at-a-time shape
// generalized from CAN-ID-keyed dispatch to SAPI-keyed dispatch.
package entity

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kc1fsz/lapdm/pkg/codec"
	"github.com/kc1fsz/lapdm/pkg/datalink"
	"github.com/kc1fsz/lapdm/pkg/phy"
)

// SAPI identifiers used by LAPDm; the peer LAPD variant reuses the same
// entity shape with however many SAPIs its TEI/SAPI plan calls for.
const (
	SAPINormal = 0
	SAPISMS    = 3
)

// numSAPI bounds the fixed array size: normal + SMS, with headroom for the
// LAPD peer variant's wider SAPI range.
const numSAPI = 4

// Station is the handle an Entity reaches back through to its owning
// subscriber/station context. The core does not care what it is.
type Station interface {
	ID() string
}

// ChannelRouter picks the wire Codec for a PHY channel number, implementing
// spec.md §4.5's "routing table keyed by channel-number bits ... to pick
// LAPDm format."
type ChannelRouter interface {
	CodecFor(channel uint8) (*codec.Codec, bool)
}

// slot holds one attached Datalink plus its own outgoing tx-queue of
// already-encoded frames awaiting the shared PHY write slot.
type slot struct {
	dl      *datalink.Datalink
	channel uint8
	codec   *codec.Codec
	txQueue [][]byte
}

// Entity owns a fixed small array of Datalinks indexed by SAPI, a single
// pending-PHY-write flag, and a last-served index for round-robin
// fairness, plus a handle back to the owning station. Lifecycle: created
// at subscriber attach, destroyed at detach, at which point every owned
// Datalink is flushed and dropped with it.
type Entity struct {
	station Station
	bus     phy.Bus
	router  ChannelRouter

	slots      [numSAPI]*slot
	lastServed int
	pending    bool

	log *logrus.Entry
}

// New constructs an Entity bound to bus and router, with no Datalinks
// attached yet. Call Attach for each SAPI the station needs; Attach also
// starts the Datalink it creates.
func New(station Station, bus phy.Bus, router ChannelRouter) *Entity {
	return &Entity{
		station: station,
		bus:     bus,
		router:  router,
		log:     logrus.WithField("entity", station.ID()),
	}
}

// Attach creates and starts a Datalink for sapi on the given channel,
// generalizing spec.md's "Entity owns a fixed small array of Datalinks" to
// whichever SAPI set the caller configures (2 for LAPDm normal+SMS, more
// for LAPD).
func (e *Entity) Attach(sapi, channel uint8, cfg datalink.Config, n201 int, format codec.Format, addr codec.AddressCodec) (*datalink.Datalink, error) {
	if int(sapi) >= numSAPI {
		return nil, fmt.Errorf("entity: sapi %d out of range", sapi)
	}
	if e.slots[sapi] != nil {
		return nil, fmt.Errorf("entity: sapi %d already attached", sapi)
	}
	lctx := datalink.LinkContext{Channel: channel, SAPI: sapi, Format: format, N201: n201}
	dl := datalink.New(cfg, lctx, addr)
	dl.Start()
	e.slots[sapi] = &slot{
		dl:      dl,
		channel: channel,
		codec:   codec.New(format, addr, cfg.VRange == 128, n201),
	}
	return dl, nil
}

// Datalink returns the Datalink attached at sapi, or nil.
func (e *Entity) Datalink(sapi uint8) *datalink.Datalink {
	if int(sapi) >= numSAPI || e.slots[sapi] == nil {
		return nil
	}
	return e.slots[sapi].dl
}

// Detach flushes and drops every owned Datalink, mirroring subscriber
// detach: all owned Datalinks are flushed and dropped with the Entity.
func (e *Entity) Detach() {
	for i, s := range e.slots {
		if s == nil {
			continue
		}
		s.dl.Stop()
		e.slots[i] = nil
	}
	e.pending = false
	e.lastServed = 0
}

// Receive implements the uplink half of spec.md §4.5: the PHY delivers raw
// bytes on channel; the Entity picks the right codec from its routing
// table, parses the frame, routes by address SAPI to the matching
// Datalink, and steps it. An unparsable frame is dropped, and an
// MDL-ERROR indication is surfaced in its place (spec.md §7); an unknown
// SAPI is dropped silently, since no Datalink owns it to report against.
func (e *Entity) Receive(channel uint8, raw []byte) []datalink.Action {
	c, ok := e.router.CodecFor(channel)
	if !ok {
		e.log.WithField("channel", channel).Debug("dropping frame for unrouted channel")
		return nil
	}
	frame, hdr, err := c.Decode(raw)
	if err != nil {
		e.log.WithError(err).Debug("dropping frame with codec error")
		cerr, ok := err.(*codec.Error)
		if !ok {
			return nil
		}
		return []datalink.Action{{
			Kind: datalink.ActionSurface,
			Primitive: datalink.Primitive{
				Kind:  datalink.PrimMDLError,
				Op:    datalink.OpIndication,
				Cause: datalink.CauseFromCodecError(cerr, cerr.Kind),
			},
		}}
	}
	if int(frame.Addr.SAPI) >= numSAPI || e.slots[frame.Addr.SAPI] == nil {
		e.log.WithField("sapi", frame.Addr.SAPI).Debug("dropping frame for unknown SAPI")
		return nil
	}
	s := e.slots[frame.Addr.SAPI]
	actions := s.dl.ReceiveFrame(frame)
	if hdr != nil {
		// B4's L1 header (MS power, timing advance) rides alongside the
		// frame's own indication rather than being folded into it, since
		// the Datalink FSM has no notion of L1 header fields.
		actions = append(actions, datalink.Action{
			Kind: datalink.ActionSurface,
			Primitive: datalink.Primitive{
				Kind:    datalink.PrimUnitData,
				Op:      datalink.OpIndication,
				Payload: []byte{hdr.MSPowerLevel, hdr.TimingAdvance},
			},
		})
	}
	return e.drainActions(frame.Addr.SAPI, actions)
}

// drainActions walks actions for the datalink at sapi, encoding and
// scheduling every ActionTransmit via scheduleWrite. Non-transmit actions
// pass through unchanged for the caller to handle (surface to L3, or
// nothing for timer bookkeeping, which Step already applied internally).
func (e *Entity) drainActions(sapi uint8, actions []datalink.Action) []datalink.Action {
	s := e.slots[sapi]
	var out []datalink.Action
	for _, a := range actions {
		if a.Kind == datalink.ActionTransmit {
			raw, err := s.codec.Encode(a.Frame, nil)
			if err != nil {
				e.log.WithError(err).Warn("dropping unencodable outgoing frame")
				continue
			}
			e.scheduleWrite(sapi, raw)
			continue
		}
		out = append(out, a)
	}
	return out
}

// Step drives a Datalink at sapi with a primitive or timer event exactly
// like Receive drives one from the wire, scheduling whatever frames the
// step produces.
func (e *Entity) Step(sapi uint8, ev datalink.Event) []datalink.Action {
	s := e.slots[sapi]
	if s == nil {
		return nil
	}
	return e.drainActions(sapi, s.dl.Step(ev))
}

// scheduleWrite implements the downlink scheduling policy of spec.md §4.5:
// if no PHY write is pending, dispatch immediately; otherwise enqueue on
// the datalink's own tx-queue for later round-robin service.
func (e *Entity) scheduleWrite(sapi uint8, raw []byte) {
	if !e.pending {
		e.pending = true
		e.writeNow(sapi, raw)
		return
	}
	e.slots[sapi].txQueue = append(e.slots[sapi].txQueue, raw)
}

func (e *Entity) writeNow(sapi uint8, raw []byte) {
	s := e.slots[sapi]
	if err := e.bus.Send(phy.Frame{Channel: s.channel, Data: raw}); err != nil {
		e.log.WithError(err).Warn("phy write failed")
	}
}

// OnWriteComplete implements spec.md §4.5's round-robin fairness: starting
// after lastServed, find the next SAPI with a non-empty tx-queue and
// dispatch its head; if every queue is empty, the pending flag clears.
func (e *Entity) OnWriteComplete() {
	for i := 1; i <= numSAPI; i++ {
		idx := (e.lastServed + i) % numSAPI
		s := e.slots[idx]
		if s == nil || len(s.txQueue) == 0 {
			continue
		}
		raw := s.txQueue[0]
		s.txQueue = s.txQueue[1:]
		e.lastServed = idx
		e.writeNow(uint8(idx), raw)
		return
	}
	e.pending = false
}
