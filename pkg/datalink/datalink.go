package datalink

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kc1fsz/lapdm/internal/history"
	"github.com/kc1fsz/lapdm/pkg/codec"
	"github.com/kc1fsz/lapdm/pkg/timer"
)

// Datalink is one reliable channel, identified by (entity, SAPI). It is the
// unit of state for establishment, sequencing, retransmission, and
// reassembly; the Entity that owns it only routes frames and primitives to
// and from it.
type Datalink struct {
	cfg  Config
	lctx LinkContext
	addr codec.AddressCodec
	wire *codec.Codec

	log *logrus.Entry

	state State

	vs, va, vr int
	retryCount int

	ownBusy, peerBusy bool
	seqErrCond        int // 0 = clear, 1 = first REJ sent, 2 = suppressing further REJ

	sendQueue [][]byte
	sendBuf   []byte
	sendOut   int

	history *history.Ring
	rcvBuf  []byte

	t200, t203 timer.Timer

	contentionBuf []byte
	contentionSet bool
}

// New constructs a Datalink in state NULL: attached to nothing until Start
// is called, mirroring the Entity-owns-Datalink lifecycle where a link is
// created at subscriber attach and only then moved to IDLE.
func New(cfg Config, lctx LinkContext, addr codec.AddressCodec) *Datalink {
	d := &Datalink{
		cfg:     cfg,
		lctx:    lctx,
		addr:    addr,
		wire:    codec.New(lctx.Format, addr, cfg.VRange == 128, lctx.N201),
		state:   StateNULL,
		history: history.New(history.RangeHist(cfg.K)),
		log: logrus.WithFields(logrus.Fields{
			"sapi": lctx.SAPI,
			"chan": lctx.Channel,
		}),
	}
	return d
}

// Start moves a freshly attached datalink from NULL to IDLE.
func (d *Datalink) Start() {
	d.state = StateIDLE
}

// Stop tears everything down unconditionally and returns to NULL, mirroring
// detach: all owned queues, buffers, history, and timers are dropped.
func (d *Datalink) Stop() {
	d.reset()
	d.state = StateNULL
}

func (d *Datalink) reset() {
	d.t200.Stop()
	d.t203.Stop()
	d.sendQueue = nil
	d.sendBuf = nil
	d.sendOut = 0
	d.history.Reset()
	d.rcvBuf = nil
	d.contentionBuf = nil
	d.contentionSet = false
	d.ownBusy = false
	d.peerBusy = false
	d.seqErrCond = 0
	d.retryCount = 0
	d.vs, d.va, d.vr = 0, 0, 0
}

// State returns the datalink's current FSM state.
func (d *Datalink) State() State { return d.state }

// mod reduces x into [0, VRange).
func (d *Datalink) mod(x int) int {
	n := d.cfg.VRange
	r := x % n
	if r < 0 {
		r += n
	}
	return r
}

func (d *Datalink) windowFull() bool {
	return d.mod(d.vs-d.va) >= d.cfg.K
}

func (d *Datalink) sabmKind() codec.UKind {
	if d.cfg.VRange == 128 || d.cfg.UseSABME {
		return codec.USABME
	}
	return codec.USABM
}

func (d *Datalink) cmdAddr() codec.Address {
	return codec.Address{SAPI: d.lctx.SAPI, TEI: d.lctx.TEI, Command: d.cfg.Mode.commandCR()}
}

func (d *Datalink) respAddr() codec.Address {
	return codec.Address{SAPI: d.lctx.SAPI, TEI: d.lctx.TEI, Command: d.cfg.Mode.responseCR()}
}

func surface(p Primitive) Action { return Action{Kind: ActionSurface, Primitive: p} }

func transmit(f codec.Frame) Action { return Action{Kind: ActionTransmit, Frame: f} }

func mdlError(cause Cause) Action {
	return surface(Primitive{Kind: PrimMDLError, Op: OpIndication, Cause: cause})
}

// startTimer arms k for cfg's configured duration and records the action.
func (d *Datalink) startTimer(k timer.Kind) Action {
	dur := d.cfg.T200
	t := &d.t200
	if k == timer.T203 {
		dur = d.cfg.T203
		t = &d.t203
	}
	t.Start(dur)
	return Action{Kind: ActionStartTimer, Timer: k, Duration: dur}
}

// restartTimer unconditionally stops then starts k, unlike startTimer
// (which is a no-op if k is already running).
func (d *Datalink) restartTimer(k timer.Kind) Action {
	dur := d.cfg.T200
	t := &d.t200
	if k == timer.T203 {
		dur = d.cfg.T203
		t = &d.t203
	}
	t.Restart(dur)
	return Action{Kind: ActionStartTimer, Timer: k, Duration: dur}
}

func (d *Datalink) stopTimer(k timer.Kind) Action {
	if k == timer.T200 {
		d.t200.Stop()
	} else {
		d.t203.Stop()
	}
	return Action{Kind: ActionStopTimer, Timer: k}
}

// Elapse advances both timers by dt and, for any that fire, runs the FSM's
// timer-expiry handling. Exactly mirrors the "advance timers once per
// engine turn, never a real callback" cooperative scheduling model.
func (d *Datalink) Elapse(dt time.Duration) []Action {
	var actions []Action
	if d.t200.Elapse(dt) {
		actions = append(actions, d.Step(Event{Kind: EventTimer, Timer: timer.T200})...)
	}
	if d.t203.Elapse(dt) {
		actions = append(actions, d.Step(Event{Kind: EventTimer, Timer: timer.T203})...)
	}
	return actions
}

// Step is the pure FSM entry point: given one Event, it mutates the
// datalink's internal state and returns the Actions the caller must carry
// out (transmit, surface to L3 -- timer programming already happened on
// the datalink's own Timer fields).
func (d *Datalink) Step(ev Event) []Action {
	switch ev.Kind {
	case EventPrimitive:
		return d.handlePrimitive(ev.Primitive)
	case EventFrame:
		return d.handleFrame(ev.Frame)
	case EventTimer:
		return d.handleTimerExpiry(ev.Timer)
	default:
		return nil
	}
}

// EstablishRequest, DataRequest, etc. are thin, typed wrappers over Step
// for callers that would rather not construct Event/Primitive values by
// hand.

func (d *Datalink) EstablishRequest(payload []byte) []Action {
	return d.Step(Event{Kind: EventPrimitive, Primitive: Primitive{Kind: PrimEst, Op: OpRequest, Payload: payload}})
}

func (d *Datalink) DataRequest(payload []byte) []Action {
	return d.Step(Event{Kind: EventPrimitive, Primitive: Primitive{Kind: PrimData, Op: OpRequest, Payload: payload}})
}

func (d *Datalink) UnitDataRequest(payload []byte) []Action {
	return d.Step(Event{Kind: EventPrimitive, Primitive: Primitive{Kind: PrimUnitData, Op: OpRequest, Payload: payload}})
}

func (d *Datalink) SuspendRequest() []Action {
	return d.Step(Event{Kind: EventPrimitive, Primitive: Primitive{Kind: PrimSusp, Op: OpRequest}})
}

func (d *Datalink) ResumeRequest(payload []byte) []Action {
	return d.Step(Event{Kind: EventPrimitive, Primitive: Primitive{Kind: PrimRes, Op: OpRequest, Payload: payload}})
}

func (d *Datalink) ReconnectRequest(payload []byte) []Action {
	return d.Step(Event{Kind: EventPrimitive, Primitive: Primitive{Kind: PrimRecon, Op: OpRequest, Payload: payload}})
}

func (d *Datalink) ReleaseRequest(mode RelMode) []Action {
	return d.Step(Event{Kind: EventPrimitive, Primitive: Primitive{Kind: PrimRel, Op: OpRequest, RelMode: mode}})
}

func (d *Datalink) ReceiveFrame(f codec.Frame) []Action {
	return d.Step(Event{Kind: EventFrame, Frame: f})
}
