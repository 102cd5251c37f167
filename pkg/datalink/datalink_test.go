package datalink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kc1fsz/lapdm/pkg/codec"
	"github.com/kc1fsz/lapdm/pkg/timer"
)

// newPair builds a network-side and user-side Datalink wired to the same
// LAPDm address codec, both started (NULL -> IDLE), ready to exchange
// frames via the loop/deliver helpers below. Mirrors a single SAPI-0 SDCCH
// channel with window 1, modulo 8.
func newPair(t *testing.T) (*Datalink, *Datalink) {
	t.Helper()
	lctx := LinkContext{Channel: 0, SAPI: 0, Format: codec.FormatB, N201: 20}
	net := New(DefaultConfig(ModeNetwork), lctx, codec.LAPDmAddress{})
	usr := New(DefaultConfig(ModeUser), lctx, codec.LAPDmAddress{})
	net.Start()
	usr.Start()
	return net, usr
}

// deliver feeds every Transmit action in actions into peer, collecting
// whatever Actions that produces. It does not recurse: callers loop until
// no more transmits are produced, mirroring the cooperative single-turn
// scheduling model (no implicit infinite bounce between two endpoints).
func deliver(peer *Datalink, actions []Action) []Action {
	var out []Action
	for _, a := range actions {
		if a.Kind == ActionTransmit {
			out = append(out, peer.ReceiveFrame(a.Frame)...)
		}
	}
	return out
}

func transmits(actions []Action) []codec.Frame {
	var fs []codec.Frame
	for _, a := range actions {
		if a.Kind == ActionTransmit {
			fs = append(fs, a.Frame)
		}
	}
	return fs
}

func primitives(actions []Action) []Primitive {
	var ps []Primitive
	for _, a := range actions {
		if a.Kind == ActionSurface {
			ps = append(ps, a.Primitive)
		}
	}
	return ps
}

func findPrimitive(actions []Action, kind PrimitiveKind, op Op) (Primitive, bool) {
	for _, p := range primitives(actions) {
		if p.Kind == kind && p.Op == op {
			return p, true
		}
	}
	return Primitive{}, false
}

// S1: normal establishment. User requests EST, network surfaces EST.ind,
// network's UA round-trips back to confirm EST.conf on the user side.
func TestScenarioNormalEstablishment(t *testing.T) {
	net, usr := newPair(t)

	userActions := usr.EstablishRequest([]byte("hello"))
	require.Len(t, transmits(userActions), 1)
	sabm := transmits(userActions)[0]
	assert.Equal(t, codec.KindU, sabm.Kind)
	assert.True(t, sabm.U.Kind == codec.USABM || sabm.U.Kind == codec.USABME)

	netActions := net.ReceiveFrame(sabm)
	_, ok := findPrimitive(netActions, PrimEst, OpIndication)
	assert.True(t, ok, "network side should surface DL-EST.ind")
	assert.Equal(t, StateMFEst, net.State())

	ua := transmits(netActions)
	require.Len(t, ua, 1)
	assert.Equal(t, codec.UUA, ua[0].U.Kind)

	confActions := usr.ReceiveFrame(ua[0])
	_, ok = findPrimitive(confActions, PrimEst, OpConfirm)
	assert.True(t, ok, "user side should confirm DL-EST.conf")
	assert.Equal(t, StateMFEst, usr.State())
}

// S2: segmented DATA.req larger than N201-3 is split into multiple I-frames
// with the M bit set on all but the last, and reassembled into a single
// DL-DATA.ind on the receiving side. With window 1, each segment goes out
// only once the peer's RR has acknowledged the previous one.
func TestScenarioSegmentedData(t *testing.T) {
	net, usr := newPair(t)
	establish(t, net, usr)

	payload := make([]byte, 40) // N201=20, budget per segment = 17
	for i := range payload {
		payload[i] = byte(i)
	}
	frames := transmits(usr.DataRequest(payload))

	var sent int
	var reassembled []byte
	var gotIndication bool
	for len(frames) > 0 {
		var next []codec.Frame
		for _, f := range frames {
			sent++
			got := net.ReceiveFrame(f)
			if p, ok := findPrimitive(got, PrimData, OpIndication); ok {
				reassembled = p.Payload
				gotIndication = true
			}
			next = append(next, transmits(deliver(usr, got))...)
		}
		frames = next
	}
	require.GreaterOrEqual(t, sent, 2, "40 bytes over a 17-byte budget must segment")
	assert.True(t, gotIndication)
	assert.Equal(t, payload, reassembled)
}

// S3: no ack arrives before T200 fires; the initial SABM plus exactly
// N200EstRel retransmissions go out before the link gives up, reporting
// MDL-ERROR.T200_EXPIRED and falling back to IDLE instead of retrying
// forever. That's N200EstRel+1 total SABM transmissions, so termination
// lands on the (N200EstRel+1)th T200 expiry.
func TestScenarioT200ExhaustionDuringEstablishment(t *testing.T) {
	_, usr := newPair(t)
	cfg := usr.cfg
	actions := usr.EstablishRequest(nil)
	require.Len(t, transmits(actions), 1)

	var lastActions []Action
	var retransmitCount int
	for i := 0; i < cfg.N200EstRel+1; i++ {
		lastActions = usr.Elapse(cfg.T200 + time.Millisecond)
		if len(transmits(lastActions)) > 0 {
			retransmitCount++
		}
	}
	assert.Equal(t, cfg.N200EstRel, retransmitCount, "last expiry must error out, not retransmit")
	_, hasErr := findPrimitive(lastActions, PrimMDLError, OpIndication)
	assert.True(t, hasErr)
	assert.Equal(t, StateIDLE, usr.State())
}

// S3b: T200 exhaustion in TIMER_RECOV (data phase) retransmits N200-1 times
// before the N200th expiry raises MDL-ERROR.T200_EXPIRED.
func TestScenarioT200ExhaustionInDataPhase(t *testing.T) {
	net, usr := newPair(t)
	establish(t, net, usr)

	// Send one I-frame that the peer never acknowledges (don't deliver it).
	actions := usr.DataRequest([]byte("x"))
	require.Len(t, transmits(actions), 1)
	assert.True(t, usr.t200.Running())

	var retransmitCount int
	var last []Action
	for i := 0; i < usr.cfg.N200; i++ {
		last = usr.Elapse(usr.cfg.T200 + time.Millisecond)
		if len(transmits(last)) > 0 {
			retransmitCount++
		}
	}
	assert.Equal(t, usr.cfg.N200-1, retransmitCount, "last expiry must error out, not retransmit")
	_, hasErr := findPrimitive(last, PrimMDLError, OpIndication)
	assert.True(t, hasErr)
}

// S4: a gap in N(S) triggers REJ once, and repeated duplicates of the same
// gap must not re-trigger REJ (the two-state seq_err_cond suppression).
func TestScenarioSequenceErrorTriggersSingleREJ(t *testing.T) {
	net, usr := newPair(t)
	establish(t, net, usr)

	// Craft an I-frame with N(S)=1 when the network side expects 0.
	bad := codec.Frame{
		Kind: codec.KindI,
		Addr: codec.Address{SAPI: 0, Command: usr.cfg.Mode.commandCR()},
		I:    codec.IFrame{NS: 1, NR: 0, Payload: []byte("skip")},
	}
	got := net.ReceiveFrame(bad)
	rejs := 0
	for _, f := range transmits(got) {
		if f.Kind == codec.KindS && f.S.Kind == codec.SREJ {
			rejs++
		}
	}
	assert.Equal(t, 1, rejs)

	got2 := net.ReceiveFrame(bad)
	rejs2 := 0
	for _, f := range transmits(got2) {
		if f.Kind == codec.KindS && f.S.Kind == codec.SREJ {
			rejs2++
		}
	}
	assert.Equal(t, 0, rejs2, "a second copy of the same gap must not re-trigger REJ")
}

// S5: contention resolution. Two simultaneous SABM(E)s with matching
// contention payloads both resolve to MF_EST via UA, without a duplicate
// DL-EST.ind; mismatched payloads raise SABM_INFO_NOTALL instead of
// re-establishing.
func TestScenarioContentionResolutionMatchingPayload(t *testing.T) {
	net, usr := newPair(t)
	payload := []byte("req")

	netActions := net.ReceiveFrame(codec.Frame{
		Kind: codec.KindU,
		Addr: codec.Address{SAPI: 0, Command: usr.cfg.Mode.commandCR()},
		U:    codec.UFrame{Kind: codec.USABM, PF: true, Payload: payload},
	})
	_, ok := findPrimitive(netActions, PrimEst, OpIndication)
	assert.True(t, ok)
	assert.Equal(t, StateMFEst, net.State())

	// Duplicate SABM with the identical payload arrives again before the
	// peer has seen our UA (simultaneous establishment race).
	dupActions := net.ReceiveFrame(codec.Frame{
		Kind: codec.KindU,
		Addr: codec.Address{SAPI: 0, Command: usr.cfg.Mode.commandCR()},
		U:    codec.UFrame{Kind: codec.USABM, PF: true, Payload: payload},
	})
	_, dupInd := findPrimitive(dupActions, PrimEst, OpIndication)
	assert.False(t, dupInd, "a duplicate matching-payload SABM must not re-indicate DL-EST")
	uas := transmits(dupActions)
	require.Len(t, uas, 1)
	assert.Equal(t, codec.UUA, uas[0].U.Kind)
}

func TestScenarioContentionResolutionMismatchedPayload(t *testing.T) {
	net, usr := newPair(t)
	net.ReceiveFrame(codec.Frame{
		Kind: codec.KindU,
		Addr: codec.Address{SAPI: 0, Command: usr.cfg.Mode.commandCR()},
		U:    codec.UFrame{Kind: codec.USABM, PF: true, Payload: []byte("first")},
	})
	got := net.ReceiveFrame(codec.Frame{
		Kind: codec.KindU,
		Addr: codec.Address{SAPI: 0, Command: usr.cfg.Mode.commandCR()},
		U:    codec.UFrame{Kind: codec.USABM, PF: true, Payload: []byte("other")},
	})
	p, ok := findPrimitive(got, PrimMDLError, OpIndication)
	assert.True(t, ok)
	assert.Equal(t, CauseSABMInfoNotAll, p.Cause)
	assert.Len(t, transmits(got), 0, "mismatched contention payload gets no UA")
}

// S6: normal release collision. Both sides send DISC at once; each must
// still reach IDLE with a DL-REL confirmation/indication instead of
// retrying forever against a peer already in DISC_SENT.
func TestScenarioReleaseCollision(t *testing.T) {
	net, usr := newPair(t)
	establish(t, net, usr)

	userRel := usr.ReleaseRequest(RelNormal)
	netRel := net.ReleaseRequest(RelNormal)
	assert.Equal(t, StateDISCSent, usr.State())
	assert.Equal(t, StateDISCSent, net.State())

	userDISC := transmits(userRel)
	netDISC := transmits(netRel)
	require.Len(t, userDISC, 1)
	require.Len(t, netDISC, 1)

	fromNet := usr.ReceiveFrame(netDISC[0])
	fromUsr := net.ReceiveFrame(userDISC[0])

	_, usrConf := findPrimitive(fromNet, PrimRel, OpIndication)
	_, usrConf2 := findPrimitive(fromNet, PrimRel, OpConfirm)
	assert.True(t, usrConf || usrConf2)
	_, netConf := findPrimitive(fromUsr, PrimRel, OpIndication)
	_, netConf2 := findPrimitive(fromUsr, PrimRel, OpConfirm)
	assert.True(t, netConf || netConf2)
	assert.Equal(t, StateIDLE, usr.State())
	assert.Equal(t, StateIDLE, net.State())
}

// establish drives a full S1 handshake and leaves both sides in MF_EST,
// used as setup by scenarios that need an already-established link.
func establish(t *testing.T, net, usr *Datalink) {
	t.Helper()
	userActions := usr.EstablishRequest(nil)
	sabm := transmits(userActions)[0]
	netActions := net.ReceiveFrame(sabm)
	ua := transmits(netActions)
	require.Len(t, ua, 1)
	usr.ReceiveFrame(ua[0])
	require.Equal(t, StateMFEst, usr.State())
	require.Equal(t, StateMFEst, net.State())
}

// Invariant: the window never admits more than K unacknowledged I-frames
// in flight at once.
func TestInvariantWindowNeverExceedsK(t *testing.T) {
	net, usr := newPair(t)
	usr.cfg.K = 3
	establish(t, net, usr)

	// Queue far more than K segments' worth of data without ever letting
	// the peer acknowledge.
	for i := 0; i < 10; i++ {
		usr.DataRequest([]byte{byte(i)})
	}
	outstanding := usr.mod(usr.vs - usr.va)
	assert.LessOrEqual(t, outstanding, usr.cfg.K)
}

// Invariant: REJ forces V(S)=V(A)=N(R), so the next drain re-sends from
// exactly the rejected sequence number rather than skipping ahead.
func TestInvariantREJForcesRetransmitFromNR(t *testing.T) {
	net, usr := newPair(t)
	usr.cfg.K = 4
	establish(t, net, usr)
	net.cfg.K = 4

	usr.DataRequest([]byte("a"))
	usr.DataRequest([]byte("b"))
	require.Equal(t, 2, usr.mod(usr.vs))

	rej := codec.Frame{
		Kind: codec.KindS,
		Addr: codec.Address{SAPI: 0, Command: net.cfg.Mode.commandCR()},
		S:    codec.SFrame{Kind: codec.SREJ, NR: 0, PF: false},
	}
	actions := usr.ReceiveFrame(rej)
	assert.Equal(t, 0, usr.va)
	frames := transmits(actions)
	require.GreaterOrEqual(t, len(frames), 1)
	assert.EqualValues(t, 0, frames[0].I.NS, "retransmission must restart at the rejected N(S)")
}

// Invariant: T200 and T203 never both run at once in MF_EST; sending an
// I-frame starts T200 and stops T203.
func TestInvariantTimerExclusivityInMFEst(t *testing.T) {
	net, usr := newPair(t)
	establish(t, net, usr)

	both := usr.t200.Running() && usr.t203.Running()
	assert.False(t, both, "T200 and T203 must never both run at once")

	usr.DataRequest([]byte("x"))
	assert.True(t, usr.t200.Running())
	assert.False(t, usr.t203.Running())
}

// Invariant: once N200 is exhausted in TIMER_RECOV, no further retransmit
// actions are produced: the engine terminates rather than retrying forever.
func TestInvariantN200BoundsRetries(t *testing.T) {
	net, usr := newPair(t)
	establish(t, net, usr)
	usr.DataRequest([]byte("x"))

	var totalTransmits int
	var sawError bool
	for i := 0; i < usr.cfg.N200; i++ {
		actions := usr.Elapse(usr.cfg.T200 + time.Millisecond)
		totalTransmits += len(transmits(actions))
		if _, ok := findPrimitive(actions, PrimMDLError, OpIndication); ok {
			sawError = true
		}
	}
	assert.True(t, sawError)
	assert.Equal(t, usr.cfg.N200-1, totalTransmits)

	// One more Elapse beyond N200 must not keep transmitting; T200 is no
	// longer running once Reestablish is off (default false).
	actions := usr.Elapse(usr.cfg.T200 + time.Millisecond)
	assert.Len(t, transmits(actions), 0)
}

// Timer bookkeeping sanity: startTimer is a documented no-op when already
// running, while restartTimer always re-arms from zero.
func TestTimerStartIsNoOpRestartIsNot(t *testing.T) {
	net, usr := newPair(t)
	_ = net
	usr.t200.Start(time.Second)
	usr.t200.Elapse(400 * time.Millisecond)
	usr.startTimer(timer.T200)
	assert.True(t, usr.t200.Running())
	assert.Equal(t, 600*time.Millisecond, usr.t200.Remaining(), "startTimer must not re-arm a running timer")
	usr.restartTimer(timer.T200)
	assert.True(t, usr.t200.Running())
	assert.Equal(t, usr.cfg.T200, usr.t200.Remaining(), "restartTimer must re-arm from zero")
}

func TestCauseFromCodecErrorMapsByFrameKind(t *testing.T) {
	errEL := &codec.Error{Reason: codec.ReasonBadEL}
	assert.Equal(t, CauseFrmUnimpl, CauseFromCodecError(errEL, codec.KindU))

	errLen := &codec.Error{Reason: codec.ReasonLengthExceedsN201}
	assert.Equal(t, CauseIFrmIncLen, CauseFromCodecError(errLen, codec.KindI))
	assert.Equal(t, CauseSFrmIncParam, CauseFromCodecError(errLen, codec.KindS))
	assert.Equal(t, CauseUFrmIncParam, CauseFromCodecError(errLen, codec.KindU))

	errMBit := &codec.Error{Reason: codec.ReasonIncompleteMBit, Kind: codec.KindI}
	assert.Equal(t, CauseIFrmIncMBits, CauseFromCodecError(errMBit, codec.KindI))
}
