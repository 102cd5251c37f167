package datalink

import (
	"github.com/kc1fsz/lapdm/pkg/codec"
	"github.com/kc1fsz/lapdm/pkg/timer"
)

func (d *Datalink) handlePrimitive(p Primitive) []Action {
	switch p.Kind {
	case PrimEst:
		return d.handleEstRequest(p.Payload)
	case PrimData:
		return d.handleDataRequest(p.Payload)
	case PrimUnitData:
		return d.handleUnitDataRequest(p.Payload)
	case PrimSusp:
		return d.handleSuspRequest()
	case PrimRes, PrimRecon:
		return d.handleResumeRequest(p.Payload)
	case PrimRel:
		return d.handleRelRequest(p.RelMode)
	default:
		return nil
	}
}

func (d *Datalink) handleEstRequest(payload []byte) []Action {
	if d.state != StateIDLE {
		return nil
	}
	return d.startEstablishment(payload)
}

// startEstablishment sends SABM(E) with the given contention payload and
// moves to SABM_SENT. Used by EST.req; RES/RECON.req go through
// startEstablishmentKeepQueue instead.
func (d *Datalink) startEstablishment(payload []byte) []Action {
	d.reset()
	d.state = StateSABMSent
	d.contentionBuf = append([]byte{}, payload...)
	f := codec.Frame{
		Kind: codec.KindU,
		Addr: d.cmdAddr(),
		U:    codec.UFrame{Kind: d.sabmKind(), PF: true, Payload: payload},
	}
	actions := []Action{transmit(f), d.startTimer(timer.T200)}
	return actions
}

func (d *Datalink) handleDataRequest(payload []byte) []Action {
	if d.state != StateMFEst && d.state != StateTimerRecov {
		return nil
	}
	d.sendQueue = append(d.sendQueue, payload)
	return d.drainSendQueue()
}

func (d *Datalink) handleUnitDataRequest(payload []byte) []Action {
	f := codec.Frame{
		Kind: codec.KindU,
		Addr: d.cmdAddr(),
		U:    codec.UFrame{Kind: codec.UUI, Payload: payload},
	}
	return []Action{transmit(f)}
}

func (d *Datalink) handleSuspRequest() []Action {
	if d.state != StateMFEst && d.state != StateTimerRecov {
		return nil
	}
	if len(d.sendBuf) > d.sendOut {
		remaining := append([]byte{}, d.sendBuf[d.sendOut:]...)
		d.sendQueue = append([][]byte{remaining}, d.sendQueue...)
	}
	d.sendBuf = nil
	d.sendOut = 0
	d.history.Reset()
	var actions []Action
	actions = append(actions, d.stopTimer(timer.T200), d.stopTimer(timer.T203))
	d.state = StateIDLE
	actions = append(actions, surface(Primitive{Kind: PrimSusp, Op: OpConfirm}))
	return actions
}

func (d *Datalink) handleResumeRequest(payload []byte) []Action {
	if d.state == StateNULL {
		return nil
	}
	if payload != nil {
		d.sendQueue = append([][]byte{payload}, d.sendQueue...)
		d.sendBuf = nil
		d.sendOut = 0
	}
	return d.startEstablishmentKeepQueue()
}

// startEstablishmentKeepQueue is startEstablishment without discarding
// sendQueue, used by RES/RECON which may be re-sending queued data once
// MF_EST is regained.
func (d *Datalink) startEstablishmentKeepQueue() []Action {
	queue := d.sendQueue
	d.reset()
	d.sendQueue = queue
	d.state = StateSABMSent
	f := codec.Frame{
		Kind: codec.KindU,
		Addr: d.cmdAddr(),
		U:    codec.UFrame{Kind: d.sabmKind(), PF: true},
	}
	return []Action{transmit(f), d.startTimer(timer.T200)}
}

func (d *Datalink) handleRelRequest(mode RelMode) []Action {
	if mode == RelLocal {
		d.reset()
		d.state = StateIDLE
		return []Action{surface(Primitive{Kind: PrimRel, Op: OpConfirm})}
	}
	switch d.state {
	case StateIDLE, StateNULL:
		return []Action{surface(Primitive{Kind: PrimRel, Op: OpConfirm})}
	case StateMFEst, StateTimerRecov:
		d.t203.Stop()
		d.t200.Stop()
		d.retryCount = 0
		d.state = StateDISCSent
		f := codec.Frame{Kind: codec.KindU, Addr: d.cmdAddr(), U: codec.UFrame{Kind: codec.UDISC, PF: true}}
		return []Action{transmit(f), d.startTimer(timer.T200)}
	default:
		return nil
	}
}
