package datalink

import (
	"bytes"

	"github.com/kc1fsz/lapdm/pkg/codec"
	"github.com/kc1fsz/lapdm/pkg/timer"
)

func (d *Datalink) handleFrame(f codec.Frame) []Action {
	switch f.Kind {
	case codec.KindU:
		return d.handleU(f)
	case codec.KindI:
		return d.handleI(f)
	case codec.KindS:
		return d.handleS(f)
	default:
		return nil
	}
}

func (d *Datalink) handleU(f codec.Frame) []Action {
	switch f.U.Kind {
	case codec.USABM, codec.USABME:
		return d.handleSABM(f)
	case codec.UDISC:
		return d.handleDISC()
	case codec.UUA:
		return d.handleUA(f)
	case codec.UDM:
		return d.handleDM(f)
	case codec.UFRMR:
		return []Action{mdlError(CauseFRMR)}
	case codec.UUI:
		return []Action{surface(Primitive{Kind: PrimUnitData, Op: OpIndication, Payload: f.U.Payload})}
	default:
		return []Action{mdlError(CauseFrmUnimpl)}
	}
}

func (d *Datalink) handleSABM(f codec.Frame) []Action {
	payload := f.U.Payload
	switch d.state {
	case StateIDLE:
		d.reset()
		d.state = StateMFEst
		d.contentionBuf = append([]byte{}, payload...)
		d.contentionSet = true
		ua := codec.Frame{Kind: codec.KindU, Addr: d.respAddr(), U: codec.UFrame{Kind: codec.UUA, PF: true, Payload: payload}}
		actions := []Action{transmit(ua)}
		if d.cfg.T203 > 0 {
			actions = append(actions, d.startTimer(timer.T203))
		}
		actions = append(actions, surface(Primitive{Kind: PrimEst, Op: OpIndication, Payload: payload}))
		return actions
	case StateSABMSent:
		ua := codec.Frame{Kind: codec.KindU, Addr: d.respAddr(), U: codec.UFrame{Kind: codec.UUA, PF: true, Payload: payload}}
		return []Action{transmit(ua)}
	case StateDISCSent:
		dm := codec.Frame{Kind: codec.KindU, Addr: d.respAddr(), U: codec.UFrame{Kind: codec.UDM, PF: true}}
		return []Action{transmit(dm)}
	case StateMFEst, StateTimerRecov:
		if len(payload) == 0 {
			// No contention payload on an already-established link: the
			// peer has lost synchronization rather than retrying the
			// original establishment. Resync it with UA but flag it.
			ua := codec.Frame{Kind: codec.KindU, Addr: d.respAddr(), U: codec.UFrame{Kind: codec.UUA, PF: true}}
			return []Action{transmit(ua), mdlError(CauseSABMMF)}
		}
		if !bytes.Equal(payload, d.contentionBuf) {
			return []Action{mdlError(CauseSABMInfoNotAll)}
		}
		ua := codec.Frame{Kind: codec.KindU, Addr: d.respAddr(), U: codec.UFrame{Kind: codec.UUA, PF: true, Payload: payload}}
		return []Action{transmit(ua)}
	default:
		return nil
	}
}

func (d *Datalink) handleDISC() []Action {
	switch d.state {
	case StateIDLE:
		ua := codec.Frame{Kind: codec.KindU, Addr: d.respAddr(), U: codec.UFrame{Kind: codec.UUA, PF: true}}
		return []Action{transmit(ua), surface(Primitive{Kind: PrimRel, Op: OpIndication})}
	case StateSABMSent:
		dm := codec.Frame{Kind: codec.KindU, Addr: d.respAddr(), U: codec.UFrame{Kind: codec.UDM, PF: true}}
		return []Action{transmit(dm)}
	case StateDISCSent:
		// Release collision: both sides sent DISC. Answer the peer's DISC
		// with UA and complete our own release.
		ua := codec.Frame{Kind: codec.KindU, Addr: d.respAddr(), U: codec.UFrame{Kind: codec.UUA, PF: true}}
		actions := []Action{transmit(ua), d.stopTimer(timer.T200)}
		d.reset()
		d.state = StateIDLE
		return append(actions, surface(Primitive{Kind: PrimRel, Op: OpConfirm}))
	case StateMFEst, StateTimerRecov:
		ua := codec.Frame{Kind: codec.KindU, Addr: d.respAddr(), U: codec.UFrame{Kind: codec.UUA, PF: true}}
		actions := []Action{transmit(ua), d.stopTimer(timer.T200), d.stopTimer(timer.T203)}
		d.reset()
		d.state = StateIDLE
		actions = append(actions, surface(Primitive{Kind: PrimRel, Op: OpIndication}))
		return actions
	default:
		return nil
	}
}

func (d *Datalink) handleUA(f codec.Frame) []Action {
	if !f.U.PF {
		return nil
	}
	switch d.state {
	case StateSABMSent:
		d.t200.Stop()
		d.state = StateMFEst
		var actions []Action
		if d.cfg.T203 > 0 {
			actions = append(actions, d.startTimer(timer.T203))
		}
		actions = append(actions, surface(Primitive{Kind: PrimEst, Op: OpConfirm}))
		actions = append(actions, d.drainSendQueue()...)
		return actions
	case StateDISCSent:
		d.t200.Stop()
		d.reset()
		d.state = StateIDLE
		return []Action{surface(Primitive{Kind: PrimRel, Op: OpConfirm})}
	case StateMFEst, StateTimerRecov:
		return []Action{mdlError(CauseUnsolUAResp)}
	default:
		return nil
	}
}

func (d *Datalink) handleDM(f codec.Frame) []Action {
	if !f.U.PF {
		if d.state == StateMFEst || d.state == StateTimerRecov {
			return []Action{mdlError(CauseUnsolDMRespMF)}
		}
		return nil
	}
	switch d.state {
	case StateSABMSent:
		d.t200.Stop()
		d.reset()
		d.state = StateIDLE
		return []Action{surface(Primitive{Kind: PrimRel, Op: OpIndication})}
	case StateDISCSent:
		d.t200.Stop()
		d.reset()
		d.state = StateIDLE
		return []Action{surface(Primitive{Kind: PrimRel, Op: OpConfirm})}
	case StateMFEst, StateTimerRecov:
		actions := []Action{mdlError(CauseUnsolDMResp)}
		if d.cfg.Reestablish {
			actions = append(actions, d.startEstablishmentKeepQueue()...)
		}
		return actions
	default:
		return nil
	}
}

func (d *Datalink) handleI(f codec.Frame) []Action {
	if !d.cfg.Mode.isCommand(f.Addr.Command) {
		return []Action{mdlError(CauseFrmUnimpl)}
	}
	if d.state != StateMFEst && d.state != StateTimerRecov {
		if d.state == StateIDLE && f.I.P {
			dm := codec.Frame{Kind: codec.KindU, Addr: d.respAddr(), U: codec.UFrame{Kind: codec.UDM, PF: true}}
			return []Action{transmit(dm)}
		}
		return nil
	}

	ns := int(f.I.NS)
	if ns != d.vr {
		var actions []Action
		if d.seqErrCond == 0 {
			rej := codec.Frame{Kind: codec.KindS, Addr: d.respAddr(), S: codec.SFrame{Kind: codec.SREJ, NR: uint8(d.vr), PF: f.I.P}}
			actions = append(actions, transmit(rej))
			d.seqErrCond = 1
		} else {
			d.seqErrCond = 2
		}
		actions = append(actions, d.acknowledge(int(f.I.NR), false)...)
		actions = append(actions, d.pollResponse(f.I.P)...)
		return actions
	}

	d.seqErrCond = 0
	d.vr = d.mod(d.vr + 1)
	actions := d.acknowledge(int(f.I.NR), false)

	switch {
	case d.ownBusy:
		// payload discarded, already acknowledged above
	case !f.I.More && len(d.rcvBuf) == 0:
		actions = append(actions, surface(Primitive{Kind: PrimData, Op: OpIndication, Payload: f.I.Payload}))
	default:
		if len(d.rcvBuf)+len(f.I.Payload) > d.cfg.MaxF {
			d.log.Warn("reassembly buffer overflow, truncating segment")
		} else {
			d.rcvBuf = append(d.rcvBuf, f.I.Payload...)
		}
		if !f.I.More {
			msg := d.rcvBuf
			d.rcvBuf = nil
			actions = append(actions, surface(Primitive{Kind: PrimData, Op: OpIndication, Payload: msg}))
		}
	}

	actions = append(actions, d.pollResponse(f.I.P)...)
	return actions
}

// pollResponse implements receive-path step 8: a command poll gets an
// immediate F=1 supervisory reply; otherwise the datalink tries to send
// more I-frames, falling back to an F=0 RR if it has nothing to send.
func (d *Datalink) pollResponse(p bool) []Action {
	if p {
		return []Action{d.respondRRorRNR(true)}
	}
	actions := d.drainSendQueue()
	if len(actions) == 0 {
		actions = []Action{d.respondRRorRNR(false)}
	}
	return actions
}

func (d *Datalink) respondRRorRNR(final bool) Action {
	kind := codec.SRR
	if d.ownBusy {
		kind = codec.SRNR
	}
	f := codec.Frame{Kind: codec.KindS, Addr: d.respAddr(), S: codec.SFrame{Kind: kind, NR: uint8(d.vr), PF: final}}
	return transmit(f)
}

func (d *Datalink) pollCommand() Action {
	kind := codec.SRR
	if d.ownBusy {
		kind = codec.SRNR
	}
	f := codec.Frame{Kind: codec.KindS, Addr: d.cmdAddr(), S: codec.SFrame{Kind: kind, NR: uint8(d.vr), PF: true}}
	return transmit(f)
}

func (d *Datalink) handleS(f codec.Frame) []Action {
	if d.state != StateMFEst && d.state != StateTimerRecov {
		return nil
	}
	isCmd := d.cfg.Mode.isCommand(f.Addr.Command)
	nr := int(f.S.NR)

	switch f.S.Kind {
	case codec.SRR:
		actions := d.acknowledge(nr, false)
		actions = append(actions, d.handleSupervisoryPF(isCmd, f.S.PF)...)
		actions = append(actions, d.drainSendQueue()...)
		return actions
	case codec.SRNR:
		d.peerBusy = true
		actions := d.acknowledge(nr, false)
		if !isCmd && f.S.PF && d.state == StateTimerRecov {
			d.vs = nr
		}
		actions = append(actions, d.handleSupervisoryPF(isCmd, f.S.PF)...)
		return actions
	case codec.SREJ:
		actions := d.handleREJ(nr)
		actions = append(actions, d.handleSupervisoryPF(isCmd, f.S.PF)...)
		actions = append(actions, d.drainSendQueue()...)
		return actions
	default:
		return []Action{mdlError(CauseFrmUnimpl)}
	}
}

// handleSupervisoryPF implements the shared P/F handling across RR/RNR/REJ:
// a command poll (P=1) gets an immediate F=1 reply; a response final bit
// (F=1) exits TIMER_RECOV, or is itself an error outside it.
func (d *Datalink) handleSupervisoryPF(isCmd, pf bool) []Action {
	if !pf {
		return nil
	}
	if isCmd {
		return []Action{d.respondRRorRNR(true)}
	}
	if d.state == StateTimerRecov {
		return d.exitTimerRecov()
	}
	return []Action{mdlError(CauseUnsolSprvResp)}
}

func (d *Datalink) exitTimerRecov() []Action {
	d.state = StateMFEst
	d.retryCount = 0
	actions := []Action{d.stopTimer(timer.T200)}
	if d.cfg.T203 > 0 {
		actions = append(actions, d.startTimer(timer.T203))
	}
	return actions
}
