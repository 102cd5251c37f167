package datalink

import (
	"github.com/kc1fsz/lapdm/pkg/codec"
	"github.com/kc1fsz/lapdm/pkg/timer"
)

func (d *Datalink) handleTimerExpiry(k timer.Kind) []Action {
	switch k {
	case timer.T200:
		return d.handleT200Expiry()
	case timer.T203:
		return d.handleT203Expiry()
	default:
		return nil
	}
}

func (d *Datalink) handleT200Expiry() []Action {
	switch d.state {
	case StateSABMSent:
		return d.handleEstRelTimeout(true)
	case StateDISCSent:
		return d.handleEstRelTimeout(false)
	case StateMFEst:
		d.state = StateTimerRecov
		d.retryCount = 0
		return d.timerRecovRetry()
	case StateTimerRecov:
		return d.timerRecovRetry()
	default:
		return nil
	}
}

// handleEstRelTimeout implements the SABM_SENT/DISC_SENT T200-expiry
// column: retry up to N200EstRel times, then terminate to IDLE with the
// matching indication/confirm and an MDL-ERROR.
func (d *Datalink) handleEstRelTimeout(establishing bool) []Action {
	if d.retryCount >= d.cfg.N200EstRel {
		var actions []Action
		if establishing {
			actions = append(actions, surface(Primitive{Kind: PrimRel, Op: OpIndication}))
		} else {
			actions = append(actions, surface(Primitive{Kind: PrimRel, Op: OpConfirm}))
		}
		actions = append(actions, mdlError(CauseT200Expired))
		d.reset()
		d.state = StateIDLE
		return actions
	}
	d.retryCount++
	var f codec.Frame
	if establishing {
		f = codec.Frame{Kind: codec.KindU, Addr: d.cmdAddr(), U: codec.UFrame{Kind: d.sabmKind(), PF: true, Payload: d.contentionBuf}}
	} else {
		f = codec.Frame{Kind: codec.KindU, Addr: d.cmdAddr(), U: codec.UFrame{Kind: codec.UDISC, PF: true}}
	}
	return []Action{transmit(f), d.startTimer(timer.T200)}
}

// timerRecovRetry implements the TIMER_RECOV T200-expiry column (also used
// inline the moment MF_EST first enters TIMER_RECOV): retransmit the last
// unacknowledged I-frame, or poll if nothing is outstanding, until N200 is
// exhausted.
func (d *Datalink) timerRecovRetry() []Action {
	d.retryCount++
	if d.retryCount >= d.cfg.N200 {
		actions := []Action{mdlError(CauseT200Expired)}
		if d.cfg.Reestablish {
			actions = append(actions, d.startEstablishmentKeepQueue()...)
		}
		return actions
	}

	var actions []Action
	if d.mod(d.vs-d.va) > 0 {
		seq := d.mod(d.vs - 1)
		if entry, ok := d.history.Get(seq % d.history.Len()); ok {
			f := codec.Frame{
				Kind: codec.KindI,
				Addr: d.cmdAddr(),
				I:    codec.IFrame{NS: uint8(seq), NR: uint8(d.vr), P: true, More: entry.More, Payload: entry.Payload},
			}
			actions = append(actions, transmit(f))
		} else {
			actions = append(actions, d.pollCommand())
		}
	} else {
		actions = append(actions, d.pollCommand())
	}
	actions = append(actions, d.startTimer(timer.T200))
	return actions
}

func (d *Datalink) handleT203Expiry() []Action {
	if d.state != StateMFEst {
		return nil
	}
	d.state = StateTimerRecov
	d.retryCount = 0
	return []Action{d.pollCommand(), d.startTimer(timer.T200)}
}
