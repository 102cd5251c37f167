package datalink

import "github.com/kc1fsz/lapdm/pkg/timer"

// acknowledge runs the acknowledgement engine against a received N(R),
// shared by I-frame and S-frame handling. isREJ marks that the N(R) arrived
// on a REJ frame, which has slightly different T200 semantics.
func (d *Datalink) acknowledge(nr int, isREJ bool) []Action {
	var actions []Action

	for i := d.va; i != nr; i = d.mod(i + 1) {
		d.history.Clear(d.mod(i) % d.history.Len())
	}

	ackedSomething := d.mod(nr-d.va) > 0
	stopT200 := d.state != StateTimerRecov && ((!isREJ && ackedSomething) || (isREJ && nr == d.va))
	if stopT200 {
		actions = append(actions, d.stopTimer(timer.T200))
	}

	if d.mod(nr-d.va) > d.mod(d.vs-d.va) {
		actions = append(actions, mdlError(CauseSeqErr))
	}

	d.va = nr

	if stopT200 && !isREJ && d.mod(d.vs-d.va) > 0 {
		actions = append(actions, d.startTimer(timer.T200))
	}

	if d.state == StateMFEst && !d.t200.Running() && d.cfg.T203 > 0 {
		actions = append(actions, d.restartTimer(timer.T203))
	}

	return actions
}

// handleREJ applies REJ's forced-retransmit semantics: V(S) = V(A) = N(R),
// clearing whatever was in flight past that point so drainSendQueue
// re-segments/re-emits starting there.
func (d *Datalink) handleREJ(nr int) []Action {
	d.peerBusy = false
	var actions []Action
	actions = append(actions, d.acknowledge(nr, true)...)
	d.vs = nr
	d.va = nr
	actions = append(actions, d.stopTimer(timer.T200))
	return actions
}
