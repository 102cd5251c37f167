package datalink

import (
	"github.com/kc1fsz/lapdm/internal/history"
	"github.com/kc1fsz/lapdm/pkg/codec"
	"github.com/kc1fsz/lapdm/pkg/timer"
)

// drainSendQueue implements the re-entrant send loop (lapd_send_i): it keeps
// emitting I-frames until the window is full, the peer is busy, or there is
// nothing left to send.
func (d *Datalink) drainSendQueue() []Action {
	var actions []Action
	for {
		if d.peerBusy || d.state == StateTimerRecov {
			return actions
		}
		if d.windowFull() {
			return actions
		}

		h := d.mod(d.vs) % d.history.Len()

		var payload []byte
		var more bool
		if entry, ok := d.history.Get(h); ok {
			// Slot already holds a frame for this V(S): this is the
			// retransmit-from-N(R) case after a REJ or recovery reset,
			// not fresh segmentation.
			payload, more = entry.Payload, entry.More
		} else {
			if len(d.sendBuf) == 0 {
				if len(d.sendQueue) == 0 {
					return actions
				}
				d.sendBuf = d.sendQueue[0]
				d.sendQueue = d.sendQueue[1:]
				d.sendOut = 0
			}
			remaining := len(d.sendBuf) - d.sendOut
			n := d.lctx.N201 - 3
			if n < 1 {
				n = 1
			}
			if remaining < n {
				n = remaining
			}
			payload = append([]byte{}, d.sendBuf[d.sendOut:d.sendOut+n]...)
			more = d.sendOut+n < len(d.sendBuf)
			d.sendOut += n
			if !more {
				d.sendBuf = nil
				d.sendOut = 0
			}
			d.history.Put(h, history.Entry{Payload: payload, More: more})
		}

		f := codec.Frame{
			Kind: codec.KindI,
			Addr: d.cmdAddr(),
			I:    codec.IFrame{NS: uint8(d.vs), NR: uint8(d.vr), Payload: payload, More: more},
		}
		actions = append(actions, transmit(f))

		d.vs = d.mod(d.vs + 1)
		if !d.t200.Running() {
			actions = append(actions, d.startTimer(timer.T200))
		}
		actions = append(actions, d.stopTimer(timer.T203))
	}
}
