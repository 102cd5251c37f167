package datalink

import (
	"time"

	"github.com/kc1fsz/lapdm/pkg/codec"
	"github.com/kc1fsz/lapdm/pkg/timer"
)

// EventKind tags the primitive kinds of event the FSM's Step function
// consumes. Every external trigger -- a frame off the wire, an L3 request,
// a timer firing -- arrives as one of these, letting Step stay a pure
// function of (State, Event) -> (State, []Action).
type EventKind uint8

const (
	EventFrame     EventKind = iota // a decoded frame arrived from the peer
	EventPrimitive                  // an L3 request arrived (DL-*.req)
	EventTimer                      // a timer expired
)

// Event is the single input type Step accepts.
type Event struct {
	Kind      EventKind
	Frame     codec.Frame
	Primitive Primitive
	Timer     timer.Kind
}

// ActionKind tags what the caller must do in response to a Step call.
type ActionKind uint8

const (
	ActionTransmit  ActionKind = iota // send Frame to the peer via the codec/PHY
	ActionStartTimer                  // (re)arm Timer for Duration
	ActionStopTimer                   // disarm Timer
	ActionSurface                     // deliver Primitive to L3
)

// Action is one unit of effect the FSM's Step produced. The caller executes
// Actions in order; Step itself performs no I/O. Timer state changes are
// applied to the Datalink's own Timer fields by Step itself -- these
// Actions are a record of what happened, for logging and tests, not a
// request for the caller to separately program a timer.
type Action struct {
	Kind      ActionKind
	Frame     codec.Frame
	Timer     timer.Kind
	Duration  time.Duration
	Primitive Primitive
}
