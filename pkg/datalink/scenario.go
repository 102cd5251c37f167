package datalink

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kc1fsz/lapdm/pkg/codec"
)

// scenarioStep is one line of a scenario fixture: either side submits a
// DL-SAP request, drains whatever frames are waiting for it from the
// other side, has a raw frame injected directly (for cases spec.md §8
// crafts by hand, like a malformed N(S) or a contention SABM), or advances
// its timers -- optionally asserting a primitive any of those must surface.
type scenarioStep struct {
	Actor   string `yaml:"actor"`             // "user" or "network"
	Action  string `yaml:"action"`            // establish_request, data_request, release_request, deliver, inject_frame, elapse
	Payload string `yaml:"payload,omitempty"` // for data_request and inject_frame
	Release string `yaml:"release,omitempty"` // "normal" or "local", for release_request

	// inject_frame fields: builds a codec.Frame addressed as a command
	// from the other actor and feeds it straight to Actor.ReceiveFrame,
	// bypassing the pending-queue bounce deliver uses.
	FrameKind string `yaml:"frame_kind,omitempty"` // "I", "S", "U"
	UKind     string `yaml:"u_kind,omitempty"`     // SABM, SABME, DM, DISC, UA
	SKind     string `yaml:"s_kind,omitempty"`     // RR, RNR, REJ
	NS        int    `yaml:"ns,omitempty"`
	NR        int    `yaml:"nr,omitempty"`
	PF        bool   `yaml:"pf,omitempty"`

	// elapse fields: advances Actor's timers by the given duration.
	ElapseMillis int `yaml:"elapse_millis,omitempty"`

	ExpectPrimitiveKind string `yaml:"expect_primitive_kind,omitempty"`
	ExpectPrimitiveOp   string `yaml:"expect_primitive_op,omitempty"`
	ExpectPayload       string `yaml:"expect_payload,omitempty"`
	ExpectCause         string `yaml:"expect_cause,omitempty"`
	ExpectNone          bool   `yaml:"expect_none,omitempty"`
	ExpectTransmitCount *int   `yaml:"expect_transmit_count,omitempty"`
}

// scenario is a single end-to-end fixture, e.g. spec.md §8's S1-S6.
type scenario struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Steps       []scenarioStep    `yaml:"steps"`
	ExpectState map[string]string `yaml:"expect_state"`
}

func loadScenario(path string) (scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return scenario{}, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	var s scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return scenario{}, fmt.Errorf("scenario: parse %s: %w", path, err)
	}
	return s, nil
}

// scenarioRunner drives a scenario fixture against a live net/usr pair,
// queuing each side's outbound frames until the fixture says the other
// side should "deliver" them -- a YAML-driven restatement of the
// deliver()/transmits() bounce loop newPair's callers use by hand.
type scenarioRunner struct {
	net, usr *Datalink
	pending  map[string][]Action
}

func newScenarioRunner(net, usr *Datalink) *scenarioRunner {
	return &scenarioRunner{net: net, usr: usr, pending: map[string][]Action{}}
}

func (r *scenarioRunner) side(actor string) *Datalink {
	if actor == "user" {
		return r.usr
	}
	return r.net
}

func other(actor string) string {
	if actor == "user" {
		return "network"
	}
	return "user"
}

// run executes every step in order, returning the first error encountered
// so the caller (a table-driven test) can report it against the fixture's
// name rather than a bare line number.
func (r *scenarioRunner) run(s scenario) error {
	for i, step := range s.Steps {
		produced, err := r.step(step)
		if err != nil {
			return fmt.Errorf("scenario %q step %d (%s %s): %w", s.Name, i, step.Actor, step.Action, err)
		}
		if err := checkExpectation(step, produced); err != nil {
			return fmt.Errorf("scenario %q step %d (%s %s): %w", s.Name, i, step.Actor, step.Action, err)
		}
	}
	return nil
}

func (r *scenarioRunner) step(step scenarioStep) ([]Action, error) {
	switch step.Action {
	case "establish_request":
		actions := r.side(step.Actor).EstablishRequest(nil)
		r.pending[other(step.Actor)] = append(r.pending[other(step.Actor)], actions...)
		return actions, nil
	case "data_request":
		actions := r.side(step.Actor).DataRequest([]byte(step.Payload))
		r.pending[other(step.Actor)] = append(r.pending[other(step.Actor)], actions...)
		return actions, nil
	case "release_request":
		mode := RelNormal
		if step.Release == "local" {
			mode = RelLocal
		}
		actions := r.side(step.Actor).ReleaseRequest(mode)
		r.pending[other(step.Actor)] = append(r.pending[other(step.Actor)], actions...)
		return actions, nil
	case "deliver":
		incoming := r.pending[step.Actor]
		r.pending[step.Actor] = nil
		var produced []Action
		for _, a := range incoming {
			if a.Kind == ActionTransmit {
				produced = append(produced, r.side(step.Actor).ReceiveFrame(a.Frame)...)
			}
		}
		r.pending[other(step.Actor)] = append(r.pending[other(step.Actor)], transmitsOf(produced)...)
		return produced, nil
	case "inject_frame":
		frame, err := buildInjectedFrame(step, r.side(other(step.Actor)).cfg.Mode)
		if err != nil {
			return nil, err
		}
		produced := r.side(step.Actor).ReceiveFrame(frame)
		r.pending[other(step.Actor)] = append(r.pending[other(step.Actor)], transmitsOf(produced)...)
		return produced, nil
	case "elapse":
		produced := r.side(step.Actor).Elapse(time.Duration(step.ElapseMillis) * time.Millisecond)
		r.pending[other(step.Actor)] = append(r.pending[other(step.Actor)], transmitsOf(produced)...)
		return produced, nil
	default:
		return nil, fmt.Errorf("unknown action %q", step.Action)
	}
}

// buildInjectedFrame turns an inject_frame step into the codec.Frame it
// describes, addressed as a command sent by the opposite side (peerMode).
func buildInjectedFrame(step scenarioStep, peerMode Mode) (codec.Frame, error) {
	addr := codec.Address{SAPI: 0, Command: peerMode.commandCR()}
	switch step.FrameKind {
	case "U":
		uk, ok := uKindByName[step.UKind]
		if !ok {
			return codec.Frame{}, fmt.Errorf("inject_frame: unknown u_kind %q", step.UKind)
		}
		return codec.Frame{
			Kind: codec.KindU,
			Addr: addr,
			U:    codec.UFrame{Kind: uk, PF: step.PF, Payload: []byte(step.Payload)},
		}, nil
	case "S":
		sk, ok := sKindByName[step.SKind]
		if !ok {
			return codec.Frame{}, fmt.Errorf("inject_frame: unknown s_kind %q", step.SKind)
		}
		return codec.Frame{
			Kind: codec.KindS,
			Addr: addr,
			S:    codec.SFrame{Kind: sk, NR: uint8(step.NR), PF: step.PF},
		}, nil
	case "I":
		return codec.Frame{
			Kind: codec.KindI,
			Addr: addr,
			I:    codec.IFrame{NS: uint8(step.NS), NR: uint8(step.NR), Payload: []byte(step.Payload)},
		}, nil
	default:
		return codec.Frame{}, fmt.Errorf("inject_frame: unknown frame_kind %q", step.FrameKind)
	}
}

var uKindByName = map[string]codec.UKind{
	"SABM":  codec.USABM,
	"SABME": codec.USABME,
	"DM":    codec.UDM,
	"DISC":  codec.UDISC,
	"UA":    codec.UUA,
}

var sKindByName = map[string]codec.SKind{
	"RR":  codec.SRR,
	"RNR": codec.SRNR,
	"REJ": codec.SREJ,
}

func transmitsOf(actions []Action) []Action {
	var out []Action
	for _, a := range actions {
		if a.Kind == ActionTransmit {
			out = append(out, a)
		}
	}
	return out
}

func checkExpectation(step scenarioStep, produced []Action) error {
	if step.ExpectTransmitCount != nil {
		if got := len(transmitsOf(produced)); got != *step.ExpectTransmitCount {
			return fmt.Errorf("got %d transmitted frames, want %d", got, *step.ExpectTransmitCount)
		}
	}
	if step.ExpectNone {
		for _, a := range produced {
			if a.Kind == ActionSurface {
				return fmt.Errorf("expected no surfaced primitive, got %s.%s", a.Primitive.Kind, a.Primitive.Op)
			}
		}
		return nil
	}
	if step.ExpectPrimitiveKind == "" {
		return nil
	}
	for _, a := range produced {
		if a.Kind != ActionSurface {
			continue
		}
		opMatches := step.ExpectPrimitiveOp == "" || a.Primitive.Op.String() == step.ExpectPrimitiveOp
		if a.Primitive.Kind.String() == step.ExpectPrimitiveKind && opMatches {
			if step.ExpectPayload != "" && string(a.Primitive.Payload) != step.ExpectPayload {
				return fmt.Errorf("primitive %s.%s payload = %q, want %q",
					step.ExpectPrimitiveKind, step.ExpectPrimitiveOp, a.Primitive.Payload, step.ExpectPayload)
			}
			if step.ExpectCause != "" && a.Primitive.Cause.String() != step.ExpectCause {
				return fmt.Errorf("primitive %s.%s cause = %q, want %q",
					step.ExpectPrimitiveKind, step.ExpectPrimitiveOp, a.Primitive.Cause, step.ExpectCause)
			}
			return nil
		}
	}
	return fmt.Errorf("expected primitive %s.%s, none surfaced", step.ExpectPrimitiveKind, step.ExpectPrimitiveOp)
}

func stateName(s State) string {
	return s.String()
}
