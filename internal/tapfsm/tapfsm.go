// Package tapfsm implements the 16-state JTAG TAP graph and computes the
// TMS sequence needed to move from the current state to any reachable
// target, the way ujprog.c's set_state() does.
package tapfsm

import "github.com/mzec/jtagprog/internal/jtagerr"

// State enumerates the standard JTAG TAP controller states, plus the two
// sentinels used before the first reset and for unrecognised state names.
type State int

const (
	Reset State = iota
	Idle
	DRSelect
	DRCapture
	DRShift
	DRExit1
	DRPause
	DRExit2
	DRUpdate
	IRSelect
	IRCapture
	IRShift
	IRExit1
	IRPause
	IRExit2
	IRUpdate
	Undefined
	Unsupported
)

var stateNames = [...]string{
	Reset: "RESET", Idle: "IDLE",
	DRSelect: "DRSELECT", DRCapture: "DRCAPTURE", DRShift: "DRSHIFT",
	DRExit1: "DREXIT1", DRPause: "DRPAUSE", DRExit2: "DREXIT2", DRUpdate: "DRUPDATE",
	IRSelect: "IRSELECT", IRCapture: "IRCAPTURE", IRShift: "IRSHIFT",
	IRExit1: "IREXIT1", IRPause: "IRPAUSE", IRExit2: "IREXIT2", IRUpdate: "IRUPDATE",
	Undefined: "UNDEFINED", Unsupported: "UNSUPPORTED",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// StateByName looks up a State from its SVF/ujprog name. It returns
// Unsupported for anything it doesn't recognise.
func StateByName(name string) State {
	for i, n := range stateNames {
		if n == name {
			return State(i)
		}
	}
	return Unsupported
}

// Pusher is the single primitive the TAP engine needs from the I/O layer:
// push one TMS/TDI edge pair (txrx.Buffer's PushEdge). tdi is always false for pure
// state-navigation edges.
type Pusher interface {
	PushEdge(tms, tdi bool)
}

// Engine tracks the TAP's current state and drives transitions.
type Engine struct {
	cur State
	out Pusher
}

// NewEngine returns an Engine in the Undefined state, writing edges to out.
func NewEngine(out Pusher) *Engine {
	return &Engine{cur: Undefined, out: out}
}

// Current returns the TAP's last-known state.
func (e *Engine) Current() State {
	return e.cur
}

// ForceState records tgt as the current state without emitting any edges.
// It is used by the shift engine, which drives its own TMS sequence
// through *SHIFT and back to *PAUSE directly rather than going through
// SetState's waypoint table.
func (e *Engine) ForceState(tgt State) {
	e.cur = tgt
}

// SetState drives the TAP from its current state to tgt, recursing through
// named waypoints. It returns a TAPStuck error for any transition it does
// not recognise, matching ujprog.c's fatal "Don't know how to proceed"
// behavior.
func (e *Engine) SetState(tgt State) error {
	switch tgt {
	case Reset:
		for i := 0; i < 5; i++ {
			e.out.PushEdge(true, false)
		}

	case Idle:
		switch e.cur {
		case Reset, DRUpdate, IRUpdate, Idle:
			e.out.PushEdge(false, false)
		case Undefined:
			if err := e.SetState(Reset); err != nil {
				return err
			}
			return e.SetState(Idle)
		case DRPause:
			if err := e.viaPauseExit(DRExit2, DRUpdate); err != nil {
				return err
			}
			return e.SetState(Idle)
		case IRPause:
			if err := e.viaPauseExit(IRExit2, IRUpdate); err != nil {
				return err
			}
			return e.SetState(Idle)
		default:
			return e.stuck(tgt)
		}

	case DRSelect:
		switch e.cur {
		case Idle, DRUpdate, IRUpdate:
			e.out.PushEdge(true, false)
		default:
			return e.stuck(tgt)
		}

	case DRCapture:
		switch e.cur {
		case DRSelect:
			e.out.PushEdge(false, false)
		case Idle:
			return e.chain(DRSelect, DRCapture)
		case IRPause:
			return e.chain(Idle, DRSelect, DRCapture)
		default:
			return e.stuck(tgt)
		}

	case DRExit1:
		switch e.cur {
		case DRCapture:
			e.out.PushEdge(true, false)
		default:
			return e.stuck(tgt)
		}

	case DRPause:
		switch e.cur {
		case DRExit1:
			e.out.PushEdge(false, false)
		case Idle:
			return e.chain(DRSelect, DRCapture, DRExit1, DRPause)
		case Reset:
			return e.chain(Idle, DRPause)
		case IRPause:
			return e.chain(IRExit2, IRUpdate, DRSelect, DRCapture, DRExit1, DRPause)
		case DRPause:
			return e.chain(DRExit2, DRUpdate, DRSelect, DRCapture, DRExit1, DRPause)
		default:
			return e.stuck(tgt)
		}

	case DRExit2:
		switch e.cur {
		case DRPause:
			e.out.PushEdge(true, false)
		default:
			return e.stuck(tgt)
		}

	case DRUpdate:
		switch e.cur {
		case DRExit2:
			e.out.PushEdge(true, false)
		default:
			return e.stuck(tgt)
		}

	case IRSelect:
		switch e.cur {
		case DRSelect:
			e.out.PushEdge(true, false)
		default:
			return e.stuck(tgt)
		}

	case IRCapture:
		switch e.cur {
		case IRSelect:
			e.out.PushEdge(false, false)
		case Idle:
			return e.chain(DRSelect, IRSelect, IRCapture)
		case DRPause:
			return e.chain(DRExit2, DRUpdate, DRSelect, IRSelect, IRCapture)
		default:
			return e.stuck(tgt)
		}

	case IRExit1:
		switch e.cur {
		case IRCapture:
			e.out.PushEdge(true, false)
		default:
			return e.stuck(tgt)
		}

	case IRPause:
		switch e.cur {
		case IRExit1:
			e.out.PushEdge(false, false)
		case Idle:
			return e.chain(DRSelect, IRSelect, IRCapture, IRExit1, IRPause)
		case Reset:
			return e.chain(Idle, IRPause)
		case DRPause:
			return e.chain(DRExit2, DRUpdate, DRSelect, IRSelect, IRCapture, IRExit1, IRPause)
		case IRPause:
			return e.chain(IRExit2, IRUpdate, DRSelect, IRSelect, IRCapture, IRExit1, IRPause)
		default:
			return e.stuck(tgt)
		}

	case IRExit2:
		switch e.cur {
		case IRPause:
			e.out.PushEdge(true, false)
		default:
			return e.stuck(tgt)
		}

	case IRUpdate:
		switch e.cur {
		case IRExit2:
			e.out.PushEdge(true, false)
		default:
			return e.stuck(tgt)
		}

	default:
		return e.stuck(tgt)
	}

	e.cur = tgt
	return nil
}

// viaPauseExit drives the *EXIT2 -> *UPDATE leg shared by the two *PAUSE
// -> IDLE paths, via the single-edge cases above.
func (e *Engine) viaPauseExit(exit2, update State) error {
	return e.chain(exit2, update)
}

// chain walks through a fixed sequence of intermediate SetState calls,
// mirroring ujprog.c's nested set_state() recursion.
func (e *Engine) chain(states ...State) error {
	for _, s := range states {
		if err := e.SetState(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) stuck(tgt State) error {
	return jtagerr.New(jtagerr.TAPStuck, "don't know how to proceed: %s -> %s", e.cur, tgt)
}
