// Package svf implements the SVF interpreter: a line-joining tokenizer
// (tokenizer.go) plus the SDR/SIR/STATE/RUNTEST/HDR/HIR/TDR/TIR/ENDDR/
// ENDIR/FREQUENCY dispatch table.
package svf

import (
	"strconv"
	"strings"

	"github.com/mzec/jtagprog/internal/jtagerr"
	"github.com/mzec/jtagprog/internal/shift"
	"github.com/mzec/jtagprog/internal/tapfsm"
)

// USBBauds is the cable clock rate used by RUNTEST's SEC-to-clocks
// conversion.
const USBBauds = 1000000

// Session is everything the interpreter needs from the session/cable
// layer. internal/session.Session implements it; keeping it as an
// interface here (rather than importing internal/session) avoids an
// import cycle, since internal/session imports this package.
type Session interface {
	TAP() *tapfsm.Engine
	SetSync(sync bool) error
	ShiftDR(bits int, tdi, tdo, mask string) (string, error)
	ShiftIR(bits int, tdi, tdo, mask string) (string, error)
	Commit(force bool) error
	PadClocks(repeat int) error
	Debugf(format string, args ...interface{})
	SetProgress(percent int)
}

// Interpreter executes tokenized SVF statements against a Session. Its
// lastSDR field records whether the previous SDR ran in ASYNC or SYNC,
// mirroring ujprog.c's static last_sdr; it is not consulted, since
// Session.SetSync already skips a mode change to the current mode.
type Interpreter struct {
	sess    Session
	lastSDR int // -1 unknown, 0 async, 1 sync
}

// NewInterpreter returns an Interpreter bound to sess.
func NewInterpreter(sess Session) *Interpreter {
	return &Interpreter{sess: sess, lastSDR: -1}
}

// Run tokenizes and executes every statement in lines in order, aborting
// on the first error: every error aborts the current file/program
// immediately.
func (in *Interpreter) Run(lines []string) error {
	stmts, err := Tokenize(lines)
	if err != nil {
		return err
	}
	total := len(stmts)
	// Percent complete is tracked per statement rather than per raw input
	// line (ujprog.c's progress_perc = lno*1005/(lines_tot*10)); since a
	// joined multi-line statement only ever completes once, the two track
	// closely enough for a progress indicator.
	for i, st := range stmts {
		in.sess.Debugf("%d: %s", st.Line, strings.Join(st.Tokens, " "))
		if total > 0 {
			in.sess.SetProgress((i + 1) * 100 / total)
		}
		if err := in.exec(st.Tokens); err != nil {
			return jtagerr.Wrap(kindOf(err), "line "+strconv.Itoa(st.Line), err)
		}
	}
	return in.sess.Commit(true)
}

func kindOf(err error) jtagerr.Kind {
	if k, ok := jtagerr.KindOf(err); ok {
		return k
	}
	return jtagerr.BadSVF
}

func (in *Interpreter) exec(tok []string) error {
	switch tok[0] {
	case "SDR", "SIR":
		return in.execShift(tok)
	case "STATE":
		if len(tok) != 2 {
			return jtagerr.New(jtagerr.EInval, "STATE requires exactly one argument")
		}
		st := tapfsm.StateByName(tok[1])
		if st == tapfsm.Unsupported {
			return jtagerr.New(jtagerr.EInval, "unknown TAP state %q", tok[1])
		}
		if err := in.sess.TAP().SetState(st); err != nil {
			return err
		}
		return in.sess.Commit(false)
	case "RUNTEST":
		return in.execRuntest(tok)
	case "HDR", "HIR", "TDR", "TIR":
		if len(tok) != 2 || tok[1] != "0" {
			return jtagerr.New(jtagerr.EInval, "%s only supports a value of 0", tok[0])
		}
		return nil
	case "ENDDR":
		if len(tok) != 2 || tok[1] != "DRPAUSE" {
			return jtagerr.New(jtagerr.EInval, "ENDDR only supports DRPAUSE")
		}
		return nil
	case "ENDIR":
		if len(tok) != 2 || tok[1] != "IRPAUSE" {
			return jtagerr.New(jtagerr.EInval, "ENDIR only supports IRPAUSE")
		}
		return nil
	case "FREQUENCY":
		// Accepted and silently ignored.
		return nil
	default:
		return jtagerr.New(jtagerr.EOpNotSupp, "unsupported SVF keyword %q", tok[0])
	}
}

func (in *Interpreter) execShift(tok []string) error {
	ir := tok[0] == "SIR"

	var bits int
	var tdi, tdo, mask string
	switch len(tok) {
	case 4:
		var err error
		bits, err = strconv.Atoi(tok[1])
		if err != nil {
			return jtagerr.New(jtagerr.BadSVF, "bad bit count %q", tok[1])
		}
		tdi = tok[3]
		// SetSync is a no-op when the cable is already in the requested
		// mode, so the "last mode" memo above is free: this call only
		// does real work on the first ASYNC shift
		// after a SYNC one.
		if err := in.sess.SetSync(false); err != nil {
			return err
		}
		if !ir {
			in.lastSDR = 0
		}
	case 6, 8:
		var err error
		bits, err = strconv.Atoi(tok[1])
		if err != nil {
			return jtagerr.New(jtagerr.BadSVF, "bad bit count %q", tok[1])
		}
		tdi = tok[3]
		tdo = tok[5]
		if len(tok) == 8 {
			mask = tok[7]
		}
		if err := in.sess.SetSync(true); err != nil {
			return err
		}
		if !ir {
			in.lastSDR = 1
		}
	default:
		return jtagerr.New(jtagerr.BadSVF, "%s: unexpected token count %d", tok[0], len(tok))
	}

	var captured string
	var err error
	if ir {
		if errState := in.sess.TAP().SetState(tapfsm.IRPause); errState != nil {
			return errState
		}
		captured, err = in.sess.ShiftIR(bits, tdi, tdo, mask)
	} else {
		if errState := in.sess.TAP().SetState(tapfsm.DRPause); errState != nil {
			return errState
		}
		captured, err = in.sess.ShiftDR(bits, tdi, tdo, mask)
	}
	if err != nil {
		return err
	}

	// captured already has mask applied; apply it to the expected value too.
	expected := tdo
	if tdo != "" && mask != "" {
		if expected, err = shift.MaskHex(tdo, mask); err != nil {
			return err
		}
	}
	if tdo != "" && captured != expected {
		if mask != "" {
			return jtagerr.New(jtagerr.CompareFail, "TDO: %s Expected: %s mask: %s", captured, tdo, mask)
		}
		return jtagerr.New(jtagerr.CompareFail, "TDO: %s Expected: %s", captured, tdo)
	}
	return nil
}

func (in *Interpreter) execRuntest(tok []string) error {
	if len(tok) < 4 {
		return jtagerr.New(jtagerr.BadSVF, "RUNTEST: too few tokens")
	}
	target := tok[1]

	repeat := 1
	delayMs := 0
	for i := 2; i+1 < len(tok); i += 2 {
		val, unit := tok[i], tok[i+1]
		switch unit {
		case "TCK":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 || n > 1000 {
				return jtagerr.New(jtagerr.BadSVF, "RUNTEST: bad TCK count %q", val)
			}
			repeat = n
		case "SEC":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return jtagerr.New(jtagerr.BadSVF, "RUNTEST: bad SEC value %q", val)
			}
			ms := int(f*1000 + 0.0005*1000)
			if ms < 1 || ms > 120000 {
				return jtagerr.New(jtagerr.BadSVF, "RUNTEST: SEC value out of range %q", val)
			}
			if ms > 3000 {
				ms = 3000 // silently reduce insanely long waits
			}
			delayMs = ms
		default:
			return jtagerr.New(jtagerr.BadSVF, "RUNTEST: unexpected token %q", unit)
		}
	}

	st := tapfsm.StateByName(target)
	if st == tapfsm.Unsupported {
		return jtagerr.New(jtagerr.EInval, "RUNTEST: unknown state %q", target)
	}
	if err := in.sess.TAP().SetState(st); err != nil {
		return err
	}

	clocksForDelay := delayMs * (USBBauds / 2000)
	if clocksForDelay > repeat {
		repeat = clocksForDelay
	}
	return in.sess.PadClocks(repeat)
}
