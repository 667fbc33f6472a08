// Package session bundles the mutable state ujprog.c kept in file-scope
// globals (cur_s, txbuf/txpos, port_mode, led_state, progress_perc, ...)
// into one owned value: callers pass a *Session around instead of
// reaching into package state.
package session

import (
	"fmt"
	"time"

	"github.com/mzec/jtagprog/internal/blink"
	"github.com/mzec/jtagprog/internal/cable"
	"github.com/mzec/jtagprog/internal/jtagerr"
	"github.com/mzec/jtagprog/internal/shift"
	"github.com/mzec/jtagprog/internal/svf"
	"github.com/mzec/jtagprog/internal/tapfsm"
	"github.com/mzec/jtagprog/internal/txrx"

	"periph.io/x/periph/conn/gpio"
)

// Session owns one cable, its TX/RX buffer, the TAP engine driving it, and
// the activity indicator, and implements svf.Session so the interpreter
// can drive a JTAG run without any package-level state.
type Session struct {
	cable cable.Cable
	buf   *txrx.Buffer
	tap   *tapfsm.Engine
	sh    *shift.Engine
	led   *blink.Indicator
	ledOn bool

	mode   cable.Mode
	debug  bool
	ledPin *cable.LEDPin
}

// New opens c (USB or parallel), wires up the TAP/shift/buffer stack, and
// returns a ready Session in ASYNC mode. debug enables Debugf output;
// quiet suppresses the progress indicator (-s).
func New(c cable.Cable, debug, quiet bool) (*Session, error) {
	if err := c.Open(); err != nil {
		return nil, err
	}
	buf := txrx.NewBuffer(c.Pins(), c.SyncChunk())
	s := &Session{
		cable: c,
		buf:   buf,
		led:   blink.New(quiet),
		mode:  cable.ModeAsync,
		debug: debug,
	}
	s.tap = tapfsm.NewEngine(buf)
	s.sh = shift.NewEngine(s.tap, buf)
	s.ledPin = cable.NewLEDPin(c, s.mode)
	return s, nil
}

// Close releases the underlying cable.
func (s *Session) Close() error {
	return s.cable.Close()
}

// TAP returns the TAP-state engine driving this session's cable.
func (s *Session) TAP() *tapfsm.Engine {
	return s.tap
}

// SetSync switches the cable's bit-bang mode, a no-op if already in the
// requested mode: it flushes any staged edges first so the mode change
// never reorders TX bytes.
func (s *Session) SetSync(sync bool) error {
	want := cable.ModeAsync
	if sync {
		want = cable.ModeSync
	}
	if s.mode == want {
		return nil
	}
	if err := s.Commit(true); err != nil {
		return err
	}
	// Same active-low mapping as LEDPin.Out, so the LED keeps its state.
	var ledBit byte
	if !s.ledOn {
		ledBit = cable.USBLED
	}
	if err := s.cable.SetMode(want, ledBit); err != nil {
		return err
	}
	s.mode = want
	s.ledPin.SetMode(want)
	return nil
}

// ShiftDR shifts bits TDI bits through the data register and, if tdo is
// non-empty, commits and returns the captured value (masked by mask, if
// any). It does not compare that value with tdo; the caller does. The TAP
// must already be in DRPause.
func (s *Session) ShiftDR(bits int, tdi, tdo, mask string) (string, error) {
	return s.shift(false, bits, tdi, tdo, mask)
}

// ShiftIR shifts bits TDI bits through the instruction register. The TAP
// must already be in IRPause.
func (s *Session) ShiftIR(bits int, tdi, tdo, mask string) (string, error) {
	return s.shift(true, bits, tdi, tdo, mask)
}

func (s *Session) shift(ir bool, bits int, tdi, tdo, mask string) (string, error) {
	if tdo != "" && len(tdo) != shift.HexLen(bits) {
		return "", jtagerr.New(jtagerr.BadSVF, "TDO length does not match bit count")
	}
	edges, err := s.sh.Shift(ir, bits, tdi)
	if err != nil {
		return "", err
	}
	if tdo == "" {
		return "", s.Commit(false)
	}
	if err := s.Commit(true); err != nil {
		return "", err
	}
	captured, err := shift.CapturedHex(s.buf, bits, edges, mask)
	if err != nil {
		return "", err
	}
	return captured, nil
}

// Commit flushes any staged TX edges to the cable, servicing the LED
// blink schedule in the process.
func (s *Session) Commit(force bool) error {
	if !s.buf.ShouldCommit(s.mode, force) {
		return nil
	}
	txrxMode := txrx.ModeAsync
	if s.mode == cable.ModeSync {
		txrxMode = txrx.ModeSync
	}
	if err := s.buf.Commit(s.cable, txrxMode, nowMs()); err != nil {
		return err
	}
	if s.buf.BlinkPending() {
		ledOn, blinked := s.led.Tick(time.Now())
		if blinked {
			s.ledOn = ledOn
			if err := s.ledPin.Out(gpio.Level(ledOn)); err != nil {
				return jtagerr.Wrap(jtagerr.CableIO, "LED toggle", err)
			}
		}
	}
	return nil
}

// PadClocks pushes repeat additional IDLE-state clock edges, implementing
// RUNTEST's TCK/SEC padding.
func (s *Session) PadClocks(repeat int) error {
	if repeat <= 0 {
		return nil
	}
	return s.buf.RepeatLastEdge(repeat, func() error { return s.Commit(true) })
}

// Debugf prints a line iff debug output (-d) was requested.
func (s *Session) Debugf(format string, args ...interface{}) {
	if !s.debug {
		return
	}
	fmt.Printf(format+"\n", args...)
}

// SetProgress records the interpreter's completion percentage for the
// activity indicator.
func (s *Session) SetProgress(percent int) {
	s.led.SetProgress(percent)
}

// Finish prints the activity indicator's final "100% done" line.
func (s *Session) Finish() {
	s.led.Finish()
}

func nowMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

var _ svf.Session = (*Session)(nil)
