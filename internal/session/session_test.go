package session

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/mzec/jtagprog/internal/cable"
	"github.com/mzec/jtagprog/internal/tapfsm"
	"github.com/mzec/jtagprog/internal/txrx"
)

type fakeCable struct {
	opened    bool
	closed    bool
	modes     []cable.Mode
	ledBits   []byte
	written   bytes.Buffer
	readFill  byte // byte value returned by every Read
}

func (f *fakeCable) Open() error  { f.opened = true; return nil }
func (f *fakeCable) Close() error { f.closed = true; return nil }
func (f *fakeCable) SetMode(mode cable.Mode, ledBit byte) error {
	f.modes = append(f.modes, mode)
	f.ledBits = append(f.ledBits, ledBit)
	return nil
}
func (f *fakeCable) Write(b []byte) error {
	f.written.Write(b)
	return nil
}
func (f *fakeCable) Read(b []byte) error {
	for i := range b {
		b[i] = f.readFill
	}
	return nil
}
func (f *fakeCable) SetLatency(ms int) error { return nil }
func (f *fakeCable) SetBaud(baud int) error  { return nil }
func (f *fakeCable) Pins() txrx.Pins {
	return txrx.Pins{TMS: cable.USBTMS, TDI: cable.USBTDI, TCK: cable.USBTCK, TDO: cable.USBTDO}
}
func (f *fakeCable) SyncChunk() int { return txrx.SyncChunkUnix }

var _ cable.Cable = &fakeCable{}

func TestNewOpensCableInAsyncMode(t *testing.T) {
	fc := &fakeCable{}
	s, err := New(fc, false, true)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if !fc.opened {
		t.Fatal("New() did not open the cable")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if !fc.closed {
		t.Fatal("Close() did not close the cable")
	}
}

func TestSetSyncNoopWhenAlreadyInMode(t *testing.T) {
	fc := &fakeCable{}
	s, err := New(fc, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetSync(false); err != nil {
		t.Fatalf("SetSync(false) = %v", err)
	}
	if len(fc.modes) != 0 {
		t.Fatalf("SetSync(false) called cable.SetMode %d times, want 0 (already ASYNC)", len(fc.modes))
	}
}

func TestSetSyncSwitchesMode(t *testing.T) {
	fc := &fakeCable{}
	s, err := New(fc, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetSync(true); err != nil {
		t.Fatalf("SetSync(true) = %v", err)
	}
	if len(fc.modes) != 1 || fc.modes[0] != cable.ModeSync {
		t.Fatalf("modes = %v, want [ModeSync]", fc.modes)
	}
}

func TestShiftDRBareNoTDOStagesWithoutCableWrite(t *testing.T) {
	fc := &fakeCable{}
	s, err := New(fc, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.TAP().SetState(tapfsm.Reset); err != nil {
		t.Fatal(err)
	}
	if err := s.TAP().SetState(tapfsm.DRPause); err != nil {
		t.Fatal(err)
	}
	captured, err := s.ShiftDR(8, "FF", "", "")
	if err != nil {
		t.Fatalf("ShiftDR() = %v", err)
	}
	if captured != "" {
		t.Fatalf("captured = %q, want empty (bare shift)", captured)
	}
	if fc.written.Len() != 0 {
		t.Fatalf("cable saw %d bytes written, want 0 (buffer not yet half-full)", fc.written.Len())
	}
}

func TestShiftDRSyncCompareSuccess(t *testing.T) {
	fc := &fakeCable{readFill: cable.USBTDO}
	s, err := New(fc, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetSync(true); err != nil {
		t.Fatal(err)
	}
	if err := s.TAP().SetState(tapfsm.Reset); err != nil {
		t.Fatal(err)
	}
	if err := s.TAP().SetState(tapfsm.DRPause); err != nil {
		t.Fatal(err)
	}
	captured, err := s.ShiftDR(8, "00", "FF", "")
	if err != nil {
		t.Fatalf("ShiftDR() = %v", err)
	}
	if captured != "FF" {
		t.Fatalf("captured = %q, want FF", captured)
	}
}

// ShiftDR only captures; COMPARE_FAIL against tdo is raised by the SVF
// interpreter, so a mismatched readback comes back as the captured value.
func TestShiftDRSyncReturnsMismatchedCapture(t *testing.T) {
	fc := &fakeCable{readFill: 0}
	s, err := New(fc, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetSync(true); err != nil {
		t.Fatal(err)
	}
	if err := s.TAP().SetState(tapfsm.Reset); err != nil {
		t.Fatal(err)
	}
	if err := s.TAP().SetState(tapfsm.DRPause); err != nil {
		t.Fatal(err)
	}
	captured, err := s.ShiftDR(8, "00", "FF", "")
	if err != nil {
		t.Fatalf("ShiftDR() = %v", err)
	}
	if captured != "00" {
		t.Fatalf("captured = %q, want 00 (all-zero readback)", captured)
	}
}

func TestShiftDRTDOLengthMismatchIsBadSVF(t *testing.T) {
	fc := &fakeCable{readFill: cable.USBTDO}
	s, err := New(fc, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetSync(true); err != nil {
		t.Fatal(err)
	}
	if err := s.TAP().SetState(tapfsm.Reset); err != nil {
		t.Fatal(err)
	}
	if err := s.TAP().SetState(tapfsm.DRPause); err != nil {
		t.Fatal(err)
	}
	// 8 bits wants a 2-char TDO; "F" is only 1.
	if _, err := s.ShiftDR(8, "FF", "F", ""); err == nil {
		t.Fatal("ShiftDR() with short TDO succeeded, want BAD_SVF")
	}
	if fc.written.Len() != 0 {
		t.Fatalf("cable saw %d bytes written, want 0 (rejected before any edge was pushed)", fc.written.Len())
	}
}

func TestPadClocksZeroRepeatIsNoop(t *testing.T) {
	fc := &fakeCable{}
	s, err := New(fc, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PadClocks(0); err != nil {
		t.Fatalf("PadClocks(0) = %v", err)
	}
}

func TestPadClocksWithNoPriorEdgeErrors(t *testing.T) {
	fc := &fakeCable{}
	s, err := New(fc, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PadClocks(5); err == nil {
		t.Fatal("PadClocks() with no staged edge succeeded, want BAD_SVF")
	}
}

func TestDebugfGatedByFlag(t *testing.T) {
	fc := &fakeCable{}
	s, err := New(fc, true, true)
	if err != nil {
		t.Fatal(err)
	}
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	orig := os.Stdout
	os.Stdout = w
	s.Debugf("hello %d", 42)
	w.Close()
	os.Stdout = orig
	var buf bytes.Buffer
	io.Copy(&buf, r)
	if got := buf.String(); got != "hello 42\n" {
		t.Fatalf("Debugf output = %q, want %q", got, "hello 42\n")
	}
}

func TestDebugfSuppressedWhenDisabled(t *testing.T) {
	fc := &fakeCable{}
	s, err := New(fc, false, true)
	if err != nil {
		t.Fatal(err)
	}
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	orig := os.Stdout
	os.Stdout = w
	s.Debugf("should not appear")
	w.Close()
	os.Stdout = orig
	var buf bytes.Buffer
	io.Copy(&buf, r)
	if buf.Len() != 0 {
		t.Fatalf("Debugf wrote %q with debug disabled, want nothing", buf.String())
	}
}
