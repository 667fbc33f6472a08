package shift

import (
	"testing"

	"github.com/mzec/jtagprog/internal/tapfsm"
)

type fakeSink struct {
	edges [][2]bool
}

func (s *fakeSink) PushEdge(tms, tdi bool) {
	s.edges = append(s.edges, [2]bool{tms, tdi})
}

// fakeCapture simulates a commit holding exactly one trailing exit edge
// (not itself stored in bits) after len(bits) data edges, matching what
// Shift always appends — so RXLen() = len(bits)+1 and CapturedHex's
// end-anchored offset resolves to 0.
type fakeCapture struct {
	bits []bool
}

func (c *fakeCapture) RXBitAt(edgeIndex int) bool {
	return c.bits[edgeIndex]
}

func (c *fakeCapture) RXLen() int {
	return len(c.bits) + 1
}

func TestDecodeEncodeNibblesRoundTrip(t *testing.T) {
	in := "1A2F"
	nibbles, err := DecodeNibbles(in)
	if err != nil {
		t.Fatalf("DecodeNibbles() = %v", err)
	}
	if got := EncodeNibbles(nibbles); got != in {
		t.Fatalf("EncodeNibbles() = %q, want %q", got, in)
	}
}

func TestDecodeNibblesBadHex(t *testing.T) {
	if _, err := DecodeNibbles("1G"); err == nil {
		t.Fatal("DecodeNibbles(\"1G\") succeeded, want BAD_SVF")
	}
}

func TestHexLen(t *testing.T) {
	cases := []struct {
		bits, want int
	}{
		{0, 0}, {1, 1}, {4, 1}, {5, 2}, {8, 2}, {638, 160},
	}
	for _, c := range cases {
		if got := HexLen(c.bits); got != c.want {
			t.Errorf("HexLen(%d) = %d, want %d", c.bits, got, c.want)
		}
	}
}

func TestShiftRejectsWrongTAPState(t *testing.T) {
	sink := &fakeSink{}
	tap := tapfsm.NewEngine(sink)
	e := NewEngine(tap, sink)
	if _, err := e.Shift(false, 4, "A"); err == nil {
		t.Fatal("Shift from Undefined succeeded, want TAP_STUCK")
	}
}

func TestShiftRejectsLengthMismatch(t *testing.T) {
	sink := &fakeSink{}
	tap := tapfsm.NewEngine(sink)
	tap.ForceState(tapfsm.DRPause)
	e := NewEngine(tap, sink)
	if _, err := e.Shift(false, 8, "A"); err == nil {
		t.Fatal("Shift with mismatched bitcount/TDI length succeeded, want BAD_SVF")
	}
}

func TestShiftPushesExpectedEdgesAndReturnsToPause(t *testing.T) {
	sink := &fakeSink{}
	tap := tapfsm.NewEngine(sink)
	tap.ForceState(tapfsm.DRPause)
	e := NewEngine(tap, sink)

	edges, err := e.Shift(false, 8, "A5")
	if err != nil {
		t.Fatalf("Shift() = %v", err)
	}
	if edges != 8 {
		t.Fatalf("edges = %d, want 8", edges)
	}
	// 2 transition edges (PAUSE->EXIT2->SHIFT) + 8 data edges + 1 (EXIT1->PAUSE).
	if len(sink.edges) != 11 {
		t.Fatalf("pushed %d edges, want 11", len(sink.edges))
	}
	if tap.Current() != tapfsm.DRPause {
		t.Fatalf("Current() = %v, want DRPause", tap.Current())
	}
	// Last data edge (the 8th, i.e. sink.edges[9]) must carry tms=true (EXIT1 transition).
	if !sink.edges[9][0] {
		t.Fatal("final TDI edge did not assert TMS to exit SHIFT")
	}
}

func TestShiftIRUsesIRPause(t *testing.T) {
	sink := &fakeSink{}
	tap := tapfsm.NewEngine(sink)
	tap.ForceState(tapfsm.IRPause)
	e := NewEngine(tap, sink)
	if _, err := e.Shift(true, 4, "F"); err != nil {
		t.Fatalf("Shift(ir=true) = %v", err)
	}
	if tap.Current() != tapfsm.IRPause {
		t.Fatalf("Current() = %v, want IRPause", tap.Current())
	}
}

func TestCapturedHexNoMask(t *testing.T) {
	// 8 bits in the order Shift pushes them (bit 0 first): want "A5".
	cap := &fakeCapture{bits: []bool{
		true, false, true, false, false, true, false, true, // bits 0..7 -> 0xA5
	}}
	got, err := CapturedHex(cap, 8, 8, "")
	if err != nil {
		t.Fatalf("CapturedHex() = %v", err)
	}
	if got != "A5" {
		t.Fatalf("CapturedHex() = %q, want %q", got, "A5")
	}
}

func TestCapturedHexWithMask(t *testing.T) {
	cap := &fakeCapture{bits: []bool{true, true, true, true}}
	got, err := CapturedHex(cap, 4, 4, "3")
	if err != nil {
		t.Fatalf("CapturedHex() = %v", err)
	}
	if got != "3" {
		t.Fatalf("CapturedHex() with mask = %q, want %q", got, "3")
	}
}

// preambleCapture simulates a commit where TAP-transition/preamble edges
// precede the shift's own data edges, plus the trailing exit edge Shift
// always pushes — the scenario the end-anchored offset exists to handle.
type preambleCapture struct {
	preamble, data []bool // data is followed by one more (don't-care) trailing edge
}

func (c *preambleCapture) RXBitAt(edgeIndex int) bool {
	all := append(append([]bool{}, c.preamble...), c.data...)
	all = append(all, true) // trailing exit edge; must never be read as a data bit
	return all[edgeIndex]
}

func (c *preambleCapture) RXLen() int {
	return len(c.preamble) + len(c.data) + 1
}

func TestCapturedHexSkipsPreambleAndTrailingExitEdge(t *testing.T) {
	cap := &preambleCapture{
		preamble: []bool{true, true, true}, // would corrupt the result if not skipped
		data:     []bool{true, false, true, false, false, true, false, true},
	}
	got, err := CapturedHex(cap, 8, 8, "")
	if err != nil {
		t.Fatalf("CapturedHex() = %v", err)
	}
	if got != "A5" {
		t.Fatalf("CapturedHex() = %q, want %q (preamble/trailing edges leaked into the result)", got, "A5")
	}
}

func TestCapturedHexMaskLengthMismatch(t *testing.T) {
	cap := &fakeCapture{bits: []bool{true, true, true, true}}
	if _, err := CapturedHex(cap, 4, 4, "33"); err == nil {
		t.Fatal("CapturedHex with mismatched mask length succeeded, want BAD_SVF")
	}
}

func TestMaskHex(t *testing.T) {
	got, err := MaskHex("FF", "0F")
	if err != nil {
		t.Fatalf("MaskHex() = %v", err)
	}
	if got != "0F" {
		t.Fatalf("MaskHex() = %q, want %q", got, "0F")
	}
}

func TestMaskHexLengthMismatch(t *testing.T) {
	if _, err := MaskHex("FF", "F"); err == nil {
		t.Fatal("MaskHex with mismatched lengths succeeded, want BAD_SVF")
	}
}

func TestCompareMaskedEqualUnderMask(t *testing.T) {
	ok, err := CompareMasked("AF", "A0", "F0")
	if err != nil {
		t.Fatalf("CompareMasked() = %v", err)
	}
	if !ok {
		t.Fatal("CompareMasked() = false, want true (differ only outside mask)")
	}
}

func TestCompareMaskedDiffersUnderMask(t *testing.T) {
	ok, err := CompareMasked("AF", "BF", "F0")
	if err != nil {
		t.Fatalf("CompareMasked() = %v", err)
	}
	if ok {
		t.Fatal("CompareMasked() = true, want false (differ within mask)")
	}
}
