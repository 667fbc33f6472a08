// Package shift implements the SDR/SIR shift engine: it drives a bitstream
// through the SHIFT state, captures TDO where the cable is in SYNC mode,
// and compares it against an expected value under an optional mask.
package shift

import (
	"strings"

	"github.com/mzec/jtagprog/internal/jtagerr"
	"github.com/mzec/jtagprog/internal/tapfsm"
)

// Pusher is the edge sink the engine drives (satisfied by *txrx.Buffer).
type Pusher interface {
	PushEdge(tms, tdi bool)
}

// Capture is the edge source used to read back TDO bits once a shift has
// been committed (satisfied by *txrx.Buffer). RXBitAt is keyed by an
// absolute edge index from the start of the most recent commit; RXLen
// reports how many edges that commit captured in total, letting
// CapturedHex anchor the data bits to the END of the commit rather than
// the start, since Shift's own PAUSE->EXIT2->SHIFT preamble (and any
// earlier, still-uncommitted TAP transition) may precede them.
type Capture interface {
	RXBitAt(edgeIndex int) bool
	RXLen() int
}

// DecodeNibbles converts an uppercase hex-ASCII string into its per-nibble
// byte values, returning BAD_SVF for any non-hex byte. Used for TDI decode
// and for decoding masks.
func DecodeNibbles(s string) ([]byte, error) {
	out := make([]byte, len(s))
	for i, c := range []byte(s) {
		v, err := decodeNibble(c)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// EncodeNibbles renders nibble values back into an uppercase hex string
// with one character per nibble.
func EncodeNibbles(nibbles []byte) string {
	var sb strings.Builder
	for _, v := range nibbles {
		if v < 10 {
			sb.WriteByte('0' + v)
		} else {
			sb.WriteByte('A' + v - 10)
		}
	}
	return sb.String()
}

func decodeNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, jtagerr.New(jtagerr.BadSVF, "TDI data not in hex format: %q", c)
	}
}

// HexLen returns the hex-ASCII length for a given bit count: ceil(bits/4).
func HexLen(bits int) int {
	return (bits + 3) / 4
}

// Result is what a completed SDR/SIR yields back to the caller.
type Result struct {
	// Captured is the hex-ASCII string read back from TDO (equal to tdi's
	// length), valid only when the engine ran in SYNC mode.
	Captured string
}

// Engine drives one SDR or SIR operation's bitstream through TMS/TDI,
// mirroring ujprog.c's send_generic().
type Engine struct {
	tap *tapfsm.Engine
	out Pusher
}

// NewEngine returns a shift Engine bound to the given TAP engine and edge
// sink.
func NewEngine(tap *tapfsm.Engine, out Pusher) *Engine {
	return &Engine{tap: tap, out: out}
}

// irTarget is true for SIR (IR path), false for SDR (DR path).
func (e *Engine) shiftState(irTarget bool) (pauseState, shiftState, exitState tapfsm.State) {
	if irTarget {
		return tapfsm.IRPause, tapfsm.IRShift, tapfsm.IRExit1
	}
	return tapfsm.DRPause, tapfsm.DRShift, tapfsm.DRExit1
}

// Shift pushes bits TDI bits (hex-ASCII, scanned least-significant nibble
// first, least-significant bit of each nibble first) through the DR or IR
// path and returns the number of TDI edges pushed
// (the caller uses this to index into the capture once committed). The
// TAP must already be in the matching *PAUSE state on entry.
func (e *Engine) Shift(ir bool, bits int, tdiHex string) (int, error) {
	pause, _, _ := e.shiftState(ir)
	if e.tap.Current() != pause {
		return 0, jtagerr.New(jtagerr.TAPStuck, "must be in %s on entry to shift", pause)
	}
	if len(tdiHex) != HexLen(bits) {
		return 0, jtagerr.New(jtagerr.BadSVF, "bitcount and TDI data length do not match")
	}

	// From *PAUSE to *EXIT2.
	e.out.PushEdge(true, false)
	// From *EXIT2 to *SHIFT.
	e.out.PushEdge(false, false)

	nibbles, err := DecodeNibbles(tdiHex)
	if err != nil {
		return 0, err
	}

	edges := 0
	remaining := bits
	for i := len(nibbles) - 1; i >= 0 && remaining > 0; i-- {
		v := nibbles[i]
		for bit := 0; bit < 4 && remaining > 0; bit++ {
			tdiBit := v&0x1 != 0
			v >>= 1
			last := remaining == 1
			e.out.PushEdge(last, tdiBit)
			edges++
			remaining--
		}
	}

	// From *EXIT1 to *PAUSE.
	e.out.PushEdge(false, false)

	e.tap.ForceState(pause)
	return edges, nil
}

// CapturedHex reassembles the last edges TDO bits captured via cap into an
// uppercase hex string of length HexLen(bits), applying mask nibble-wise
// if maskHex is non-empty. The data bits are anchored to the END of cap's
// most recent commit, skipping the trailing
// EXIT1->PAUSE edge Shift always pushes after them (and any preamble
// edges of unknown count that may precede them in the same commit).
func CapturedHex(cap Capture, bits, edges int, maskHex string) (string, error) {
	if maskHex != "" && len(maskHex) != HexLen(bits) {
		return "", jtagerr.New(jtagerr.BadSVF, "mask length does not match TDI/TDO length")
	}
	var maskNibbles []byte
	if maskHex != "" {
		var err error
		maskNibbles, err = DecodeNibbles(maskHex)
		if err != nil {
			return "", err
		}
	}

	offset := cap.RXLen() - edges - 1
	if offset < 0 {
		return "", jtagerr.New(jtagerr.TAPStuck, "captured fewer RX edges than this shift pushed")
	}

	nOut := HexLen(bits)
	nibbles := make([]byte, nOut)
	bitIdx := 0
	for edge := 0; edge < edges; edge++ {
		nibbleIdx := nOut - 1 - bitIdx/4
		if cap.RXBitAt(offset + edge) {
			nibbles[nibbleIdx] |= 1 << uint(bitIdx%4)
		}
		bitIdx++
	}
	if maskNibbles != nil {
		for i := range nibbles {
			nibbles[i] &= maskNibbles[i]
		}
	}
	return EncodeNibbles(nibbles), nil
}

// MaskHex applies mask nibble-wise to value, both uppercase hex strings of
// equal length.
func MaskHex(value, mask string) (string, error) {
	if len(value) != len(mask) {
		return "", jtagerr.New(jtagerr.BadSVF, "value/mask length mismatch")
	}
	vn, err := DecodeNibbles(value)
	if err != nil {
		return "", err
	}
	mn, err := DecodeNibbles(mask)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(vn))
	for i := range vn {
		out[i] = vn[i] & mn[i]
	}
	return EncodeNibbles(out), nil
}

// CompareMasked reports whether received and expected agree under mask,
// nibble-wise. All three strings must have equal length.
func CompareMasked(received, expected, mask string) (bool, error) {
	r, err := MaskHex(received, mask)
	if err != nil {
		return false, err
	}
	x, err := MaskHex(expected, mask)
	if err != nil {
		return false, err
	}
	return r == x, nil
}
