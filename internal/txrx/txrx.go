// Package txrx implements the TX/RX edge buffer shared by the TAP and
// shift engines: it accumulates TMS/TDI/TCK byte pairs, commits them to
// the cable in mode-appropriate chunks, and extracts TDO bits captured in
// SYNC mode.
package txrx

import (
	"time"

	"github.com/mzec/jtagprog/internal/jtagerr"
)

// Capacity is the fixed TX buffer size. Overflowing it is a fatal bug,
// never a recoverable condition.
const Capacity = 256 * 1024

// SyncChunkUnix and SyncChunkWindows are the SYNC-mode commit chunk sizes
// for non-Windows and Windows hosts respectively.
const (
	SyncChunkUnix    = 384
	SyncChunkWindows = 4096
)

// LEDInterval is the minimum time between consecutive LED blink requests.
const LEDInterval = 250 * time.Millisecond

// Pins holds the bit masks of a sample byte: TMS and TDI select which bit
// carries TMS/TDI; TCK is OR'ed in for the second byte of every edge pair.
// TDO selects which bit of the *second* byte of a captured pair holds TDO.
// These are supplied by the cable backend (USB vs. parallel pinouts
// differ) via NewBuffer.
type Pins struct {
	TMS, TDI, TCK, TDO byte
}

// Writer is the minimal cable capability the buffer commits through:
// synchronous write, and (in SYNC mode) read-back of the same byte count.
type Writer interface {
	Write(b []byte) error
	Read(b []byte) error
}

// Mode mirrors cable.Mode without importing the cable package (txrx is a
// lower layer); the session wires the two together.
type Mode int

const (
	ModeAsync Mode = iota
	ModeSync
)

// Buffer is the TX/RX edge buffer. It is not safe for concurrent use; the
// whole pipeline runs single-threaded.
type Buffer struct {
	pins Pins

	buf []byte // TX bytes staged for commit.
	rx  []byte // Most recent commit's captured RX bytes (SYNC mode only), aligned with buf.

	syncChunk int

	lastBlinkMs int64
	blinkPend   bool
}

// NewBuffer returns an empty Buffer using the given pin assignment and
// SYNC-mode chunk size (pass SyncChunkWindows on that platform, otherwise
// SyncChunkUnix).
func NewBuffer(pins Pins, syncChunk int) *Buffer {
	return &Buffer{
		pins:      pins,
		buf:       make([]byte, 0, Capacity),
		syncChunk: syncChunk,
	}
}

// PushEdge appends one TMS/TDI transition as two bytes: the line levels,
// then the same levels with TCK asserted.
func (b *Buffer) PushEdge(tms, tdi bool) {
	var level byte
	if tms {
		level |= b.pins.TMS
	}
	if tdi {
		level |= b.pins.TDI
	}
	if len(b.buf)+2 > Capacity {
		panic("txrx: TX buffer overflow")
	}
	b.buf = append(b.buf, level, level|b.pins.TCK)
}

// Len returns the number of staged, uncommitted TX bytes.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// RXBitAt reports the captured TDO bit for the edge at edgeIndex (0-based
// edge count from the start of the most recently committed chunk set),
// reading the second (post-TCK-rise) byte of that edge pair.
func (b *Buffer) RXBitAt(edgeIndex int) bool {
	i := edgeIndex*2 + 1
	return b.rx[i]&b.pins.TDO != 0
}

// RXLen returns the number of captured edge pairs in the most recently
// committed chunk set (shift.CapturedHex anchors its data-bit indices to
// the end of this range, since a shift's preamble/TAP-transition edges of
// unknown count may precede the data bits within the same commit).
func (b *Buffer) RXLen() int {
	return len(b.rx) / 2
}

// ShouldCommit reports whether the buffer should be flushed right now
// given the current port mode.
func (b *Buffer) ShouldCommit(mode Mode, force bool) bool {
	if len(b.buf) == 0 {
		return false
	}
	if force {
		return true
	}
	if mode == ModeSync {
		return true
	}
	return len(b.buf) >= Capacity/2
}

// Commit writes all staged bytes to w, chunked to syncChunk in SYNC mode.
// In SYNC mode it also reads back an equal number of bytes per chunk (retrying short
// reads up to 8 times) and stores them for RXBitAt. nowMs is the caller's
// wall clock in milliseconds, used to update the blink-pending flag.
func (b *Buffer) Commit(w Writer, mode Mode, nowMs int64) error {
	if len(b.buf) == 0 {
		b.maybeSchedule(nowMs)
		return nil
	}

	if mode == ModeSync {
		b.rx = b.rx[:0]
	}

	maxChunk := len(b.buf)
	if mode == ModeSync {
		maxChunk = b.syncChunk
	}

	for off := 0; off < len(b.buf); off += maxChunk {
		end := off + maxChunk
		if end > len(b.buf) {
			end = len(b.buf)
		}
		part := b.buf[off:end]
		if err := w.Write(part); err != nil {
			return jtagerr.Wrap(jtagerr.CableIO, "write", err)
		}
		if mode == ModeSync {
			rxPart := make([]byte, len(part))
			if err := readFull(w, rxPart); err != nil {
				return err
			}
			b.rx = append(b.rx, rxPart...)
		}
	}

	b.buf = b.buf[:0]
	b.maybeSchedule(nowMs)
	return nil
}

// readFull retries w.Read up to 8 times to fill buf completely, matching
// ujprog.c's commit_usb() retry loop for SYNC-mode readback.
func readFull(w Writer, buf []byte) error {
	const maxRetries = 8
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := w.Read(buf); err == nil {
			return nil
		} else if attempt == maxRetries-1 {
			return jtagerr.Wrap(jtagerr.CableIO, "read-back short after retries", err)
		}
	}
	return jtagerr.New(jtagerr.CableIO, "read-back failed after retries")
}

func (b *Buffer) maybeSchedule(nowMs int64) {
	if nowMs-b.lastBlinkMs >= int64(LEDInterval/time.Millisecond) {
		b.lastBlinkMs = nowMs
		b.blinkPend = true
	}
}

// BlinkPending reports, and clears, whether a blink request has accrued
// since the last call.
func (b *Buffer) BlinkPending() bool {
	p := b.blinkPend
	b.blinkPend = false
	return p
}

// RepeatLastEdge duplicates the last staged edge pair repeat times,
// implementing RUNTEST's clock padding by reusing the already-staged TMS
// level.
func (b *Buffer) RepeatLastEdge(repeat int, commit func() error) error {
	if len(b.buf) < 2 {
		return jtagerr.New(jtagerr.BadSVF, "RUNTEST padding with no prior edge")
	}
	last0 := b.buf[len(b.buf)-2]
	last1 := b.buf[len(b.buf)-1]
	for i := 0; i < repeat; i++ {
		if len(b.buf)+2 > Capacity {
			if commit == nil {
				panic("txrx: TX buffer overflow")
			}
			if err := commit(); err != nil {
				return err
			}
		}
		b.buf = append(b.buf, last0, last1)
	}
	return nil
}
