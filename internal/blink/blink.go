// Package blink implements the activity indicator ujprog.c prints to the
// console while a long SVF/JED program runs ("Programming: NN% -"), plus
// the LED bit it toggles on the cable alongside it.
package blink

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/maruel/ansi256"
)

// Interval is how often the indicator is allowed to update, matching
// ujprog.c's LED_BLINK_RATE.
const Interval = 250 * time.Millisecond

var phases = [...]byte{'-', '\\', '|', '/'}

var (
	colorRunning = color.NRGBA{R: 0x00, G: 0xaf, B: 0x00, A: 0xff}
	colorDone    = color.NRGBA{R: 0x00, G: 0x87, B: 0xff, A: 0xff}
)

// Indicator prints a carriage-return-updated "Programming: NN% -" line and
// tracks when the cable's LED bit should next toggle, mirroring ujprog.c's
// need_led_blink/blinker_phase/progress_perc globals bundled into one
// value instead of package state.
type Indicator struct {
	w          io.Writer
	quiet      bool
	isTTY      bool
	phase      int
	percent    int
	ledOn      bool
	lastToggle time.Time
}

// New returns an Indicator. When quiet is true (the CLI's -s flag) or
// stdout isn't a terminal, updates are suppressed entirely so piped/logged
// output isn't littered with carriage returns.
func New(quiet bool) *Indicator {
	out := colorable.NewColorableStdout()
	return &Indicator{
		w:     out,
		quiet: quiet,
		isTTY: isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
	}
}

// SetProgress records the current completion percentage (0-100).
func (in *Indicator) SetProgress(percent int) {
	in.percent = percent
}

// Due reports whether at least Interval has passed since the LED was last
// toggled, given the current wall-clock time.
func (in *Indicator) Due(now time.Time) bool {
	return now.Sub(in.lastToggle) >= Interval
}

// Tick toggles the LED state and redraws the progress line if Due(now);
// it returns the LED level the cable's LED pin should now drive.
func (in *Indicator) Tick(now time.Time) (ledOn bool, blinked bool) {
	if !in.Due(now) {
		return in.ledOn, false
	}
	in.lastToggle = now
	in.ledOn = !in.ledOn
	in.draw()
	in.phase = (in.phase + 1) & 0x3
	return in.ledOn, true
}

func (in *Indicator) draw() {
	if in.quiet || !in.isTTY {
		return
	}
	c := colorRunning
	if in.percent >= 100 {
		c = colorDone
	}
	fmt.Fprintf(in.w, "\r%sProgramming: %3d%% %c ",
		ansi256.Default.Block(c), in.percent, phases[in.phase])
}

// Finish overwrites the progress line with a final "Programming: 100%
// done" line, leaving the cursor at the start of a fresh line.
func (in *Indicator) Finish() {
	if in.quiet || !in.isTTY {
		return
	}
	fmt.Fprintf(in.w, "\r%sProgramming: 100%% done\n", ansi256.Default.Block(colorDone))
}
