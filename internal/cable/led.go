package cable

import (
	"errors"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/physic"
)

// LEDPin exposes the cable's activity LED (an FTDI CBUS pin driven
// alongside TCK/TMS/TDI in bit-bang mode, the USBLED bit) as a gpio.PinIO,
// the way hostextra/d2xx/mpsse.go's gpioMPSSE wraps a single MPSSE-driven
// CBUS/DBUS line. Unlike that pin, this one has no direction register of
// its own: it rides piggyback on whatever bitmode byte SetMode() last
// wrote, so In() is unsupported and every Out() call re-issues SetMode
// with the LED bit folded in.
type LEDPin struct {
	c     Cable
	mode  Mode
	level gpio.Level
}

// NewLEDPin returns a gpio.PinIO bound to c's activity LED. c must already
// be open and in mode (ASYNC or SYNC) before Out() is called.
func NewLEDPin(c Cable, mode Mode) *LEDPin {
	return &LEDPin{c: c, mode: mode}
}

// SetMode updates which bitmode Out() folds the LED bit into, keeping the
// pin in step when the session switches the cable between ASYNC and SYNC.
func (l *LEDPin) SetMode(mode Mode) {
	l.mode = mode
}

// String implements pin.Pin.
func (l *LEDPin) String() string { return l.Name() }

// Name implements pin.Pin.
func (l *LEDPin) Name() string { return "LED" }

// Number implements pin.Pin.
func (l *LEDPin) Number() int { return -1 }

// Function implements pin.Pin.
func (l *LEDPin) Function() string { return "Out/" + l.level.String() }

// Halt implements gpio.PinIO.
func (l *LEDPin) Halt() error { return nil }

// In implements gpio.PinIn. The LED bit is write-only alongside the JTAG
// bit-bang pins, so reading it back is not supported.
func (l *LEDPin) In(pull gpio.Pull, e gpio.Edge) error {
	return errors.New("cable: LED pin is output-only")
}

// Read implements gpio.PinIn, returning the last level driven.
func (l *LEDPin) Read() gpio.Level {
	return l.level
}

// WaitForEdge implements gpio.PinIn.
func (l *LEDPin) WaitForEdge(t time.Duration) bool {
	return false
}

// DefaultPull implements gpio.PinIn.
func (l *LEDPin) DefaultPull() gpio.Pull {
	return gpio.Float
}

// Pull implements gpio.PinIn.
func (l *LEDPin) Pull() gpio.Pull {
	return gpio.PullNoChange
}

// Out implements gpio.PinOut. The cable's hardware LED is active-low
// (USBLED driven low lights it), matching ujprog.c's led_on inversion.
func (l *LEDPin) Out(level gpio.Level) error {
	l.level = level
	var ledBit byte
	if !bool(level) {
		ledBit = USBLED
	}
	return l.c.SetMode(l.mode, ledBit)
}

// PWM implements gpio.PinOut.
func (l *LEDPin) PWM(d gpio.Duty, f physic.Frequency) error {
	return errors.New("cable: LED pin does not support PWM")
}

var _ gpio.PinIO = &LEDPin{}
