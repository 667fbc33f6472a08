// Package cable opens, configures, and talks to the bit-bang JTAG cable
// (FTDI USB, or a parallel port on hosts that support it), plus the UART
// passthrough used after programming completes.
package cable

import "github.com/mzec/jtagprog/internal/txrx"

// Mode is the cable's bit-bang/UART port mode.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeAsync
	ModeSync
	ModeUART
)

func (m Mode) String() string {
	switch m {
	case ModeAsync:
		return "ASYNC"
	case ModeSync:
		return "SYNC"
	case ModeUART:
		return "UART"
	default:
		return "UNKNOWN"
	}
}

// Cable is the capability set every concrete backend implements: the core
// is unaware of which backend is present.
type Cable interface {
	// Open acquires the cable.
	Open() error
	// Close releases the cable, leaving it in a safe state (TCK low, UART
	// mode).
	Close() error
	// SetMode switches the bit-bang/UART mode, folding in ledBit (ignored
	// by backends with no LED pin) as the low bit pattern to drive
	// alongside TCK/TMS/TDI while in ASYNC/SYNC mode.
	SetMode(mode Mode, ledBit byte) error
	// Write sends raw bytes to the cable (TX edges in bit-bang mode, plain
	// bytes in UART mode).
	Write(b []byte) error
	// Read receives raw bytes from the cable. In SYNC bit-bang mode, each
	// byte read corresponds 1:1 to a byte written.
	Read(b []byte) error
	// SetLatency sets the USB latency timer in milliseconds; a no-op on
	// backends without one.
	SetLatency(ms int) error
	// SetBaud sets the baud rate used for UART passthrough.
	SetBaud(baud int) error
	// Pins returns the bit assignment this backend uses for TMS/TDI/TCK/TDO,
	// so the session can build a txrx.Buffer with the right masks.
	Pins() txrx.Pins
	// SyncChunk returns this backend/host's SYNC-mode commit chunk size.
	SyncChunk() int
}

// USB pin assignments, from ujprog.c's USB_* macros.
const (
	USBTCK = 0x20
	USBTMS = 0x80
	USBTDI = 0x08
	USBTDO = 0x40
	USBLED = 0x02 // CBUS pin, inverted drive
)

// Parallel-port pin assignments, from ujprog.c's PPI_* macros.
const (
	PPITCK = 0x02
	PPITMS = 0x04
	PPITDI = 0x01
	PPITDO = 0x40
)

// USB cable identification.
const (
	USBVendorID  = 0x0403
	USBProductID = 0x6001
	USBBaud      = 1000000
)

// AcceptedDescriptors lists the USB product descriptor strings this
// programmer recognises, from ujprog.c's cable_hw_map[].
var AcceptedDescriptors = []string{
	"FER ULXP2 board JTAG / UART",
	"FER ULX2S board JTAG / UART",
}
