package cable

import (
	"fmt"
	"runtime"

	"github.com/google/gousb"
	"github.com/mzec/jtagprog/internal/jtagerr"
	"github.com/mzec/jtagprog/internal/txrx"
)

// FTDI SIO vendor request numbers (documented in the D2XX programmer's
// guide and mirrored by libftdi; see hostextra/d2xx/d2xx_posix.go and
// experimental/devices/ftd2xx/ftd2xx_posix.go for the cgo equivalents this
// backend replaces with direct USB control transfers).
const (
	sioResetRequest        = 0x00
	sioSetFlowCtrlRequest  = 0x02
	sioSetBaudRateRequest  = 0x03
	sioSetLatencyTimerReq  = 0x09
	sioSetBitModeRequest   = 0x0B
	sioReqTypeOut          = 0x40 // host-to-device, vendor, device
	ftdiInEPModemStatusLen = 2    // every IN packet is prefixed with 2 modem-status bytes
	ftdiMaxPacketSize      = 64
)

// Bit-bang mode bytes for the SIO_SET_BITMODE vendor request (low byte of
// wValue is the pin direction mask, high byte selects the mode).
const (
	bitmodeReset   = 0x00
	bitmodeBitbang = 0x01
	bitmodeSyncBB  = 0x04
)

// USBCable drives an FT232R-class cable directly over libusb via gousb, in
// the spirit of experimental/host/usbbus/usbbus.go's device/endpoint
// plumbing, replacing the D2XX DLL/.so binding those teacher packages use
// with the raw FTDI SIO vendor requests it would otherwise issue under the
// hood.
type USBCable struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	done  func()
	in    *gousb.InEndpoint
	out   *gousb.OutEndpoint
	ledOn bool

	syncChunk int
}

// NewUSBCable returns an unopened USBCable. Its SYNC-mode chunk size is
// txrx.SyncChunkWindows on Windows hosts, txrx.SyncChunkUnix elsewhere.
func NewUSBCable() *USBCable {
	chunk := txrx.SyncChunkUnix
	if runtime.GOOS == "windows" {
		chunk = txrx.SyncChunkWindows
	}
	return &USBCable{syncChunk: chunk}
}

func (c *USBCable) Open() error {
	c.ctx = gousb.NewContext()

	var opened *gousb.Device
	devs, err := c.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == USBVendorID && uint16(desc.Product) == USBProductID
	})
	for _, d := range devs {
		if opened == nil {
			opened = d
			continue
		}
		d.Close()
	}
	if err != nil && opened == nil {
		c.ctx.Close()
		return jtagerr.Wrap(jtagerr.NoCable, "usb scan", err)
	}
	if opened == nil {
		c.ctx.Close()
		return jtagerr.New(jtagerr.NoCable, "no FTDI cable found at %#04x:%#04x", USBVendorID, USBProductID)
	}

	desc, descErr := opened.GetStringDescriptor(2)
	if descErr == nil && !acceptedDescriptor(desc) {
		opened.Close()
		c.ctx.Close()
		return jtagerr.New(jtagerr.NoCable, "incompatible device description: %s", desc)
	}

	intf, done, err := opened.DefaultInterface()
	if err != nil {
		opened.Close()
		c.ctx.Close()
		return jtagerr.Wrap(jtagerr.NoCable, "claim interface", err)
	}
	in, err := intf.InEndpoint(1)
	if err != nil {
		done()
		opened.Close()
		c.ctx.Close()
		return jtagerr.Wrap(jtagerr.NoCable, "in endpoint", err)
	}
	out, err := intf.OutEndpoint(1)
	if err != nil {
		done()
		opened.Close()
		c.ctx.Close()
		return jtagerr.Wrap(jtagerr.NoCable, "out endpoint", err)
	}

	c.dev = opened
	c.done = done
	c.in = in
	c.out = out

	if err := c.sioControl(sioSetBaudRateRequest, baudDivisor(USBBaud)); err != nil {
		return err
	}
	if err := c.sioControl(sioSetLatencyTimerReq, 1); err != nil {
		return err
	}
	if err := c.sioControl(sioSetFlowCtrlRequest, 0); err != nil {
		return err
	}
	return c.SetMode(ModeAsync, 0)
}

func acceptedDescriptor(desc string) bool {
	for _, d := range AcceptedDescriptors {
		if d == desc {
			return true
		}
	}
	return false
}

func baudDivisor(baud int) uint16 {
	// FTDI's baud-rate encoding is nonlinear across generations; this
	// returns the fixed divisor used for USBBaud whatever baud is passed,
	// so SetBaud does not change the rate for any other value (including
	// the -t passthrough rate given with -b).
	return 0x0004
}

func (c *USBCable) sioControl(request uint8, value uint16) error {
	_, err := c.dev.Control(sioReqTypeOut, request, value, 1, nil)
	return jtagerr.Wrap(jtagerr.CableIO, fmt.Sprintf("SIO request %#02x", request), err)
}

func (c *USBCable) Close() error {
	if c.dev == nil {
		return nil
	}
	// Pull TCK low before leaving bit-bang mode, so the next run doesn't
	// glitch the clock (ujprog.c's shutdown_usb()).
	_ = c.Write([]byte{0})
	err := c.SetMode(ModeUART, 0)
	if c.done != nil {
		c.done()
	}
	closeErr := c.dev.Close()
	c.ctx.Close()
	if err != nil {
		return err
	}
	return jtagerr.Wrap(jtagerr.CableIO, "close", closeErr)
}

func (c *USBCable) SetMode(mode Mode, ledBit byte) error {
	switch mode {
	case ModeSync:
		if err := c.sioControl(sioSetBitModeRequest, uint16(bitmodeSyncBB)<<8|uint16(USBTCK|USBTMS|USBTDI)|uint16(ledBit)); err != nil {
			return err
		}
		return c.purgeRX()
	case ModeAsync:
		return c.sioControl(sioSetBitModeRequest, uint16(bitmodeBitbang)<<8|uint16(USBTCK|USBTMS|USBTDI)|uint16(ledBit))
	case ModeUART:
		return c.sioControl(sioSetBitModeRequest, uint16(bitmodeReset)<<8)
	default:
		return jtagerr.New(jtagerr.CableIO, "unsupported mode %v", mode)
	}
}

// purgeRX loops reading and discarding pending bytes until a read comes
// back empty, tolerating a handful of retries. Mandatory stale-RX purge
// when entering SYNC mode, grounded on ujprog.c's set_port_mode()
// ftdi_read_data drain loop.
func (c *USBCable) purgeRX() error {
	scratch := make([]byte, ftdiMaxPacketSize)
	for i := 0; i < 16; i++ {
		n, err := c.in.Read(scratch)
		if err != nil {
			return jtagerr.Wrap(jtagerr.CableIO, "purge RX", err)
		}
		if n <= ftdiInEPModemStatusLen {
			return nil
		}
	}
	return jtagerr.New(jtagerr.CableIO, "RX purge did not settle")
}

func (c *USBCable) Write(b []byte) error {
	n, err := c.out.Write(b)
	if err != nil {
		return jtagerr.Wrap(jtagerr.CableIO, "write", err)
	}
	if n != len(b) {
		return jtagerr.New(jtagerr.CableIO, "short write: wrote %d of %d bytes", n, len(b))
	}
	return nil
}

// Read fills b with exactly len(b) bytes of bit-bang sample data, skipping
// the 2-byte FTDI modem-status header that prefixes every USB IN packet.
func (c *USBCable) Read(b []byte) error {
	need := len(b)
	got := 0
	raw := make([]byte, ftdiMaxPacketSize)
	for got < need {
		n, err := c.in.Read(raw)
		if err != nil {
			return jtagerr.Wrap(jtagerr.CableIO, "read", err)
		}
		if n <= ftdiInEPModemStatusLen {
			continue
		}
		data := raw[ftdiInEPModemStatusLen:n]
		copyN := copy(b[got:], data)
		got += copyN
	}
	return nil
}

func (c *USBCable) SetLatency(ms int) error {
	return c.sioControl(sioSetLatencyTimerReq, uint16(ms))
}

func (c *USBCable) SetBaud(baud int) error {
	return c.sioControl(sioSetBaudRateRequest, baudDivisor(baud))
}

func (c *USBCable) Pins() txrx.Pins {
	return txrx.Pins{TMS: USBTMS, TDI: USBTDI, TCK: USBTCK, TDO: USBTDO}
}

func (c *USBCable) SyncChunk() int {
	return c.syncChunk
}

var _ Cable = (*USBCable)(nil)
